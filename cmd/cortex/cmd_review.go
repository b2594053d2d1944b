package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kraklabs/cortex/internal/learning"
	"github.com/kraklabs/cortex/internal/planner"
	"github.com/kraklabs/cortex/internal/refactor"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively approve, reject, and apply refactoring suggestions",
	Long: `Generates suggestions the same way "suggest" does, then walks
them one at a time: j/k to move, a to approve and apply, r to reject, q
to quit. Feedback from each decision is recorded to the learning store
and adjusts future confidence.`,
	RunE: runReview,
}

type reviewItem struct {
	suggestion planner.Suggestion
	record     *refactor.Record
	outcome    learning.Outcome
	applyErr   error
}

type reviewModel struct {
	executor *refactor.Executor
	items    []reviewItem
	cursor   int
	done     bool
	vp       viewport.Model
}

func (m reviewModel) Init() tea.Cmd { return nil }

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 2
		m.vp.SetContent(m.renderList())
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		case "j", "down":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "a":
			m.decide(m.cursor, learning.OutcomeAccepted)
		case "r":
			m.decide(m.cursor, learning.OutcomeRejected)
		}
		m.vp.SetContent(m.renderList())
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// decide proposes, validates, and (on acceptance) approves and applies the
// suggestion at index i, recording the outcome to the learning store.
func (m *reviewModel) decide(i int, outcome learning.Outcome) {
	item := &m.items[i]
	if item.record != nil {
		return // already decided
	}

	rec, err := m.executor.Propose(item.suggestion)
	if err != nil {
		item.applyErr = err
		return
	}
	item.record = rec
	item.outcome = outcome

	if err := m.executor.Validate(rec.ID); err != nil {
		item.applyErr = err
		theBank.Learning.RecordFeedback(item.suggestion, learning.Feedback{SuggestionID: rec.ID, Type: item.suggestion.Type, Outcome: learning.OutcomeRejected})
		return
	}

	if outcome == learning.OutcomeRejected {
		m.executor.Reject(rec.ID)
		theBank.Learning.RecordFeedback(item.suggestion, learning.Feedback{SuggestionID: rec.ID, Type: item.suggestion.Type, Outcome: learning.OutcomeRejected})
		return
	}

	if err := m.executor.Approve(rec.ID); err != nil {
		item.applyErr = err
		return
	}
	if err := m.executor.Apply(context.Background(), rec.ID); err != nil {
		item.applyErr = err
		theBank.Learning.RecordFeedback(item.suggestion, learning.Feedback{SuggestionID: rec.ID, Type: item.suggestion.Type, Outcome: learning.OutcomeRejected})
		return
	}
	theBank.Learning.RecordFeedback(item.suggestion, learning.Feedback{SuggestionID: rec.ID, Type: item.suggestion.Type, Outcome: learning.OutcomeAccepted})
}

var (
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func (m reviewModel) renderList() string {
	if len(m.items) == 0 {
		return "no suggestions to review\n"
	}

	out := ""
	for i, item := range m.items {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		line := fmt.Sprintf("%s%s  %v  %s", marker, item.suggestion.Type, item.suggestion.AffectedFiles, item.suggestion.Rationale)

		switch {
		case item.applyErr != nil:
			line += errStyle.Render(fmt.Sprintf("  [error: %v]", item.applyErr))
		case item.record == nil:
			// undecided
		case item.outcome == learning.OutcomeAccepted:
			line += acceptedStyle.Render("  [applied]")
		case item.outcome == learning.OutcomeRejected:
			line += rejectedStyle.Render("  [rejected]")
		}
		out += line + "\n"
	}
	return out
}

func (m reviewModel) View() string {
	return m.vp.View() + "\n" + helpStyle.Render("j/k move  a approve+apply  r reject  q quit")
}

func runReview(cmd *cobra.Command, args []string) error {
	suggestions, _ := gatherSuggestions()
	items := make([]reviewItem, len(suggestions))
	for i, s := range suggestions {
		items[i] = reviewItem{suggestion: s}
	}

	executor := refactor.New(theBank.FS, theBank.Versions, theBank.Index, theBank.Graph)
	vp := viewport.New(80, 20)
	model := reviewModel{executor: executor, items: items, vp: vp}
	model.vp.SetContent(model.renderList())

	p := tea.NewProgram(model)
	_, err := p.Run()
	return err
}
