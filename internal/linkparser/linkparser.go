// Package linkparser implements the memory bank's link parser (spec
// component C4): a pure, stateless scanner over Markdown bytes that
// extracts links, transclusion directives, and canonical bank references.
package linkparser

import (
	"regexp"
	"strconv"
	"strings"
)

// canonicalBankFiles is the fixed set of memory-bank file names the spec
// recognizes as first-class references (spec §6 "On-disk layout").
var canonicalBankFiles = map[string]bool{
	"projectBrief.md":   true,
	"productContext.md": true,
	"techContext.md":    true,
	"systemPatterns.md": true,
	"activeContext.md":  true,
	"progress.md":       true,
}

var externalSchemes = []string{"http://", "https://", "mailto:", "file://"}

var (
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	transclusionPattern = regexp.MustCompile(`\{\{include:\s*([^|}]+?)((?:\|[^|}]+)*)\}\}`)
	optionPattern        = regexp.MustCompile(`\|\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*([^|]+)`)
)

// LinkKind identifies what a parsed link points to.
type LinkKind string

const (
	KindMarkdown     LinkKind = "markdown"
	KindTransclusion LinkKind = "transclusion"
	KindExternal     LinkKind = "external"
)

// Link is one reference extracted from a file's content.
type Link struct {
	Target     string
	Anchor     string
	Kind       LinkKind
	SourceLine int
	Text       string
}

// TransclusionOption is one `key=val` pair parsed from an include directive.
type TransclusionOption struct {
	Key      string
	RawValue string
}

// Transclusion is one `{{include: target|opt=val|...}}` directive.
type Transclusion struct {
	Target      string
	SourceLine  int
	StripHeader bool
	Level       int
	HasLevel    bool
	Options     []TransclusionOption
}

// Parse scans content and returns every Markdown link and transclusion
// directive found, with 1-based source line numbers.
func Parse(content []byte) ([]Link, []Transclusion) {
	text := string(content)
	lineStarts := computeLineStarts(text)

	var links []Link
	for _, m := range markdownLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		linkText := text[m[2]:m[3]]
		targetRaw := text[m[4]:m[5]]

		target, anchor := splitAnchor(targetRaw)
		kind := classifyLink(target)

		links = append(links, Link{
			Target:     target,
			Anchor:     anchor,
			Kind:       kind,
			SourceLine: lineOf(lineStarts, m[0]),
			Text:       linkText,
		})
	}

	var transclusions []Transclusion
	for _, m := range transclusionPattern.FindAllStringSubmatchIndex(text, -1) {
		target := strings.TrimSpace(text[m[2]:m[3]])
		optsRaw := ""
		if m[4] != -1 {
			optsRaw = text[m[4]:m[5]]
		}

		tr := Transclusion{
			Target:     target,
			SourceLine: lineOf(lineStarts, m[0]),
		}

		for _, om := range optionPattern.FindAllStringSubmatch(optsRaw, -1) {
			key := strings.TrimSpace(om[1])
			val := strings.TrimSpace(om[2])
			tr.Options = append(tr.Options, TransclusionOption{Key: key, RawValue: val})

			switch key {
			case "strip_header":
				tr.StripHeader = parseBool(val)
			case "level":
				if lvl, err := strconv.Atoi(val); err == nil {
					tr.Level = lvl
					tr.HasLevel = true
				}
			}
		}

		transclusions = append(transclusions, tr)
	}

	return links, transclusions
}

// IsCanonicalBankFile reports whether name is one of the fixed memory-bank
// file names the spec treats as a canonical reference.
func IsCanonicalBankFile(name string) bool {
	return canonicalBankFiles[name]
}

func classifyLink(target string) LinkKind {
	lower := strings.ToLower(target)
	for _, scheme := range externalSchemes {
		if strings.HasPrefix(lower, scheme) {
			return KindExternal
		}
	}
	return KindMarkdown
}

func splitAnchor(target string) (string, string) {
	if i := strings.Index(target, "#"); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// parseBool accepts the boolean spellings the spec names explicitly.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	default:
		return false
	}
}

func computeLineStarts(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 1-based line number containing byte offset pos.
func lineOf(lineStarts []int, pos int) int {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= pos {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
