package refactor

import (
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*$`)

// section is one heading-delimited span of a Markdown file, byte offsets
// into the original content. A section runs from its heading line up to
// (but not including) the next heading line, or EOF.
type section struct {
	Title string
	Start int
	End   int
}

// splitSections locates every Markdown heading in content and returns the
// sections they delimit, in document order.
func splitSections(content string) []section {
	matches := headingPattern.FindAllStringSubmatchIndex(content, -1)
	sections := make([]section, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		title := strings.TrimSpace(content[m[4]:m[5]])
		sections = append(sections, section{Title: title, Start: start, End: end})
	}
	return sections
}

// findSection returns the section whose title matches name, case- and
// leading-hash-insensitively, or false if none is found.
func findSection(content, name string) (section, bool) {
	name = strings.TrimSpace(strings.TrimLeft(name, "#"))
	for _, s := range splitSections(content) {
		if strings.EqualFold(s.Title, name) {
			return s, true
		}
	}
	return section{}, false
}

// replaceSection returns content with the named section's body replaced by
// replacement; the section's own heading line is kept. If name is empty or
// no matching section exists, the whole content is replaced.
func replaceSection(content, name, replacement string) string {
	if name == "" {
		return replacement
	}
	s, ok := findSection(content, name)
	if !ok {
		return replacement
	}
	headingEnd := strings.IndexByte(content[s.Start:s.End], '\n')
	if headingEnd < 0 {
		return content[:s.Start] + replacement + content[s.End:]
	}
	bodyStart := s.Start + headingEnd + 1
	return content[:bodyStart] + replacement + "\n" + content[s.End:]
}

// removeSection returns content with the named section, heading included,
// excised entirely. If name is empty or no matching section exists, content
// is returned unchanged.
func removeSection(content, name string) string {
	if name == "" {
		return content
	}
	s, ok := findSection(content, name)
	if !ok {
		return content
	}
	return content[:s.Start] + content[s.End:]
}
