package linkparser

import "testing"

func TestParseMarkdownLink(t *testing.T) {
	content := []byte("See [the brief](projectBrief.md#overview) for context.")
	links, _ := Parse(content)

	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	l := links[0]
	if l.Target != "projectBrief.md" || l.Anchor != "overview" {
		t.Errorf("unexpected target/anchor: %+v", l)
	}
	if l.Kind != KindMarkdown {
		t.Errorf("expected KindMarkdown, got %s", l.Kind)
	}
	if l.SourceLine != 1 {
		t.Errorf("expected line 1, got %d", l.SourceLine)
	}
}

func TestParseExternalLinkExcluded(t *testing.T) {
	content := []byte("[docs](https://example.com/docs)\n[mail](mailto:a@b.com)")
	links, _ := Parse(content)

	for _, l := range links {
		if l.Kind != KindExternal {
			t.Errorf("expected external kind for %s, got %s", l.Target, l.Kind)
		}
	}
}

func TestParseTransclusionWithOptions(t *testing.T) {
	content := []byte("intro\n{{include: systemPatterns.md|strip_header=true|level=2}}\n")
	_, trs := Parse(content)

	if len(trs) != 1 {
		t.Fatalf("expected 1 transclusion, got %d", len(trs))
	}
	tr := trs[0]
	if tr.Target != "systemPatterns.md" {
		t.Errorf("unexpected target: %s", tr.Target)
	}
	if !tr.StripHeader {
		t.Error("expected strip_header=true")
	}
	if !tr.HasLevel || tr.Level != 2 {
		t.Errorf("expected level=2, got %+v", tr)
	}
	if tr.SourceLine != 2 {
		t.Errorf("expected line 2, got %d", tr.SourceLine)
	}
}

func TestParseTransclusionBooleanSpellings(t *testing.T) {
	content := []byte("{{include: a.md|strip_header=yes}}\n{{include: b.md|strip_header=no}}")
	_, trs := Parse(content)

	if len(trs) != 2 {
		t.Fatalf("expected 2 transclusions, got %d", len(trs))
	}
	if !trs[0].StripHeader {
		t.Error("expected 'yes' to parse as true")
	}
	if trs[1].StripHeader {
		t.Error("expected 'no' to parse as false")
	}
}

func TestIsCanonicalBankFile(t *testing.T) {
	if !IsCanonicalBankFile("progress.md") {
		t.Error("expected progress.md to be canonical")
	}
	if IsCanonicalBankFile("randomNotes.md") {
		t.Error("expected randomNotes.md to not be canonical")
	}
}

func TestParseMultipleLinksAcrossLines(t *testing.T) {
	content := []byte("line one\n[a](activeContext.md)\nline three\n[b](progress.md)")
	links, _ := Parse(content)

	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].SourceLine != 2 || links[1].SourceLine != 4 {
		t.Errorf("unexpected line numbers: %d, %d", links[0].SourceLine, links[1].SourceLine)
	}
}
