package tokencount

import "testing"

func TestCountEmptyIsZero(t *testing.T) {
	if Count("") != 0 {
		t.Error("expected 0 tokens for empty string")
	}
}

func TestCountIsDeterministic(t *testing.T) {
	s := "the quick brown fox jumps over the lazy dog"
	a := Count(s)
	b := Count(s)
	if a != b {
		t.Errorf("expected deterministic counts, got %d and %d", a, b)
	}
}

func TestCountScalesWithLength(t *testing.T) {
	short := Count("hello")
	long := Count("hello hello hello hello hello hello hello hello")
	if long <= short {
		t.Errorf("expected longer text to have more tokens: short=%d long=%d", short, long)
	}
}

func TestCountSectionsAdditiveWithinTolerance(t *testing.T) {
	whole := "# Title\nSome intro text here.\n## Section A\nBody text for section A.\n## Section B\nBody text for section B that is a bit longer."
	sections := []string{
		"# Title\nSome intro text here.\n",
		"## Section A\nBody text for section A.\n",
		"## Section B\nBody text for section B that is a bit longer.",
	}

	_, sum := CountSections(sections)
	wholeCount := Count(whole)

	diff := wholeCount - sum
	if diff < 0 {
		diff = -diff
	}
	if diff > Tolerance(len(sections)) {
		t.Errorf("sum of sections (%d) diverges from whole-file count (%d) by more than tolerance %d",
			sum, wholeCount, Tolerance(len(sections)))
	}
}

func TestToleranceGrowsWithSectionCount(t *testing.T) {
	if Tolerance(1) >= Tolerance(5) {
		t.Errorf("expected tolerance to grow with section count: Tolerance(1)=%d Tolerance(5)=%d", Tolerance(1), Tolerance(5))
	}
}
