package checkresult

import (
	"testing"
	"time"
)

func TestScoreStartsAtFiveHundredWithNoIssues(t *testing.T) {
	if got := Score(nil, nil); got != 500 {
		t.Fatalf("expected 500 with no issues, got %d", got)
	}
}

func TestScoreDeductsForFormatIssuesCapped(t *testing.T) {
	issues := make([]FormatIssue, 80)
	if got := Score(issues, nil); got != 500-100 {
		t.Fatalf("expected format deduction capped at 100, got %d", got)
	}
}

func TestScoreDeductsBySeverity(t *testing.T) {
	lint := []LintIssue{
		{Severity: Error},
		{Severity: Warning},
		{Severity: Info},
		{Severity: Hint},
	}
	got := Score(nil, lint)
	want := 500 - 10 - 5 - 2 - 1
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestScoreNeverGoesNegative(t *testing.T) {
	lint := make([]LintIssue, 100)
	for i := range lint {
		lint[i].Severity = Error
	}
	if got := Score(nil, lint); got != 0 {
		t.Fatalf("expected score floored at 0, got %d", got)
	}
}

func TestNewBuildsResultsWithComputedScore(t *testing.T) {
	r := New(nil, []LintIssue{{Severity: Warning}}, TestSummary{Total: 1, Passed: 1}, CoverageSummary{}, 42, time.Now())
	if r.Score != 495 {
		t.Fatalf("expected 495, got %d", r.Score)
	}
	if r.DurationMs != 42 {
		t.Fatalf("expected duration preserved, got %d", r.DurationMs)
	}
}
