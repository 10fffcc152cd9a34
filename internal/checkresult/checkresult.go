// Package checkresult scores the outcome of a check task: format, lint,
// test, and coverage findings over a set of files are reduced to a
// single snapshot with a deducted score, the way the daemon reports a
// project's health over IPC.
package checkresult

import "time"

// Severity is a lint finding's severity.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
	Hint
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Hint:
		return "hint"
	default:
		return "unknown"
	}
}

// FormatIssue is a single formatting deviation found in a file.
type FormatIssue struct {
	File    string
	Line    int
	Message string
}

// LintIssue is a single lint finding.
type LintIssue struct {
	File     string
	Line     int
	Column   int
	Severity Severity
	Code     string
	Message  string
}

// TestSummary aggregates a test run's outcome.
type TestSummary struct {
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	DurationMs int64
}

// CoverageSummary reports coverage percentages.
type CoverageSummary struct {
	LinePercent     float32
	BranchPercent   float32
	FunctionPercent float32
}

// Results is the outcome of one check task: every finding plus a single
// 0-500 score summarising project health.
type Results struct {
	Score        int
	FormatIssues []FormatIssue
	LintIssues   []LintIssue
	TestResults  TestSummary
	Coverage     CoverageSummary
	DurationMs   int64
	CompletedAt  time.Time
}

const (
	startingScore    = 500
	formatPenalty    = 2
	maxFormatPenalty = 100
)

func lintPenalty(sev Severity) int {
	switch sev {
	case Error:
		return 10
	case Warning:
		return 5
	case Info:
		return 2
	case Hint:
		return 1
	default:
		return 0
	}
}

// Score computes the 0-500 health score for a set of format and lint
// findings: it starts at 500, deducts 2 points per format issue (capped
// at 100 total) and a severity-weighted penalty per lint issue (10/5/2/1
// for Error/Warning/Info/Hint), floored at 0.
func Score(formatIssues []FormatIssue, lintIssues []LintIssue) int {
	score := startingScore

	formatDeduction := len(formatIssues) * formatPenalty
	if formatDeduction > maxFormatPenalty {
		formatDeduction = maxFormatPenalty
	}
	score -= formatDeduction

	for _, issue := range lintIssues {
		score -= lintPenalty(issue.Severity)
		if score < 0 {
			score = 0
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

// New builds a Results snapshot from raw findings, computing its Score.
func New(formatIssues []FormatIssue, lintIssues []LintIssue, tests TestSummary, coverage CoverageSummary, durationMs int64, completedAt time.Time) Results {
	return Results{
		Score:        Score(formatIssues, lintIssues),
		FormatIssues: formatIssues,
		LintIssues:   lintIssues,
		TestResults:  tests,
		Coverage:     coverage,
		DurationMs:   durationMs,
		CompletedAt:  completedAt,
	}
}
