package grading

import (
	"math"

	"github.com/auditworks/casetrainer/internal/casework"
)

// Tally reduces per-item results into the attempt's grading summary.
// Score is the rounded percentage of considered items answered correctly;
// critical issues are missed exceptions, wrong classifications and split
// mismatches. False positives are tracked but not critical.
func Tally(results []ItemResult, timeToCompleteSec int, requiredDocsOpened bool) casework.Summary {
	s := casework.Summary{
		RequiredDocsOpened:    requiredDocsOpened,
		TimeToCompleteSeconds: timeToCompleteSec,
	}
	correct := 0
	for _, r := range results {
		if !r.Considered {
			continue
		}
		s.TotalConsidered++
		switch r.Verdict {
		case VerdictCaughtTrap, VerdictRoutineCorrect:
			correct++
		case VerdictMissedException:
			s.MissedExceptionsCount++
			s.CriticalIssuesCount++
		case VerdictWrongClass:
			s.WrongClassifications++
			s.CriticalIssuesCount++
		case VerdictSplitMismatch:
			s.CriticalIssuesCount++
		case VerdictFalsePositive:
			s.FalsePositivesCount++
		case VerdictWrongRoutine:
			s.WrongClassifications++
		}
	}
	if s.TotalConsidered > 0 {
		s.Score = int(math.Round(float64(correct) / float64(s.TotalConsidered) * 100))
	}
	return s
}
