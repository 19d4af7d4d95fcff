// Package cohort reduces trainees' attempt histories into the
// baseline-vs-latest view instructors review. Rows are always recomputed from
// the full attempt list and never persisted as authoritative.
package cohort

import (
	"context"
	"sort"

	"github.com/auditworks/casetrainer/internal/casework"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Flags attached to a cohort row.
const (
	FlagImproved       = "improved"
	FlagRushed         = "rushed"
	FlagSuspicious     = "suspicious"
	FlagNeedsAttention = "needs_attention"
)

// Recommended actions, coarsest signal for the instructor dashboard.
const (
	ActionAssignBaseline  = "assign_baseline"
	ActionReviewWithCoach = "review_with_coach"
	ActionRetakePractice  = "retake_practice"
	ActionReadyForField   = "ready_for_fieldwork"
)

// Config carries the readiness bar and the flag thresholds.
type Config struct {
	ReadinessMinScore    int // minimum latest score to count as ready
	ReadinessMaxCritical int // maximum latest critical issues to count as ready
	RushedThresholdSec   int // completions faster than this are rushed
	ImproveScoreDelta    int // minimum score delta to count as improved
}

func DefaultConfig() Config {
	return Config{
		ReadinessMinScore:    80,
		ReadinessMaxCritical: 1,
		RushedThresholdSec:   300,
		ImproveScoreDelta:    5,
	}
}

// Source lists one trainee's attempts, ordered or not; the aggregator sorts.
type Source interface {
	ListAttempts(ctx context.Context, traineeID string) ([]casework.AttemptRecord, error)
}

// Row is the per-trainee view. Delta pointers are nil when either side of the
// comparison is missing; missing data is never coerced to zero.
type Row struct {
	TraineeID         string            `json:"trainee_id"`
	Status            Status            `json:"status"`
	BaselineSummary   *casework.Summary `json:"baseline_summary,omitempty"`
	LatestSummary     *casework.Summary `json:"latest_summary,omitempty"`
	DeltaScore        *int              `json:"delta_score,omitempty"`
	DeltaCritical     *int              `json:"delta_critical,omitempty"`
	DeltaMissed       *int              `json:"delta_missed,omitempty"`
	Flags             []string          `json:"flags,omitempty"`
	RecommendedAction string            `json:"recommended_action"`
}

// Overview is the cohort-level rollup. Averages are arithmetic means over
// trainees with a defined value for that metric.
type Overview struct {
	Rows                []Row    `json:"rows"`
	StartedCount        int      `json:"started_count"`
	CompletedCount      int      `json:"completed_count"`
	ImprovedCount       int      `json:"improved_count"`
	NeedsAttentionCount int      `json:"needs_attention_count"`
	AvgDeltaScore       *float64 `json:"avg_delta_score,omitempty"`
	AvgBaselineCritical *float64 `json:"avg_baseline_critical,omitempty"`
	AvgLatestCritical   *float64 `json:"avg_latest_critical,omitempty"`
	DocsComplianceRate  *float64 `json:"docs_compliance_rate,omitempty"`
}

type Aggregator struct {
	src Source
	cfg Config
}

func New(src Source, cfg Config) *Aggregator {
	return &Aggregator{src: src, cfg: cfg}
}

// Overview builds the cohort view for the given roster. inProgress marks
// trainees with an open session but no submitted attempt yet.
func (a *Aggregator) Overview(ctx context.Context, traineeIDs []string, inProgress map[string]bool) (Overview, error) {
	ov := Overview{Rows: make([]Row, 0, len(traineeIDs))}

	var deltaScores, baseCrits, lateCrits []float64
	docsTotal, docsOK := 0, 0

	for _, id := range traineeIDs {
		attempts, err := a.src.ListAttempts(ctx, id)
		if err != nil {
			return Overview{}, err
		}
		row := a.buildRow(id, attempts, inProgress[id])
		ov.Rows = append(ov.Rows, row)

		if row.Status != StatusNotStarted {
			ov.StartedCount++
		}
		if row.Status == StatusCompleted {
			ov.CompletedCount++
		}
		if hasFlag(row, FlagImproved) {
			ov.ImprovedCount++
		}
		if hasFlag(row, FlagNeedsAttention) {
			ov.NeedsAttentionCount++
		}
		if row.DeltaScore != nil {
			deltaScores = append(deltaScores, float64(*row.DeltaScore))
		}
		if row.BaselineSummary != nil {
			baseCrits = append(baseCrits, float64(row.BaselineSummary.CriticalIssuesCount))
		}
		if row.LatestSummary != nil {
			lateCrits = append(lateCrits, float64(row.LatestSummary.CriticalIssuesCount))
			docsTotal++
			if row.LatestSummary.RequiredDocsOpened {
				docsOK++
			}
		}
	}

	ov.AvgDeltaScore = mean(deltaScores)
	ov.AvgBaselineCritical = mean(baseCrits)
	ov.AvgLatestCritical = mean(lateCrits)
	if docsTotal > 0 {
		rate := float64(docsOK) / float64(docsTotal)
		ov.DocsComplianceRate = &rate
	}
	return ov, nil
}

func (a *Aggregator) buildRow(traineeID string, attempts []casework.AttemptRecord, inProgress bool) Row {
	row := Row{TraineeID: traineeID}

	if len(attempts) == 0 {
		if inProgress {
			row.Status = StatusInProgress
			row.RecommendedAction = ActionRetakePractice
			row.Flags = append(row.Flags, FlagNeedsAttention)
		} else {
			row.Status = StatusNotStarted
			row.RecommendedAction = ActionAssignBaseline
			row.Flags = append(row.Flags, FlagNeedsAttention)
		}
		return row
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		if attempts[i].AttemptIndex != attempts[j].AttemptIndex {
			return attempts[i].AttemptIndex < attempts[j].AttemptIndex
		}
		return attempts[i].SubmittedAt < attempts[j].SubmittedAt
	})

	baseline := attempts[0]
	for _, at := range attempts {
		if at.AttemptType == "baseline" {
			baseline = at
			break
		}
	}
	latest := attempts[len(attempts)-1]

	bs, ls := baseline.Summary, latest.Summary
	row.Status = StatusCompleted
	row.BaselineSummary = &bs
	row.LatestSummary = &ls

	// Both sides of the comparison exist from here on; a lone attempt is its
	// own baseline and yields zero deltas.
	ds := ls.Score - bs.Score
	dc := bs.CriticalIssuesCount - ls.CriticalIssuesCount
	dm := bs.MissedExceptionsCount - ls.MissedExceptionsCount
	row.DeltaScore = &ds
	row.DeltaCritical = &dc
	row.DeltaMissed = &dm

	improved := false
	if row.DeltaScore != nil && *row.DeltaScore >= a.cfg.ImproveScoreDelta {
		improved = true
	}
	if row.DeltaCritical != nil && *row.DeltaCritical >= 1 {
		improved = true
	}
	if row.DeltaMissed != nil && *row.DeltaMissed >= 1 {
		improved = true
	}
	if improved {
		row.Flags = append(row.Flags, FlagImproved)
	}

	rushed := ls.TimeToCompleteSeconds > 0 && ls.TimeToCompleteSeconds < a.cfg.RushedThresholdSec
	ready := ls.Score >= a.cfg.ReadinessMinScore && ls.CriticalIssuesCount <= a.cfg.ReadinessMaxCritical
	if rushed {
		row.Flags = append(row.Flags, FlagRushed)
		if ls.Score >= a.cfg.ReadinessMinScore {
			row.Flags = append(row.Flags, FlagSuspicious)
		}
	}
	if ls.CriticalIssuesCount > a.cfg.ReadinessMaxCritical || rushed {
		row.Flags = append(row.Flags, FlagNeedsAttention)
	}

	switch {
	case hasFlag(row, FlagNeedsAttention):
		row.RecommendedAction = ActionReviewWithCoach
	case ready:
		row.RecommendedAction = ActionReadyForField
	default:
		row.RecommendedAction = ActionRetakePractice
	}
	return row
}

func hasFlag(r Row, flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	m := sum / float64(len(xs))
	return &m
}
