package cohort_test

import (
	"context"
	"testing"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/cohort"
)

type fakeSource map[string][]casework.AttemptRecord

func (f fakeSource) ListAttempts(_ context.Context, traineeID string) ([]casework.AttemptRecord, error) {
	return f[traineeID], nil
}

func cfg() cohort.Config {
	return cohort.Config{
		ReadinessMinScore:    80,
		ReadinessMaxCritical: 1,
		RushedThresholdSec:   300,
		ImproveScoreDelta:    5,
	}
}

func attempt(idx int, typ string, submittedAt int64, s casework.Summary) casework.AttemptRecord {
	return casework.AttemptRecord{
		ID:           typ,
		AttemptIndex: idx,
		AttemptType:  typ,
		SubmittedAt:  submittedAt,
		Summary:      s,
	}
}

func TestBaselineVsLatestDeltas(t *testing.T) {
	src := fakeSource{
		"amara": {
			attempt(0, "baseline", 100, casework.Summary{Score: 50, CriticalIssuesCount: 2, MissedExceptionsCount: 1, TimeToCompleteSeconds: 900}),
			attempt(1, "practice", 200, casework.Summary{Score: 70, CriticalIssuesCount: 0, TimeToCompleteSeconds: 700}),
		},
	}
	agg := cohort.New(src, cfg())
	ov, err := agg.Overview(context.Background(), []string{"amara"}, nil)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	row := ov.Rows[0]
	if row.Status != cohort.StatusCompleted {
		t.Fatalf("expected completed, got %s", row.Status)
	}
	if row.DeltaScore == nil || *row.DeltaScore != 20 {
		t.Fatalf("expected deltaScore 20, got %v", row.DeltaScore)
	}
	if row.DeltaCritical == nil || *row.DeltaCritical != 2 {
		t.Fatalf("expected deltaCritical 2, got %v", row.DeltaCritical)
	}
	if ov.ImprovedCount != 1 {
		t.Fatalf("expected trainee counted as improved")
	}
}

func TestBaselineFallsBackToEarliestAttempt(t *testing.T) {
	// Attempts arrive out of order and untyped; the earliest by index is the
	// baseline, the greatest index is the latest.
	src := fakeSource{
		"jo": {
			attempt(2, "practice", 300, casework.Summary{Score: 90, TimeToCompleteSeconds: 600}),
			attempt(0, "practice", 100, casework.Summary{Score: 40, TimeToCompleteSeconds: 800}),
			attempt(1, "practice", 200, casework.Summary{Score: 60, TimeToCompleteSeconds: 700}),
		},
	}
	agg := cohort.New(src, cfg())
	ov, err := agg.Overview(context.Background(), []string{"jo"}, nil)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	row := ov.Rows[0]
	if row.BaselineSummary.Score != 40 || row.LatestSummary.Score != 90 {
		t.Fatalf("baseline/latest selection wrong: %d/%d", row.BaselineSummary.Score, row.LatestSummary.Score)
	}
	if *row.DeltaScore != 50 {
		t.Fatalf("expected delta 50, got %d", *row.DeltaScore)
	}
}

func TestNotStartedExcludedFromStarted(t *testing.T) {
	src := fakeSource{}
	agg := cohort.New(src, cfg())
	ov, err := agg.Overview(context.Background(), []string{"ghost"}, nil)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Rows[0].Status != cohort.StatusNotStarted {
		t.Fatalf("expected not_started, got %s", ov.Rows[0].Status)
	}
	if ov.StartedCount != 0 {
		t.Fatalf("not_started must not count as started")
	}
	if ov.Rows[0].RecommendedAction != cohort.ActionAssignBaseline {
		t.Fatalf("expected assign_baseline, got %s", ov.Rows[0].RecommendedAction)
	}
}

func TestInProgressCountsAsStarted(t *testing.T) {
	agg := cohort.New(fakeSource{}, cfg())
	ov, err := agg.Overview(context.Background(), []string{"mid"}, map[string]bool{"mid": true})
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Rows[0].Status != cohort.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", ov.Rows[0].Status)
	}
	if ov.StartedCount != 1 || ov.CompletedCount != 0 {
		t.Fatalf("started=%d completed=%d", ov.StartedCount, ov.CompletedCount)
	}
}

func TestRushedAndSuspiciousFlags(t *testing.T) {
	src := fakeSource{
		"speedy": {
			attempt(0, "baseline", 100, casework.Summary{Score: 95, CriticalIssuesCount: 0, TimeToCompleteSeconds: 120}),
		},
		"careful": {
			attempt(0, "baseline", 100, casework.Summary{Score: 95, CriticalIssuesCount: 0, TimeToCompleteSeconds: 1200}),
		},
	}
	agg := cohort.New(src, cfg())
	ov, err := agg.Overview(context.Background(), []string{"speedy", "careful"}, nil)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	var speedy, careful cohort.Row
	for _, r := range ov.Rows {
		switch r.TraineeID {
		case "speedy":
			speedy = r
		case "careful":
			careful = r
		}
	}
	if !hasFlag(speedy, cohort.FlagRushed) || !hasFlag(speedy, cohort.FlagSuspicious) {
		t.Fatalf("speedy flags: %v", speedy.Flags)
	}
	if !hasFlag(speedy, cohort.FlagNeedsAttention) {
		t.Fatalf("rushed must need attention: %v", speedy.Flags)
	}
	if hasFlag(careful, cohort.FlagRushed) || hasFlag(careful, cohort.FlagNeedsAttention) {
		t.Fatalf("careful flags: %v", careful.Flags)
	}
	if careful.RecommendedAction != cohort.ActionReadyForField {
		t.Fatalf("careful should be ready, got %s", careful.RecommendedAction)
	}
}

func TestAveragesExcludeMissingData(t *testing.T) {
	src := fakeSource{
		"done": {
			attempt(0, "baseline", 100, casework.Summary{Score: 60, CriticalIssuesCount: 2, RequiredDocsOpened: true, TimeToCompleteSeconds: 900}),
			attempt(1, "practice", 200, casework.Summary{Score: 80, CriticalIssuesCount: 1, RequiredDocsOpened: true, TimeToCompleteSeconds: 900}),
		},
	}
	agg := cohort.New(src, cfg())
	// One completed trainee, one who never started: means must only cover
	// the trainee with data.
	ov, err := agg.Overview(context.Background(), []string{"done", "ghost"}, nil)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.AvgDeltaScore == nil || *ov.AvgDeltaScore != 20 {
		t.Fatalf("avg delta must exclude trainees without attempts: %v", ov.AvgDeltaScore)
	}
	if ov.DocsComplianceRate == nil || *ov.DocsComplianceRate != 1.0 {
		t.Fatalf("docs compliance: %v", ov.DocsComplianceRate)
	}
	if ov.AvgLatestCritical == nil || *ov.AvgLatestCritical != 1 {
		t.Fatalf("avg latest critical: %v", ov.AvgLatestCritical)
	}
}

func hasFlag(r cohort.Row, f string) bool {
	for _, x := range r.Flags {
		if x == f {
			return true
		}
	}
	return false
}
