package grading

import (
	"log"
	"math"

	"github.com/auditworks/casetrainer/internal/casework"
)

// Verdict classifies one item's outcome against the answer key.
type Verdict string

const (
	VerdictCaughtTrap      Verdict = "caught_trap"
	VerdictMissedException Verdict = "missed_exception"
	VerdictWrongClass      Verdict = "wrong_classification"
	VerdictSplitMismatch   Verdict = "split_mismatch"
	VerdictFalsePositive   Verdict = "false_positive"
	VerdictRoutineCorrect  Verdict = "routine_correct"
	VerdictWrongRoutine    Verdict = "wrong_routine_classification"
	VerdictSkipped         Verdict = "skipped"
	VerdictUndeterminable  Verdict = "undeterminable"
)

// ItemResult is the per-item grading outcome. Considered reports whether the
// item counts toward the summary totals.
type ItemResult struct {
	ItemID     string   `json:"item_id"`
	Verdict    Verdict  `json:"verdict"`
	Decision   Decision `json:"decision"`
	Expected   string   `json:"expected,omitempty"`
	Considered bool     `json:"considered"`
}

// AnswerKeySource is the read-only lookup grading runs against.
type AnswerKeySource interface {
	GetAnswerKey(caseID, itemID string) (casework.AnswerKey, bool)
}

// CaseKeys adapts a fully-loaded case into an AnswerKeySource.
type CaseKeys struct{ Case casework.Case }

func (s CaseKeys) GetAnswerKey(caseID, itemID string) (casework.AnswerKey, bool) {
	if caseID != s.Case.ID {
		return casework.AnswerKey{}, false
	}
	for _, it := range s.Case.Items {
		if it.ID == itemID && it.Key != nil {
			return *it.Key, true
		}
	}
	return casework.AnswerKey{}, false
}

type Option func(*config)

type config struct {
	Labels   LabelSet
	SplitTol float64
	Logf     func(format string, args ...any)
}

func WithLabels(s LabelSet) Option        { return func(c *config) { c.Labels = s } }
func WithSplitTolerance(t float64) Option { return func(c *config) { c.SplitTol = t } }
func WithLogf(f func(string, ...any)) Option {
	return func(c *config) { c.Logf = f }
}

// Evaluator grades attempts against an answer key source. It is pure aside
// from logging: malformed per-item input degrades that item instead of
// failing the batch.
type Evaluator struct {
	keys     AnswerKeySource
	labels   LabelSet
	splitTol float64
	logf     func(format string, args ...any)
}

func NewEvaluator(keys AnswerKeySource, opts ...Option) *Evaluator {
	cfg := &config{
		Labels:   DefaultLabels(),
		SplitTol: 0.01,
		Logf:     log.Printf,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &Evaluator{keys: keys, labels: cfg.Labels, splitTol: cfg.SplitTol, logf: cfg.Logf}
}

// GradeItem evaluates a single item. A nil response means the trainee never
// answered the item at all.
func (e *Evaluator) GradeItem(caseID string, item casework.CaseItem, resp *casework.ItemResponse) ItemResult {
	res := ItemResult{ItemID: item.ID}

	key, ok := e.keys.GetAnswerKey(caseID, item.ID)
	if !ok {
		// Configuration error: the item cannot be graded, so it is excluded
		// from the totals rather than crashing or counting against anyone.
		e.logf("grading: no answer key for case=%s item=%s, excluding", caseID, item.ID)
		res.Verdict = VerdictUndeterminable
		return res
	}
	res.Expected = key.Classification

	answered := resp != nil && (resp.Opened || resp.IsException || resp.Classification != "" || len(resp.Split) > 0)
	if !answered {
		if key.IsTrap && item.RequiredReview {
			res.Verdict = VerdictMissedException
			res.Considered = true
			return res
		}
		// Untouched and not on the required-review list: silently skipped.
		res.Verdict = VerdictSkipped
		return res
	}

	d := e.ExtractDecision(*resp)
	res.Decision = d
	res.Considered = true

	switch {
	case key.IsTrap && !resp.IsException:
		res.Verdict = VerdictMissedException
	case key.IsTrap:
		res.Verdict = e.gradeCaughtTrap(key, d)
	case resp.IsException:
		res.Verdict = VerdictFalsePositive
	default:
		res.Verdict = e.gradeRoutine(key, d)
	}
	return res
}

func (e *Evaluator) gradeCaughtTrap(key casework.AnswerKey, d Decision) Verdict {
	if key.Classification != "" && d.PrimaryKey != key.Classification {
		return VerdictWrongClass
	}
	if len(key.Split) > 1 && !e.splitMatches(key.Split, d.Breakdown) {
		return VerdictSplitMismatch
	}
	return VerdictCaughtTrap
}

func (e *Evaluator) gradeRoutine(key casework.AnswerKey, d Decision) Verdict {
	if key.Classification != "" && d.PrimaryKey != key.Classification && len(key.Split) > 0 {
		return VerdictWrongRoutine
	}
	return VerdictRoutineCorrect
}

// splitMatches compares a student's breakdown against the key's allocation
// with a per-label absolute tolerance.
func (e *Evaluator) splitMatches(want map[string]float64, got []Allocation) bool {
	byLabel := make(map[string]float64, len(got))
	for _, a := range got {
		byLabel[a.Label] = a.Amount
	}
	for label, amount := range want {
		if math.Abs(amount) <= minAllocation {
			continue
		}
		if math.Abs(byLabel[label]-amount) > e.splitTol {
			return false
		}
		delete(byLabel, label)
	}
	for _, extra := range byLabel {
		if math.Abs(extra) > e.splitTol {
			return false
		}
	}
	return true
}

// GradeAttempt grades a full draft against a case and tallies the summary.
func (e *Evaluator) GradeAttempt(c casework.Case, d casework.Draft, timeToCompleteSec int, requiredDocsOpened bool) ([]ItemResult, casework.Summary) {
	results := make([]ItemResult, 0, len(c.Items))
	for _, item := range c.Items {
		var resp *casework.ItemResponse
		if r, ok := d.Response(item.ID); ok {
			resp = &r
		}
		results = append(results, e.GradeItem(c.ID, item, resp))
	}
	return results, Tally(results, timeToCompleteSec, requiredDocsOpened)
}
