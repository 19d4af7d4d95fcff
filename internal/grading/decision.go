package grading

import (
	"math"
	"sort"

	"github.com/auditworks/casetrainer/internal/casework"
)

// minAllocation filters noise amounts out of a split breakdown.
const minAllocation = 0.01

type Allocation struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// Decision is the classification extracted from a trainee's answer: the
// primary label plus the full allocation breakdown for split answers.
type Decision struct {
	PrimaryKey string       `json:"primary_key"`
	Breakdown  []Allocation `json:"breakdown,omitempty"`
}

// ExtractDecision determines what a trainee actually decided for one item.
// An explicit recognized classification wins. Otherwise the split values are
// reduced to a breakdown of nonzero allocations sorted by descending
// magnitude; a flagged exception prefers the largest improper allocation,
// anything else falls back to the largest allocation overall, then to a label
// inferred from the exception flag alone.
func (e *Evaluator) ExtractDecision(resp casework.ItemResponse) Decision {
	d := Decision{Breakdown: e.breakdown(resp.Split)}

	if resp.Classification != "" && e.labels.IsRecognized(resp.Classification) {
		d.PrimaryKey = resp.Classification
		return d
	}
	if resp.IsException {
		// Breakdown is sorted by magnitude, so the first improper entry is
		// the larger one; ties keep sorted order.
		for _, a := range d.Breakdown {
			if e.labels.IsImproper(a.Label) {
				d.PrimaryKey = a.Label
				return d
			}
		}
	}
	if len(d.Breakdown) > 0 {
		d.PrimaryKey = d.Breakdown[0].Label
		return d
	}
	if resp.IsException {
		d.PrimaryKey = ImproperlyIncluded
	} else if resp.Classification == "" && resp.Opened {
		d.PrimaryKey = ProperlyIncluded
	}
	return d
}

func (e *Evaluator) breakdown(split map[string]float64) []Allocation {
	if len(split) == 0 {
		return nil
	}
	out := make([]Allocation, 0, len(split))
	for label, amount := range split {
		if math.Abs(amount) <= minAllocation {
			continue
		}
		out = append(out, Allocation{Label: label, Amount: amount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Amount), math.Abs(out[j].Amount)
		if ai != aj {
			return ai > aj
		}
		return out[i].Label < out[j].Label
	})
	return out
}
