package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/cohort"
	"github.com/auditworks/casetrainer/internal/session"
)

// caseAttempts adapts the store into the aggregator's per-trainee source,
// bound to a single case.
type caseAttempts struct {
	store  casework.Store
	caseID string
}

func (s caseAttempts) ListAttempts(ctx context.Context, traineeID string) ([]casework.AttemptRecord, error) {
	return s.store.ListAttempts(ctx, casework.AttemptListOpts{CaseID: s.caseID, TraineeID: traineeID})
}

// GET /cases/{caseID}/cohort
// Rebuilds the cohort view from the full attempt history on every request.
func CohortHandler(store casework.Store, mgr *session.Manager, cfg cohort.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))

		trainees, err := store.ListTrainees(r.Context(), caseID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		inProgress := mgr.InProgress(caseID)
		// Trainees mid-exercise without a submitted attempt are part of the
		// roster too.
		seen := map[string]bool{}
		for _, id := range trainees {
			seen[id] = true
		}
		for id := range inProgress {
			if !seen[id] {
				trainees = append(trainees, id)
			}
		}

		agg := cohort.New(caseAttempts{store: store, caseID: caseID}, cfg)
		ov, err := agg.Overview(r.Context(), trainees, inProgress)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, ov)
	}
}
