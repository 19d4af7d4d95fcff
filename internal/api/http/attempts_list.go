package http

import (
	"net/http"
	"strings"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/rbac"
)

// GET /attempts?case_id=...&trainee_id=...&type=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts: the
// trainee filter is forced to the authenticated subject.
func ListAttemptsHandler(store casework.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())

		caseID := strings.TrimSpace(r.URL.Query().Get("case_id"))
		traineeID := strings.TrimSpace(r.URL.Query().Get("trainee_id"))
		attemptType := strings.TrimSpace(r.URL.Query().Get("type"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if !checker.Has(role, "attempt:view-all") {
			traineeID = sub
		}

		list, err := store.ListAttempts(r.Context(), casework.AttemptListOpts{
			CaseID:    caseID,
			TraineeID: traineeID,
			Type:      attemptType,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, list)
	}
}
