package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/rbac"
)

// POST /cases
func PutCaseHandler(store casework.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c casework.Case
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if c.ID == "" || c.Kind == "" {
			http.Error(w, "id and kind required", http.StatusBadRequest)
			return
		}
		if err := store.PutCase(r.Context(), c); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"id": c.ID})
	}
}

// GET /cases
func ListCasesHandler(store casework.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListCases(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	}
}

// GET /cases/{caseID}
// Answer keys are included only for callers with case:view-keys.
func GetCaseHandler(store casework.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "caseID"))
		role := rbac.RoleFromContext(r.Context())

		var c casework.Case
		var err error
		if checker.Has(role, "case:view-keys") {
			c, err = store.GetCaseAdmin(r.Context(), id)
		} else {
			c, err = store.GetCase(r.Context(), id)
		}
		if err != nil {
			if errors.Is(err, casework.ErrCaseNotFound) {
				http.Error(w, "case not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, c)
	}
}
