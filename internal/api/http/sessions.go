package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/rbac"
	"github.com/auditworks/casetrainer/internal/session"
)

type sessionView struct {
	SessionID string         `json:"session_id"`
	CaseID    string         `json:"case_id"`
	TraineeID string         `json:"trainee_id"`
	State     session.State  `json:"state"`
	Draft     casework.Draft `json:"draft"`
}

func viewOf(e *session.Engine) sessionView {
	draft, st := e.Snapshot()
	return sessionView{
		SessionID: e.ID,
		CaseID:    e.CaseID,
		TraineeID: e.TraineeID,
		State:     st,
		Draft:     draft,
	}
}

// POST /cases/{caseID}/session
// Opens (or resumes) the caller's session on the case.
func OpenSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
		trainee := rbac.SubjectFromContext(r.Context())
		e, err := mgr.Open(r.Context(), caseID, trainee)
		if err != nil {
			if errors.Is(err, casework.ErrCaseNotFound) {
				http.Error(w, "case not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

// GET /cases/{caseID}/session
func GetSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := liveSession(mgr, r)
		if !ok {
			http.Error(w, "session not open", http.StatusNotFound)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

type draftOp struct {
	Op       string                 `json:"op"` // tick|scoping|response|doc_opened
	ItemID   string                 `json:"item_id,omitempty"`
	Mark     string                 `json:"mark,omitempty"`
	Field    string                 `json:"field,omitempty"`
	Value    any                    `json:"value,omitempty"`
	DocID    string                 `json:"doc_id,omitempty"`
	Response *casework.ItemResponse `json:"response,omitempty"`
}

// POST /cases/{caseID}/session/draft
// Applies one draft mutation. Mutations on a locked session are silently
// ignored; the response always carries the resulting state.
func MutateDraftHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := liveSession(mgr, r)
		if !ok {
			http.Error(w, "session not open", http.StatusNotFound)
			return
		}
		var op draftOp
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		switch op.Op {
		case "tick":
			e.ToggleTick(op.ItemID, op.Mark)
		case "scoping":
			e.SetScoping(op.Field, op.Value)
		case "response":
			if op.Response == nil {
				http.Error(w, "response required", http.StatusBadRequest)
				return
			}
			e.SetResponse(op.ItemID, *op.Response)
		case "doc_opened":
			e.MarkDocOpened(op.DocID)
		default:
			http.Error(w, "unknown op: "+op.Op, http.StatusBadRequest)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

// POST /cases/{caseID}/session/step  { "step": "testing" }
func NavigateHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := liveSession(mgr, r)
		if !ok {
			http.Error(w, "session not open", http.StatusNotFound)
			return
		}
		var req struct {
			Step string `json:"step"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		moved := e.GoToStep(req.Step)
		_, st := e.Snapshot()
		writeJSON(w, map[string]any{"moved": moved, "state": st})
	}
}

// POST /cases/{caseID}/session/submit  { "attempt_type": "baseline" }
func SubmitSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := liveSession(mgr, r)
		if !ok {
			http.Error(w, "session not open", http.StatusNotFound)
			return
		}
		var req struct {
			AttemptType string `json:"attempt_type"`
		}
		// Empty body is fine; the manager picks baseline/practice.
		_ = json.NewDecoder(r.Body).Decode(&req)
		rec, err := mgr.Submit(r.Context(), e, req.AttemptType)
		if err != nil {
			if errors.Is(err, session.ErrAlreadyLocked) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, rec)
	}
}

// DELETE /cases/{caseID}/session
func CloseSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
		trainee := rbac.SubjectFromContext(r.Context())
		mgr.Close(caseID, trainee)
		w.WriteHeader(http.StatusNoContent)
	}
}

func liveSession(mgr *session.Manager, r *http.Request) (*session.Engine, bool) {
	caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
	trainee := rbac.SubjectFromContext(r.Context())
	return mgr.Get(caseID, trainee)
}
