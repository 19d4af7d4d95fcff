package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/eventlog"
	"github.com/auditworks/casetrainer/internal/grading"
	"github.com/auditworks/casetrainer/internal/remote"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyLocked   = errors.New("session already submitted")
	ErrUnknownKind     = errors.New("unknown exercise kind")
)

// SessionID is stable per trainee and case so a reopened browser resumes the
// same remote document.
func SessionID(caseID, traineeID string) string { return caseID + "/" + traineeID }

// Manager owns the live sessions of this process. Independent sessions are
// fully independent; the manager only guards its own registry.
type Manager struct {
	cases     casework.Store
	docs      remote.DocStore
	exercises map[string]casework.ExerciseConfig
	events    eventlog.Sink
	engOpts   []Option

	mu       sync.RWMutex
	sessions map[string]*Engine
}

func NewManager(cases casework.Store, docs remote.DocStore, exercises map[string]casework.ExerciseConfig, events eventlog.Sink, engOpts ...Option) *Manager {
	return &Manager{
		cases:     cases,
		docs:      docs,
		exercises: exercises,
		events:    events,
		engOpts:   engOpts,
		sessions:  map[string]*Engine{},
	}
}

// Open returns the trainee's session for a case, creating it and resuming any
// persisted remote state on first use.
func (m *Manager) Open(ctx context.Context, caseID, traineeID string) (*Engine, error) {
	id := SessionID(caseID, traineeID)

	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	c, err := m.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	cfg, ok := m.exercises[c.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind)
	}

	e = newEngine(id, caseID, traineeID, cfg, m.docs, m.engOpts...)
	if doc, found, err := m.docs.Load(ctx, id); err != nil {
		// Malformed remote state: keep the fresh local session.
		log.Printf("session %s: resume skipped: %v", id, err)
	} else if found {
		e.resume(doc)
	}

	unsub, err := m.docs.Subscribe(id, e.handleSnapshot, e.handleError)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	e.unsubscribe = unsub

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		// Lost the race to another opener; discard ours.
		m.mu.Unlock()
		e.Close()
		return existing, nil
	}
	m.sessions[id] = e
	m.mu.Unlock()

	m.appendEvent(ctx, eventlog.TypeSessionOpened, id, map[string]string{"case_id": caseID, "trainee_id": traineeID})
	return e, nil
}

func (m *Manager) Get(caseID, traineeID string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[SessionID(caseID, traineeID)]
	return e, ok
}

// Close tears down a live session; the remote document stays for resume.
func (m *Manager) Close(caseID, traineeID string) {
	id := SessionID(caseID, traineeID)
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.Close()
	}
}

// CloseAll is called on server shutdown so no debounced save fires after
// resources are released.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.sessions))
	for _, e := range m.sessions {
		engines = append(engines, e)
	}
	m.sessions = map[string]*Engine{}
	m.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}

// InProgress reports trainees with a live, unsubmitted session on the case.
func (m *Manager) InProgress(caseID string) map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]bool{}
	for _, e := range m.sessions {
		if e.CaseID != caseID {
			continue
		}
		if _, st := e.Snapshot(); !st.Locked {
			out[e.TraineeID] = true
		}
	}
	return out
}

// Submit grades the current draft against the case's answer key, records the
// attempt, and locks the session at its results step. The session is reserved
// up front: a second submit racing the first fails with ErrAlreadyLocked, and
// the draft is frozen while grading runs.
func (m *Manager) Submit(ctx context.Context, e *Engine, attemptType string) (casework.AttemptRecord, error) {
	if err := e.beginSubmit(); err != nil {
		return casework.AttemptRecord{}, err
	}
	draft, _ := e.Snapshot()

	c, err := m.cases.GetCaseAdmin(ctx, e.CaseID)
	if err != nil {
		e.abortSubmit()
		return casework.AttemptRecord{}, err
	}

	eval := grading.NewEvaluator(grading.CaseKeys{Case: c})
	_, summary := eval.GradeAttempt(c, draft, e.elapsed(), draft.OpenedAll(c.RequiredDocs))

	idx, err := m.cases.NextAttemptIndex(ctx, e.CaseID, e.TraineeID)
	if err != nil {
		e.abortSubmit()
		return casework.AttemptRecord{}, err
	}
	if attemptType == "" {
		attemptType = "practice"
		if idx == 0 {
			attemptType = "baseline"
		}
	}
	rec := casework.AttemptRecord{
		ID:           uuid.NewString(),
		CaseID:       e.CaseID,
		TraineeID:    e.TraineeID,
		AttemptIndex: idx,
		AttemptType:  attemptType,
		SubmittedAt:  e.opts.now().Unix(),
		RawAnswers:   draft,
		Summary:      summary,
	}
	if err := m.cases.PutAttempt(ctx, rec); err != nil {
		e.abortSubmit()
		return casework.AttemptRecord{}, err
	}

	resultStep := ""
	if cfg, ok := m.exercises[c.Kind]; ok && len(cfg.Steps) > 0 {
		resultStep = cfg.Steps[len(cfg.Steps)-1].ID
	}
	if err := e.finalize(resultStep); err != nil {
		// The attempt is recorded; a failed final save only delays the lock
		// reaching other readers.
		log.Printf("session %s: final save failed: %v", e.ID, err)
	}

	m.appendEvent(ctx, eventlog.TypeAttemptSubmitted, rec.ID, rec)
	return rec, nil
}

func (m *Manager) appendEvent(ctx context.Context, typ, key string, payload any) {
	if m.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	if err := m.events.Append(ctx, eventlog.Event{Type: typ, Key: key, DataJSON: string(data)}); err != nil {
		log.Printf("eventlog append %s %s: %v", typ, key, err)
	}
}
