// Package session owns a trainee's live exercise state and keeps it
// consistent with the shared remote document store. The consistency policy is
// fixed: writes are debounced, and incoming remote snapshots are discarded
// wholesale inside a short suppression window after any local edit, which
// absorbs the echo of the engine's own last write. Outside the window the
// merge is last-writer-wins per field.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/remote"
)

type Clock func() time.Time

const (
	DefaultDebounce     = 600 * time.Millisecond
	DefaultSuppression  = 850 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second
)

type Option func(*options)

type options struct {
	debounce     time.Duration
	suppression  time.Duration
	writeTimeout time.Duration
	now          Clock
	logf         func(format string, args ...any)
}

func WithDebounce(d time.Duration) Option     { return func(o *options) { o.debounce = d } }
func WithSuppression(d time.Duration) Option  { return func(o *options) { o.suppression = d } }
func WithWriteTimeout(d time.Duration) Option { return func(o *options) { o.writeTimeout = d } }
func WithClock(c Clock) Option                { return func(o *options) { o.now = c } }
func WithLogf(f func(string, ...any)) Option  { return func(o *options) { o.logf = f } }

// State is a point-in-time view of the workflow position.
type State struct {
	Step     string `json:"step"`
	Furthest int    `json:"furthest"`
	Locked   bool   `json:"locked"`
	Progress int    `json:"progress_pct"`
}

// Engine synchronizes one session's draft and workflow with the remote store.
// All entry points (user mutations, the debounce timer firing, pushed remote
// snapshots) serialize on one mutex, so the draft has a single logical thread
// of control.
type Engine struct {
	ID        string
	CaseID    string
	TraineeID string

	store remote.DocStore
	opts  options

	mu              sync.Mutex
	wf              *casework.Workflow
	draft           casework.Draft
	lastLocalChange time.Time
	timer           *time.Timer
	unsubscribe     func()
	startedAt       time.Time
	submitting      bool
	closed          bool
}

func newEngine(id, caseID, traineeID string, cfg casework.ExerciseConfig, store remote.DocStore, opts ...Option) *Engine {
	o := options{
		debounce:     DefaultDebounce,
		suppression:  DefaultSuppression,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
		logf:         log.Printf,
	}
	for _, apply := range opts {
		apply(&o)
	}
	e := &Engine{
		ID:        id,
		CaseID:    caseID,
		TraineeID: traineeID,
		store:     store,
		opts:      o,
		wf:        casework.NewWorkflow(cfg),
	}
	e.startedAt = o.now()
	return e
}

// resume applies a previously persisted document before the subscription is
// live. Loading happens once at open; a malformed or missing doc just means
// a fresh session.
func (e *Engine) resume(doc remote.Doc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wf.ApplyRemote(doc.Step, doc.Furthest, doc.Locked)
	e.draft = doc.Draft.Clone()
	if doc.StartedAt > 0 {
		e.startedAt = time.Unix(doc.StartedAt, 0)
	}
}

// Snapshot returns a copy of the current draft and workflow position.
func (e *Engine) Snapshot() (casework.Draft, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone(), e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Step:     e.wf.Current,
		Furthest: e.wf.Furthest,
		Locked:   e.wf.Locked,
		Progress: e.wf.Progress(),
	}
}

// ToggleTick flips a tick mark on an item. Mutations on a locked session are
// silently ignored.
func (e *Engine) ToggleTick(itemID, mark string) {
	e.mutate(func(d casework.Draft) casework.Draft { return d.WithTick(itemID, mark) })
}

func (e *Engine) SetScoping(field string, value any) {
	e.mutate(func(d casework.Draft) casework.Draft { return d.WithScoping(field, value) })
}

func (e *Engine) SetResponse(itemID string, resp casework.ItemResponse) {
	e.mutate(func(d casework.Draft) casework.Draft { return d.WithResponse(itemID, resp) })
}

func (e *Engine) MarkDocOpened(docID string) {
	e.mutate(func(d casework.Draft) casework.Draft { return d.WithDocOpened(docID) })
}

func (e *Engine) mutate(f func(casework.Draft) casework.Draft) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.submitting || e.wf.Locked {
		return
	}
	e.draft = f(e.draft)
	e.recordChangeLocked()
	e.scheduleLocked()
}

// GoToStep navigates the workflow and reports whether the position changed.
// A successful move is a local change like any other and schedules a save.
func (e *Engine) GoToStep(target string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.submitting {
		return false
	}
	if !e.wf.GoToStep(target) {
		return false
	}
	e.recordChangeLocked()
	e.scheduleLocked()
	return true
}

// recordChangeLocked stamps the local-change time before any persistence is
// attempted, so a snapshot racing with the save is still suppressed.
func (e *Engine) recordChangeLocked() {
	e.lastLocalChange = e.opts.now()
}

// scheduleLocked debounces: a new call replaces any pending save. The payload
// is read at fire time, so edits after scheduling are included.
func (e *Engine) scheduleLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.debounce, e.flush)
}

func (e *Engine) flush() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	doc := e.docLocked()
	e.mu.Unlock()

	if err := e.write(doc); err != nil {
		// Not retried here: the next local mutation reschedules a save,
		// which is the retry.
		e.opts.logf("session %s: save failed: %v", e.ID, err)
	}
}

func (e *Engine) write(doc remote.Doc) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.writeTimeout)
	defer cancel()
	return e.store.Write(ctx, e.ID, doc)
}

func (e *Engine) docLocked() remote.Doc {
	return remote.Doc{
		Step:      e.wf.Current,
		Furthest:  e.wf.Furthest,
		Locked:    e.wf.Locked,
		Draft:     e.draft.Clone(),
		StartedAt: e.startedAt.Unix(),
		UpdatedAt: e.opts.now().Unix(),
	}
}

// handleSnapshot merges a pushed remote document. Inside the suppression
// window after a local edit the snapshot is discarded for every field,
// including lock transitions; the window exists to defeat the round-trip echo
// of this engine's own write, and each draft has one writer. Outside the
// window each field merges independently: step replaces on difference, the
// draft replaces only when structurally unequal, and lock is monotonic.
func (e *Engine) handleSnapshot(doc remote.Doc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.opts.now().Sub(e.lastLocalChange) < e.opts.suppression {
		return
	}
	e.wf.ApplyRemote(doc.Step, doc.Furthest, doc.Locked)
	if !e.draft.Equal(doc.Draft) {
		e.draft = doc.Draft.Clone()
	}
}

func (e *Engine) handleError(err error) {
	e.opts.logf("session %s: subscription error: %v", e.ID, err)
}

// beginSubmit reserves the session for exactly one submission. The reservation
// is taken before grading starts, so concurrent submits cannot both pass a
// locked check and record duplicate attempts.
func (e *Engine) beginSubmit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionNotFound
	}
	if e.submitting || e.wf.Locked {
		return ErrAlreadyLocked
	}
	e.submitting = true
	return nil
}

// abortSubmit releases the reservation after a failed submission so the
// trainee can retry.
func (e *Engine) abortSubmit() {
	e.mu.Lock()
	e.submitting = false
	e.mu.Unlock()
}

// finalize locks the session at the terminal step and writes the final state
// immediately, bypassing the debounce. Any pending save is cancelled first.
func (e *Engine) finalize(resultStep string) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.wf.Finish(resultStep)
	e.submitting = false
	e.recordChangeLocked()
	doc := e.docLocked()
	e.mu.Unlock()
	return e.write(doc)
}

// elapsed returns whole seconds since the session was first opened.
func (e *Engine) elapsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.opts.now().Sub(e.startedAt) / time.Second)
}

// Close tears the session down: the subscription is dropped before anything
// else so no snapshot can land on released state, then the pending save (if
// any) is cancelled rather than fired.
func (e *Engine) Close() {
	e.mu.Lock()
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
