package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/eventlog"
	"github.com/auditworks/casetrainer/internal/remote"
)

// countingBackend records every persisted doc so tests can assert on write
// coalescing and payload contents.
type countingBackend struct {
	mu     sync.Mutex
	writes int
	last   remote.Doc
	docs   map[string]remote.Doc
}

func newCountingBackend() *countingBackend {
	return &countingBackend{docs: map[string]remote.Doc{}}
}

func (b *countingBackend) Write(_ context.Context, sessionID string, doc remote.Doc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	b.last = doc.Clone()
	b.docs[sessionID] = doc.Clone()
	return nil
}

func (b *countingBackend) Load(_ context.Context, sessionID string) (remote.Doc, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.docs[sessionID]
	if !ok {
		return remote.Doc{}, false, nil
	}
	return doc.Clone(), true, nil
}

func (b *countingBackend) stats() (int, remote.Doc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes, b.last.Clone()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func checkCutoff() casework.ExerciseConfig {
	return casework.BuiltinExercises()["check_cutoff"]
}

func fixtureCase() casework.Case {
	trap := &casework.AnswerKey{IsTrap: true, Classification: "improperlyIncluded"}
	return casework.Case{
		ID:           "case-1",
		Title:        "Outstanding Check Cutoff",
		Kind:         "check_cutoff",
		RequiredDocs: []string{"bank-stmt"},
		Items: []casework.CaseItem{
			{ID: "chk-1", Ref: "1041", RequiredReview: true, Key: trap},
		},
	}
}

func newTestManager(t *testing.T, backend remote.Backend, opts ...Option) (*Manager, *eventlog.Memory) {
	t.Helper()
	store := casework.NewInMemoryStore()
	if err := store.PutCase(context.Background(), fixtureCase()); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	events := eventlog.NewMemory()
	mgr := NewManager(store, remote.NewHub(backend), casework.BuiltinExercises(), events, opts...)
	return mgr, events
}

func TestDebouncedSaveCoalescesAndReadsLatest(t *testing.T) {
	backend := newCountingBackend()
	mgr, _ := newTestManager(t, backend,
		WithDebounce(20*time.Millisecond),
		WithSuppression(time.Hour))

	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.CloseAll()

	// A burst of edits must collapse into one write carrying the final state.
	e.ToggleTick("chk-1", "traced")
	e.SetScoping("materiality", 5000.0)
	e.MarkDocOpened("bank-stmt")
	e.SetResponse("chk-1", casework.ItemResponse{Opened: true, IsException: true, Classification: "improperlyIncluded"})

	time.Sleep(200 * time.Millisecond)

	writes, doc := backend.stats()
	if writes != 1 {
		t.Fatalf("expected 1 coalesced write, got %d", writes)
	}
	if doc.Draft.TickMarks["chk-1"] != "traced" {
		t.Fatalf("tick missing from saved doc: %+v", doc.Draft.TickMarks)
	}
	if !doc.Draft.DocsOpened["bank-stmt"] {
		t.Fatalf("doc open missing from saved doc")
	}
	resp, ok := doc.Draft.Response("chk-1")
	if !ok || !resp.IsException {
		t.Fatalf("response missing from saved doc: %+v ok=%v", resp, ok)
	}
}

func TestSuppressionWindowDiscardsRemoteSnapshot(t *testing.T) {
	clock := newFakeClock()
	e := newEngine("case-1/amara", "case-1", "amara", checkCutoff(), remote.NewInMemoryStore(),
		WithDebounce(time.Hour),
		WithSuppression(850*time.Millisecond),
		WithClock(clock.Now))
	defer e.Close()

	e.ToggleTick("chk-1", "traced")

	remoteDoc := remote.Doc{
		Step:     "scoping",
		Furthest: 1,
		Locked:   true,
		Draft:    casework.Draft{}.WithTick("chk-1", "vouched"),
	}

	// Inside the window everything is discarded, the lock included.
	clock.Advance(400 * time.Millisecond)
	e.handleSnapshot(remoteDoc)
	draft, st := e.Snapshot()
	if st.Step != "intro" || st.Locked {
		t.Fatalf("snapshot applied inside suppression window: %+v", st)
	}
	if draft.TickMarks["chk-1"] != "traced" {
		t.Fatalf("draft clobbered inside window: %+v", draft.TickMarks)
	}

	// Past the window the same snapshot merges in full.
	clock.Advance(time.Second)
	e.handleSnapshot(remoteDoc)
	draft, st = e.Snapshot()
	if st.Step != "scoping" || !st.Locked {
		t.Fatalf("snapshot not applied after window: %+v", st)
	}
	if draft.TickMarks["chk-1"] != "vouched" {
		t.Fatalf("remote draft not applied: %+v", draft.TickMarks)
	}

	// Lock is one-way: a later unlocked snapshot never unlocks.
	e.handleSnapshot(remote.Doc{Step: "scoping", Furthest: 1, Locked: false, Draft: remoteDoc.Draft})
	if _, st = e.Snapshot(); !st.Locked {
		t.Fatalf("remote snapshot unlocked the session")
	}
}

func TestSnapshotMergeIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	e := newEngine("case-1/amara", "case-1", "amara", checkCutoff(), remote.NewInMemoryStore(),
		WithDebounce(time.Hour),
		WithSuppression(0),
		WithClock(clock.Now))
	defer e.Close()

	doc := remote.Doc{
		Step:  "scoping",
		Draft: casework.Draft{}.WithTick("chk-1", "traced"),
	}
	e.handleSnapshot(doc)

	e.mu.Lock()
	before := reflect.ValueOf(e.draft.TickMarks).Pointer()
	e.mu.Unlock()

	// An equal snapshot must not replace the draft's backing maps.
	e.handleSnapshot(doc)

	e.mu.Lock()
	after := reflect.ValueOf(e.draft.TickMarks).Pointer()
	e.mu.Unlock()
	if before != after {
		t.Fatalf("equal snapshot replaced the draft")
	}
}

func TestCloseCancelsPendingSave(t *testing.T) {
	backend := newCountingBackend()
	mgr, _ := newTestManager(t, backend, WithDebounce(250*time.Millisecond))

	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e.ToggleTick("chk-1", "traced")
	mgr.Close("case-1", "amara")

	time.Sleep(600 * time.Millisecond)
	if writes, _ := backend.stats(); writes != 0 {
		t.Fatalf("pending save fired after close: %d writes", writes)
	}
}

func TestLockedSessionIgnoresMutations(t *testing.T) {
	backend := newCountingBackend()
	e := newEngine("case-1/amara", "case-1", "amara", checkCutoff(), remote.NewHub(backend),
		WithDebounce(10*time.Millisecond))
	defer e.Close()

	e.mu.Lock()
	e.wf.Lock()
	e.mu.Unlock()

	e.ToggleTick("chk-1", "traced")
	time.Sleep(100 * time.Millisecond)

	draft, _ := e.Snapshot()
	if len(draft.TickMarks) != 0 {
		t.Fatalf("locked session accepted a mutation: %+v", draft.TickMarks)
	}
	if writes, _ := backend.stats(); writes != 0 {
		t.Fatalf("locked session scheduled a save")
	}
}

func TestSubmitGradesLocksAndRecords(t *testing.T) {
	backend := newCountingBackend()
	mgr, events := newTestManager(t, backend, WithDebounce(time.Hour))

	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e.SetResponse("chk-1", casework.ItemResponse{Opened: true, IsException: true, Classification: "improperlyIncluded"})
	e.MarkDocOpened("bank-stmt")

	rec, err := mgr.Submit(context.Background(), e, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.AttemptType != "baseline" || rec.AttemptIndex != 0 {
		t.Fatalf("first attempt must default to baseline: %+v", rec)
	}
	if rec.Summary.Score != 100 || rec.Summary.CriticalIssuesCount != 0 {
		t.Fatalf("unexpected grade: %+v", rec.Summary)
	}
	if !rec.Summary.RequiredDocsOpened {
		t.Fatalf("docs compliance not recorded")
	}

	_, st := e.Snapshot()
	if !st.Locked || st.Step != "results" {
		t.Fatalf("session not finalized: %+v", st)
	}
	if _, err := mgr.Submit(context.Background(), e, ""); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second submit: %v", err)
	}

	var submitted bool
	for _, ev := range events.Events() {
		if ev.Type == eventlog.TypeAttemptSubmitted && ev.Key == rec.ID {
			submitted = true
		}
	}
	if !submitted {
		t.Fatalf("AttemptSubmitted event missing")
	}
}

// slowStore adds latency to the store calls a submission makes, so a second
// submit can arrive while the first is still in flight.
type slowStore struct {
	casework.Store
	delay time.Duration
}

func (s slowStore) NextAttemptIndex(ctx context.Context, caseID, traineeID string) (int, error) {
	time.Sleep(s.delay)
	return s.Store.NextAttemptIndex(ctx, caseID, traineeID)
}

func (s slowStore) PutAttempt(ctx context.Context, a casework.AttemptRecord) error {
	time.Sleep(s.delay)
	return s.Store.PutAttempt(ctx, a)
}

func TestConcurrentSubmitsRecordExactlyOneAttempt(t *testing.T) {
	base := casework.NewInMemoryStore()
	if err := base.PutCase(context.Background(), fixtureCase()); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	store := slowStore{Store: base, delay: 20 * time.Millisecond}
	mgr := NewManager(store, remote.NewInMemoryStore(), casework.BuiltinExercises(), eventlog.NewMemory(),
		WithDebounce(time.Hour))

	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.CloseAll()
	e.SetResponse("chk-1", casework.ItemResponse{Opened: true, IsException: true, Classification: "improperlyIncluded"})

	const submitters = 4
	errs := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Submit(context.Background(), e, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, locked := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyLocked):
			locked++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if succeeded != 1 || locked != submitters-1 {
		t.Fatalf("succeeded=%d locked=%d, want 1/%d", succeeded, locked, submitters-1)
	}

	attempts, err := base.ListAttempts(context.Background(), casework.AttemptListOpts{CaseID: "case-1", TraineeID: "amara"})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("recorded attempts=%d, want 1", len(attempts))
	}
	if attempts[0].AttemptIndex != 0 || attempts[0].AttemptType != "baseline" {
		t.Fatalf("unexpected attempt: %+v", attempts[0])
	}
}

func TestSubmitOnClosedSessionReportsNotFound(t *testing.T) {
	mgr, _ := newTestManager(t, newCountingBackend(), WithDebounce(time.Hour))
	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mgr.Close("case-1", "amara")

	if _, err := mgr.Submit(context.Background(), e, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("submit on closed session: %v", err)
	}
}

func TestOpenResumesPersistedDocument(t *testing.T) {
	backend := newCountingBackend()
	id := SessionID("case-1", "amara")
	seed := remote.Doc{
		Step:      "testing",
		Furthest:  2,
		Draft:     casework.Draft{}.WithTick("chk-1", "traced"),
		StartedAt: time.Now().Add(-time.Hour).Unix(),
	}
	if err := backend.Write(context.Background(), id, seed); err != nil {
		t.Fatalf("seed doc: %v", err)
	}

	mgr, _ := newTestManager(t, backend, WithDebounce(time.Hour))
	e, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.CloseAll()

	draft, st := e.Snapshot()
	if st.Step != "testing" || st.Furthest != 2 {
		t.Fatalf("position not resumed: %+v", st)
	}
	if draft.TickMarks["chk-1"] != "traced" {
		t.Fatalf("draft not resumed: %+v", draft.TickMarks)
	}
	if e.elapsed() < 3500 {
		t.Fatalf("started-at not resumed, elapsed=%d", e.elapsed())
	}
}

func TestOpenReturnsSameEngine(t *testing.T) {
	mgr, _ := newTestManager(t, newCountingBackend(), WithDebounce(time.Hour))
	a, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := mgr.Open(context.Background(), "case-1", "amara")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a != b {
		t.Fatalf("reopen created a second engine for the same session")
	}
}
