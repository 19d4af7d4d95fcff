// Package eventlog records trainer lifecycle events (sessions opened,
// attempts submitted) for offline sync and instructor audit trails.
package eventlog

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

const (
	TypeSessionOpened    = "SessionOpened"
	TypeAttemptSubmitted = "AttemptSubmitted"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string // natural key: sessionID or attemptID
	DataJSON  string
	CreatedAt int64
}

type Sink interface {
	Append(ctx context.Context, e Event) error
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, e Event) error {
	site := e.SiteID
	if site == "" {
		site = "local"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Memory keeps events in a slice; used offline and in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Offset = int64(len(m.events) + 1)
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
