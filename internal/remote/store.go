// Package remote is the shared document store the sync engine writes session
// state into and receives pushed snapshots from. Persistence backends are
// pluggable; the in-process Hub provides the push subscription on top of any
// backend.
package remote

import (
	"context"

	"github.com/auditworks/casetrainer/internal/casework"
)

// Doc is the full remote state of one session. Snapshots always carry the
// whole document, never a diff.
type Doc struct {
	Step      string         `json:"step"`
	Furthest  int            `json:"furthest"`
	Locked    bool           `json:"locked"`
	Draft     casework.Draft `json:"draft"`
	StartedAt int64          `json:"started_at,omitempty"`
	UpdatedAt int64          `json:"updated_at"`
}

// Clone deep-copies the draft so subscribers can never alias a writer's maps.
func (d Doc) Clone() Doc {
	d.Draft = d.Draft.Clone()
	return d
}

// DocStore is the boundary contract of the remote store: idempotent
// upsert-merge writes plus a push subscription delivering full snapshots.
type DocStore interface {
	Write(ctx context.Context, sessionID string, doc Doc) error
	Load(ctx context.Context, sessionID string) (Doc, bool, error)
	// Subscribe registers callbacks for pushed snapshots and delivery errors
	// and returns an unsubscribe function. Unsubscribing is idempotent.
	Subscribe(sessionID string, onSnapshot func(Doc), onError func(error)) (func(), error)
}

// Backend is the persistence half a Hub wraps.
type Backend interface {
	Write(ctx context.Context, sessionID string, doc Doc) error
	Load(ctx context.Context, sessionID string) (Doc, bool, error)
}
