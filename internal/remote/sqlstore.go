package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/auditworks/casetrainer/internal/casework"
)

type sqlBackend struct {
	db *sql.DB
}

// NewSQLStore persists session documents in the session_docs table and serves
// push snapshots through the in-process Hub.
func NewSQLStore(db *sql.DB) *Hub {
	return NewHub(&sqlBackend{db: db})
}

func (s *sqlBackend) Write(ctx context.Context, sessionID string, doc Doc) error {
	dj, err := json.Marshal(doc.Draft)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO session_docs (id,step,furthest,locked,draft_json,started_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET step=EXCLUDED.step, furthest=EXCLUDED.furthest, locked=EXCLUDED.locked, draft_json=EXCLUDED.draft_json, updated_at=EXCLUDED.updated_at`,
		sessionID, doc.Step, doc.Furthest, boolInt(doc.Locked), string(dj), doc.StartedAt, doc.UpdatedAt)
	return err
}

func (s *sqlBackend) Load(ctx context.Context, sessionID string) (Doc, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT step,furthest,locked,draft_json,started_at,updated_at FROM session_docs WHERE id=$1`, sessionID)
	var doc Doc
	var locked int
	var dj string
	if err := row.Scan(&doc.Step, &doc.Furthest, &locked, &dj, &doc.StartedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Doc{}, false, nil
		}
		return Doc{}, false, err
	}
	doc.Locked = locked != 0
	var draft casework.Draft
	if err := json.Unmarshal([]byte(dj), &draft); err != nil {
		// Malformed remote state is not fatal: the caller keeps local state.
		return Doc{}, false, fmt.Errorf("session %s draft: %w", sessionID, err)
	}
	doc.Draft = draft
	return doc, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
