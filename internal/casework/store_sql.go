package casework

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore works against both dialects: the $n placeholders and ON CONFLICT
// upserts it emits are valid SQLite and Postgres alike.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutCase(ctx context.Context, c Case) error {
	ij, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	dj, err := json.Marshal(c.RequiredDocs)
	if err != nil {
		return err
	}
	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO cases (id,title,kind,items_json,required_docs_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, kind=EXCLUDED.kind, items_json=EXCLUDED.items_json, required_docs_json=EXCLUDED.required_docs_json`,
		c.ID, c.Title, c.Kind, string(ij), string(dj), createdAt)
	return err
}

func (s *SQLStore) GetCase(ctx context.Context, id string) (Case, error) {
	c, err := s.GetCaseAdmin(ctx, id)
	if err != nil {
		return Case{}, err
	}
	return StripKeys(c), nil
}

func (s *SQLStore) GetCaseAdmin(ctx context.Context, id string) (Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,kind,items_json,required_docs_json,created_at FROM cases WHERE id=$1`, id)
	var c Case
	var ij, dj string
	if err := row.Scan(&c.ID, &c.Title, &c.Kind, &ij, &dj, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, err
	}
	if err := json.Unmarshal([]byte(ij), &c.Items); err != nil {
		return Case{}, fmt.Errorf("case %s items: %w", id, err)
	}
	if err := json.Unmarshal([]byte(dj), &c.RequiredDocs); err != nil {
		return Case{}, fmt.Errorf("case %s required docs: %w", id, err)
	}
	return c, nil
}

func (s *SQLStore) ListCases(ctx context.Context) ([]CaseSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,kind,items_json,created_at FROM cases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CaseSummary
	for rows.Next() {
		var cs CaseSummary
		var ij string
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.Kind, &ij, &cs.CreatedAt); err != nil {
			return nil, err
		}
		var items []CaseItem
		if err := json.Unmarshal([]byte(ij), &items); err == nil {
			cs.ItemCount = len(items)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutAttempt(ctx context.Context, a AttemptRecord) error {
	aj, err := json.Marshal(a.RawAnswers)
	if err != nil {
		return err
	}
	sj, err := json.Marshal(a.Summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (id,case_id,trainee_id,attempt_index,attempt_type,submitted_at,raw_answers_json,summary_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.CaseID, a.TraineeID, a.AttemptIndex, a.AttemptType, a.SubmittedAt, string(aj), string(sj))
	return err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptRecord, error) {
	q := `SELECT id,case_id,trainee_id,attempt_index,attempt_type,submitted_at,raw_answers_json,summary_json FROM attempts WHERE 1=1`
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		q += fmt.Sprintf(" AND %s=$%d", cond, n)
		args = append(args, v)
	}
	if opts.CaseID != "" {
		add("case_id", opts.CaseID)
	}
	if opts.TraineeID != "" {
		add("trainee_id", opts.TraineeID)
	}
	if opts.Type != "" {
		add("attempt_type", opts.Type)
	}
	q += " ORDER BY attempt_index, submitted_at"
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	n++
	q += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)
	if opts.Offset > 0 {
		n++
		q += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var aj, sj string
		if err := rows.Scan(&a.ID, &a.CaseID, &a.TraineeID, &a.AttemptIndex, &a.AttemptType, &a.SubmittedAt, &aj, &sj); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aj), &a.RawAnswers); err != nil {
			return nil, fmt.Errorf("attempt %s answers: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(sj), &a.Summary); err != nil {
			return nil, fmt.Errorf("attempt %s summary: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) NextAttemptIndex(ctx context.Context, caseID, traineeID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(attempt_index) FROM attempts WHERE case_id=$1 AND trainee_id=$2`,
		caseID, traineeID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (s *SQLStore) ListTrainees(ctx context.Context, caseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT trainee_id FROM attempts WHERE case_id=$1 ORDER BY trainee_id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetUser(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username,pass_hash,role,display_name FROM users WHERE username=$1`, username)
	var u User
	if err := row.Scan(&u.Username, &u.PassHash, &u.Role, &u.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *SQLStore) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (username,pass_hash,role,display_name)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (username) DO UPDATE SET pass_hash=EXCLUDED.pass_hash, role=EXCLUDED.role, display_name=EXCLUDED.display_name`,
		u.Username, u.PassHash, u.Role, u.DisplayName)
	return err
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username,pass_hash,role,display_name FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.PassHash, &u.Role, &u.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
