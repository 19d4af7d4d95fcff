package casework

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrCaseNotFound = errors.New("case not found")
	ErrUserNotFound = errors.New("user not found")
)

type memoryStore struct {
	mu       sync.RWMutex
	cases    map[string]Case
	attempts []AttemptRecord
	users    map[string]User
}

// NewInMemoryStore backs offline/dev runs and tests; the SQL store is the
// production twin.
func NewInMemoryStore() Store {
	return &memoryStore{
		cases: map[string]Case{},
		users: map[string]User{},
	}
}

func (m *memoryStore) PutCase(_ context.Context, c Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c
	return nil
}

func (m *memoryStore) GetCase(ctx context.Context, id string) (Case, error) {
	c, err := m.GetCaseAdmin(ctx, id)
	if err != nil {
		return Case{}, err
	}
	return StripKeys(c), nil
}

func (m *memoryStore) GetCaseAdmin(_ context.Context, id string) (Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

func (m *memoryStore) ListCases(_ context.Context) ([]CaseSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CaseSummary, 0, len(m.cases))
	for _, c := range m.cases {
		out = append(out, CaseSummary{ID: c.ID, Title: c.Title, Kind: c.Kind, ItemCount: len(c.Items), CreatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) PutAttempt(_ context.Context, a AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AttemptRecord, 0)
	for _, a := range m.attempts {
		if opts.CaseID != "" && a.CaseID != opts.CaseID {
			continue
		}
		if opts.TraineeID != "" && a.TraineeID != opts.TraineeID {
			continue
		}
		if opts.Type != "" && a.AttemptType != opts.Type {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttemptIndex != out[j].AttemptIndex {
			return out[i].AttemptIndex < out[j].AttemptIndex
		}
		return out[i].SubmittedAt < out[j].SubmittedAt
	})
	out = window(out, opts.Offset, opts.Limit)
	return out, nil
}

func (m *memoryStore) NextAttemptIndex(_ context.Context, caseID, traineeID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	next := 0
	for _, a := range m.attempts {
		if a.CaseID == caseID && a.TraineeID == traineeID && a.AttemptIndex >= next {
			next = a.AttemptIndex + 1
		}
	}
	return next, nil
}

func (m *memoryStore) ListTrainees(_ context.Context, caseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for _, a := range m.attempts {
		if a.CaseID == caseID {
			seen[a.TraineeID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) GetUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

func (m *memoryStore) ListUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func window(list []AttemptRecord, offset, limit int) []AttemptRecord {
	if offset > 0 {
		if offset >= len(list) {
			return nil
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
