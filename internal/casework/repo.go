package casework

import "context"

type AttemptListOpts struct {
	CaseID    string // filter by case
	TraineeID string // filter by trainee
	Type      string // optional: baseline|practice|final
	Limit     int
	Offset    int
}

// Store persists cases, attempt records and users. Answer keys are stripped
// from trainee-facing reads; instructor reads get the full case.
type Store interface {
	PutCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, id string) (Case, error)      // trainee-safe (no answer keys)
	GetCaseAdmin(ctx context.Context, id string) (Case, error) // full case, for grading/instructors
	ListCases(ctx context.Context) ([]CaseSummary, error)

	PutAttempt(ctx context.Context, a AttemptRecord) error
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptRecord, error)
	// NextAttemptIndex returns 1 + the highest attempt index the trainee has
	// recorded for the case, starting at 0.
	NextAttemptIndex(ctx context.Context, caseID, traineeID string) (int, error)
	// ListTrainees returns the distinct trainees with at least one attempt on
	// the case, for cohort rosters.
	ListTrainees(ctx context.Context, caseID string) ([]string, error)

	GetUser(ctx context.Context, username string) (User, error)
	PutUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context) ([]User, error)
}

// StripKeys removes answer keys from a case before it is served to a trainee.
func StripKeys(c Case) Case {
	items := make([]CaseItem, len(c.Items))
	copy(items, c.Items)
	for i := range items {
		items[i].Key = nil
	}
	c.Items = items
	return c
}
