package casework

// AnswerKey is the authoritative answer for one case item. It is owned by
// case authoring and immutable at grading time.
type AnswerKey struct {
	// IsTrap marks an item the trainee is expected to flag as an exception.
	IsTrap bool `json:"is_trap"`
	// Classification is the expected label, when the key declares one.
	Classification string `json:"classification,omitempty"`
	// Split is a label -> amount allocation for multi-label answers.
	Split map[string]float64 `json:"split,omitempty"`
	// Explanation is shown to instructors when reviewing an attempt.
	Explanation string `json:"explanation,omitempty"`
}

type CaseItem struct {
	ID          string  `json:"id"`
	Ref         string  `json:"ref,omitempty"` // e.g. check number or asset tag
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	// RequiredReview items count against the trainee even if never opened.
	RequiredReview bool `json:"required_review,omitempty"`

	Key *AnswerKey `json:"key,omitempty"` // stripped when serving trainees
}

type Case struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Kind         string     `json:"kind"` // exercise kind, e.g. "check_cutoff"
	Items        []CaseItem `json:"items"`
	RequiredDocs []string   `json:"required_docs,omitempty"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

type CaseSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	ItemCount int    `json:"item_count"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// ItemResponse is a trainee's answer for a single case item.
type ItemResponse struct {
	Opened         bool               `json:"opened,omitempty"`
	IsException    bool               `json:"is_exception,omitempty"`
	Classification string             `json:"classification,omitempty"`
	Split          map[string]float64 `json:"split,omitempty"`
}

// AttemptRecord is an immutable snapshot produced at submission time.
type AttemptRecord struct {
	ID           string  `json:"id"`
	CaseID       string  `json:"case_id"`
	TraineeID    string  `json:"trainee_id"`
	AttemptIndex int     `json:"attempt_index"`
	AttemptType  string  `json:"attempt_type"` // baseline|practice|final
	SubmittedAt  int64   `json:"submitted_at"`
	RawAnswers   Draft   `json:"raw_answers"`
	Summary      Summary `json:"summary"`
}

// Summary is the grading outcome stored with an attempt. It is derived
// deterministically from the raw answers and the answer key, never hand-edited.
type Summary struct {
	Score                 int  `json:"score"`
	TotalConsidered       int  `json:"total_considered"`
	MissedExceptionsCount int  `json:"missed_exceptions_count"`
	FalsePositivesCount   int  `json:"false_positives_count"`
	WrongClassifications  int  `json:"wrong_classifications_count"`
	CriticalIssuesCount   int  `json:"critical_issues_count"`
	RequiredDocsOpened    bool `json:"required_docs_opened"`
	TimeToCompleteSeconds int  `json:"time_to_complete_seconds"`
}

type User struct {
	Username    string `json:"username"`
	PassHash    string `json:"-"`    // bcrypt
	Role        string `json:"role"` // trainee|instructor|admin
	DisplayName string `json:"display_name,omitempty"`
}
