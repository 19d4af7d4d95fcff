package grading

// Classification labels used across the audit exercises.
const (
	ProperlyIncluded   = "properlyIncluded"
	ImproperlyIncluded = "improperlyIncluded"
	ProperlyExcluded   = "properlyExcluded"
	ImproperlyExcluded = "improperlyExcluded"
)

// LabelSet is the constructed lookup table of recognized classification
// labels. It is injected into the Evaluator so tests can substitute fixtures
// instead of relying on a process-wide registry.
type LabelSet struct {
	Recognized map[string]bool
	// Improper lists the labels that indicate an exception, in the order
	// they are preferred when a flagged item's split is ambiguous.
	Improper []string
}

func (s LabelSet) IsRecognized(label string) bool { return s.Recognized[label] }

func (s LabelSet) IsImproper(label string) bool {
	for _, l := range s.Improper {
		if l == label {
			return true
		}
	}
	return false
}

// DefaultLabels covers the cutoff and rollforward exercises.
func DefaultLabels() LabelSet {
	return LabelSet{
		Recognized: map[string]bool{
			ProperlyIncluded:   true,
			ImproperlyIncluded: true,
			ProperlyExcluded:   true,
			ImproperlyExcluded: true,
		},
		Improper: []string{ImproperlyIncluded, ImproperlyExcluded},
	}
}
