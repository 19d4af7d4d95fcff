package casework

import "reflect"

// Draft is a trainee's in-progress answer state for one exercise instance.
// Absent keys mean "not yet answered". Each mutation returns a new Draft whose
// changed section is a fresh map while untouched sections keep their identity,
// so callers can detect change with a pointer comparison per section.
type Draft struct {
	TickMarks  map[string]string       `json:"tickmarks,omitempty"`
	Scoping    map[string]any          `json:"scoping,omitempty"`
	Responses  map[string]ItemResponse `json:"responses,omitempty"`
	DocsOpened map[string]bool         `json:"docs_opened,omitempty"`
}

// WithTick toggles a tick mark on an item: setting the mark already present
// clears it, anything else replaces it.
func (d Draft) WithTick(itemID, mark string) Draft {
	next := copyMap(d.TickMarks)
	if next[itemID] == mark {
		delete(next, itemID)
	} else {
		next[itemID] = mark
	}
	d.TickMarks = next
	return d
}

func (d Draft) WithScoping(field string, value any) Draft {
	next := copyMap(d.Scoping)
	next[field] = value
	d.Scoping = next
	return d
}

func (d Draft) WithResponse(itemID string, resp ItemResponse) Draft {
	next := copyMap(d.Responses)
	next[itemID] = resp
	d.Responses = next
	return d
}

// WithDocOpened records that the trainee opened a supporting document.
func (d Draft) WithDocOpened(docID string) Draft {
	next := copyMap(d.DocsOpened)
	next[docID] = true
	d.DocsOpened = next
	return d
}

// OpenedAll reports whether every listed document has been opened.
func (d Draft) OpenedAll(docIDs []string) bool {
	for _, id := range docIDs {
		if !d.DocsOpened[id] {
			return false
		}
	}
	return true
}

// Response returns the trainee's answer for an item, if any.
func (d Draft) Response(itemID string) (ItemResponse, bool) {
	r, ok := d.Responses[itemID]
	return r, ok
}

// Equal reports field-for-field structural equality. Used by the sync engine
// to short-circuit remote snapshots that would not change anything.
func (d Draft) Equal(o Draft) bool {
	return reflect.DeepEqual(normalize(d), normalize(o))
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (d Draft) Clone() Draft {
	out := Draft{}
	if d.TickMarks != nil {
		out.TickMarks = copyMap(d.TickMarks)
	}
	if d.Scoping != nil {
		out.Scoping = copyMap(d.Scoping)
	}
	if d.Responses != nil {
		out.Responses = make(map[string]ItemResponse, len(d.Responses))
		for k, v := range d.Responses {
			if v.Split != nil {
				v.Split = copyMap(v.Split)
			}
			out.Responses[k] = v
		}
	}
	if d.DocsOpened != nil {
		out.DocsOpened = copyMap(d.DocsOpened)
	}
	return out
}

// normalize maps empty sections to nil so a freshly-created draft compares
// equal to one that round-tripped through JSON.
func normalize(d Draft) Draft {
	if len(d.TickMarks) == 0 {
		d.TickMarks = nil
	}
	if len(d.Scoping) == 0 {
		d.Scoping = nil
	}
	if len(d.Responses) == 0 {
		d.Responses = nil
	}
	if len(d.DocsOpened) == 0 {
		d.DocsOpened = nil
	}
	return d
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
