package casework

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDraftTickToggle(t *testing.T) {
	var d Draft
	d = d.WithTick("chk-101", "V")
	if d.TickMarks["chk-101"] != "V" {
		t.Fatalf("tick not set")
	}
	d = d.WithTick("chk-101", "X")
	if d.TickMarks["chk-101"] != "X" {
		t.Fatalf("tick not replaced")
	}
	d = d.WithTick("chk-101", "X")
	if _, ok := d.TickMarks["chk-101"]; ok {
		t.Fatalf("same tick must toggle off")
	}
}

func TestDraftMutationLeavesSiblingsUntouched(t *testing.T) {
	var d Draft
	d = d.WithScoping("threshold", 5000.0)
	d = d.WithResponse("chk-101", ItemResponse{Opened: true})

	before := d
	next := d.WithTick("chk-101", "V")

	// Unchanged sections keep their identity, changed section gets a new map.
	if reflect.ValueOf(next.Scoping).Pointer() != reflect.ValueOf(before.Scoping).Pointer() {
		t.Fatalf("untouched scoping section was reallocated")
	}
	if reflect.ValueOf(next.TickMarks).Pointer() == reflect.ValueOf(before.TickMarks).Pointer() {
		t.Fatalf("mutated tickmarks section must be a new map")
	}
	next.TickMarks["chk-999"] = "V"
	if _, ok := before.TickMarks["chk-999"]; ok {
		t.Fatalf("mutating the new draft leaked into the old one")
	}
	if _, ok := before.Responses["chk-101"]; !ok {
		t.Fatalf("responses section lost")
	}
}

func TestDraftEqualAfterJSONRoundTrip(t *testing.T) {
	var d Draft
	d = d.WithScoping("population", 42.0)
	d = d.WithResponse("chk-7", ItemResponse{
		Opened:      true,
		IsException: true,
		Split:       map[string]float64{"improperlyExcluded": 1250.00},
	})
	d = d.WithDocOpened("bank-stmt")

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Draft
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Equal(back) {
		t.Fatalf("draft must be structurally equal after round trip")
	}
}

func TestDraftEqualTreatsEmptyAsNil(t *testing.T) {
	var fresh Draft
	roundTripped := Draft{TickMarks: map[string]string{}}
	if !fresh.Equal(roundTripped) {
		t.Fatalf("empty sections must compare equal to nil sections")
	}
}

func TestDraftCloneIsDeep(t *testing.T) {
	var d Draft
	d = d.WithResponse("a", ItemResponse{Split: map[string]float64{"properlyIncluded": 10}})
	c := d.Clone()
	c.Responses["a"].Split["properlyIncluded"] = 99
	if d.Responses["a"].Split["properlyIncluded"] != 10 {
		t.Fatalf("clone shares split map with original")
	}
}

func TestDraftOpenedAll(t *testing.T) {
	var d Draft
	d = d.WithDocOpened("bank-stmt")
	if d.OpenedAll([]string{"bank-stmt", "cutoff-memo"}) {
		t.Fatalf("missing doc must fail OpenedAll")
	}
	d = d.WithDocOpened("cutoff-memo")
	if !d.OpenedAll([]string{"bank-stmt", "cutoff-memo"}) {
		t.Fatalf("all docs opened, expected true")
	}
}
