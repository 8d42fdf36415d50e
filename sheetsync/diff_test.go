package sheetsync

import (
	"reflect"
	"testing"
)

func testDiffEngine() *DiffEngine {
	return NewDiffEngine(nil, testMapper(), 0)
}

func snapshotOf(all []string, active []string) *KeySnapshot {
	snap := &KeySnapshot{All: make(map[string]bool), Active: make(map[string]bool)}
	for _, k := range all {
		snap.All[k] = true
	}
	for _, k := range active {
		snap.Active[k] = true
	}
	return snap
}

// Source {A1,A2,A3} against store {A1,A2,A4}: A3 is new, A4 is gone, the
// overlap is update territory. The three sets are disjoint.
func TestDetect_PartitionsSourceAndStore(t *testing.T) {
	e := testDiffEngine()
	snap := snapshotOf([]string{"A1", "A2", "A4"}, []string{"A1", "A2", "A4"})

	additions := e.DetectAdditions([]string{"A1", "A2", "A3"}, snap)
	if !reflect.DeepEqual(additions, []string{"A3"}) {
		t.Fatalf("expected additions [A3], got %v", additions)
	}

	deletions := e.DetectDeletions(map[string]bool{"A1": true, "A2": true, "A3": true}, snap)
	if !reflect.DeepEqual(deletions, []string{"A4"}) {
		t.Fatalf("expected deletions [A4], got %v", deletions)
	}
}

func TestDetectAdditions_SoftDeletedKeysStillCountAsPresent(t *testing.T) {
	e := testDiffEngine()
	// A9 exists but is soft-deleted: it is neither re-added nor deletable.
	snap := snapshotOf([]string{"A1", "A9"}, []string{"A1"})

	additions := e.DetectAdditions([]string{"A1", "A9"}, snap)
	if len(additions) != 0 {
		t.Fatalf("soft-deleted key must not be re-added, got %v", additions)
	}

	deletions := e.DetectDeletions(map[string]bool{"A1": true}, snap)
	if len(deletions) != 0 {
		t.Fatalf("soft-deleted key must not be deleted again, got %v", deletions)
	}
}

func TestDetect_OrderIsDeterministic(t *testing.T) {
	e := testDiffEngine()
	snap := snapshotOf(nil, nil)

	additions := e.DetectAdditions([]string{"A10", "A2", "B1", "X"}, snap)
	expected := []string{"X", "B1", "A2", "A10"}
	if !reflect.DeepEqual(additions, expected) {
		t.Fatalf("expected %v, got %v", expected, additions)
	}
}

func TestCompareFields_DetectsChangesOnly(t *testing.T) {
	e := testDiffEngine()
	fields := e.mapper.Table().CompareFields()

	source := FieldValues{"name": "Tanaka", "phone": "090-0000-0000"}
	store := FieldValues{"name": "Tanaka", "phone": "090-9999-9999"}

	changed := e.compareFields(source, store, fields)
	if len(changed) != 1 {
		t.Fatalf("expected 1 changed field, got %v", changed)
	}
	change, ok := changed["phone"]
	if !ok {
		t.Fatalf("expected phone change, got %v", changed)
	}
	if change.Old != "090-9999-9999" || change.New != "090-0000-0000" {
		t.Fatalf("unexpected change %+v", change)
	}
}

func TestCompareFields_NullAndBlankAreEqual(t *testing.T) {
	e := testDiffEngine()
	fields := e.mapper.Table().CompareFields()

	source := FieldValues{"remarks": "", "phone": "   "}
	store := FieldValues{"remarks": nil, "phone": nil}

	if changed := e.compareFields(source, store, fields); len(changed) != 0 {
		t.Fatalf("blank source cells must equal null store fields, got %v", changed)
	}
}

func TestCompareFields_MissingSourceColumnIsNotABlankRequest(t *testing.T) {
	e := testDiffEngine()
	fields := e.mapper.Table().CompareFields()

	// The sheet did not carry the remarks column at all.
	source := FieldValues{"name": "Tanaka"}
	store := FieldValues{"name": "Tanaka", "remarks": "existing note"}

	if changed := e.compareFields(source, store, fields); len(changed) != 0 {
		t.Fatalf("absent columns must not diff against store values, got %v", changed)
	}
}

func TestCompareFields_NumberFormattingDoesNotDiff(t *testing.T) {
	e := testDiffEngine()
	fields := e.mapper.Table().CompareFields()

	source := FieldValues{"assessment_amount": "2,500,000"}
	store := FieldValues{"assessment_amount": "2500000"}

	if changed := e.compareFields(source, store, fields); len(changed) != 0 {
		t.Fatalf("equivalent numbers must not diff, got %v", changed)
	}
}

func TestKeyLess_NumericSuffixOrdering(t *testing.T) {
	cases := []struct {
		a, b string
		less bool
	}{
		{"A2", "A10", true},
		{"A10", "A2", false},
		{"X", "A2", true},
		{"A2", "B2", true},
	}
	for _, tc := range cases {
		if got := keyLess(tc.a, tc.b); got != tc.less {
			t.Fatalf("keyLess(%q, %q) expected %v, got %v", tc.a, tc.b, tc.less, got)
		}
	}
}
