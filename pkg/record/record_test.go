// ABOUTME: Tests for record identity, values and total ordering
// ABOUTME: Verifies cloning depth and cross-type comparison

package record

import (
	"testing"
	"time"
)

func TestNewIDGeneratesUniqueKeys(t *testing.T) {
	a := NewID("Person")
	b := NewID("Person")
	if a.Entity != "Person" || b.Entity != "Person" {
		t.Fatalf("Unexpected entities: %q, %q", a.Entity, b.Entity)
	}
	if a.Key == b.Key {
		t.Error("Generated keys should be unique")
	}
	if a.IsZero() {
		t.Error("Generated ID should not be zero")
	}
	if (ID{}).IsZero() != true {
		t.Error("Zero ID should report zero")
	}
	if a.String() != "Person/"+a.Key {
		t.Errorf("Unexpected string form: %q", a.String())
	}
}

func TestValueEquality(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", NullValue(), NullValue(), true},
		{"null vs string", NullValue(), NewStringValue(""), false},
		{"string", NewStringValue("x"), NewStringValue("x"), true},
		{"string diff", NewStringValue("x"), NewStringValue("y"), false},
		{"bytes", NewBytesValue([]byte{1, 2}), NewBytesValue([]byte{1, 2}), true},
		{"bytes diff", NewBytesValue([]byte{1, 2}), NewBytesValue([]byte{1, 3}), false},
		{"int", NewInt64Value(-4), NewInt64Value(-4), true},
		{"time", NewTimeValue(now), NewTimeValue(now.UTC()), true},
		{"ref", NewRefValue(ID{"P", "1"}), NewRefValue(ID{"P", "1"}), true},
		{"reflist", NewRefListValue([]ID{{"P", "1"}}), NewRefListValue([]ID{{"P", "1"}}), true},
		{"reflist order", NewRefListValue([]ID{{"P", "1"}, {"P", "2"}}), NewRefListValue([]ID{{"P", "2"}, {"P", "1"}}), false},
	}
	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCompareTotalOrder(t *testing.T) {
	if Compare(NewInt64Value(1), NewInt64Value(2)) >= 0 {
		t.Error("1 should order before 2")
	}
	if Compare(NewStringValue("b"), NewStringValue("a")) <= 0 {
		t.Error("b should order after a")
	}
	if Compare(NewStringValue("a"), NewStringValue("a")) != 0 {
		t.Error("Equal strings should compare 0")
	}
	// Cross-type comparison orders by type tag
	if Compare(NullValue(), NewStringValue("")) >= 0 {
		t.Error("Null should order before any typed value")
	}
	if Compare(NewBytesValue(nil), NewInt64Value(0)) >= 0 {
		t.Error("Bytes should order before int64 by tag")
	}
	early := NewTimeValue(time.Unix(100, 0))
	late := NewTimeValue(time.Unix(200, 0))
	if Compare(early, late) >= 0 {
		t.Error("Earlier time should order first")
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := NewRecord(ID{"Person", "p1"})
	rec.Set("name", NewStringValue("Alice"))
	rec.Set("blob", NewBytesValue([]byte{1, 2, 3}))
	rec.Set("friends", NewRefListValue([]ID{{"Person", "p2"}}))

	clone := rec.Clone()
	clone.Set("name", NewStringValue("Mallory"))
	cb, _ := clone.Get("blob")
	cb.Bytes[0] = 99
	cf, _ := clone.Get("friends")
	cf.Refs[0] = ID{"Person", "p3"}

	if v, _ := rec.Get("name"); v.Str != "Alice" {
		t.Error("Clone should not share field map")
	}
	if v, _ := rec.Get("blob"); v.Bytes[0] != 1 {
		t.Error("Clone should not share byte slices")
	}
	if v, _ := rec.Get("friends"); v.Refs[0] != (ID{"Person", "p2"}) {
		t.Error("Clone should not share ref lists")
	}
}

func TestChangeKindNames(t *testing.T) {
	if KindName(CHANGE_INSERT) != "insert" || KindName(CHANGE_UPDATE) != "update" || KindName(CHANGE_DELETE) != "delete" {
		t.Error("Unexpected change kind names")
	}
}
