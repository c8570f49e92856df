package types

import "testing"

func TestDocSnapshotCloneIsIndependent(t *testing.T) {
	gate := ID("gate-1")
	orig := &DocSnapshot{
		Meta: Meta{SchemaVersion: SchemaVersion, Name: "doc"},
		State: State{
			RebuildGate: &gate,
		},
		FeaturesByID: map[ID]Feature{
			"f1": {ID: "f1", Type: FeatureOrigin},
		},
		FeatureOrder: []ID{"f1"},
	}

	clone := orig.Clone()

	clone.FeatureOrder[0] = "changed"
	*clone.State.RebuildGate = "changed-gate"
	clone.FeaturesByID["f1"] = Feature{ID: "f1", Type: FeaturePlane}

	if orig.FeatureOrder[0] != "f1" {
		t.Fatalf("mutating clone's FeatureOrder leaked into original: %v", orig.FeatureOrder)
	}
	if *orig.State.RebuildGate != "gate-1" {
		t.Fatalf("mutating clone's RebuildGate leaked into original: %v", *orig.State.RebuildGate)
	}
	if orig.FeaturesByID["f1"].Type != FeatureOrigin {
		t.Fatalf("mutating clone's FeaturesByID leaked into original: %v", orig.FeaturesByID["f1"].Type)
	}
}

func TestDocSnapshotIndexOf(t *testing.T) {
	d := &DocSnapshot{FeatureOrder: []ID{"a", "b", "c"}}

	if got := d.IndexOf("b"); got != 1 {
		t.Fatalf("IndexOf(b) = %d, want 1", got)
	}
	if got := d.IndexOf("missing"); got != -1 {
		t.Fatalf("IndexOf(missing) = %d, want -1", got)
	}
}

func TestDocSnapshotFeatureAt(t *testing.T) {
	d := &DocSnapshot{
		FeaturesByID: map[ID]Feature{"a": {ID: "a", Type: FeatureOrigin}},
		FeatureOrder: []ID{"a"},
	}

	f, ok := d.FeatureAt(0)
	if !ok || f.ID != "a" {
		t.Fatalf("FeatureAt(0) = %+v, %v", f, ok)
	}
	if _, ok := d.FeatureAt(1); ok {
		t.Fatalf("FeatureAt(1) should be out of range")
	}
}
