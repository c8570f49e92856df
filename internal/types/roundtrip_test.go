package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestDocSnapshotJSONRoundTrip exercises the round-trip property:
// serializing a snapshot to JSON and back yields an equal snapshot. go-cmp
// gives a structural diff on failure instead of a single "not equal"
// assertion.
func TestDocSnapshotJSONRoundTrip(t *testing.T) {
	gate := ID("gate-1")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	orig := &DocSnapshot{
		Meta: Meta{
			SchemaVersion: SchemaVersion,
			Name:          "bracket",
			CreatedAt:     now,
			ModifiedAt:    now,
			Units:         UnitsMM,
		},
		State: State{RebuildGate: &gate},
		FeaturesByID: map[ID]Feature{
			"origin": {ID: "origin", Type: FeatureOrigin, Name: "Origin"},
			"xy": {
				ID: "xy", Type: FeaturePlane, Name: "XY Plane",
				Plane: &PlaneDef{Kind: PlaneDefDatum, Role: PlaneXY},
			},
			"sk1": {
				ID: "sk1", Type: FeatureSketch,
				Sketch: &SketchDef{
					Plane: SketchPlaneRef{Kind: SketchPlaneFeatureID, PlaneFeatureID: "xy"},
					Data:  NewSketchData(),
				},
			},
		},
		FeatureOrder: []ID{"origin", "xy", "sk1"},
	}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var roundTripped DocSnapshot
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff(orig, &roundTripped); diff != "" {
		t.Fatalf("round-tripped snapshot differs (-want +got):\n%s", diff)
	}
}

// TestDocSnapshotCloneEqualsOriginal asserts Clone produces a deep,
// value-equal copy (the second half of the round-trip property set: clone
// is observably equal even though it shares no backing storage).
func TestDocSnapshotCloneEqualsOriginal(t *testing.T) {
	gate := ID("gate-1")
	orig := &DocSnapshot{
		Meta:         Meta{SchemaVersion: SchemaVersion, Name: "doc"},
		State:        State{RebuildGate: &gate},
		FeaturesByID: map[ID]Feature{"f1": {ID: "f1", Type: FeatureOrigin}},
		FeatureOrder: []ID{"f1"},
	}

	clone := orig.Clone()

	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone differs from original (-want +got):\n%s", diff)
	}
}
