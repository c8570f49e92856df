package types

import "time"

// Units is the document's length-unit declaration.
type Units string

const (
	UnitsMM Units = "mm"
	UnitsCM Units = "cm"
	UnitsM  Units = "m"
	UnitsIN Units = "in"
	UnitsFT Units = "ft"
)

// ValidUnits reports whether u is one of the closed set of accepted units.
func ValidUnits(u Units) bool {
	switch u {
	case UnitsMM, UnitsCM, UnitsM, UnitsIN, UnitsFT:
		return true
	}
	return false
}

const SchemaVersion = 2

// Meta holds document-level metadata.
type Meta struct {
	SchemaVersion int       `json:"schemaVersion"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	ModifiedAt    time.Time `json:"modifiedAt"`
	Units         Units     `json:"units"`
}

// State holds the small amount of mutable, non-feature document state.
type State struct {
	// RebuildGate, when set, names the last feature the rebuild engine should
	// evaluate; everything after it in FeatureOrder is marked "gated".
	RebuildGate *ID `json:"rebuildGate,omitempty"`
}

// DocSnapshot is the full, immutable-once-returned document snapshot.
// A snapshot is never mutated in place by callers; Document Store mutation
// always happens inside Transact and produces a fresh snapshot.
type DocSnapshot struct {
	Meta          Meta           `json:"meta"`
	State         State          `json:"state"`
	FeaturesByID  map[ID]Feature `json:"featuresById"`
	FeatureOrder  []ID           `json:"featureOrder"`
}

// Clone deep-copies the snapshot so a caller can mutate its copy freely
// without affecting the Document Store's committed state. The Rebuild Engine
// and the Schema/Invariant Validator both operate on clones, never on the
// store's live snapshot.
func (d *DocSnapshot) Clone() *DocSnapshot {
	if d == nil {
		return nil
	}
	out := &DocSnapshot{
		Meta:  d.Meta,
		State: State{},
	}
	if d.State.RebuildGate != nil {
		g := *d.State.RebuildGate
		out.State.RebuildGate = &g
	}
	out.FeaturesByID = make(map[ID]Feature, len(d.FeaturesByID))
	for id, f := range d.FeaturesByID {
		out.FeaturesByID[id] = f.Clone()
	}
	out.FeatureOrder = append([]ID(nil), d.FeatureOrder...)
	return out
}

// FeatureAt returns the feature at position i in FeatureOrder, or false if i
// is out of range.
func (d *DocSnapshot) FeatureAt(i int) (Feature, bool) {
	if i < 0 || i >= len(d.FeatureOrder) {
		return Feature{}, false
	}
	f, ok := d.FeaturesByID[d.FeatureOrder[i]]
	return f, ok
}

// IndexOf returns the position of id in FeatureOrder, or -1 if absent.
func (d *DocSnapshot) IndexOf(id ID) int {
	for i, fid := range d.FeatureOrder {
		if fid == id {
			return i
		}
	}
	return -1
}
