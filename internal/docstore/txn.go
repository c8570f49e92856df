package docstore

import (
	"fmt"

	"github.com/paramforge/engine/internal/types"
)

// Txn is the mutation surface available inside a Transact closure. It
// operates on a private working copy of the snapshot; nothing it does is
// visible to other callers until Transact commits.
type Txn struct {
	snap    *types.DocSnapshot
	touched []types.ID
}

// Snapshot exposes the working copy for read-only inspection inside fn.
// Callers must not retain it past the Transact call.
func (t *Txn) Snapshot() *types.DocSnapshot {
	return t.snap
}

func (t *Txn) touch(id types.ID) {
	t.touched = append(t.touched, id)
}

// insertionIndex returns where a newly created feature should be spliced
// into FeatureOrder: right after the gated feature if a rebuild gate is set
// (so the new feature lands before anything already deferred past the
// gate), otherwise at the end.
func (t *Txn) insertionIndex() int {
	if t.snap.State.RebuildGate == nil {
		return len(t.snap.FeatureOrder)
	}
	idx := t.snap.IndexOf(*t.snap.State.RebuildGate)
	if idx < 0 {
		return len(t.snap.FeatureOrder)
	}
	return idx + 1
}

// AddFeature inserts a new feature, splicing it into FeatureOrder at the
// rebuild-gate position (or appending). It is the caller's responsibility to
// pick the first four positions correctly for origin/datum planes when
// seeding a brand-new document (see NewDocument); AddFeature itself makes no
// exception for those kinds once the document already exists.
func (t *Txn) AddFeature(f types.Feature) error {
	if f.ID.Empty() {
		return fmt.Errorf("feature id must not be empty")
	}
	if _, exists := t.snap.FeaturesByID[f.ID]; exists {
		return fmt.Errorf("feature %s already exists", f.ID)
	}

	idx := t.insertionIndex()
	order := make([]types.ID, 0, len(t.snap.FeatureOrder)+1)
	order = append(order, t.snap.FeatureOrder[:idx]...)
	order = append(order, f.ID)
	order = append(order, t.snap.FeatureOrder[idx:]...)

	t.snap.FeaturesByID[f.ID] = f
	t.snap.FeatureOrder = order
	t.touch(f.ID)
	return nil
}

// isProtectedDatum reports whether id is the origin or one of the three
// canonical datum planes, which deletion must refuse.
func (t *Txn) isProtectedDatum(id types.ID) bool {
	f, ok := t.snap.FeaturesByID[id]
	if !ok {
		return false
	}
	if f.Type == types.FeatureOrigin {
		return true
	}
	if f.Type == types.FeaturePlane && f.Plane != nil && f.Plane.Kind == types.PlaneDefDatum {
		switch f.Plane.Role {
		case types.PlaneXY, types.PlaneXZ, types.PlaneYZ:
			return true
		}
	}
	return false
}

// DeleteFeature removes a feature from both FeaturesByID and FeatureOrder.
// It returns false without mutating anything if id does not exist or names
// the origin or a canonical datum plane.
func (t *Txn) DeleteFeature(id types.ID) bool {
	if _, ok := t.snap.FeaturesByID[id]; !ok {
		return false
	}
	if t.isProtectedDatum(id) {
		return false
	}

	delete(t.snap.FeaturesByID, id)
	order := make([]types.ID, 0, len(t.snap.FeatureOrder)-1)
	for _, fid := range t.snap.FeatureOrder {
		if fid != id {
			order = append(order, fid)
		}
	}
	t.snap.FeatureOrder = order

	if t.snap.State.RebuildGate != nil && *t.snap.State.RebuildGate == id {
		t.snap.State.RebuildGate = nil
	}

	t.touch(id)
	return true
}

// Rename sets a feature's display name.
func (t *Txn) Rename(id types.ID, name string) error {
	f, ok := t.snap.FeaturesByID[id]
	if !ok {
		return fmt.Errorf("feature %s not found", id)
	}
	f.Name = name
	t.snap.FeaturesByID[id] = f
	t.touch(id)
	return nil
}

// SetSuppressed toggles a feature's suppressed flag.
func (t *Txn) SetSuppressed(id types.ID, suppressed bool) error {
	f, ok := t.snap.FeaturesByID[id]
	if !ok {
		return fmt.Errorf("feature %s not found", id)
	}
	f.Suppressed = suppressed
	t.snap.FeaturesByID[id] = f
	t.touch(id)
	return nil
}

// SetVisible toggles a feature's visibility. Visible is stored as nil for
// true (the default), so hiding a default-visible feature and showing it
// again leaves its record equal to the original.
func (t *Txn) SetVisible(id types.ID, visible bool) error {
	f, ok := t.snap.FeaturesByID[id]
	if !ok {
		return fmt.Errorf("feature %s not found", id)
	}
	if visible {
		f.Visible = nil
	} else {
		f.Visible = &visible
	}
	t.snap.FeaturesByID[id] = f
	t.touch(id)
	return nil
}

// SetRebuildGate sets or clears state.rebuildGate. A non-nil id must
// already exist in FeaturesByID.
func (t *Txn) SetRebuildGate(id *types.ID) error {
	if id != nil {
		if _, ok := t.snap.FeaturesByID[*id]; !ok {
			return fmt.Errorf("rebuild gate %s: no such feature", *id)
		}
		gate := *id
		t.snap.State.RebuildGate = &gate
	} else {
		t.snap.State.RebuildGate = nil
	}
	return nil
}

// UpdateFeature applies mutate to a copy of the named feature and writes it
// back. It is the general-purpose hook used when several cached fields must
// change together inside one transaction, e.g. a plane-offset edit updating
// both definition.distance and the cached origin.
func (t *Txn) UpdateFeature(id types.ID, mutate func(f *types.Feature)) error {
	f, ok := t.snap.FeaturesByID[id]
	if !ok {
		return fmt.Errorf("feature %s not found", id)
	}
	mutate(&f)
	t.snap.FeaturesByID[id] = f
	t.touch(id)
	return nil
}

// WriteSketchPoints overwrites a subset of a sketch's point coordinates.
// Used exclusively by the sketch solver adapter's writeback, which always
// calls this inside a Transact tagged OriginSolverWriteback so the rebuild
// scheduler can ignore the resulting change notification.
func (t *Txn) WriteSketchPoints(sketchID types.ID, points map[types.ID]types.SketchPoint) error {
	f, ok := t.snap.FeaturesByID[sketchID]
	if !ok || f.Type != types.FeatureSketch || f.Sketch == nil {
		return fmt.Errorf("sketch %s not found", sketchID)
	}
	for id, p := range points {
		if _, ok := f.Sketch.Data.PointsByID[id]; !ok {
			return fmt.Errorf("sketch %s: point %s not found", sketchID, id)
		}
		f.Sketch.Data.PointsByID[id] = p
	}
	t.snap.FeaturesByID[sketchID] = f
	t.touch(sketchID)
	return nil
}
