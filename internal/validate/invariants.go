package validate

import (
	"fmt"

	"github.com/paramforge/engine/internal/types"
)

// ValidateInvariants checks every numbered structural invariant against a
// decoded snapshot, returning every violation found (not just the first).
// Each invariant yields a distinct, numbered error so the offending id is
// always named in the message.
func ValidateInvariants(snap *types.DocSnapshot) error {
	errs := &Errors{}

	checkKeysMatchIDs(snap, errs)
	checkFeatureOrderIsPermutation(snap, errs)
	checkExactlyOneOriginAndDatumPlanes(snap, errs)
	checkRebuildGate(snap, errs)
	checkSketchPlaneRefs(snap, errs)
	checkExtrudeRefs(snap, errs)
	checkRevolveRefs(snap, errs)
	checkSketchInternalRefs(snap, errs)

	return errs.ErrOrNil()
}

// checkKeysMatchIDs is invariant 1.
func checkKeysMatchIDs(snap *types.DocSnapshot, errs *Errors) {
	for key, f := range snap.FeaturesByID {
		if f.ID != key {
			errs.Addf("invariant 1: featuresById[%s] has id field %q", key, f.ID)
		}
		if f.Sketch == nil {
			continue
		}
		for key, p := range f.Sketch.Data.PointsByID {
			if p.ID != key {
				errs.Addf("invariant 1: sketch %s pointsById[%s] has id field %q", f.ID, key, p.ID)
			}
		}
		for key, e := range f.Sketch.Data.EntitiesByID {
			if e.ID != key {
				errs.Addf("invariant 1: sketch %s entitiesById[%s] has id field %q", f.ID, key, e.ID)
			}
		}
		for key, c := range f.Sketch.Data.ConstraintsByID {
			if c.ID != key {
				errs.Addf("invariant 1: sketch %s constraintsById[%s] has id field %q", f.ID, key, c.ID)
			}
		}
	}
}

// checkFeatureOrderIsPermutation is invariant 2.
func checkFeatureOrderIsPermutation(snap *types.DocSnapshot, errs *Errors) {
	seen := make(map[types.ID]bool, len(snap.FeatureOrder))
	for _, id := range snap.FeatureOrder {
		if seen[id] {
			errs.Addf("invariant 2: featureOrder contains duplicate id %s", id)
		}
		seen[id] = true
		if _, ok := snap.FeaturesByID[id]; !ok {
			errs.Addf("invariant 2: featureOrder references unknown feature %s", id)
		}
	}
	if len(seen) != len(snap.FeatureOrder) {
		// duplicate already reported above; nothing further to add.
		return
	}
	for id := range snap.FeaturesByID {
		if !seen[id] {
			errs.Addf("invariant 2: feature %s missing from featureOrder", id)
		}
	}
}

// checkExactlyOneOriginAndDatumPlanes is invariant 3.
func checkExactlyOneOriginAndDatumPlanes(snap *types.DocSnapshot, errs *Errors) {
	var origins []types.ID
	datums := map[types.PlaneRole][]types.ID{}

	for id, f := range snap.FeaturesByID {
		switch {
		case f.Type == types.FeatureOrigin:
			origins = append(origins, id)
		case f.Type == types.FeaturePlane && f.Plane != nil && f.Plane.Kind == types.PlaneDefDatum:
			datums[f.Plane.Role] = append(datums[f.Plane.Role], id)
		}
	}

	if len(origins) != 1 {
		errs.Addf("invariant 3: expected exactly one origin, found %d", len(origins))
	}
	for _, role := range []types.PlaneRole{types.PlaneXY, types.PlaneXZ, types.PlaneYZ} {
		if n := len(datums[role]); n != 1 {
			errs.Addf("invariant 3: expected exactly one %s datum plane, found %d", role, n)
		}
	}

	if len(snap.FeatureOrder) < 4 {
		errs.Addf("invariant 3: featureOrder must have at least 4 entries (origin, xy, xz, yz)")
		return
	}
	expectKind := func(pos int, want func(types.Feature) bool, label string) {
		f, ok := snap.FeaturesByID[snap.FeatureOrder[pos]]
		if !ok || !want(f) {
			errs.Addf("invariant 3: featureOrder[%d] must be the %s", pos, label)
		}
	}
	expectKind(0, func(f types.Feature) bool { return f.Type == types.FeatureOrigin }, "origin")
	expectKind(1, func(f types.Feature) bool {
		return f.Type == types.FeaturePlane && f.Plane != nil && f.Plane.Kind == types.PlaneDefDatum && f.Plane.Role == types.PlaneXY
	}, "xy datum plane")
	expectKind(2, func(f types.Feature) bool {
		return f.Type == types.FeaturePlane && f.Plane != nil && f.Plane.Kind == types.PlaneDefDatum && f.Plane.Role == types.PlaneXZ
	}, "xz datum plane")
	expectKind(3, func(f types.Feature) bool {
		return f.Type == types.FeaturePlane && f.Plane != nil && f.Plane.Kind == types.PlaneDefDatum && f.Plane.Role == types.PlaneYZ
	}, "yz datum plane")
}

// checkRebuildGate is invariant 4.
func checkRebuildGate(snap *types.DocSnapshot, errs *Errors) {
	if snap.State.RebuildGate == nil {
		return
	}
	if _, ok := snap.FeaturesByID[*snap.State.RebuildGate]; !ok {
		errs.Addf("invariant 4: state.rebuildGate %s is not a known feature", *snap.State.RebuildGate)
	}
}

// checkSketchPlaneRefs is invariant 5.
func checkSketchPlaneRefs(snap *types.DocSnapshot, errs *Errors) {
	for id, f := range snap.FeaturesByID {
		if f.Type != types.FeatureSketch || f.Sketch == nil {
			continue
		}
		if f.Sketch.Plane.Kind != types.SketchPlaneFeatureID {
			continue
		}
		target, ok := snap.FeaturesByID[f.Sketch.Plane.PlaneFeatureID]
		if !ok || target.Type != types.FeaturePlane {
			errs.Addf("invariant 5: sketch %s plane references non-existent plane feature %s", id, f.Sketch.Plane.PlaneFeatureID)
		}
	}
}

// checkExtrudeRefs is invariant 6.
func checkExtrudeRefs(snap *types.DocSnapshot, errs *Errors) {
	for id, f := range snap.FeaturesByID {
		if f.Type != types.FeatureExtrude || f.Extrude == nil {
			continue
		}
		e := f.Extrude
		sketch, ok := snap.FeaturesByID[e.SketchID]
		if !ok || sketch.Type != types.FeatureSketch {
			errs.Addf("invariant 6: extrude %s references non-existent sketch %s", id, e.SketchID)
		}
		if e.Extent == types.ExtentBlind && e.Distance == nil {
			errs.Addf("invariant 6: extrude %s extent=blind requires distance", id)
		}
		if (e.Extent == types.ExtentToFace || e.Extent == types.ExtentToVertex) && e.ExtentRef == "" {
			errs.Addf("invariant 6: extrude %s extent=%s requires extentRef", id, e.Extent)
		}
	}
}

// checkRevolveRefs is invariant 7.
func checkRevolveRefs(snap *types.DocSnapshot, errs *Errors) {
	for id, f := range snap.FeaturesByID {
		if f.Type != types.FeatureRevolve || f.Revolve == nil {
			continue
		}
		r := f.Revolve
		sketch, ok := snap.FeaturesByID[r.SketchID]
		if !ok || sketch.Type != types.FeatureSketch || sketch.Sketch == nil {
			errs.Addf("invariant 7: revolve %s references non-existent sketch %s", id, r.SketchID)
			continue
		}
		if _, ok := sketch.Sketch.Data.EntitiesByID[r.AxisID]; !ok {
			errs.Addf("invariant 7: revolve %s axis %s is not an entity of sketch %s", id, r.AxisID, r.SketchID)
		}
	}
}

// checkSketchInternalRefs is invariant 8.
func checkSketchInternalRefs(snap *types.DocSnapshot, errs *Errors) {
	for fid, f := range snap.FeaturesByID {
		if f.Type != types.FeatureSketch || f.Sketch == nil {
			continue
		}
		data := f.Sketch.Data
		for eid, e := range data.EntitiesByID {
			for _, pid := range e.Endpoints() {
				if _, ok := data.PointsByID[pid]; !ok {
					errs.Addf("invariant 8: sketch %s entity %s references missing point %s", fid, eid, pid)
				}
			}
		}
		for cid, c := range data.ConstraintsByID {
			for _, ref := range c.References() {
				if resolvesWithinSketch(data, ref) {
					continue
				}
				errs.Addf("invariant 8: sketch %s constraint %s references unresolved id %s", fid, cid, ref)
			}
		}
	}
}

// resolvesWithinSketch reports whether id names a known point or entity of
// the sketch — constraint references may point at either kind depending on
// the constraint (e.g. distance references points; parallel references
// lines).
func resolvesWithinSketch(data types.SketchData, id types.ID) bool {
	if _, ok := data.PointsByID[id]; ok {
		return true
	}
	if _, ok := data.EntitiesByID[id]; ok {
		return true
	}
	return false
}

// ValidateDocument composes ValidateSchema and ValidateInvariants, the
// entry point used on document load. Schema failure is fatal and
// short-circuits before invariant checking, since invariant checking
// assumes a structurally well-formed snapshot.
func ValidateDocument(raw []byte, strict bool) (*types.DocSnapshot, error) {
	snap, err := ValidateSchema(raw, strict)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if err := ValidateInvariants(snap); err != nil {
		return nil, fmt.Errorf("invariant validation failed: %w", err)
	}
	return snap, nil
}
