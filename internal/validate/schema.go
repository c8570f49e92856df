package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paramforge/engine/internal/types"
)

// ValidateSchema performs structural/type validation of a raw document
// payload; unknown fields cause validation failure in strict mode. On
// success it returns the typed DocSnapshot so callers don't pay for a
// second decode.
func ValidateSchema(raw []byte, strict bool) (*types.DocSnapshot, error) {
	errs := &Errors{}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}

	var snap types.DocSnapshot
	if err := dec.Decode(&snap); err != nil {
		errs.Addf("decode document: %w", err)
		return nil, errs.ErrOrNil()
	}

	if snap.Meta.SchemaVersion != types.SchemaVersion {
		errs.Addf("meta.schemaVersion: expected %d, got %d", types.SchemaVersion, snap.Meta.SchemaVersion)
	}
	if !types.ValidUnits(snap.Meta.Units) {
		errs.Addf("meta.units: invalid unit %q", snap.Meta.Units)
	}
	if snap.FeaturesByID == nil {
		errs.Addf("featuresById: missing")
	}
	if snap.FeatureOrder == nil {
		errs.Addf("featureOrder: missing")
	}

	for id, f := range snap.FeaturesByID {
		if err := validateFeatureShape(id, f); err != nil {
			errs.Add(err)
		}
	}

	if !errs.Ok() {
		return nil, errs.ErrOrNil()
	}
	return &snap, nil
}

// validateFeatureShape exhaustively matches on Type, requiring the matching
// *Def field to be present and rejecting the others — the Go analogue of an
// exhaustive sum-type match.
func validateFeatureShape(id types.ID, f types.Feature) error {
	if f.ID != id {
		return fmt.Errorf("featuresById[%s]: id field %q does not match map key (invariant 1)", id, f.ID)
	}

	present := func(ok bool) int {
		if ok {
			return 1
		}
		return 0
	}
	count := present(f.Plane != nil) + present(f.Axis != nil) + present(f.Sketch != nil) +
		present(f.Extrude != nil) + present(f.Revolve != nil) + present(f.Boolean != nil)

	switch f.Type {
	case types.FeatureOrigin:
		if count != 0 {
			return fmt.Errorf("feature %s: type origin must carry no definition payload", id)
		}
	case types.FeaturePlane:
		if f.Plane == nil {
			return fmt.Errorf("feature %s: type plane requires a plane definition", id)
		}
	case types.FeatureAxis:
		if f.Axis == nil {
			return fmt.Errorf("feature %s: type axis requires an axis definition", id)
		}
	case types.FeatureSketch:
		if f.Sketch == nil {
			return fmt.Errorf("feature %s: type sketch requires sketch data", id)
		}
	case types.FeatureExtrude:
		if f.Extrude == nil {
			return fmt.Errorf("feature %s: type extrude requires an extrude definition", id)
		}
	case types.FeatureRevolve:
		if f.Revolve == nil {
			return fmt.Errorf("feature %s: type revolve requires a revolve definition", id)
		}
	case types.FeatureBoolean:
		if f.Boolean == nil {
			return fmt.Errorf("feature %s: type boolean requires a boolean definition", id)
		}
	default:
		return fmt.Errorf("feature %s: unknown type %q", id, f.Type)
	}
	return nil
}
