package validate

import (
	"testing"

	"github.com/paramforge/engine/internal/docstore"
	"github.com/paramforge/engine/internal/idgen"
	"github.com/paramforge/engine/internal/types"
)

func validDoc() *types.DocSnapshot {
	return docstore.NewDocument("doc", types.UnitsMM, idgen.NewService())
}

func TestValidateInvariantsAcceptsFreshDocument(t *testing.T) {
	if err := ValidateInvariants(validDoc()); err != nil {
		t.Fatalf("fresh document should be valid: %v", err)
	}
}

func TestValidateInvariantsCatchesKeyMismatch(t *testing.T) {
	snap := validDoc()
	var anID types.ID
	for id := range snap.FeaturesByID {
		anID = id
		break
	}
	f := snap.FeaturesByID[anID]
	f.ID = "wrong-id"
	snap.FeaturesByID[anID] = f

	if err := ValidateInvariants(snap); err == nil {
		t.Fatal("expected a key/id mismatch violation")
	}
}

func TestValidateInvariantsCatchesDanglingRebuildGate(t *testing.T) {
	snap := validDoc()
	bogus := types.ID("no-such-feature")
	snap.State.RebuildGate = &bogus

	if err := ValidateInvariants(snap); err == nil {
		t.Fatal("expected a dangling rebuild-gate violation")
	}
}

func TestValidateInvariantsCatchesMissingFromFeatureOrder(t *testing.T) {
	snap := validDoc()
	snap.FeatureOrder = snap.FeatureOrder[:len(snap.FeatureOrder)-1]

	if err := ValidateInvariants(snap); err == nil {
		t.Fatal("expected a featureOrder permutation violation")
	}
}

func TestValidateInvariantsCatchesBadSketchEntityRef(t *testing.T) {
	snap := validDoc()
	ids := idgen.NewService()
	sketchID := ids.New()
	p1 := ids.New()
	lineID := ids.New()

	data := types.NewSketchData()
	data.PointsByID[p1] = types.SketchPoint{ID: p1}
	data.EntitiesByID[lineID] = types.SketchEntity{ID: lineID, Kind: types.EntityLine, Start: p1, End: types.ID("missing-point")}

	snap.FeaturesByID[sketchID] = types.Feature{
		ID: sketchID, Type: types.FeatureSketch,
		Sketch: &types.SketchDef{Plane: types.SketchPlaneRef{Kind: types.SketchPlaneFeatureID, PlaneFeatureID: snap.FeatureOrder[1]}, Data: data},
	}
	snap.FeatureOrder = append(snap.FeatureOrder, sketchID)

	if err := ValidateInvariants(snap); err == nil {
		t.Fatal("expected a dangling entity-endpoint violation")
	}
}

func TestValidateSchemaRejectsUnknownFieldsInStrictMode(t *testing.T) {
	raw := []byte(`{
		"meta": {"schemaVersion": 2, "name": "x", "createdAt": "2026-01-01T00:00:00Z", "modifiedAt": "2026-01-01T00:00:00Z", "units": "mm", "bogus": true},
		"state": {},
		"featuresById": {},
		"featureOrder": []
	}`)

	if _, err := ValidateSchema(raw, true); err == nil {
		t.Fatal("expected strict mode to reject unknown field")
	}
	if _, err := ValidateSchema(raw, false); err != nil {
		t.Fatalf("non-strict mode should tolerate unknown field: %v", err)
	}
}

func TestValidateSchemaRejectsBadUnits(t *testing.T) {
	raw := []byte(`{
		"meta": {"schemaVersion": 2, "name": "x", "createdAt": "2026-01-01T00:00:00Z", "modifiedAt": "2026-01-01T00:00:00Z", "units": "parsecs"},
		"state": {},
		"featuresById": {},
		"featureOrder": []
	}`)

	if _, err := ValidateSchema(raw, false); err == nil {
		t.Fatal("expected invalid units to be rejected")
	}
}
