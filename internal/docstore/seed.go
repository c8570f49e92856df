package docstore

import (
	"time"

	"github.com/paramforge/engine/internal/idgen"
	"github.com/paramforge/engine/internal/types"
)

// NewDocument builds a fresh DocSnapshot satisfying invariant 3: exactly one
// origin and one datum plane of each role {xy,xz,yz}, occupying positions
// 0..3 of FeatureOrder in that order.
func NewDocument(name string, units types.Units, ids *idgen.Service) *types.DocSnapshot {
	now := time.Now().UTC()
	originID := ids.New()
	xyID := ids.New()
	xzID := ids.New()
	yzID := ids.New()

	d := &types.DocSnapshot{
		Meta: types.Meta{
			SchemaVersion: types.SchemaVersion,
			Name:          name,
			CreatedAt:     now,
			ModifiedAt:    now,
			Units:         units,
		},
		FeaturesByID: map[types.ID]types.Feature{
			originID: {ID: originID, Type: types.FeatureOrigin, Name: "Origin"},
			xyID: {
				ID: xyID, Type: types.FeaturePlane, Name: "XY Plane",
				Plane: &types.PlaneDef{Kind: types.PlaneDefDatum, Role: types.PlaneXY},
			},
			xzID: {
				ID: xzID, Type: types.FeaturePlane, Name: "XZ Plane",
				Plane: &types.PlaneDef{Kind: types.PlaneDefDatum, Role: types.PlaneXZ},
			},
			yzID: {
				ID: yzID, Type: types.FeaturePlane, Name: "YZ Plane",
				Plane: &types.PlaneDef{Kind: types.PlaneDefDatum, Role: types.PlaneYZ},
			},
		},
		FeatureOrder: []types.ID{originID, xyID, xzID, yzID},
	}
	return d
}
