// Package sketch implements the Sketch Store and its solver adapter: it
// translates a document's SketchData into a kernel-owned KernelSketch,
// drives a solve, and reports a writeback-ready result. Document ids never
// cross into the kernel directly — every point/entity gets a fresh kernel
// handle for the lifetime of one solve, so storage-layer identifiers never
// leak into a collaborator's API.
package sketch

import (
	"fmt"
	"math"
	"sort"

	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/types"
)

// minCircleRadius is the smallest circle radius the sketch store accepts;
// anything at or below it collapses to a point, not a curve.
const minCircleRadius = 1e-9

// SolveResult is the adapter's report of one sketch solve.
type SolveResult struct {
	SketchID      types.ID
	Status        kernel.SolveStatus
	ChangedPoints []types.ID
	// NewPoints carries the post-solve coordinates for every id in
	// ChangedPoints, ready to hand to docstore.Txn.WriteSketchPoints inside
	// a transaction tagged OriginSolverWriteback.
	NewPoints map[types.ID]types.SketchPoint
	DOF       kernel.DOF
	Profile   *kernel.Profile
}

// changeThreshold is the minimum movement, in document length units, for a
// point to be reported as "changed" after a solve.
const changeThreshold = 1e-9

// Solve builds a fresh kernel sketch from data, replays every point/entity/
// constraint in sorted-id order so the solve is reproducible across peers,
// solves it, and reports which points moved.
func Solve(k kernel.GeometryKernel, plane kernel.Frame, data types.SketchData) (*SolveResult, error) {
	ks := k.CreateSketch(plane)

	pointIDs := sortedIDs(data.PointsByID)
	handles := make(map[types.ID]kernel.Pid, len(pointIDs))
	before := make(map[types.ID][2]float64, len(pointIDs))
	for _, id := range pointIDs {
		p := data.PointsByID[id]
		handles[id] = ks.AddPoint(p.X, p.Y, kernel.PointOpts{Fixed: p.Fixed})
		before[id] = [2]float64{p.X, p.Y}
	}

	entIDs := sortedIDs(data.EntitiesByID)
	entHandles := make(map[types.ID]kernel.Eid, len(entIDs))
	for _, id := range entIDs {
		e := data.EntitiesByID[id]
		opts := kernel.EntityOpts{Construction: e.Construction}
		switch e.Kind {
		case types.EntityLine:
			entHandles[id] = ks.AddLine(handles[e.Start], handles[e.End], opts)
		case types.EntityArc:
			entHandles[id] = ks.AddArc(handles[e.Start], handles[e.End], handles[e.Center], e.CCW, opts)
		case types.EntityCircle:
			if e.Radius <= minCircleRadius {
				return nil, fmt.Errorf("sketch entity %s: circle radius %g is at or below the minimum %g", id, e.Radius, minCircleRadius)
			}
			// A circle is encoded to the kernel as an arc, not via
			// AddCircle: a synthesized edge point at (cx+r, cy) is used as
			// both the arc's start and end, with the circle's own center
			// point as the arc's center.
			center := before[e.CircleCenter]
			edge := ks.AddPoint(center[0]+e.Radius, center[1], kernel.PointOpts{})
			entHandles[id] = ks.AddArc(edge, edge, handles[e.CircleCenter], true, opts)
		}
	}

	constraintIDs := sortedIDs(data.ConstraintsByID)
	for _, id := range constraintIDs {
		c := data.ConstraintsByID[id]
		ks.AddConstraint(translateConstraint(c, handles, entHandles))
	}

	outcome, err := ks.Solve()
	if err != nil {
		return nil, err
	}

	var changed []types.ID
	newPoints := make(map[types.ID]types.SketchPoint)
	for _, id := range pointIDs {
		x, y, ok := ks.GetPoint(handles[id])
		if !ok {
			continue
		}
		b := before[id]
		if math.Hypot(x-b[0], y-b[1]) > changeThreshold {
			changed = append(changed, id)
			orig := data.PointsByID[id]
			orig.X, orig.Y = x, y
			newPoints[id] = orig
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })

	profile, _ := ks.ToProfile()

	return &SolveResult{
		Status:        outcome.Status,
		ChangedPoints: changed,
		NewPoints:     newPoints,
		DOF:           ks.AnalyzeDOF(),
		Profile:       profile,
	}, nil
}

func sortedIDs[V any](m map[types.ID]V) []types.ID {
	ids := make([]types.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// translateConstraint converts a document-level constraint into its kernel
// encoding. Angles are stored in degrees on the document and in radians at
// the kernel boundary.
func translateConstraint(c types.SketchConstraint, pts map[types.ID]kernel.Pid, ents map[types.ID]kernel.Eid) kernel.Constraint {
	kc := kernel.Constraint{
		Kind:            kernel.ConstraintKind(c.Kind),
		P1:              pts[c.P1],
		P2:              pts[c.P2],
		Point:           pts[c.Point],
		L1:              ents[c.L1],
		L2:              ents[c.L2],
		A1:              ents[c.A1],
		A2:              ents[c.A2],
		Line:            ents[c.Line],
		Arc:             ents[c.Arc],
		AxisLine:        ents[c.AxisLine],
		OnLine:          ents[c.OnLine],
		OnArc:           ents[c.OnArc],
		ConnectionPoint: string(c.ConnectionPoint),
		OffsetX:         c.OffsetX,
		OffsetY:         c.OffsetY,
		Value:           c.Value,
	}
	if c.Kind == types.ConstraintAngle {
		kc.Value = c.Value * math.Pi / 180
	}
	return kc
}
