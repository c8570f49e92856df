// Package rebuild implements the rebuild engine: given a document snapshot
// and a GeometryKernel, it walks featureOrder in strict order, dispatches
// each feature to its kind-specific handler, and produces bodies, meshes, a
// merged reference index, and per-feature status — collecting BuildErrors
// instead of aborting, so one bad feature doesn't blank the whole model.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/refindex"
	"github.com/paramforge/engine/internal/sketch"
	"github.com/paramforge/engine/internal/types"
)

// rebuildTracer and rebuildMetrics use the global OTel providers: spans and
// instruments are no-ops until a caller installs a real SDK provider.
var rebuildTracer = otel.Tracer("github.com/paramforge/engine/internal/rebuild")

var rebuildMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/paramforge/engine/internal/rebuild")
	rebuildMetrics.runs, _ = m.Int64Counter("paramforge.rebuild.runs",
		metric.WithDescription("rebuilds executed"),
		metric.WithUnit("{rebuild}"),
	)
	rebuildMetrics.duration, _ = m.Float64Histogram("paramforge.rebuild.duration_ms",
		metric.WithDescription("wall-clock time spent walking featureOrder in one rebuild"),
		metric.WithUnit("ms"),
	)
}

// throughAllDistance is the resolved signed distance for an
// ExtentThroughAll extrude: large enough to pierce any plausible body while
// staying a fixed, deterministic constant. The engine does not attempt to
// measure "the far side of everything" — that is the kind of global,
// order-sensitive computation the kernel boundary would have to own — so it
// passes a conservative constant and lets the kernel clip.
const throughAllDistance = 1e6

// BodyEntry is one surviving solid body in the rebuild result, keyed by the
// id of the feature that created it; a merged body keeps the key of the
// first existing entry it was unioned with.
type BodyEntry struct {
	BodyID kernel.BodyID
	Name   string
	Color  string
}

// RebuildResult is everything one synchronous rebuild produces.
type RebuildResult struct {
	Bodies             map[types.ID]BodyEntry
	Meshes             map[types.ID]*kernel.Mesh
	ReferenceIndex     *refindex.Index
	FeatureStatus      map[types.ID]types.FeatureStatus
	Errors             []*types.BuildError
	SketchSolveResults map[types.ID]*sketch.SolveResult
	Frames             map[types.ID]types.Frame

	// bodySeq counts body entries created this rebuild, driving the default
	// Body{n} names and the palette cycle.
	bodySeq int
}

// bodyPalette is the fixed set of default body colors, cycled by body
// insertion order when a feature doesn't name its own.
var bodyPalette = [6]string{"#4f86f7", "#f7a84f", "#6fcf72", "#f76f6f", "#b06ff7", "#6fe0d8"}

// newBodyEntry fills in default name/color for a freshly created body-map
// entry. Deterministic across rebuilds of the same document: the sequence
// resets with each RebuildResult and features are evaluated in order.
func (res *RebuildResult) newBodyEntry(body kernel.BodyID, name, color string) BodyEntry {
	if name == "" {
		name = fmt.Sprintf("Body%d", res.bodySeq+1)
	}
	if color == "" {
		color = bodyPalette[res.bodySeq%len(bodyPalette)]
	}
	res.bodySeq++
	return BodyEntry{BodyID: body, Name: name, Color: color}
}

// Engine runs rebuilds against one GeometryKernel. It holds no document
// state itself; every call to Rebuild is a pure function of the snapshot
// passed in and the kernel it is bound to.
type Engine struct {
	kernel kernel.GeometryKernel
	logger *slog.Logger
}

// New returns an Engine bound to k.
func New(k kernel.GeometryKernel, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{kernel: k, logger: logger}
}

// Kernel returns the GeometryKernel this engine rebuilds against, so callers
// with a body id from the last RebuildResult (e.g. an export request) can
// invoke kernel operations directly without the engine re-exposing every
// kernel method itself.
func (e *Engine) Kernel() kernel.GeometryKernel {
	return e.kernel
}

// Rebuild walks snap.FeatureOrder once, in order, dispatching every feature.
func (e *Engine) Rebuild(snap *types.DocSnapshot) *RebuildResult {
	ctx, span := rebuildTracer.Start(context.Background(), "rebuild.run",
		trace.WithAttributes(attribute.Int("paramforge.feature_count", len(snap.FeatureOrder))))
	start := time.Now()
	defer func() {
		rebuildMetrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()

	res := &RebuildResult{
		Bodies:             map[types.ID]BodyEntry{},
		Meshes:             map[types.ID]*kernel.Mesh{},
		ReferenceIndex:     refindex.NewIndex(),
		FeatureStatus:      map[types.ID]types.FeatureStatus{},
		SketchSolveResults: map[types.ID]*sketch.SolveResult{},
		Frames:             map[types.ID]types.Frame{},
	}

	gateIdx := -1
	if snap.State.RebuildGate != nil {
		gateIdx = snap.IndexOf(*snap.State.RebuildGate)
	}

	for i, id := range snap.FeatureOrder {
		f := snap.FeaturesByID[id]

		if gateIdx >= 0 && i > gateIdx {
			res.FeatureStatus[id] = types.StatusGated
			continue
		}
		if f.Suppressed {
			res.FeatureStatus[id] = types.StatusSuppressed
			continue
		}

		if err := e.dispatch(snap, f, res); err != nil {
			res.FeatureStatus[id] = types.StatusError
			res.Errors = append(res.Errors, asBuildError(id, err))
			continue
		}
		res.FeatureStatus[id] = types.StatusComputed
	}

	rebuildMetrics.runs.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int("paramforge.body_count", len(res.Bodies)),
		attribute.Int("paramforge.error_count", len(res.Errors)),
	)
	if len(res.Errors) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d feature(s) failed to build", len(res.Errors)))
	}

	e.logger.Debug("rebuild complete",
		"featureCount", len(snap.FeatureOrder),
		"bodyCount", len(res.Bodies),
		"errorCount", len(res.Errors))

	return res
}

func asBuildError(id types.ID, err error) *types.BuildError {
	if be, ok := err.(*types.BuildError); ok {
		return be
	}
	return types.NewBuildError(id, types.CodeBuildError, "%v", err)
}

func (e *Engine) dispatch(snap *types.DocSnapshot, f types.Feature, res *RebuildResult) error {
	switch f.Type {
	case types.FeatureOrigin:
		res.Frames[f.ID] = types.Frame{Normal: [3]float64{0, 0, 1}, XDir: [3]float64{1, 0, 0}, YDir: [3]float64{0, 1, 0}}
		return nil

	case types.FeaturePlane:
		return e.resolvePlane(snap, f, res)

	case types.FeatureAxis:
		return e.resolveAxis(snap, f, res)

	case types.FeatureSketch:
		return e.solveSketch(f, res)

	case types.FeatureExtrude:
		return e.runExtrude(snap, f, res)

	case types.FeatureRevolve:
		return e.runRevolve(snap, f, res)

	case types.FeatureBoolean:
		return e.runBoolean(f, res)

	default:
		return types.NewBuildError(f.ID, types.CodeBuildError, "unknown feature kind %q", f.Type)
	}
}

// parseFaceRef parses the shallow face reference grammar
// "face:<featureId>:<faceIndex>" used by user-facing selections (an onFace
// plane's faceRef, an extrude's extentRef, a sketch hosted on a body face).
func parseFaceRef(ref string) (types.ID, int, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 || parts[0] != "face" || parts[1] == "" {
		return "", 0, fmt.Errorf("malformed face reference %q", ref)
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("malformed face index in %q", ref)
	}
	return types.ID(parts[1]), idx, nil
}

// resolveFacePlane resolves a shallow face reference against the bodies this
// rebuild has produced so far, returning the full plane frame of that face.
// A reference to a body that doesn't exist yet (a forward reference, which
// featureOrder's linearity makes invalid) or to a face index the body
// doesn't have fails with INVALID_REFERENCE.
func resolveFacePlane(owner types.ID, ref string, bodies map[types.ID]BodyEntry, k kernel.GeometryKernel) (kernel.Frame, error) {
	featureID, faceIndex, err := parseFaceRef(ref)
	if err != nil {
		return kernel.Frame{}, types.NewBuildError(owner, types.CodeInvalidReference, "%v", err)
	}
	entry, ok := bodies[featureID]
	if !ok {
		return kernel.Frame{}, types.NewBuildError(owner, types.CodeInvalidReference, "face reference %s names body %s, which is not in the body map", ref, featureID)
	}
	plane, ok := k.GetFacePlane(entry.BodyID, faceIndex)
	if !ok {
		return kernel.Frame{}, types.NewBuildError(owner, types.CodeInvalidReference, "body %s has no face %d", featureID, faceIndex)
	}
	return *plane, nil
}

// resolvePlane caches a world-space frame for every plane definition kind.
// Datum, offsetPlane, and axisAngle resolve from frames computed earlier
// this rebuild; offsetFace and onFace resolve live through the body map and
// GetFacePlane. The point-selection kinds (threePoints, axisPoint,
// sketchPoints, sketchLinePoint) carry their defining geometry only as the
// frame the editor computed and cached when the plane was authored — the
// point selections themselves are not part of the persisted definition — so
// they resolve from that cached frame and error if it is absent.
func (e *Engine) resolvePlane(snap *types.DocSnapshot, f types.Feature, res *RebuildResult) error {
	p := f.Plane
	switch p.Kind {
	case types.PlaneDefDatum:
		res.Frames[f.ID] = datumFrame(p.Role)
		return nil

	case types.PlaneDefOffsetPlane:
		base, ok := res.Frames[p.BasePlaneID]
		if !ok {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "offset plane base %s not yet resolved", p.BasePlaneID)
		}
		res.Frames[f.ID] = offsetFrame(base, p.Distance)
		return nil

	case types.PlaneDefOnFace:
		fr, err := resolveFacePlane(f.ID, p.FaceRef, res.Bodies, e.kernel)
		if err != nil {
			return err
		}
		res.Frames[f.ID] = fromKernelFrame(fr)
		return nil

	case types.PlaneDefOffsetFace:
		fr, err := resolveFacePlane(f.ID, p.FaceRef, res.Bodies, e.kernel)
		if err != nil {
			return err
		}
		res.Frames[f.ID] = offsetFrame(fromKernelFrame(fr), p.Distance)
		return nil

	case types.PlaneDefAxisAngle:
		base, ok := res.Frames[p.BasePlaneRef]
		axis, okAxis := res.Frames[p.AxisRef]
		if !ok || !okAxis {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "axis-angle plane references unresolved base/axis")
		}
		res.Frames[f.ID] = rotateAboutAxis(base, axis.Normal, p.Angle*math.Pi/180)
		return nil

	case types.PlaneDefThreePoints, types.PlaneDefAxisPoint, types.PlaneDefSketchPts, types.PlaneDefSketchLine:
		if p.Computed == nil {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "plane %s (%s) has no cached frame to resolve from", f.ID, p.Kind)
		}
		res.Frames[f.ID] = *p.Computed
		return nil

	default:
		return types.NewBuildError(f.ID, types.CodeInvalidReference, "unknown plane kind %q", p.Kind)
	}
}

// resolveAxis mirrors resolvePlane: datum and sketchLine resolve from this
// rebuild's own state, surfaceNormal resolves live through the body map, and
// twoPoints/edge resolve from the cached origin/direction the editor wrote
// when the axis was authored.
func (e *Engine) resolveAxis(snap *types.DocSnapshot, f types.Feature, res *RebuildResult) error {
	a := f.Axis
	switch a.Kind {
	case types.AxisDefDatum:
		res.Frames[f.ID] = datumAxisFrame(a.Role)
		return nil
	case types.AxisDefSketchLine:
		if _, ok := res.SketchSolveResults[a.SketchID]; !ok {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "axis references sketch %s not yet solved", a.SketchID)
		}
		sk := snap.FeaturesByID[a.SketchID]
		if sk.Sketch == nil {
			return types.NewBuildError(f.ID, types.CodeSketchNotFound, "sketch %s not found", a.SketchID)
		}
		line, ok := sk.Sketch.Data.EntitiesByID[a.LineID]
		if !ok {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "axis line %s not found in sketch %s", a.LineID, a.SketchID)
		}
		start := sk.Sketch.Data.PointsByID[line.Start]
		end := sk.Sketch.Data.PointsByID[line.End]
		res.Frames[f.ID] = lineAxisFrame(start, end)
		return nil
	case types.AxisDefSurfaceNorm:
		fr, err := resolveFacePlane(f.ID, a.FaceRef, res.Bodies, e.kernel)
		if err != nil {
			return err
		}
		res.Frames[f.ID] = types.Frame{Origin: fr.Origin, Normal: fr.Normal}
		return nil
	case types.AxisDefTwoPoints, types.AxisDefEdge:
		if a.Origin == nil || a.Direction == nil {
			return types.NewBuildError(f.ID, types.CodeInvalidReference, "axis %s (%s) has no cached origin/direction to resolve from", f.ID, a.Kind)
		}
		res.Frames[f.ID] = types.Frame{Origin: *a.Origin, Normal: *a.Direction}
		return nil
	default:
		return types.NewBuildError(f.ID, types.CodeInvalidReference, "unknown axis kind %q", a.Kind)
	}
}

func (e *Engine) solveSketch(f types.Feature, res *RebuildResult) error {
	plane, err := e.resolveSketchPlane(f, res)
	if err != nil {
		return err
	}
	result, err := sketch.Solve(e.kernel, plane, f.Sketch.Data)
	if err != nil {
		return types.NewBuildError(f.ID, types.CodeBuildError, "sketch solve failed: %v", err)
	}
	result.SketchID = f.ID
	res.SketchSolveResults[f.ID] = result
	// An inconsistent or redundant solve is surfaced on the SolveResult only;
	// the sketch keeps whatever coordinates the solver produced and downstream
	// features keep evaluating against them.
	return nil
}

func (e *Engine) resolveSketchPlane(f types.Feature, res *RebuildResult) (kernel.Frame, error) {
	return ResolveSketchPlane(f, res.Frames, res.Bodies, e.kernel)
}

// ResolveSketchPlane resolves a sketch feature's host plane against the
// frames and bodies an earlier evaluation produced: a plane feature's frame,
// a body face (via the shallow "face:<featureId>:<faceIndex>" grammar and
// GetFacePlane), or an explicit custom frame. Exported so ad-hoc
// extrude/revolve previews against a throwaway kernel session can resolve a
// sketch's plane from the last full rebuild's output without going through
// Rebuild again.
func ResolveSketchPlane(f types.Feature, frames map[types.ID]types.Frame, bodies map[types.ID]BodyEntry, k kernel.GeometryKernel) (kernel.Frame, error) {
	ref := f.Sketch.Plane
	switch ref.Kind {
	case types.SketchPlaneFeatureID:
		fr, ok := frames[ref.PlaneFeatureID]
		if !ok {
			return kernel.Frame{}, types.NewBuildError(f.ID, types.CodeInvalidReference, "sketch plane %s not yet resolved", ref.PlaneFeatureID)
		}
		return toKernelFrame(fr), nil
	case types.SketchPlaneFaceRef:
		return resolveFacePlane(f.ID, ref.FaceRef, bodies, k)
	case types.SketchPlaneCustom:
		if ref.Custom == nil {
			return kernel.Frame{}, types.NewBuildError(f.ID, types.CodeInvalidReference, "sketch has custom plane kind but no custom frame")
		}
		return toKernelFrame(*ref.Custom), nil
	default:
		return kernel.Frame{}, types.NewBuildError(f.ID, types.CodeInvalidReference, "unknown sketch plane kind %q", ref.Kind)
	}
}

func (e *Engine) runExtrude(snap *types.DocSnapshot, f types.Feature, res *RebuildResult) error {
	ext := f.Extrude
	sketchResult, ok := res.SketchSolveResults[ext.SketchID]
	if !ok {
		return types.NewBuildError(f.ID, types.CodeSketchNotFound, "extrude %s: sketch %s has not been solved", f.ID, ext.SketchID)
	}
	if sketchResult.Profile == nil {
		return types.NewBuildError(f.ID, types.CodeNoClosedProfile, "extrude %s: sketch %s has no closed profile", f.ID, ext.SketchID)
	}

	dist, err := e.resolveExtrudeDistance(f.ID, ext, res)
	if err != nil {
		return err
	}
	if ext.Direction == types.DirReverse {
		dist = -dist
	}

	bodyID, err := e.kernel.Extrude(sketchResult.Profile, kernel.ExtrudeOpts{Distance: dist, Source: kernel.FeatureTag(f.ID)})
	if err != nil {
		return wrapKernelErr(f.ID, err)
	}

	return e.composeBody(f.ID, ext.Op, ext.MergeScope, ext.TargetBodies, bodyID, ext.ResultBodyName, ext.ResultBodyColor, res)
}

func (e *Engine) resolveExtrudeDistance(id types.ID, ext *types.ExtrudeDef, res *RebuildResult) (float64, error) {
	switch ext.Extent {
	case types.ExtentBlind:
		if ext.Distance == nil {
			return 0, types.NewBuildError(id, types.CodeInvalidReference, "blind extrude missing distance")
		}
		return *ext.Distance, nil
	case types.ExtentThroughAll:
		return throughAllDistance, nil
	case types.ExtentToFace, types.ExtentToVertex:
		// The distance to the target face's plane along its own normal is
		// used as the extrude distance regardless of whether the swept
		// profile's footprint fully covers that face. Clamping to the
		// overlapping region would require a real solid intersection, so
		// the engine extrudes the full distance and leaves footprint
		// mismatches to a later boolean step.
		if _, _, err := parseFaceRef(ext.ExtentRef); err == nil {
			plane, perr := resolveFacePlane(id, ext.ExtentRef, res.Bodies, e.kernel)
			if perr != nil {
				return 0, perr
			}
			return math.Abs(plane.Origin[2]), nil
		}
		// Deep reference strings from the reference index resolve as well.
		face, ok := res.ReferenceIndex.ResolveFace(refindex.FaceRef(ext.ExtentRef))
		if !ok {
			return 0, types.NewBuildError(id, types.CodeInvalidReference, "extentRef %s does not resolve to a known face", ext.ExtentRef)
		}
		return math.Abs(face.Centroid[2]), nil
	default:
		return 0, types.NewBuildError(id, types.CodeInvalidReference, "unknown extrude extent %q", ext.Extent)
	}
}

func (e *Engine) runRevolve(snap *types.DocSnapshot, f types.Feature, res *RebuildResult) error {
	rev := f.Revolve
	if rev.AngleDeg <= 0 || rev.AngleDeg > 360 {
		return types.NewBuildError(f.ID, types.CodeBuildError, "revolve angle %g is outside (0, 360]", rev.AngleDeg)
	}
	sketchResult, ok := res.SketchSolveResults[rev.SketchID]
	if !ok {
		return types.NewBuildError(f.ID, types.CodeSketchNotFound, "revolve %s: sketch %s has not been solved", f.ID, rev.SketchID)
	}
	if sketchResult.Profile == nil {
		return types.NewBuildError(f.ID, types.CodeNoClosedProfile, "revolve %s: sketch %s has no closed profile", f.ID, rev.SketchID)
	}

	sk := snap.FeaturesByID[rev.SketchID]
	axisLine, ok := sk.Sketch.Data.EntitiesByID[rev.AxisID]
	if !ok {
		return types.NewBuildError(f.ID, types.CodeInvalidReference, "revolve axis %s not found in sketch %s", rev.AxisID, rev.SketchID)
	}
	start := sk.Sketch.Data.PointsByID[axisLine.Start]
	end := sk.Sketch.Data.PointsByID[axisLine.End]

	plane := sketchResult.Profile.Plane
	axisOrigin := planeToWorld(plane, start.X, start.Y)
	axisEnd := planeToWorld(plane, end.X, end.Y)
	axisDir := normalize(sub3(axisEnd, axisOrigin))

	bodyID, err := e.kernel.Revolve(sketchResult.Profile, kernel.RevolveOpts{
		AxisOrigin:    axisOrigin,
		AxisDirection: axisDir,
		AngleRad:      rev.AngleDeg * math.Pi / 180,
		Source:        kernel.FeatureTag(f.ID),
	})
	if err != nil {
		return wrapKernelErr(f.ID, err)
	}

	return e.composeBody(f.ID, rev.Op, rev.MergeScope, rev.TargetBodies, bodyID, rev.ResultBodyName, rev.ResultBodyColor, res)
}

// composeBody applies an add/cut feature's merge policy against the bodies
// accumulated so far.
func (e *Engine) composeBody(id types.ID, op types.ExtrudeOp, scope types.MergeScope, targets []types.ID, newBody kernel.BodyID, name, color string, res *RebuildResult) error {
	if op == types.OpCut {
		// A cut against an empty body map is a no-op, not an error.
		if len(res.Bodies) == 0 {
			e.kernel.DeleteBody(newBody)
			return nil
		}
		victims := e.selectTargets(scope, targets, res)
		if len(victims) == 0 {
			e.kernel.DeleteBody(newBody)
			return types.NewBuildError(id, types.CodeBuildError, "cut feature %s has no target body to subtract from", id)
		}
		var lastErr error
		succeeded := 0
		for _, key := range victims {
			entry := res.Bodies[key]
			result, err := e.kernel.Subtract(entry.BodyID, newBody)
			if err != nil {
				// A failed cut leaves the pre-existing body untouched
				// rather than discarding it, so one bad feature doesn't
				// blank out a previously good body. Every target is still
				// attempted; only the last failure is escalated, and only
				// if nothing succeeded.
				lastErr = err
				continue
			}
			res.Bodies[key] = BodyEntry{BodyID: result, Name: entry.Name, Color: entry.Color}
			succeeded++
		}
		if succeeded == 0 && lastErr != nil {
			return wrapKernelErr(id, lastErr)
		}
		return nil
	}

	switch scope {
	case types.MergeNew:
		res.Bodies[id] = res.newBodyEntry(newBody, name, color)
		return nil
	case types.MergeSpecific:
		return e.mergeInto(id, targets, newBody, name, color, res)
	default: // auto
		keys := make([]types.ID, 0, len(res.Bodies))
		for k := range res.Bodies {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		return e.mergeInto(id, keys, newBody, name, color, res)
	}
}

func (e *Engine) selectTargets(scope types.MergeScope, targets []types.ID, res *RebuildResult) []types.ID {
	if scope == types.MergeSpecific {
		var out []types.ID
		for _, t := range targets {
			if _, ok := res.Bodies[t]; ok {
				out = append(out, t)
			}
		}
		return out
	}
	keys := make([]types.ID, 0, len(res.Bodies))
	for k := range res.Bodies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// mergeInto unions newBody with every surviving body named in candidates
// that the kernel reports as geometrically overlapping, keeping the
// feature-id key of the first candidate that merges.
func (e *Engine) mergeInto(id types.ID, candidates []types.ID, newBody kernel.BodyID, name, color string, res *RebuildResult) error {
	current := newBody
	mergedKey := id
	keepName, keepColor := "", ""
	merged := false
	for _, candidate := range candidates {
		entry, ok := res.Bodies[candidate]
		if !ok {
			continue
		}
		result, err := e.kernel.Union(entry.BodyID, current)
		if err != nil {
			continue // not overlapping; leave both bodies as they are
		}
		current = result
		delete(res.Bodies, candidate)
		if !merged {
			// The first absorbed body supplies the surviving entry's
			// identity, so merging into Body1 doesn't rename or re-key it.
			mergedKey = candidate
			keepName, keepColor = entry.Name, entry.Color
		}
		merged = true
	}
	if merged {
		if name == "" {
			name = keepName
		}
		if color == "" {
			color = keepColor
		}
		res.Bodies[mergedKey] = BodyEntry{BodyID: current, Name: name, Color: color}
		return nil
	}
	res.Bodies[mergedKey] = res.newBodyEntry(current, name, color)
	return nil
}

func (e *Engine) runBoolean(f types.Feature, res *RebuildResult) error {
	b := f.Boolean
	target, okT := res.Bodies[b.Target]
	tool, okTool := res.Bodies[b.Tool]
	if !okT || !okTool {
		return types.NewBuildError(f.ID, types.CodeInvalidReference, "boolean %s: target or tool body not available", f.ID)
	}

	var (
		result kernel.BodyID
		err    error
	)
	switch b.Operation {
	case types.BoolUnion:
		result, err = e.kernel.Union(target.BodyID, tool.BodyID)
	case types.BoolSubtract:
		result, err = e.kernel.Subtract(target.BodyID, tool.BodyID)
	case types.BoolIntersect:
		result, err = e.kernel.Intersect(target.BodyID, tool.BodyID)
	default:
		return types.NewBuildError(f.ID, types.CodeBuildError, "unknown boolean operation %q", b.Operation)
	}
	if err != nil {
		// On failure both source bodies remain in the map untouched,
		// rather than being removed unconditionally.
		return wrapKernelErr(f.ID, err)
	}

	delete(res.Bodies, b.Tool)
	res.Bodies[b.Target] = BodyEntry{BodyID: result, Name: target.Name, Color: target.Color}
	return nil
}

func wrapKernelErr(id types.ID, err error) error {
	if ke, ok := err.(*kernel.KernelError); ok {
		return types.NewBuildError(id, types.CodeBuildError, "%s: %s", ke.Code, ke.Message)
	}
	return types.NewBuildError(id, types.CodeBuildError, "%v", err)
}

// Tessellate fills res.Meshes and res.ReferenceIndex for every surviving
// body, called once after the dispatch loop completes. Separated from
// dispatch so a feature that the loop marks gated/suppressed never pays for
// tessellation of a body it didn't touch.
func (e *Engine) Tessellate(res *RebuildResult) error {
	_, span := rebuildTracer.Start(context.Background(), "rebuild.tessellate",
		trace.WithAttributes(attribute.Int("paramforge.body_count", len(res.Bodies))))
	defer span.End()

	keys := make([]types.ID, 0, len(res.Bodies))
	for k := range res.Bodies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	failed := 0
	for _, key := range keys {
		entry := res.Bodies[key]
		mesh, err := e.kernel.Tessellate(entry.BodyID)
		if err != nil {
			span.RecordError(err)
			res.Errors = append(res.Errors, types.NewBuildError(key, types.CodeBuildError, "tessellate: %v", err))
			failed++
			continue
		}
		res.Meshes[key] = mesh
		refindex.Build(res.ReferenceIndex, mesh)
	}
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d tessellation failure(s)", failed))
	}
	return nil
}

// RebuildAndTessellate runs Rebuild followed by Tessellate, the entry point
// most callers (the worker, the CLI) actually want.
func (e *Engine) RebuildAndTessellate(snap *types.DocSnapshot) *RebuildResult {
	res := e.Rebuild(snap)
	if err := e.Tessellate(res); err != nil {
		res.Errors = append(res.Errors, types.NewBuildError("", types.CodeBuildError, "%v", err))
	}
	return res
}
