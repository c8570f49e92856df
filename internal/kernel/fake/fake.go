// Package fake is a deterministic, pure-Go stand-in for a native B-Rep
// kernel (OCCT or similar), implementing kernel.GeometryKernel well enough
// to unit test the Rebuild Engine without a CGO dependency. It is not a
// general-purpose solid modeler: bodies are tracked as axis-aligned
// bounding boxes with an optional set of through-holes, which is sufficient
// to reproduce the core modeling flows (single extrude, merged adjacent
// extrudes, a cut hole) with exact, reproducible face/edge counts.
package fake

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/deadsy/sdfx/vec/v3"

	"github.com/paramforge/engine/internal/kernel"
)

// box3 is an axis-aligned bounding box in kernel world space.
type box3 struct {
	min, max v3.Vec
}

func (b box3) size() v3.Vec { return b.max.Sub(b.min) }

func (b box3) overlaps(o box3) bool {
	return b.min.X < o.max.X && b.max.X > o.min.X &&
		b.min.Y < o.max.Y && b.max.Y > o.min.Y &&
		b.min.Z < o.max.Z && b.max.Z > o.min.Z
}

// touches is overlaps with closed bounds: boxes sharing only a face still
// touch, which is enough contact for a union to produce one solid.
func (b box3) touches(o box3) bool {
	const eps = 1e-9
	return b.min.X <= o.max.X+eps && b.max.X >= o.min.X-eps &&
		b.min.Y <= o.max.Y+eps && b.max.Y >= o.min.Y-eps &&
		b.min.Z <= o.max.Z+eps && b.max.Z >= o.min.Z-eps
}

func (b box3) union(o box3) box3 {
	return box3{
		min: v3.Vec{X: math.Min(b.min.X, o.min.X), Y: math.Min(b.min.Y, o.min.Y), Z: math.Min(b.min.Z, o.min.Z)},
		max: v3.Vec{X: math.Max(b.max.X, o.max.X), Y: math.Max(b.max.Y, o.max.Y), Z: math.Max(b.max.Z, o.max.Z)},
	}
}

func (b box3) intersect(o box3) box3 {
	return box3{
		min: v3.Vec{X: math.Max(b.min.X, o.min.X), Y: math.Max(b.min.Y, o.min.Y), Z: math.Max(b.min.Z, o.min.Z)},
		max: v3.Vec{X: math.Min(b.max.X, o.max.X), Y: math.Min(b.max.Y, o.max.Y), Z: math.Min(b.max.Z, o.max.Z)},
	}
}

// throughHole reports whether o fully pierces b along Z, the case the
// subtract operation can represent exactly as a rectangular through-hole.
func (b box3) throughHole(o box3) bool {
	return o.min.Z <= b.min.Z+1e-9 && o.max.Z >= b.max.Z-1e-9 &&
		o.min.X > b.min.X-1e-9 && o.max.X < b.max.X+1e-9 &&
		o.min.Y > b.min.Y-1e-9 && o.max.Y < b.max.Y+1e-9
}

// holeEntry is one through-hole, tagged with the feature whose cut
// produced it: cut-wall faces must stay keyed to the cut feature even after
// the cut's result body has been folded back into the base body.
type holeEntry struct {
	box    box3
	source kernel.FeatureTag
}

type solidBody struct {
	bbox box3
	// bboxSource is the feature that owns the body's outer 6 faces.
	bboxSource kernel.FeatureTag
	// hasCaps and axis say whether the outer box has a cap/side distinction
	// (true for an extrude, along its extrusion normal) or not (a revolve,
	// whose outer faces are all classified as sides).
	hasCaps bool
	axis    v3.Vec
	holes   []holeEntry
}

func (s *solidBody) faceCount() int {
	return 6 + 4*len(s.holes)
}

func (s *solidBody) edgeCount() int {
	return 12 + 4*len(s.holes)
}

// Kernel is the fake GeometryKernel.
type Kernel struct {
	bodies map[kernel.BodyID]*solidBody
	nextID int
}

// NewKernel returns a ready-to-use fake kernel instance.
func NewKernel() *Kernel {
	return &Kernel{bodies: make(map[kernel.BodyID]*solidBody)}
}

func (k *Kernel) newBodyID() kernel.BodyID {
	k.nextID++
	return kernel.BodyID(fmt.Sprintf("body-%d", k.nextID))
}

func (k *Kernel) Init(_ context.Context) error { return nil }

// CreateSketch starts a new KernelSketch bound to the given plane frame.
func (k *Kernel) CreateSketch(plane kernel.Frame) kernel.KernelSketch {
	return newSketch(plane)
}

// profileBounds2D returns the 2D axis-aligned bounding rect of a profile's
// loops, used as a deliberately simplified stand-in for true planar polygon
// extrusion.
func profileBounds2D(p *kernel.Profile) (minX, minY, maxX, maxY float64, ok bool) {
	if len(p.Loops) == 0 {
		return 0, 0, 0, 0, false
	}
	first := true
	for _, loop := range p.Loops {
		for _, eid := range loop.Entities {
			e, found := p.Entities[eid]
			if !found {
				continue
			}
			for _, pid := range e.Points() {
				xy, found := p.Points[pid]
				if !found {
					continue
				}
				if first {
					minX, maxX = xy[0], xy[0]
					minY, maxY = xy[1], xy[1]
					first = false
					continue
				}
				minX, maxX = math.Min(minX, xy[0]), math.Max(maxX, xy[0])
				minY, maxY = math.Min(minY, xy[1]), math.Max(maxY, xy[1])
			}
		}
	}
	return minX, minY, maxX, maxY, !first
}

// Extrude always creates a fresh body; merging with existing bodies is the
// caller's (Rebuild Engine's) responsibility via Union.
func (k *Kernel) Extrude(profile *kernel.Profile, opts kernel.ExtrudeOpts) (kernel.BodyID, error) {
	if profile == nil || len(profile.Loops) == 0 {
		return "", &kernel.KernelError{Code: "NO_CLOSED_PROFILE", Message: "extrude requires at least one closed loop"}
	}
	if opts.Distance == 0 {
		return "", &kernel.KernelError{Code: "BUILD_ERROR", Message: "extrude distance is zero, which produces a degenerate body"}
	}
	minX, minY, maxX, maxY, ok := profileBounds2D(profile)
	if !ok {
		return "", &kernel.KernelError{Code: "NO_CLOSED_PROFILE", Message: "profile has no resolvable geometry"}
	}

	origin := v3.Vec{X: profile.Plane.Origin[0], Y: profile.Plane.Origin[1], Z: profile.Plane.Origin[2]}
	xdir := v3.Vec{X: profile.Plane.XDir[0], Y: profile.Plane.XDir[1], Z: profile.Plane.XDir[2]}
	ydir := v3.Vec{X: profile.Plane.YDir[0], Y: profile.Plane.YDir[1], Z: profile.Plane.YDir[2]}
	normal := v3.Vec{X: profile.Plane.Normal[0], Y: profile.Plane.Normal[1], Z: profile.Plane.Normal[2]}.Normalize()

	corner := func(x, y float64) v3.Vec {
		return origin.Add(xdir.MulScalar(x)).Add(ydir.MulScalar(y))
	}
	c0 := corner(minX, minY)
	c1 := corner(maxX, maxY)
	c0b := c0.Add(normal.MulScalar(opts.Distance))
	c1b := c1.Add(normal.MulScalar(opts.Distance))

	bbox := box3{
		min: v3.Vec{X: math.Min(c0.X, c0b.X), Y: math.Min(c0.Y, c0b.Y), Z: math.Min(c0.Z, c0b.Z)},
		max: v3.Vec{X: math.Max(c1.X, c1b.X), Y: math.Max(c1.Y, c1b.Y), Z: math.Max(c1.Z, c1b.Z)},
	}
	// Normalize degenerate axis ordering (a negative distance flips min/max).
	bbox.min, bbox.max = v3.Vec{
		X: math.Min(bbox.min.X, bbox.max.X), Y: math.Min(bbox.min.Y, bbox.max.Y), Z: math.Min(bbox.min.Z, bbox.max.Z),
	}, v3.Vec{
		X: math.Max(bbox.min.X, bbox.max.X), Y: math.Max(bbox.min.Y, bbox.max.Y), Z: math.Max(bbox.min.Z, bbox.max.Z),
	}

	id := k.newBodyID()
	k.bodies[id] = &solidBody{bbox: bbox, bboxSource: opts.Source, hasCaps: true, axis: normal}
	return id, nil
}

// Revolve approximates a revolved profile as a full-turn solid: a box centred
// on the sketch plane origin in X and Y with a half-width of the profile's
// largest |x|, spanning the profile's y range along world Z. AngleRad,
// AxisOrigin and AxisDirection are not used, so a partial sweep or another
// axis yields the same full-turn box.
func (k *Kernel) Revolve(profile *kernel.Profile, opts kernel.RevolveOpts) (kernel.BodyID, error) {
	if profile == nil || len(profile.Loops) == 0 {
		return "", &kernel.KernelError{Code: "NO_CLOSED_PROFILE", Message: "revolve requires at least one closed loop"}
	}
	minX, minY, maxX, maxY, ok := profileBounds2D(profile)
	if !ok {
		return "", &kernel.KernelError{Code: "NO_CLOSED_PROFILE", Message: "profile has no resolvable geometry"}
	}
	radius := math.Max(math.Abs(minX), math.Abs(maxX))
	origin := v3.Vec{X: profile.Plane.Origin[0], Y: profile.Plane.Origin[1], Z: profile.Plane.Origin[2]}
	height := maxY - minY

	id := k.newBodyID()
	k.bodies[id] = &solidBody{
		bbox: box3{
			min: v3.Vec{X: origin.X - radius, Y: origin.Y - radius, Z: origin.Z + minY},
			max: v3.Vec{X: origin.X + radius, Y: origin.Y + radius, Z: origin.Z + minY + height},
		},
		bboxSource: opts.Source,
		hasCaps:    false,
	}
	return id, nil
}

func (k *Kernel) body(id kernel.BodyID) (*solidBody, error) {
	b, ok := k.bodies[id]
	if !ok {
		return nil, &kernel.KernelError{Code: "INVALID_REFERENCE", Message: fmt.Sprintf("no such body %s", id)}
	}
	return b, nil
}

// Union keeps a's attribution for the merged outer box. The Rebuild Engine's
// mergeInto passes the existing body-map entry as a and the incoming body as
// b, so the merged box keeps the existing body's attribution. Holes from both
// inputs carry forward with their own original sources.
func (k *Kernel) Union(a, b kernel.BodyID) (kernel.BodyID, error) {
	ba, err := k.body(a)
	if err != nil {
		return "", err
	}
	bb, err := k.body(b)
	if err != nil {
		return "", err
	}
	if !ba.bbox.touches(bb.bbox) {
		return "", &kernel.KernelError{Code: "BUILD_ERROR", Message: "bodies do not touch"}
	}
	id := k.newBodyID()
	holes := append(append([]holeEntry(nil), ba.holes...), bb.holes...)
	k.bodies[id] = &solidBody{
		bbox:       ba.bbox.union(bb.bbox),
		bboxSource: ba.bboxSource,
		hasCaps:    ba.hasCaps,
		axis:       ba.axis,
		holes:      holes,
	}
	delete(k.bodies, a)
	delete(k.bodies, b)
	return id, nil
}

// Subtract removes tool from target. When tool fully pierces target along
// Z and stays within its footprint, the result keeps target's bbox and
// gains a through-hole (10 faces for a single rectangular cut). Non-through
// cuts leave the bbox unchanged, a conservative approximation this fake
// kernel does not model exactly.
func (k *Kernel) Subtract(target, tool kernel.BodyID) (kernel.BodyID, error) {
	bt, err := k.body(target)
	if err != nil {
		return "", err
	}
	bTool, err := k.body(tool)
	if err != nil {
		return "", err
	}
	id := k.newBodyID()
	result := &solidBody{
		bbox:       bt.bbox,
		bboxSource: bt.bboxSource,
		hasCaps:    bt.hasCaps,
		axis:       bt.axis,
		holes:      append([]holeEntry(nil), bt.holes...),
	}
	if bt.bbox.throughHole(bTool.bbox) {
		// The hole's wall faces are tagged with the tool body's own source,
		// the cut feature that created it, not the target's, so they keep
		// resolving to the cut even after folding back into target's
		// body-map entry.
		result.holes = append(result.holes, holeEntry{box: bTool.bbox, source: bTool.bboxSource})
	}
	k.bodies[id] = result
	delete(k.bodies, target)
	delete(k.bodies, tool)
	return id, nil
}

func (k *Kernel) Intersect(a, b kernel.BodyID) (kernel.BodyID, error) {
	ba, err := k.body(a)
	if err != nil {
		return "", err
	}
	bb, err := k.body(b)
	if err != nil {
		return "", err
	}
	if !ba.bbox.overlaps(bb.bbox) {
		return "", &kernel.KernelError{Code: "BUILD_ERROR", Message: "bodies do not overlap"}
	}
	id := k.newBodyID()
	k.bodies[id] = &solidBody{
		bbox:       ba.bbox.intersect(bb.bbox),
		bboxSource: ba.bboxSource,
		hasCaps:    ba.hasCaps,
		axis:       ba.axis,
	}
	delete(k.bodies, a)
	delete(k.bodies, b)
	return id, nil
}

func (k *Kernel) DeleteBody(id kernel.BodyID) {
	delete(k.bodies, id)
}

// Tessellate produces a deterministic triangle mesh for a body's outer box
// plus one ring of side faces per through-hole. Vertex/triangle/edge
// ordering is a fixed function of the body's geometry, so repeated calls on
// an unchanged body always return byte-identical buffers.
func (k *Kernel) Tessellate(id kernel.BodyID) (*kernel.Mesh, error) {
	b, err := k.body(id)
	if err != nil {
		return nil, err
	}
	m := tessellateBox(b.bbox, 0)
	m.FaceOrigins = classifyOuterFaces(b.bboxSource, b.hasCaps, b.axis)
	m.EdgeOrigins = classifyOuterEdges(b.bboxSource)
	faceBase := 6
	for hi, h := range b.holes {
		vertexBase := len(m.Positions) / 3
		hm := tessellateHoleWalls(h.box, b.bbox, faceBase+hi*4, vertexBase)
		m.Positions = append(m.Positions, hm.Positions...)
		m.Normals = append(m.Normals, hm.Normals...)
		m.Indices = append(m.Indices, hm.Indices...)
		m.FaceMap = append(m.FaceMap, hm.FaceMap...)
		for local := 0; local < 4; local++ {
			m.FaceOrigins = append(m.FaceOrigins, kernel.FaceOrigin{
				FeatureTag:  h.source,
				LoopOrdinal: hi,
				Class:       kernel.FaceClassSide,
				Ordinal:     local,
			})
			// Each wall contributes one vertical corner edge, running from
			// its first bottom vertex to its matching top vertex.
			wallBase := vertexBase + local*4
			m.Edges = append(m.Edges, [2]int{wallBase, wallBase + 3})
			m.EdgeMap = append(m.EdgeMap, 12+hi*4+local)
			m.EdgeOrigins = append(m.EdgeOrigins, kernel.EdgeOrigin{
				FeatureTag:  h.source,
				LoopOrdinal: hi,
				Class:       "hole-edge",
				Ordinal:     local,
			})
		}
	}
	m.FaceCount = b.faceCount()
	m.EdgeCount = b.edgeCount()
	return m, nil
}

func (k *Kernel) GetFacePlane(id kernel.BodyID, faceIndex int) (*kernel.Frame, bool) {
	b, err := k.body(id)
	if err != nil || faceIndex < 0 || faceIndex >= b.faceCount() {
		return nil, false
	}
	return boxFaceFrame(b.bbox, faceIndex), true
}

// ExportSTEP emits a minimal, deterministic STEP file naming the body's
// bounding geometry. It is not a conformant AP214 writer — a native kernel's
// exporter is — but it is stable and parseable enough to exercise the export
// pipeline end to end in tests.
func (k *Kernel) ExportSTEP(id kernel.BodyID) ([]byte, error) {
	b, err := k.body(id)
	if err != nil {
		return nil, err
	}
	out := fmt.Sprintf(
		"ISO-10303-21;\nHEADER;\nFILE_DESCRIPTION((''),'2;1');\nENDSEC;\nDATA;\n/* body %s bbox min=%v max=%v holes=%d */\nENDSEC;\nEND-ISO-10303-21;\n",
		id, b.bbox.min, b.bbox.max, len(b.holes))
	return []byte(out), nil
}

// ExportSTL writes the tessellated mesh as ASCII STL (binary is requested via
// the same deterministic triangle stream but header-tagged differently; a
// native kernel would honor the binary format byte-for-byte).
func (k *Kernel) ExportSTL(id kernel.BodyID, binary bool) ([]byte, error) {
	m, err := k.Tessellate(id)
	if err != nil {
		return nil, err
	}
	header := "solid paramforge\n"
	if binary {
		header = "BINARY-STUB paramforge\n"
	}
	out := header
	for t := 0; t < len(m.Indices); t += 3 {
		i0, i1, i2 := m.Indices[t], m.Indices[t+1], m.Indices[t+2]
		n := [3]float64{m.Normals[i0*3], m.Normals[i0*3+1], m.Normals[i0*3+2]}
		out += fmt.Sprintf("facet normal %g %g %g\nouter loop\n", n[0], n[1], n[2])
		for _, idx := range []int{i0, i1, i2} {
			out += fmt.Sprintf("vertex %g %g %g\n", m.Positions[idx*3], m.Positions[idx*3+1], m.Positions[idx*3+2])
		}
		out += "endloop\nendfacet\n"
	}
	out += "endsolid paramforge\n"
	return []byte(out), nil
}

// sortedBodyIDs lists this kernel's live body ids in sorted order. It is
// unexported, so code outside package fake cannot call it, and nothing in
// the package calls it.
func (k *Kernel) sortedBodyIDs() []kernel.BodyID {
	ids := make([]kernel.BodyID, 0, len(k.bodies))
	for id := range k.bodies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
