package fake

import (
	"math"

	"github.com/deadsy/sdfx/vec/v3"

	"github.com/paramforge/engine/internal/kernel"
)

// boxCorner returns the i-th corner of a box, 0..7, in the fixed bit-order
// (x,y,z) so corner indexing is stable across calls.
func boxCorner(b box3, i int) [3]float64 {
	x := b.min.X
	if i&1 != 0 {
		x = b.max.X
	}
	y := b.min.Y
	if i&2 != 0 {
		y = b.max.Y
	}
	z := b.min.Z
	if i&4 != 0 {
		z = b.max.Z
	}
	return [3]float64{x, y, z}
}

// boxFaces lists the six outer faces of a box as (corner indices, outward
// normal), always in the same order so face indices are stable.
var boxFaces = []struct {
	corners [4]int
	normal  [3]float64
}{
	{[4]int{0, 4, 6, 2}, [3]float64{-1, 0, 0}}, // -X
	{[4]int{1, 3, 7, 5}, [3]float64{1, 0, 0}},  // +X
	{[4]int{0, 1, 5, 4}, [3]float64{0, -1, 0}}, // -Y
	{[4]int{2, 6, 7, 3}, [3]float64{0, 1, 0}},  // +Y
	{[4]int{0, 2, 3, 1}, [3]float64{0, 0, -1}}, // -Z
	{[4]int{4, 5, 7, 6}, [3]float64{0, 0, 1}},  // +Z
}

// tessellateBox emits a 24-vertex (4 per face, unshared across faces so each
// face gets a flat normal), 12-triangle mesh for one box, with FaceMap
// entries offset by faceIndexBase so a caller appending hole-wall faces can
// keep face indices contiguous.
func tessellateBox(b box3, faceIndexBase int) *kernel.Mesh {
	m := &kernel.Mesh{}
	for fi, face := range boxFaces {
		base := len(m.Positions) / 3
		for _, ci := range face.corners {
			p := boxCorner(b, ci)
			m.Positions = append(m.Positions, p[0], p[1], p[2])
			m.Normals = append(m.Normals, face.normal[0], face.normal[1], face.normal[2])
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
		m.FaceMap = append(m.FaceMap, faceIndexBase+fi, faceIndexBase+fi)
	}
	m.Edges, m.EdgeMap = boxEdges(b, 0)
	return m
}

// boxEdges lists a box's 12 edges as vertex-index pairs into a tessellateBox
// output. tessellateBox emits 4 unshared vertices per face (24 total), so
// each shared corner 0..7 is mapped to its first occurrence in that buffer;
// any occurrence works since they carry identical positions.
func boxEdges(b box3, edgeIndexBase int) ([][2]int, []int) {
	// First buffer vertex holding each corner: face -X emits corners
	// {0,4,6,2} as verts 0..3, face +X emits {1,3,7,5} as verts 4..7.
	cornerVert := [8]int{0, 4, 3, 5, 1, 7, 2, 6}
	var edges = [12][2]int{
		{0, 1}, {1, 3}, {3, 2}, {2, 0},
		{4, 5}, {5, 7}, {7, 6}, {6, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	out := make([][2]int, len(edges))
	em := make([]int, len(edges))
	for i, e := range edges {
		out[i] = [2]int{cornerVert[e[0]], cornerVert[e[1]]}
		em[i] = edgeIndexBase + i
	}
	return out, em
}

// tessellateHoleWalls emits the 4 inner wall faces a through-hole adds to a
// body, as a thin rectangular tube from the base box's -Z face to its +Z
// face.
func tessellateHoleWalls(hole, base box3, faceIndexBase int, vertexBase int) *kernel.Mesh {
	m := &kernel.Mesh{}
	z0, z1 := base.min.Z, base.max.Z
	corners := [4][2]float64{
		{hole.min.X, hole.min.Y},
		{hole.max.X, hole.min.Y},
		{hole.max.X, hole.max.Y},
		{hole.min.X, hole.max.Y},
	}
	for i := 0; i < 4; i++ {
		a := corners[i]
		bpt := corners[(i+1)%4]
		nx, ny := ny2(a, bpt)

		idx := vertexBase + len(m.Positions)/3
		m.Positions = append(m.Positions,
			a[0], a[1], z0,
			bpt[0], bpt[1], z0,
			bpt[0], bpt[1], z1,
			a[0], a[1], z1,
		)
		for j := 0; j < 4; j++ {
			m.Normals = append(m.Normals, nx, ny, 0)
		}
		m.Indices = append(m.Indices, idx, idx+2, idx+1, idx, idx+3, idx+2)
		m.FaceMap = append(m.FaceMap, faceIndexBase+i, faceIndexBase+i)
	}
	return m
}

// ny2 returns the inward-pointing 2D normal of the wall segment a->b (the
// hole's wall faces point into the hole, i.e. away from the removed solid).
func ny2(a, b [2]float64) (float64, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	// rotate -90deg and flip to point inward
	return -dy, dx
}

// classifyOuterFaces assigns each of a box's 6 outer faces (in boxFaces'
// fixed order) a FaceOrigin: the pair of faces whose world-axis-aligned
// normal is most parallel to axis are the caps (one cap-top, one
// cap-bottom); the rest are sides. Revolve bodies, which have no
// extrusion-normal notion of a cap, pass hasCaps=false and get all 6 faces
// classified as sides. Ordinal counts position within the class, in
// boxFaces' fixed order, so it is stable across rebuilds of the same
// body.
func classifyOuterFaces(source kernel.FeatureTag, hasCaps bool, axis v3.Vec) []kernel.FaceOrigin {
	classes := make([]kernel.FaceClass, len(boxFaces))
	if !hasCaps {
		for i := range classes {
			classes[i] = kernel.FaceClassSide
		}
	} else {
		capPair, bestDot := -1, -1.0
		for i, face := range boxFaces {
			d := math.Abs(face.normal[0]*axis.X + face.normal[1]*axis.Y + face.normal[2]*axis.Z)
			if d > bestDot {
				bestDot, capPair = d, i/2
			}
		}
		for i, face := range boxFaces {
			if i/2 != capPair {
				classes[i] = kernel.FaceClassSide
				continue
			}
			dot := face.normal[0]*axis.X + face.normal[1]*axis.Y + face.normal[2]*axis.Z
			if dot > 0 {
				classes[i] = kernel.FaceClassCapTop
			} else {
				classes[i] = kernel.FaceClassCapBottom
			}
		}
	}

	counts := map[kernel.FaceClass]int{}
	out := make([]kernel.FaceOrigin, len(boxFaces))
	for i, class := range classes {
		out[i] = kernel.FaceOrigin{FeatureTag: source, LoopOrdinal: 0, Class: class, Ordinal: counts[class]}
		counts[class]++
	}
	return out
}

// classifyOuterEdges tags a box's 12 outer edges, in boxEdges' fixed order,
// with the body's owning feature.
func classifyOuterEdges(source kernel.FeatureTag) []kernel.EdgeOrigin {
	out := make([]kernel.EdgeOrigin, 12)
	for i := range out {
		out[i] = kernel.EdgeOrigin{FeatureTag: source, LoopOrdinal: 0, Class: "box-edge", Ordinal: i}
	}
	return out
}

// boxFaceFrame returns the world-space frame of one of a body's faces, by
// face index in the same ordering tessellateBox uses. YDir completes the
// right-handed in-plane basis so callers hosting a sketch on the face can
// map 2D coordinates into world space.
func boxFaceFrame(b box3, faceIndex int) *kernel.Frame {
	if faceIndex < 0 || faceIndex >= len(boxFaces) {
		return nil
	}
	face := boxFaces[faceIndex]
	c0 := boxCorner(b, face.corners[0])
	c1 := boxCorner(b, face.corners[1])
	xdir := normalize3([3]float64{c1[0] - c0[0], c1[1] - c0[1], c1[2] - c0[2]})
	n := face.normal
	ydir := [3]float64{
		n[1]*xdir[2] - n[2]*xdir[1],
		n[2]*xdir[0] - n[0]*xdir[2],
		n[0]*xdir[1] - n[1]*xdir[0],
	}
	return &kernel.Frame{
		Origin: c0,
		Normal: n,
		XDir:   xdir,
		YDir:   ydir,
	}
}

func normalize3(v [3]float64) [3]float64 {
	l := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	if l == 0 {
		return v
	}
	inv := 1 / math.Sqrt(l)
	return [3]float64{v[0] * inv, v[1] * inv, v[2] * inv}
}
