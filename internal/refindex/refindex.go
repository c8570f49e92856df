// Package refindex implements the Reference Index Builder: it turns a
// tessellated body's faces and edges into persistent reference strings that
// stay stable across rebuilds and under small, unrelated document edits.
// Stability comes from deriving each reference from the face/edge's
// structural identity — the feature that produced it, which loop within
// that feature's result it belongs to, a geometric classifier (side,
// cap-top, cap-bottom), and a stable ordinal — never from its current
// position or orientation, which a dimension edit can move without changing
// what the face or edge fundamentally is.
package refindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/types"
)

// FaceRef and EdgeRef are the persistent strings stored on downstream
// features (e.g. an offsetFace plane's faceRef, an extrude's extentRef).
type FaceRef string
type EdgeRef string

// FaceEntry is one resolvable face.
type FaceEntry struct {
	Ref       FaceRef
	FeatureID types.ID
	FaceIndex int
	Normal    [3]float64
	Centroid  [3]float64
}

// EdgeEntry is one resolvable edge.
type EdgeEntry struct {
	Ref       EdgeRef
	FeatureID types.ID
	EdgeIndex int
	A, B      [3]float64
}

// Index is the full set of resolvable references produced by one rebuild.
type Index struct {
	Faces map[FaceRef]FaceEntry
	Edges map[EdgeRef]EdgeEntry
}

// NewIndex returns an empty index ready for Build.
func NewIndex() *Index {
	return &Index{Faces: map[FaceRef]FaceEntry{}, Edges: map[EdgeRef]EdgeEntry{}}
}

// roundGrid is the grid lexLess quantizes coordinates to when ordering an
// edge's endpoints, so floating-point noise well below the document's
// working tolerance doesn't flip which endpoint is reported as A. The
// reported centroids and endpoints themselves are not rounded.
const roundGrid = 1e-6

func round(v float64) float64 {
	return math.Round(v/roundGrid) * roundGrid
}

// Build derives every face/edge reference for one tessellated body from the
// structural attribution the kernel recorded on mesh.FaceOrigins/EdgeOrigins
// and merges them into idx. A body's mesh may carry faces attributed to more
// than one feature, e.g. a cut result whose wall faces came from the cut
// feature while its cap faces stayed with the base extrude, so attribution
// is read per face/edge, not passed once for the whole mesh.
func Build(idx *Index, mesh *kernel.Mesh) {
	faceCentroids := make(map[int][3]float64)
	faceNormals := make(map[int][3]float64)
	faceCounts := make(map[int]int)

	for t := 0; t < len(mesh.Indices); t += 3 {
		faceIdx := mesh.FaceMap[t/3]
		for _, vi := range mesh.Indices[t : t+3] {
			c := faceCentroids[faceIdx]
			c[0] += mesh.Positions[vi*3]
			c[1] += mesh.Positions[vi*3+1]
			c[2] += mesh.Positions[vi*3+2]
			faceCentroids[faceIdx] = c
			faceCounts[faceIdx]++
			faceNormals[faceIdx] = [3]float64{mesh.Normals[vi*3], mesh.Normals[vi*3+1], mesh.Normals[vi*3+2]}
		}
	}

	faceIndices := make([]int, 0, len(faceCentroids))
	for fi := range faceCentroids {
		faceIndices = append(faceIndices, fi)
	}
	sort.Ints(faceIndices)

	for _, fi := range faceIndices {
		if fi < 0 || fi >= len(mesh.FaceOrigins) {
			continue
		}
		n := faceCounts[fi]
		c := faceCentroids[fi]
		centroid := [3]float64{c[0] / float64(n), c[1] / float64(n), c[2] / float64(n)}
		normal := faceNormals[fi]
		origin := mesh.FaceOrigins[fi]
		ref := FaceRef(fmt.Sprintf("%s/f/%d/%s/%d", origin.FeatureTag, origin.LoopOrdinal, origin.Class, origin.Ordinal))
		idx.Faces[ref] = FaceEntry{
			Ref:       ref,
			FeatureID: types.ID(origin.FeatureTag),
			FaceIndex: fi,
			Normal:    normal,
			Centroid:  centroid,
		}
	}

	for ei, e := range mesh.Edges {
		if ei < 0 || ei >= len(mesh.EdgeOrigins) {
			continue
		}
		a := [3]float64{mesh.Positions[e[0]*3], mesh.Positions[e[0]*3+1], mesh.Positions[e[0]*3+2]}
		b := [3]float64{mesh.Positions[e[1]*3], mesh.Positions[e[1]*3+1], mesh.Positions[e[1]*3+2]}
		// Sort endpoints so the reported A/B pair is independent of the
		// edge's stored winding direction.
		if lexLess(b, a) {
			a, b = b, a
		}
		origin := mesh.EdgeOrigins[ei]
		ref := EdgeRef(fmt.Sprintf("%s/e/%d/%s/%d", origin.FeatureTag, origin.LoopOrdinal, origin.Class, origin.Ordinal))
		idx.Edges[ref] = EdgeEntry{
			Ref:       ref,
			FeatureID: types.ID(origin.FeatureTag),
			EdgeIndex: ei,
			A:         a,
			B:         b,
		}
	}
}

func lexLess(a, b [3]float64) bool {
	ra, rb := round(a[0]), round(b[0])
	if ra != rb {
		return ra < rb
	}
	ra, rb = round(a[1]), round(b[1])
	if ra != rb {
		return ra < rb
	}
	return round(a[2]) < round(b[2])
}

// ResolveFace looks up a face reference, reporting whether it is still
// live in this index: a reference to a deleted face resolves to not-found,
// never to a stale position.
func (idx *Index) ResolveFace(ref FaceRef) (FaceEntry, bool) {
	e, ok := idx.Faces[ref]
	return e, ok
}

// ResolveEdge looks up an edge reference.
func (idx *Index) ResolveEdge(ref EdgeRef) (EdgeEntry, bool) {
	e, ok := idx.Edges[ref]
	return e, ok
}
