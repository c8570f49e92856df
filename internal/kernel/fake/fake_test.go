package fake

import (
	"math"
	"testing"

	"github.com/paramforge/engine/internal/kernel"
)

func planeXY() kernel.Frame {
	return kernel.Frame{
		Normal: [3]float64{0, 0, 1},
		XDir:   [3]float64{1, 0, 0},
		YDir:   [3]float64{0, 1, 0},
	}
}

func square(t *testing.T, sk kernel.KernelSketch, x0, y0, x1, y1 float64) *kernel.Profile {
	t.Helper()
	p1 := sk.AddPoint(x0, y0, kernel.PointOpts{})
	p2 := sk.AddPoint(x1, y0, kernel.PointOpts{})
	p3 := sk.AddPoint(x1, y1, kernel.PointOpts{})
	p4 := sk.AddPoint(x0, y1, kernel.PointOpts{})
	sk.AddLine(p1, p2, kernel.EntityOpts{})
	sk.AddLine(p2, p3, kernel.EntityOpts{})
	sk.AddLine(p3, p4, kernel.EntityOpts{})
	sk.AddLine(p4, p1, kernel.EntityOpts{})
	profile, ok := sk.ToProfile()
	if !ok {
		t.Fatalf("expected a closed profile for square (%v,%v)-(%v,%v)", x0, y0, x1, y1)
	}
	return profile
}

func TestExtrudeSimpleSquareProducesExpectedBBox(t *testing.T) {
	k := NewKernel()
	sk := k.CreateSketch(planeXY())
	profile := square(t, sk, 0, 0, 10, 10)

	bodyID, err := k.Extrude(profile, kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}
	b := k.bodies[bodyID]
	if b.bbox.max.Z != 5 || b.bbox.max.X != 10 || b.bbox.max.Y != 10 {
		t.Fatalf("unexpected bbox: %+v", b.bbox)
	}
	if got := b.faceCount(); got != 6 {
		t.Fatalf("faceCount = %d, want 6", got)
	}
}

func TestSubtractThroughHoleAddsFourFaces(t *testing.T) {
	k := NewKernel()

	outer := k.CreateSketch(planeXY())
	outerProfile := square(t, outer, 0, 0, 20, 20)
	baseID, err := k.Extrude(outerProfile, kernel.ExtrudeOpts{Distance: 10})
	if err != nil {
		t.Fatalf("Extrude base: %v", err)
	}

	hole := k.CreateSketch(planeXY())
	holeProfile := square(t, hole, 5, 5, 15, 15)
	holeID, err := k.Extrude(holeProfile, kernel.ExtrudeOpts{Distance: 10})
	if err != nil {
		t.Fatalf("Extrude hole: %v", err)
	}

	resultID, err := k.Subtract(baseID, holeID)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if got := k.bodies[resultID].faceCount(); got != 10 {
		t.Fatalf("faceCount = %d after through-hole cut, want 10", got)
	}
}

func TestUnionOfAdjacentBoxesMergesIntoOneBody(t *testing.T) {
	k := NewKernel()

	first := k.CreateSketch(planeXY())
	firstProfile := square(t, first, 0, 0, 10, 10)
	idA, err := k.Extrude(firstProfile, kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}

	second := k.CreateSketch(planeXY())
	secondProfile := square(t, second, 5, 0, 15, 10)
	idB, err := k.Extrude(secondProfile, kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}

	merged, err := k.Union(idA, idB)
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	if len(k.bodies) != 1 {
		t.Fatalf("expected exactly one surviving body, got %d", len(k.bodies))
	}
	if got := k.bodies[merged].bbox.max.X; got != 15 {
		t.Fatalf("merged bbox max.X = %v, want 15", got)
	}
}

func TestUnionOfDisjointBoxesFails(t *testing.T) {
	k := NewKernel()

	first := k.CreateSketch(planeXY())
	idA, err := k.Extrude(square(t, first, 0, 0, 10, 10), kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}
	second := k.CreateSketch(planeXY())
	idB, err := k.Extrude(square(t, second, 100, 0, 110, 10), kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}

	if _, err := k.Union(idA, idB); err == nil {
		t.Fatal("expected union of non-touching bodies to fail")
	}
	if len(k.bodies) != 2 {
		t.Fatalf("a failed union should leave both inputs alive, got %d bodies", len(k.bodies))
	}
}

func TestSketchSolveHorizontalConstraintAlignsY(t *testing.T) {
	k := NewKernel()
	sk := k.CreateSketch(planeXY())
	a := sk.AddPoint(0, 0, kernel.PointOpts{Fixed: true})
	b := sk.AddPoint(10, 3, kernel.PointOpts{})
	sk.AddConstraint(kernel.Constraint{Kind: "horizontal", P1: a, P2: b})

	if _, err := sk.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	_, y, _ := sk.GetPoint(b)
	if math.Abs(y) > 1e-6 {
		t.Fatalf("point b at y=%g, want ~0", y)
	}
}

func TestGetFacePlaneTopCapHasFullFrame(t *testing.T) {
	k := NewKernel()
	sk := k.CreateSketch(planeXY())
	bodyID, err := k.Extrude(square(t, sk, 0, 0, 10, 10), kernel.ExtrudeOpts{Distance: 5})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}

	plane, ok := k.GetFacePlane(bodyID, 5)
	if !ok {
		t.Fatal("expected face 5 (+Z cap) to resolve")
	}
	if plane.Origin[2] != 5 {
		t.Fatalf("cap origin z = %v, want 5", plane.Origin[2])
	}
	if plane.Normal != [3]float64{0, 0, 1} {
		t.Fatalf("cap normal = %v, want +Z", plane.Normal)
	}
	if plane.YDir == ([3]float64{}) {
		t.Fatal("expected the face frame to carry a YDir basis vector")
	}
	if _, ok := k.GetFacePlane(bodyID, 99); ok {
		t.Fatal("expected an out-of-range face index to fail")
	}
}

func TestTessellateProducesStableTriangleCount(t *testing.T) {
	k := NewKernel()
	sk := k.CreateSketch(planeXY())
	profile := square(t, sk, 0, 0, 4, 4)
	bodyID, err := k.Extrude(profile, kernel.ExtrudeOpts{Distance: 2})
	if err != nil {
		t.Fatalf("Extrude: %v", err)
	}
	m1, err := k.Tessellate(bodyID)
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}
	m2, err := k.Tessellate(bodyID)
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}
	if len(m1.Indices) != len(m2.Indices) {
		t.Fatalf("triangle count changed across calls: %d vs %d", len(m1.Indices), len(m2.Indices))
	}
	if m1.FaceCount != 6 {
		t.Fatalf("FaceCount = %d, want 6", m1.FaceCount)
	}
}
