package rebuild

import (
	"math"

	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/types"
)

// datumFrame returns the fixed world frame for one of the three canonical
// datum planes.
func datumFrame(role types.PlaneRole) types.Frame {
	switch role {
	case types.PlaneXY:
		return types.Frame{Normal: [3]float64{0, 0, 1}, XDir: [3]float64{1, 0, 0}, YDir: [3]float64{0, 1, 0}}
	case types.PlaneXZ:
		return types.Frame{Normal: [3]float64{0, -1, 0}, XDir: [3]float64{1, 0, 0}, YDir: [3]float64{0, 0, 1}}
	default: // PlaneYZ
		return types.Frame{Normal: [3]float64{1, 0, 0}, XDir: [3]float64{0, 1, 0}, YDir: [3]float64{0, 0, 1}}
	}
}

func datumAxisFrame(role types.AxisRole) types.Frame {
	switch role {
	case types.AxisX:
		return types.Frame{Normal: [3]float64{1, 0, 0}, XDir: [3]float64{0, 1, 0}, YDir: [3]float64{0, 0, 1}}
	case types.AxisY:
		return types.Frame{Normal: [3]float64{0, 1, 0}, XDir: [3]float64{0, 0, 1}, YDir: [3]float64{1, 0, 0}}
	default: // AxisZ
		return types.Frame{Normal: [3]float64{0, 0, 1}, XDir: [3]float64{1, 0, 0}, YDir: [3]float64{0, 1, 0}}
	}
}

// offsetFrame translates base along its own normal by distance.
func offsetFrame(base types.Frame, distance float64) types.Frame {
	out := base
	out.Origin = add3(base.Origin, scale3(base.Normal, distance))
	return out
}

// rotateAboutAxis rotates base's normal/xDir/yDir about axis (through
// base.Origin) by angleRad, via Rodrigues' rotation formula.
func rotateAboutAxis(base types.Frame, axis [3]float64, angleRad float64) types.Frame {
	axis = normalize(axis)
	rot := func(v [3]float64) [3]float64 {
		cosA, sinA := math.Cos(angleRad), math.Sin(angleRad)
		term1 := scale3(v, cosA)
		term2 := scale3(cross3(axis, v), sinA)
		term3 := scale3(axis, dot3(axis, v)*(1-cosA))
		return add3(add3(term1, term2), term3)
	}
	return types.Frame{
		Origin: base.Origin,
		Normal: rot(base.Normal),
		XDir:   rot(base.XDir),
		YDir:   rot(base.YDir),
	}
}

// lineAxisFrame builds a frame whose normal is the direction from start to
// end, used when an axis feature is derived from a sketch line.
func lineAxisFrame(start, end types.SketchPoint) types.Frame {
	dir := normalize([3]float64{end.X - start.X, end.Y - start.Y, 0})
	return types.Frame{Origin: [3]float64{start.X, start.Y, 0}, Normal: dir}
}

func toKernelFrame(f types.Frame) kernel.Frame {
	return kernel.Frame{Origin: f.Origin, Normal: f.Normal, XDir: f.XDir, YDir: f.YDir}
}

func fromKernelFrame(f kernel.Frame) types.Frame {
	return types.Frame{Origin: f.Origin, Normal: f.Normal, XDir: f.XDir, YDir: f.YDir}
}

// planeToWorld maps a 2D sketch-plane coordinate to world space.
func planeToWorld(f kernel.Frame, x, y float64) [3]float64 {
	o := f.Origin
	xd := f.XDir
	yd := f.YDir
	return add3(o, add3(scale3(xd, x), scale3(yd, y)))
}

func add3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale3(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(a [3]float64) [3]float64 {
	l := math.Sqrt(dot3(a, a))
	if l == 0 {
		return a
	}
	return scale3(a, 1/l)
}
