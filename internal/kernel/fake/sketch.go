package fake

import (
	"fmt"
	"math"
	"sort"

	"github.com/paramforge/engine/internal/kernel"
)

// sketch is the fake kernel's KernelSketch. It implements a small iterative
// constraint relaxation solver: cheap, deterministic, and sufficient to
// exercise the Rebuild Engine's sketch-solve step without pulling in a real
// geometric constraint solver. It does not attempt redundancy/inconsistency
// diagnosis beyond what the relaxation pass can observe.
type sketch struct {
	plane kernel.Frame

	nextPoint int
	nextEnt   int

	points       map[kernel.Pid][2]float64
	fixed        map[kernel.Pid]bool
	entities     map[kernel.Eid]kernel.EntityRecord
	construction map[kernel.Eid]bool
	circles      map[kernel.Eid]float64 // entity id -> radius, for circle entities

	constraints []kernel.Constraint
	conflicted  bool
}

func newSketch(plane kernel.Frame) *sketch {
	return &sketch{
		plane:        plane,
		points:       make(map[kernel.Pid][2]float64),
		fixed:        make(map[kernel.Pid]bool),
		entities:     make(map[kernel.Eid]kernel.EntityRecord),
		construction: make(map[kernel.Eid]bool),
		circles:      make(map[kernel.Eid]float64),
	}
}

func (s *sketch) AddPoint(x, y float64, opts kernel.PointOpts) kernel.Pid {
	s.nextPoint++
	id := kernel.Pid(fmt.Sprintf("p%d", s.nextPoint))
	s.points[id] = [2]float64{x, y}
	s.fixed[id] = opts.Fixed
	return id
}

func (s *sketch) AddLine(a, b kernel.Pid, opts kernel.EntityOpts) kernel.Eid {
	s.nextEnt++
	id := kernel.Eid(fmt.Sprintf("e%d", s.nextEnt))
	s.entities[id] = kernel.EntityRecord{Kind: "line", Start: a, End: b}
	s.construction[id] = opts.Construction
	return id
}

func (s *sketch) AddArc(start, end, center kernel.Pid, _ bool, opts kernel.EntityOpts) kernel.Eid {
	s.nextEnt++
	id := kernel.Eid(fmt.Sprintf("e%d", s.nextEnt))
	s.entities[id] = kernel.EntityRecord{Kind: "arc", Start: start, End: end, Center: center}
	s.construction[id] = opts.Construction
	return id
}

func (s *sketch) AddCircle(cx, cy, r float64, opts kernel.EntityOpts) kernel.Eid {
	s.nextEnt++
	id := kernel.Eid(fmt.Sprintf("e%d", s.nextEnt))
	center := s.AddPoint(cx, cy, kernel.PointOpts{})
	s.entities[id] = kernel.EntityRecord{Kind: "circle", Center: center}
	s.construction[id] = opts.Construction
	s.circles[id] = r
	return id
}

// radiusOf reports an entity's radius regardless of whether it arrived as a
// genuine AddCircle entity or as an arc (the sketch adapter's encoding of
// a document circle: an arc whose start and end are the same synthesized
// edge point). Arc radius is read geometrically from center-to-start
// distance since an arc carries no stored radius field.
func (s *sketch) radiusOf(id kernel.Eid) (float64, bool) {
	e, ok := s.entities[id]
	if !ok {
		return 0, false
	}
	switch e.Kind {
	case "circle":
		r, ok := s.circles[id]
		return r, ok
	case "arc":
		c, p := s.get(e.Center), s.get(e.Start)
		return math.Hypot(p[0]-c[0], p[1]-c[1]), true
	default:
		return 0, false
	}
}

// setRadius applies a new radius to a circle or arc entity, moving the
// start point radially for an arc (moving its shared start/end point for
// the circle encoding, so the loop stays closed).
func (s *sketch) setRadius(id kernel.Eid, r float64) {
	e, ok := s.entities[id]
	if !ok {
		return
	}
	switch e.Kind {
	case "circle":
		s.circles[id] = r
	case "arc":
		c, p := s.get(e.Center), s.get(e.Start)
		dx, dy := p[0]-c[0], p[1]-c[1]
		d := math.Hypot(dx, dy)
		if d < 1e-12 {
			dx, dy, d = 1, 0, 1
		}
		s.move(e.Start, c[0]+dx/d*r, c[1]+dy/d*r)
	}
}

func (s *sketch) AddConstraint(c kernel.Constraint) {
	s.constraints = append(s.constraints, c)
}

// relax nudges every unfixed point toward satisfying each constraint in
// turn, for a fixed number of passes. This is Gauss-Seidel-style projection,
// not a general nonlinear solve, but it converges for the constraint
// combinations the sketch adapter actually emits.
func (s *sketch) relax() {
	const passes = 200
	for pass := 0; pass < passes; pass++ {
		for _, c := range s.constraints {
			s.project(c)
		}
	}
}

func (s *sketch) get(p kernel.Pid) [2]float64 { return s.points[p] }

func (s *sketch) move(p kernel.Pid, x, y float64) {
	if s.fixed[p] {
		return
	}
	s.points[p] = [2]float64{x, y}
}

func (s *sketch) project(c kernel.Constraint) {
	switch c.Kind {
	case "horizontal":
		a, b := s.get(c.P1), s.get(c.P2)
		avgY := (a[1] + b[1]) / 2
		s.move(c.P1, a[0], avgY)
		s.move(c.P2, b[0], avgY)
	case "vertical":
		a, b := s.get(c.P1), s.get(c.P2)
		avgX := (a[0] + b[0]) / 2
		s.move(c.P1, avgX, a[1])
		s.move(c.P2, avgX, b[1])
	case "coincident":
		a, b := s.get(c.P1), s.get(c.P2)
		mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
		s.move(c.P1, mx, my)
		s.move(c.P2, mx, my)
	case "fixed":
		// Nothing to project: a fixed point never moves, enforced by move().
	case "distance":
		a, b := s.get(c.P1), s.get(c.P2)
		dx, dy := b[0]-a[0], b[1]-a[1]
		d := math.Hypot(dx, dy)
		if d < 1e-12 {
			dx, dy, d = 1, 0, 1
		}
		want := c.Value
		mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
		ux, uy := dx/d, dy/d
		s.move(c.P1, mx-ux*want/2, my-uy*want/2)
		s.move(c.P2, mx+ux*want/2, my+uy*want/2)
	case "parallel", "perpendicular":
		l1, ok1 := s.entities[c.L1]
		l2, ok2 := s.entities[c.L2]
		if !ok1 || !ok2 {
			return
		}
		a1, b1 := s.get(l1.Start), s.get(l1.End)
		dx, dy := b1[0]-a1[0], b1[1]-a1[1]
		angle := math.Atan2(dy, dx)
		if c.Kind == "perpendicular" {
			angle += math.Pi / 2
		}
		a2, b2 := s.get(l2.Start), s.get(l2.End)
		length := math.Hypot(b2[0]-a2[0], b2[1]-a2[1])
		cx, cy := (a2[0]+b2[0])/2, (a2[1]+b2[1])/2
		ux, uy := math.Cos(angle), math.Sin(angle)
		s.move(l2.Start, cx-ux*length/2, cy-uy*length/2)
		s.move(l2.End, cx+ux*length/2, cy+uy*length/2)
	case "equalLength":
		l1, ok1 := s.entities[c.L1]
		l2, ok2 := s.entities[c.L2]
		if !ok1 || !ok2 {
			return
		}
		a1, b1 := s.get(l1.Start), s.get(l1.End)
		a2, b2 := s.get(l2.Start), s.get(l2.End)
		len1 := math.Hypot(b1[0]-a1[0], b1[1]-a1[1])
		len2 := math.Hypot(b2[0]-a2[0], b2[1]-a2[1])
		avg := (len1 + len2) / 2
		scaleLine := func(a, b [2]float64, pa, pb kernel.Pid, cur float64) {
			if cur < 1e-12 {
				return
			}
			cx, cy := (a[0]+b[0])/2, (a[1]+b[1])/2
			ux, uy := (b[0]-a[0])/cur, (b[1]-a[1])/cur
			s.move(pa, cx-ux*avg/2, cy-uy*avg/2)
			s.move(pb, cx+ux*avg/2, cy+uy*avg/2)
		}
		scaleLine(a1, b1, l1.Start, l1.End, len1)
		scaleLine(a2, b2, l2.Start, l2.End, len2)
	case "equalRadius":
		r1, ok1 := s.radiusOf(c.A1)
		r2, ok2 := s.radiusOf(c.A2)
		if !ok1 || !ok2 {
			return
		}
		avg := (r1 + r2) / 2
		s.setRadius(c.A1, avg)
		s.setRadius(c.A2, avg)
	case "symmetric":
		axis, ok := s.entities[c.AxisLine]
		if !ok {
			return
		}
		ax, ay := s.get(axis.Start), s.get(axis.End)
		a, b := s.get(c.P1), s.get(c.P2)
		ra := reflect(a, ax, ay)
		rb := reflect(b, ax, ay)
		mx, my := (ra[0]+b[0])/2, (ra[1]+b[1])/2
		s.move(c.P2, mx, my)
		mx2, my2 := (rb[0]+a[0])/2, (rb[1]+a[1])/2
		s.move(c.P1, mx2, my2)
	case "pointOnLine":
		line, ok := s.entities[c.OnLine]
		if !ok {
			return
		}
		a, b := s.get(line.Start), s.get(line.End)
		p := s.get(c.Point)
		proj := projectOntoSegment(p, a, b)
		s.move(c.Point, proj[0], proj[1])
	case "pointOnArc":
		arc, ok := s.entities[c.OnArc]
		if !ok {
			return
		}
		center := s.get(arc.Center)
		p := s.get(c.Point)
		r := math.Hypot(p[0]-center[0], p[1]-center[1])
		ref := math.Hypot(s.get(arc.Start)[0]-center[0], s.get(arc.Start)[1]-center[1])
		if r < 1e-12 {
			return
		}
		scale := ref / r
		s.move(c.Point, center[0]+(p[0]-center[0])*scale, center[1]+(p[1]-center[1])*scale)
	case "angle":
		l1, ok1 := s.entities[c.L1]
		l2, ok2 := s.entities[c.L2]
		if !ok1 || !ok2 {
			return
		}
		a1, b1 := s.get(l1.Start), s.get(l1.End)
		base := math.Atan2(b1[1]-a1[1], b1[0]-a1[0])
		want := base + c.Value
		a2, b2 := s.get(l2.Start), s.get(l2.End)
		length := math.Hypot(b2[0]-a2[0], b2[1]-a2[1])
		cx, cy := (a2[0]+b2[0])/2, (a2[1]+b2[1])/2
		ux, uy := math.Cos(want), math.Sin(want)
		s.move(l2.Start, cx-ux*length/2, cy-uy*length/2)
		s.move(l2.End, cx+ux*length/2, cy+uy*length/2)
	case "tangent":
		// Tangency between a line and an arc: nudge the line's connecting
		// endpoint onto the arc's circumference along the current radius.
		line, ok1 := s.entities[c.Line]
		arc, ok2 := s.entities[c.Arc]
		if !ok1 || !ok2 {
			return
		}
		center := s.get(arc.Center)
		r := math.Hypot(s.get(arc.Start)[0]-center[0], s.get(arc.Start)[1]-center[1])
		target := line.Start
		if c.ConnectionPoint == "end" {
			target = line.End
		}
		p := s.get(target)
		dx, dy := p[0]-center[0], p[1]-center[1]
		d := math.Hypot(dx, dy)
		if d < 1e-12 {
			return
		}
		s.move(target, center[0]+dx/d*r, center[1]+dy/d*r)
	}
}

func reflect(p, a, b [2]float64) [2]float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	d2 := dx*dx + dy*dy
	if d2 < 1e-12 {
		return p
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / d2
	fx, fy := a[0]+t*dx, a[1]+t*dy
	return [2]float64{2*fx - p[0], 2*fy - p[1]}
}

func projectOntoSegment(p, a, b [2]float64) [2]float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	d2 := dx*dx + dy*dy
	if d2 < 1e-12 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / d2
	return [2]float64{a[0] + t*dx, a[1] + t*dy}
}

// constraintDOFCost is a fixed per-kind count of scalar equations a
// constraint removes, used only for the fake kernel's DOF report.
var constraintDOFCost = map[kernel.ConstraintKind]int{
	"horizontal": 1, "vertical": 1, "coincident": 2, "fixed": 2,
	"distance": 1, "angle": 1, "parallel": 1, "perpendicular": 1,
	"equalLength": 1, "equalRadius": 1, "tangent": 1, "symmetric": 2,
	"pointOnLine": 1, "pointOnArc": 1,
}

func (s *sketch) Solve() (kernel.SolveOutcome, error) {
	before := make(map[kernel.Pid][2]float64, len(s.points))
	for id, xy := range s.points {
		before[id] = xy
	}
	s.relax()

	s.conflicted = s.maxResidual() > 1e-6
	dof := s.AnalyzeDOF()
	status := kernel.SolveOK
	switch {
	case s.conflicted:
		status = kernel.SolveInconsistent
	case dof.IsOverConstrained:
		status = kernel.SolveRedundant
	case !dof.IsFullyConstrained && !movedAny(before, s.points) && len(s.constraints) > 0:
		status = kernel.SolveNoProgress
	}
	return kernel.SolveOutcome{Status: status}, nil
}

// maxResidual measures how far the point-pair constraints remain from
// satisfied after relaxation. A residual that survives every pass means the
// constraint set is mutually unsatisfiable (e.g. coincident + nonzero
// distance on the same pair), which counting equations alone cannot detect.
func (s *sketch) maxResidual() float64 {
	worst := 0.0
	for _, c := range s.constraints {
		a, b := s.get(c.P1), s.get(c.P2)
		var r float64
		switch c.Kind {
		case "horizontal":
			r = math.Abs(a[1] - b[1])
		case "vertical":
			r = math.Abs(a[0] - b[0])
		case "coincident":
			r = math.Hypot(a[0]-b[0], a[1]-b[1])
		case "distance":
			r = math.Abs(math.Hypot(a[0]-b[0], a[1]-b[1]) - c.Value)
		}
		if r > worst {
			worst = r
		}
	}
	return worst
}

func movedAny(before, after map[kernel.Pid][2]float64) bool {
	for id, a := range after {
		b, ok := before[id]
		if !ok {
			continue
		}
		if math.Hypot(a[0]-b[0], a[1]-b[1]) > 1e-9 {
			return true
		}
	}
	return false
}

func (s *sketch) AnalyzeDOF() kernel.DOF {
	total := 2 * len(s.points)
	used := 0
	for _, f := range s.fixed {
		if f {
			used += 2
		}
	}
	for _, c := range s.constraints {
		used += constraintDOFCost[c.Kind]
	}
	remaining := total - used
	over := remaining < 0 || s.conflicted
	if remaining < 0 {
		remaining = 0
	}
	return kernel.DOF{
		TotalDOF:           total,
		ConstrainedDOF:     total - remaining,
		RemainingDOF:       remaining,
		IsFullyConstrained: remaining == 0 && !over,
		IsOverConstrained:  over,
	}
}

func (s *sketch) GetPoint(p kernel.Pid) (float64, float64, bool) {
	xy, ok := s.points[p]
	return xy[0], xy[1], ok
}

// ToProfile walks the sketch's non-construction entities and assembles
// closed loops by chasing shared endpoints. It returns ok=false if no
// closed loop exists.
func (s *sketch) ToProfile() (*kernel.Profile, bool) {
	loops, err := s.ComputeProfileLoops()
	if err != nil {
		return nil, false
	}
	var closed []kernel.Loop
	for _, l := range loops {
		if l.Closed {
			closed = append(closed, l)
		}
	}
	if len(closed) == 0 {
		return nil, false
	}
	return &kernel.Profile{
		Loops:    closed,
		Plane:    s.plane,
		Points:   s.points,
		Entities: s.entities,
	}, true
}

// ComputeProfileLoops groups non-construction entities into loops by
// chaining shared endpoints, reporting whether each loop closes. Entity
// iteration is sorted by id first so loop assembly is deterministic
// regardless of map iteration order.
func (s *sketch) ComputeProfileLoops() (kernel.LoopSet, error) {
	ids := make([]kernel.Eid, 0, len(s.entities))
	for id, e := range s.entities {
		if s.construction[id] {
			continue
		}
		if e.Kind == "circle" {
			continue // circles are always their own closed loop, handled below
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	used := make(map[kernel.Eid]bool, len(ids))
	var loops kernel.LoopSet

	for _, start := range ids {
		if used[start] {
			continue
		}
		chain := []kernel.Eid{start}
		used[start] = true
		e := s.entities[start]
		head, tail := e.Start, e.End

		for {
			advanced := false
			for _, cand := range ids {
				if used[cand] {
					continue
				}
				ce := s.entities[cand]
				switch {
				case ce.Start == tail:
					chain = append(chain, cand)
					tail = ce.End
					used[cand] = true
					advanced = true
				case ce.End == tail:
					chain = append(chain, cand)
					tail = ce.Start
					used[cand] = true
					advanced = true
				}
				if advanced {
					break
				}
			}
			if !advanced {
				break
			}
		}
		loops = append(loops, kernel.Loop{Entities: chain, Closed: head == tail})
	}

	for id, e := range s.entities {
		if e.Kind == "circle" && !s.construction[id] {
			loops = append(loops, kernel.Loop{Entities: []kernel.Eid{id}, Closed: true})
		}
	}
	sort.Slice(loops, func(i, j int) bool {
		return loops[i].Entities[0] < loops[j].Entities[0]
	})
	return loops, nil
}
