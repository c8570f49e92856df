package types

// SketchPoint is a single 2D point in a sketch's constraint system.
type SketchPoint struct {
	ID         ID      `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Fixed      bool    `json:"fixed,omitempty"`
	AttachedTo string  `json:"attachedTo,omitempty"`
	Param      float64 `json:"param,omitempty"`
}

// SketchEntityKind is the closed set of sketch entity variants.
type SketchEntityKind string

const (
	EntityLine   SketchEntityKind = "line"
	EntityArc    SketchEntityKind = "arc"
	EntityCircle SketchEntityKind = "circle"
)

// SketchEntity is a tagged-variant geometric entity within a sketch.
type SketchEntity struct {
	ID           ID               `json:"id"`
	Kind         SketchEntityKind `json:"kind"`
	Construction bool             `json:"construction,omitempty"`

	// line, arc
	Start ID `json:"start,omitempty"`
	End   ID `json:"end,omitempty"`

	// arc
	Center ID   `json:"center,omitempty"`
	CCW    bool `json:"ccw,omitempty"`

	// circle
	CircleCenter ID      `json:"circleCenter,omitempty"`
	Radius       float64 `json:"radius,omitempty"`
}

// Endpoints returns the point ids this entity references, in a stable order,
// for referential-integrity checking and solver serialization.
func (e SketchEntity) Endpoints() []ID {
	switch e.Kind {
	case EntityLine:
		return []ID{e.Start, e.End}
	case EntityArc:
		return []ID{e.Start, e.End, e.Center}
	case EntityCircle:
		return []ID{e.CircleCenter}
	default:
		return nil
	}
}

// SketchConstraintKind is the closed set of sketch constraint variants.
type SketchConstraintKind string

const (
	ConstraintHorizontal    SketchConstraintKind = "horizontal"
	ConstraintVertical      SketchConstraintKind = "vertical"
	ConstraintCoincident    SketchConstraintKind = "coincident"
	ConstraintFixed         SketchConstraintKind = "fixed"
	ConstraintDistance      SketchConstraintKind = "distance"
	ConstraintAngle         SketchConstraintKind = "angle"
	ConstraintParallel      SketchConstraintKind = "parallel"
	ConstraintPerpendicular SketchConstraintKind = "perpendicular"
	ConstraintEqualLength   SketchConstraintKind = "equalLength"
	ConstraintEqualRadius   SketchConstraintKind = "equalRadius"
	ConstraintTangent       SketchConstraintKind = "tangent"
	ConstraintSymmetric     SketchConstraintKind = "symmetric"
	ConstraintPointOnLine   SketchConstraintKind = "pointOnLine"
	ConstraintPointOnArc    SketchConstraintKind = "pointOnArc"
)

// TangentConnection selects which end of a tangent line connects to its arc.
type TangentConnection string

const (
	ConnectionStart TangentConnection = "start"
	ConnectionEnd   TangentConnection = "end"
)

// SketchConstraint is a tagged-variant constraint over points/entities within
// a sketch. Only the fields relevant to Kind are populated.
type SketchConstraint struct {
	ID   ID                   `json:"id"`
	Kind SketchConstraintKind `json:"kind"`

	// horizontal, vertical, coincident, distance, symmetric
	P1 ID `json:"p1,omitempty"`
	P2 ID `json:"p2,omitempty"`

	// fixed, pointOnLine, pointOnArc, symmetric
	Point ID `json:"point,omitempty"`

	// distance, angle
	Value    float64 `json:"value,omitempty"`
	OffsetX  float64 `json:"offsetX,omitempty"`
	OffsetY  float64 `json:"offsetY,omitempty"`

	// angle, parallel, perpendicular, equalLength
	L1 ID `json:"l1,omitempty"`
	L2 ID `json:"l2,omitempty"`

	// equalRadius
	A1 ID `json:"a1,omitempty"`
	A2 ID `json:"a2,omitempty"`

	// tangent
	Line             ID                `json:"line,omitempty"`
	Arc              ID                `json:"arc,omitempty"`
	ConnectionPoint  TangentConnection `json:"connectionPoint,omitempty"`

	// pointOnLine, pointOnArc
	OnLine ID `json:"onLine,omitempty"`
	OnArc  ID `json:"onArc,omitempty"`

	// symmetric
	AxisLine ID `json:"axisLine,omitempty"`
}

// References returns every point/entity id this constraint refers to, for
// referential-integrity checking.
func (c SketchConstraint) References() []ID {
	var ids []ID
	add := func(id ID) {
		if !id.Empty() {
			ids = append(ids, id)
		}
	}
	add(c.P1)
	add(c.P2)
	add(c.Point)
	add(c.L1)
	add(c.L2)
	add(c.A1)
	add(c.A2)
	add(c.Line)
	add(c.Arc)
	add(c.OnLine)
	add(c.OnArc)
	add(c.AxisLine)
	return ids
}

// SketchData is the id-keyed storage for a sketch's points, entities and
// constraints. Map keys must equal each value's ID field.
type SketchData struct {
	PointsByID      map[ID]SketchPoint      `json:"pointsById"`
	EntitiesByID    map[ID]SketchEntity     `json:"entitiesById"`
	ConstraintsByID map[ID]SketchConstraint `json:"constraintsById"`
}

// NewSketchData returns an empty, initialized SketchData.
func NewSketchData() SketchData {
	return SketchData{
		PointsByID:      make(map[ID]SketchPoint),
		EntitiesByID:    make(map[ID]SketchEntity),
		ConstraintsByID: make(map[ID]SketchConstraint),
	}
}

// Clone deep-copies the sketch's keyed collections.
func (d SketchData) Clone() SketchData {
	out := SketchData{
		PointsByID:      make(map[ID]SketchPoint, len(d.PointsByID)),
		EntitiesByID:    make(map[ID]SketchEntity, len(d.EntitiesByID)),
		ConstraintsByID: make(map[ID]SketchConstraint, len(d.ConstraintsByID)),
	}
	for k, v := range d.PointsByID {
		out.PointsByID[k] = v
	}
	for k, v := range d.EntitiesByID {
		out.EntitiesByID[k] = v
	}
	for k, v := range d.ConstraintsByID {
		out.ConstraintsByID[k] = v
	}
	return out
}
