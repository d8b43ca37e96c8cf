package model

import "fmt"

// ConstraintKind enumerates the relations the solver understands.
type ConstraintKind int

const (
	ConstraintCoincident ConstraintKind = iota
	ConstraintHorizontal
	ConstraintVertical
	ConstraintDistance
	ConstraintHorizontalDistance
	ConstraintVerticalDistance
	ConstraintPointLineDistance
	ConstraintAngle
	ConstraintParallel
	ConstraintPerpendicular
	ConstraintTangent
	ConstraintPointOnLine
	ConstraintPointOnCircle
	ConstraintPointOnCubic
	ConstraintSameOrientation
	ConstraintEqualLength
	ConstraintEqualRadius
	ConstraintDiameter
	ConstraintMidpoint
	ConstraintSymmetric
	ConstraintLengthRatio
	ConstraintFixed
)

var constraintNames = map[ConstraintKind]string{
	ConstraintCoincident:         "coincident",
	ConstraintHorizontal:         "horizontal",
	ConstraintVertical:           "vertical",
	ConstraintDistance:           "distance",
	ConstraintHorizontalDistance: "horizontal-distance",
	ConstraintVerticalDistance:   "vertical-distance",
	ConstraintPointLineDistance:  "point-line-distance",
	ConstraintAngle:              "angle",
	ConstraintParallel:           "parallel",
	ConstraintPerpendicular:      "perpendicular",
	ConstraintTangent:            "tangent",
	ConstraintPointOnLine:        "point-on-line",
	ConstraintPointOnCircle:      "point-on-circle",
	ConstraintPointOnCubic:       "point-on-cubic",
	ConstraintSameOrientation:    "same-orientation",
	ConstraintEqualLength:        "equal-length",
	ConstraintEqualRadius:        "equal-radius",
	ConstraintDiameter:           "diameter",
	ConstraintMidpoint:           "midpoint",
	ConstraintSymmetric:          "symmetric",
	ConstraintLengthRatio:        "length-ratio",
	ConstraintFixed:              "fixed",
}

func (k ConstraintKind) String() string {
	if s, ok := constraintNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// arity lists the accepted (point refs, entity refs) shapes per kind.
var arity = map[ConstraintKind][][2]int{
	ConstraintCoincident:         {{2, 0}},
	ConstraintHorizontal:         {{2, 0}, {0, 1}},
	ConstraintVertical:           {{2, 0}, {0, 1}},
	ConstraintDistance:           {{2, 0}},
	ConstraintHorizontalDistance: {{2, 0}},
	ConstraintVerticalDistance:   {{2, 0}},
	ConstraintPointLineDistance:  {{1, 1}},
	ConstraintAngle:              {{0, 2}},
	ConstraintParallel:           {{0, 2}},
	ConstraintPerpendicular:      {{0, 2}},
	ConstraintTangent:            {{0, 2}},
	ConstraintPointOnLine:        {{1, 1}},
	ConstraintPointOnCircle:      {{1, 1}},
	ConstraintPointOnCubic:       {{1, 1}},
	ConstraintSameOrientation:    {{0, 2}},
	ConstraintEqualLength:        {{0, 2}},
	ConstraintEqualRadius:        {{0, 2}},
	ConstraintDiameter:           {{0, 1}},
	ConstraintMidpoint:           {{1, 1}},
	ConstraintSymmetric:          {{2, 1}},
	ConstraintLengthRatio:        {{0, 2}},
	ConstraintFixed:              {{1, 0}},
}

// HasDatum reports whether the kind carries a numeric value.
func (k ConstraintKind) HasDatum() bool {
	switch k {
	case ConstraintDistance, ConstraintHorizontalDistance, ConstraintVerticalDistance,
		ConstraintPointLineDistance, ConstraintAngle, ConstraintDiameter, ConstraintLengthRatio:
		return true
	}
	return false
}

// Constraint relates control points and entities. Measurement constraints
// only report their value and never reach the solver.
type Constraint struct {
	ID          ID               `json:"id"`
	Kind        ConstraintKind   `json:"kind"`
	Group       ID               `json:"group"`
	Workplane   ID               `json:"workplane,omitempty"`
	Points      []PointRef       `json:"points,omitempty"`
	Entities    []ID             `json:"entities,omitempty"`
	Datum       float64          `json:"datum,omitempty"`
	Offset      Vec3             `json:"offset"` // label position
	Other       bool             `json:"other,omitempty"`
	Other2      bool             `json:"other2,omitempty"`
	Measurement bool             `json:"measurement,omitempty"`
	Aux         float64          `json:"aux,omitempty"`
	AuxValid    bool             `json:"aux_valid,omitempty"`
	At          [MaxAxes]float64 `json:"at"` // pinned location of a fixed point
}

// CheckArity reports whether the point and entity counts fit the kind.
func (c *Constraint) CheckArity() error {
	shapes, ok := arity[c.Kind]
	if !ok {
		return fmt.Errorf("unknown constraint kind %v", c.Kind)
	}
	for _, s := range shapes {
		if len(c.Points) == s[0] && len(c.Entities) == s[1] {
			return nil
		}
	}
	return fmt.Errorf("%s constraint takes %v point/entity refs, got %d/%d",
		c.Kind, shapes, len(c.Points), len(c.Entities))
}

// References returns every (entity, control point) pair the constraint
// touches. Entity arguments are reported with Point == WholeEntity.
func (c *Constraint) References() []PointRef {
	refs := make([]PointRef, 0, len(c.Points)+len(c.Entities))
	refs = append(refs, c.Points...)
	for _, id := range c.Entities {
		refs = append(refs, PointRef{Entity: id, Point: WholeEntity})
	}
	return refs
}

// ReferencedEntities returns the distinct entity IDs the constraint uses,
// including its workplane.
func (c *Constraint) ReferencedEntities() []ID {
	seen := make(map[ID]bool)
	var ids []ID
	add := func(id ID) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(c.Workplane)
	for _, p := range c.Points {
		add(p.Entity)
	}
	for _, id := range c.Entities {
		add(id)
	}
	return ids
}

// ReplacePoint rewires every use of old to repl and reports whether
// anything changed. A WholeEntity ref replaces an entity argument.
func (c *Constraint) ReplacePoint(old, repl PointRef) bool {
	changed := false
	if old.Point == WholeEntity {
		for i, id := range c.Entities {
			if id == old.Entity {
				c.Entities[i] = repl.Entity
				changed = true
			}
		}
		return changed
	}
	for i, p := range c.Points {
		if p == old {
			c.Points[i] = repl
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy.
func (c *Constraint) Clone() *Constraint {
	n := *c
	if c.Points != nil {
		n.Points = append([]PointRef(nil), c.Points...)
	}
	if c.Entities != nil {
		n.Entities = append([]ID(nil), c.Entities...)
	}
	return &n
}
