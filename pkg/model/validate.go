package model

import (
	"fmt"
	"math"
	"sort"
)

// ValidationError describes a single validation finding.
type ValidationError struct {
	ID       ID       // offending group, entity or constraint (zero if model-level)
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.ID.Short(), e.Message)
}

// Validate runs the structural checks on m and returns every finding,
// ordered by severity then message. An empty slice means the model is
// consistent. Validate never mutates m.
func Validate(m *Model) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateSources(m)...)
	errs = append(errs, validateTimeline(m)...)
	errs = append(errs, validateEntities(m)...)
	errs = append(errs, validateConstraints(m)...)
	errs = append(errs, validateNames(m)...)
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Severity != errs[j].Severity {
			return errs[i].Severity < errs[j].Severity
		}
		return errs[i].Message < errs[j].Message
	})
	return errs
}

// HasErrors reports whether any finding is error-severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateSources checks the derivation chain for missing sources and
// cycles using DFS with 3-color marking.
func validateSources(m *Model) []ValidationError {
	const (
		white = iota
		gray
		black
	)
	color := make(map[ID]int)
	var errs []ValidationError

	var visit func(id ID) bool
	visit = func(id ID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				ID:       id,
				Message:  "cycle in derivation sources",
				Severity: SeverityError,
			})
			return true
		}
		color[id] = gray
		g := m.Groups[id]
		if g != nil && !g.Source.IsZero() && m.Groups[g.Source] != nil {
			if visit(g.Source) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, g := range m.Timeline() {
		if g.Kind.IsDerivation() {
			switch {
			case g.Source.IsZero():
				errs = append(errs, ValidationError{ID: g.ID, Message: fmt.Sprintf("%s group %q has no source", g.Kind, g.Name), Severity: SeverityError})
			case m.Groups[g.Source] == nil:
				errs = append(errs, ValidationError{ID: g.ID, Message: fmt.Sprintf("group %q source %s does not exist", g.Name, g.Source.Short()), Severity: SeverityError})
			}
		}
		if color[g.ID] == white {
			visit(g.ID)
		}
	}
	return errs
}

// validateTimeline checks index contiguity and forward references.
func validateTimeline(m *Model) []ValidationError {
	var errs []ValidationError
	for i, g := range m.Timeline() {
		if g.Index != i {
			errs = append(errs, ValidationError{ID: g.ID, Message: fmt.Sprintf("group %q has index %d, expected %d", g.Name, g.Index, i), Severity: SeverityError})
		}
	}
	for _, err := range m.orderErrors() {
		errs = append(errs, ValidationError{Message: err.Error(), Severity: SeverityError})
	}
	return errs
}

func validateEntities(m *Model) []ValidationError {
	var errs []ValidationError
	for _, e := range sortedEntities(m) {
		if m.Groups[e.Group] == nil {
			errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf("%s owner group %s does not exist", e.Kind, e.Group.Short()), Severity: SeverityError})
		}
		for _, ref := range e.References() {
			if m.Entities[ref] == nil {
				errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf("%s references missing entity %s", e.Kind, ref.Short()), Severity: SeverityError})
			}
		}
		if e.Kind.Requires2D() && e.Workplane.IsZero() {
			errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf("%s has no workplane", e.Kind), Severity: SeverityError})
		}
		if wp := m.Entities[e.Workplane]; wp != nil && wp.Kind != EntityWorkplane {
			errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf("workplane %s is a %s", wp.ID.Short(), wp.Kind), Severity: SeverityError})
		}
		errs = append(errs, validateEntityGeometry(e)...)
	}
	return errs
}

// validateEntityGeometry reports degenerate but solvable geometry.
func validateEntityGeometry(e *Entity) []ValidationError {
	const eps = 1e-9
	var errs []ValidationError
	warn := func(format string, args ...interface{}) {
		errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
	}
	for i := range e.Layout() {
		for _, x := range e.Params[i] {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				errs = append(errs, ValidationError{ID: e.ID, Message: fmt.Sprintf("%s control point %d is not finite", e.Kind, i), Severity: SeverityError})
				return errs
			}
		}
	}
	switch e.Kind {
	case EntityLine2D, EntityLine3D:
		if e.Point3(PointStart).Sub(e.Point3(PointEnd)).Len() < eps {
			warn("%s has zero length", e.Kind)
		}
	case EntityCircle2D, EntityCircle3D:
		if e.Radius() < 0 {
			warn("%s has negative radius %g", e.Kind, e.Radius())
		}
	case EntityWorkplane, EntityImported:
		if q := e.Quat(PlaneNormal); math.Abs(q.Len()-1) > 1e-6 {
			warn("%s orientation is not unit length (%g)", e.Kind, q.Len())
		}
	}
	return errs
}

func validateConstraints(m *Model) []ValidationError {
	var errs []ValidationError
	ids := make([]ID, 0, len(m.Constraints))
	for id := range m.Constraints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	for _, id := range ids {
		c := m.Constraints[id]
		if m.Groups[c.Group] == nil {
			errs = append(errs, ValidationError{ID: c.ID, Message: fmt.Sprintf("%s owner group %s does not exist", c.Kind, c.Group.Short()), Severity: SeverityError})
		}
		if err := c.CheckArity(); err != nil {
			errs = append(errs, ValidationError{ID: c.ID, Message: err.Error(), Severity: SeverityError})
		}
		for _, ref := range c.ReferencedEntities() {
			if m.Entities[ref] == nil {
				errs = append(errs, ValidationError{ID: c.ID, Message: fmt.Sprintf("%s references missing entity %s", c.Kind, ref.Short()), Severity: SeverityError})
			}
		}
	}
	return errs
}

// validateNames warns on duplicate group names, which make name lookups
// ambiguous.
func validateNames(m *Model) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]ID)
	for _, g := range m.Timeline() {
		if g.Name == "" {
			continue
		}
		if first, ok := seen[g.Name]; ok {
			errs = append(errs, ValidationError{ID: g.ID, Message: fmt.Sprintf("group name %q already used by %s", g.Name, first.Short()), Severity: SeverityWarning})
			continue
		}
		seen[g.Name] = g.ID
	}
	return errs
}

func sortedEntities(m *Model) []*Entity {
	es := make([]*Entity, 0, len(m.Entities))
	for _, e := range m.Entities {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].ID.Less(es[j].ID) })
	return es
}
