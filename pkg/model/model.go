package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate id")
	ErrForwardReference  = errors.New("reference to a later group")
	ErrDanglingReference = errors.New("dangling reference")
)

// Model is the complete geometry state of a document. It is an arena of
// groups, entities and constraints keyed by ID; nothing inside holds a
// pointer to anything else, so Clone gives an independent value.
type Model struct {
	Groups      map[ID]*Group      `json:"groups"`
	Entities    map[ID]*Entity     `json:"entities"`
	Constraints map[ID]*Constraint `json:"constraints"`
}

// New creates an empty Model.
func New() *Model {
	return &Model{
		Groups:      make(map[ID]*Group),
		Entities:    make(map[ID]*Entity),
		Constraints: make(map[ID]*Constraint),
	}
}

// Clone returns a deep copy of m.
func (m *Model) Clone() *Model {
	c := &Model{
		Groups:      make(map[ID]*Group, len(m.Groups)),
		Entities:    make(map[ID]*Entity, len(m.Entities)),
		Constraints: make(map[ID]*Constraint, len(m.Constraints)),
	}
	for id, g := range m.Groups {
		c.Groups[id] = g.Clone()
	}
	for id, e := range m.Entities {
		c.Entities[id] = e.Clone()
	}
	for id, k := range m.Constraints {
		c.Constraints[id] = k.Clone()
	}
	return c
}

// Group returns the group with the given ID, or nil.
func (m *Model) Group(id ID) *Group { return m.Groups[id] }

// Entity returns the entity with the given ID, or nil.
func (m *Model) Entity(id ID) *Entity { return m.Entities[id] }

// Constraint returns the constraint with the given ID, or nil.
func (m *Model) Constraint(id ID) *Constraint { return m.Constraints[id] }

// GroupNamed returns the first group in timeline order with the given name.
func (m *Model) GroupNamed(name string) *Group {
	g, _ := lo.Find(m.Timeline(), func(g *Group) bool { return g.Name == name })
	return g
}

// Timeline returns all groups in ascending index order.
func (m *Model) Timeline() []*Group {
	groups := lo.Values(m.Groups)
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Index != groups[j].Index {
			return groups[i].Index < groups[j].Index
		}
		return groups[i].ID.Less(groups[j].ID)
	})
	return groups
}

// Last returns the final group of the timeline, or nil.
func (m *Model) Last() *Group {
	tl := m.Timeline()
	if len(tl) == 0 {
		return nil
	}
	return tl[len(tl)-1]
}

// EntitiesIn returns the entities owned by group, in a stable order.
func (m *Model) EntitiesIn(group ID) []*Entity {
	es := lo.Filter(lo.Values(m.Entities), func(e *Entity, _ int) bool { return e.Group == group })
	sort.Slice(es, func(i, j int) bool { return es[i].ID.Less(es[j].ID) })
	return es
}

// ConstraintsIn returns the constraints owned by group, in a stable order.
func (m *Model) ConstraintsIn(group ID) []*Constraint {
	cs := lo.Filter(lo.Values(m.Constraints), func(c *Constraint, _ int) bool { return c.Group == group })
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID.Less(cs[j].ID) })
	return cs
}

// AddGroup appends g to the end of the timeline. A zero ID is replaced by
// a fresh one.
func (m *Model) AddGroup(g *Group) error {
	if g.ID.IsZero() {
		g.ID = NewID()
	}
	if _, ok := m.Groups[g.ID]; ok {
		return fmt.Errorf("group %s: %w", g.ID.Short(), ErrDuplicate)
	}
	g.Index = len(m.Groups)
	if !g.Source.IsZero() {
		if m.Groups[g.Source] == nil {
			return fmt.Errorf("group %q source %s: %w", g.Name, g.Source.Short(), ErrNotFound)
		}
	}
	if !g.Workplane.IsZero() {
		if err := m.checkEntityRef(g, g.Workplane); err != nil {
			return fmt.Errorf("group %q workplane: %w", g.Name, err)
		}
	}
	m.Groups[g.ID] = g
	return nil
}

// AddEntity inserts e into its group. References must resolve to entities
// in the same or an earlier group.
func (m *Model) AddEntity(e *Entity) error {
	if e.ID.IsZero() {
		e.ID = NewID()
	}
	if _, ok := m.Entities[e.ID]; ok {
		return fmt.Errorf("entity %s: %w", e.ID.Short(), ErrDuplicate)
	}
	g := m.Groups[e.Group]
	if g == nil {
		return fmt.Errorf("entity %s group %s: %w", e.ID.Short(), e.Group.Short(), ErrNotFound)
	}
	if e.Kind.Requires2D() && e.Workplane.IsZero() {
		return fmt.Errorf("entity %s: %s needs a workplane", e.ID.Short(), e.Kind)
	}
	for _, ref := range e.References() {
		if err := m.checkEntityRef(g, ref); err != nil {
			return fmt.Errorf("entity %s: %w", e.ID.Short(), err)
		}
	}
	m.Entities[e.ID] = e
	return nil
}

// AddConstraint inserts c into its group after checking its shape and
// references.
func (m *Model) AddConstraint(c *Constraint) error {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if _, ok := m.Constraints[c.ID]; ok {
		return fmt.Errorf("constraint %s: %w", c.ID.Short(), ErrDuplicate)
	}
	g := m.Groups[c.Group]
	if g == nil {
		return fmt.Errorf("constraint %s group %s: %w", c.ID.Short(), c.Group.Short(), ErrNotFound)
	}
	if err := c.CheckArity(); err != nil {
		return err
	}
	for _, ref := range c.ReferencedEntities() {
		if err := m.checkEntityRef(g, ref); err != nil {
			return fmt.Errorf("%s constraint: %w", c.Kind, err)
		}
	}
	for _, p := range c.Points {
		e := m.Entities[p.Entity]
		if p.Point < 0 || p.Point >= len(e.Layout()) {
			return fmt.Errorf("%s constraint: entity %s has no control point %d", c.Kind, p.Entity.Short(), p.Point)
		}
	}
	m.Constraints[c.ID] = c
	return nil
}

// checkEntityRef verifies that id names an entity owned by owner or by a
// group earlier in the timeline.
func (m *Model) checkEntityRef(owner *Group, id ID) error {
	e := m.Entities[id]
	if e == nil {
		return fmt.Errorf("entity %s: %w", id.Short(), ErrDanglingReference)
	}
	if e.Group == owner.ID {
		return nil
	}
	eg := m.Groups[e.Group]
	if eg == nil {
		return fmt.Errorf("entity %s owner %s: %w", id.Short(), e.Group.Short(), ErrDanglingReference)
	}
	if eg.Index >= owner.Index {
		return fmt.Errorf("entity %s in group %q (index %d) from group %q (index %d): %w",
			id.Short(), eg.Name, eg.Index, owner.Name, owner.Index, ErrForwardReference)
	}
	return nil
}

// RemoveConstraint deletes a constraint.
func (m *Model) RemoveConstraint(id ID) error {
	if m.Constraints[id] == nil {
		return fmt.Errorf("constraint %s: %w", id.Short(), ErrNotFound)
	}
	delete(m.Constraints, id)
	return nil
}

// RemoveEntity deletes an entity together with every constraint that
// references it. It returns the IDs of the removed constraints.
func (m *Model) RemoveEntity(id ID) ([]ID, error) {
	if m.Entities[id] == nil {
		return nil, fmt.Errorf("entity %s: %w", id.Short(), ErrNotFound)
	}
	delete(m.Entities, id)
	var removed []ID
	for cid, c := range m.Constraints {
		if lo.Contains(c.ReferencedEntities(), id) {
			delete(m.Constraints, cid)
			removed = append(removed, cid)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Less(removed[j]) })
	return removed, nil
}

// DependsOn reports whether group b directly uses anything produced by
// group a.
func (m *Model) DependsOn(b, a ID) bool {
	if a == b {
		return false
	}
	gb := m.Groups[b]
	if gb == nil {
		return false
	}
	if gb.Source == a {
		return true
	}
	owned := func(id ID) bool {
		e := m.Entities[id]
		return e != nil && e.Group == a
	}
	if owned(gb.Workplane) {
		return true
	}
	for _, e := range m.Entities {
		if e.Group == b && lo.SomeBy(e.References(), owned) {
			return true
		}
	}
	for _, c := range m.Constraints {
		if c.Group == b && lo.SomeBy(c.ReferencedEntities(), owned) {
			return true
		}
	}
	return false
}

// Dependents returns every group that transitively depends on group a,
// in ascending timeline order.
func (m *Model) Dependents(a ID) []*Group {
	marked := map[ID]bool{a: true}
	var out []*Group
	for _, g := range m.Timeline() {
		if marked[g.ID] {
			continue
		}
		for id := range marked {
			if m.DependsOn(g.ID, id) {
				marked[g.ID] = true
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// DeleteGroup removes a group, everything it owns, and every group that
// depends on it. It returns the IDs of all deleted groups.
func (m *Model) DeleteGroup(id ID) ([]ID, error) {
	if m.Groups[id] == nil {
		return nil, fmt.Errorf("group %s: %w", id.Short(), ErrNotFound)
	}
	doomed := []ID{id}
	for _, g := range m.Dependents(id) {
		doomed = append(doomed, g.ID)
	}
	for _, gid := range doomed {
		for eid, e := range m.Entities {
			if e.Group == gid {
				delete(m.Entities, eid)
			}
		}
		for cid, c := range m.Constraints {
			if c.Group == gid {
				delete(m.Constraints, cid)
			}
		}
		delete(m.Groups, gid)
	}
	m.renumber(m.Timeline())
	return doomed, nil
}

// MoveGroup moves a group to position index in the timeline. The move is
// rejected, leaving the model unchanged, if it would make any group refer
// forward in time.
func (m *Model) MoveGroup(id ID, index int) error {
	g := m.Groups[id]
	if g == nil {
		return fmt.Errorf("group %s: %w", id.Short(), ErrNotFound)
	}
	tl := m.Timeline()
	if index < 0 || index >= len(tl) {
		return fmt.Errorf("group %q: index %d out of range [0,%d)", g.Name, index, len(tl))
	}
	order := lo.Filter(tl, func(x *Group, _ int) bool { return x.ID != id })
	order = append(order[:index], append([]*Group{g}, order[index:]...)...)

	saved := make(map[ID]int, len(tl))
	for _, x := range tl {
		saved[x.ID] = x.Index
	}
	m.renumber(order)
	if errs := m.orderErrors(); len(errs) > 0 {
		for gid, idx := range saved {
			m.Groups[gid].Index = idx
		}
		return errs[0]
	}
	return nil
}

func (m *Model) renumber(order []*Group) {
	for i, g := range order {
		g.Index = i
	}
}

// orderErrors lists every reference that points forward in the timeline.
func (m *Model) orderErrors() []error {
	var errs []error
	for _, g := range m.Timeline() {
		if !g.Source.IsZero() {
			if src := m.Groups[g.Source]; src != nil && src.Index >= g.Index {
				errs = append(errs, fmt.Errorf("group %q source %q: %w", g.Name, src.Name, ErrForwardReference))
			}
		}
		if !g.Workplane.IsZero() {
			if err := m.checkEntityRef(g, g.Workplane); errors.Is(err, ErrForwardReference) {
				errs = append(errs, err)
			}
		}
	}
	for _, e := range m.Entities {
		g := m.Groups[e.Group]
		if g == nil {
			continue
		}
		for _, ref := range e.References() {
			if err := m.checkEntityRef(g, ref); errors.Is(err, ErrForwardReference) {
				errs = append(errs, err)
			}
		}
	}
	for _, c := range m.Constraints {
		g := m.Groups[c.Group]
		if g == nil {
			continue
		}
		for _, ref := range c.ReferencedEntities() {
			if err := m.checkEntityRef(g, ref); errors.Is(err, ErrForwardReference) {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
