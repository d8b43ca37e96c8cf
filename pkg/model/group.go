package model

import "fmt"

// GroupKind enumerates the feature kinds of the timeline.
type GroupKind int

const (
	GroupSketch  GroupKind = iota // user-drawn entities, optionally in a workplane
	GroupExtrude                  // linear sweep of a sketch profile
	GroupRevolve                  // partial sweep about an axis
	GroupLathe                    // full revolution about an axis
	GroupArray                    // repeated translated copies
	GroupMirror                   // reflected copy
	GroupClone                    // single translated copy
)

func (k GroupKind) String() string {
	switch k {
	case GroupSketch:
		return "sketch"
	case GroupExtrude:
		return "extrude"
	case GroupRevolve:
		return "revolve"
	case GroupLathe:
		return "lathe"
	case GroupArray:
		return "array"
	case GroupMirror:
		return "mirror"
	case GroupClone:
		return "clone"
	default:
		return fmt.Sprintf("GroupKind(%d)", int(k))
	}
}

// IsDerivation reports whether groups of this kind synthesize their
// entities from a source group.
func (k GroupKind) IsDerivation() bool {
	return k != GroupSketch
}

// Combine selects how a group's solid merges into its body.
type Combine int

const (
	CombineUnion Combine = iota
	CombineDifference
)

func (c Combine) String() string {
	if c == CombineDifference {
		return "difference"
	}
	return "union"
}

// Transform holds the numeric inputs of a derivation group.
type Transform struct {
	Offset Vec3    `json:"offset"` // extrude vector, array step, clone offset
	Origin Vec3    `json:"origin"` // rotation axis or mirror plane origin
	Axis   Vec3    `json:"axis"`   // rotation axis or mirror plane normal
	Angle  float64 `json:"angle"`  // revolve sweep, radians
	Count  int     `json:"count"`  // array instances
}

// Parameter slots of a group's own free parameters.
const (
	GroupOffsetPoint = 0 // Transform.Offset, three axes
	GroupAnglePoint  = 1 // Transform.Angle, one axis
)

// Severity grades a status message or validation finding.
type Severity int

const (
	SeverityError   Severity = iota // blocks the group
	SeverityWarning                 // geometry still usable
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// StatusMessage is one line of a group's outcome report.
type StatusMessage struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

func (m StatusMessage) String() string {
	return fmt.Sprintf("[%s] %s", m.Severity, m.Text)
}

// Group is a node of the feature timeline.
type Group struct {
	ID        ID        `json:"id"`
	Kind      GroupKind `json:"kind"`
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Body      ID        `json:"body,omitempty"`
	Workplane ID        `json:"workplane,omitempty"`
	Source    ID        `json:"source,omitempty"`
	Transform Transform `json:"transform"`
	Combine   Combine   `json:"combine"`

	GeneratePending bool `json:"generate_pending,omitempty"`
	SolvePending    bool `json:"solve_pending,omitempty"`
	SolidPending    bool `json:"solid_pending,omitempty"`

	DOF     int             `json:"dof"`
	Verdict string          `json:"verdict,omitempty"` // last solve outcome, empty before the first
	Status  []StatusMessage `json:"status,omitempty"`
}

// Pending reports whether any regeneration phase is outstanding.
func (g *Group) Pending() bool {
	return g.GeneratePending || g.SolvePending || g.SolidPending
}

// MarkAll sets every pending flag.
func (g *Group) MarkAll() {
	g.GeneratePending, g.SolvePending, g.SolidPending = true, true, true
}

// HasErrors reports whether the last pass left an error status.
func (g *Group) HasErrors() bool {
	for _, s := range g.Status {
		if s.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Report appends a status message.
func (g *Group) Report(sev Severity, format string, args ...interface{}) {
	g.Status = append(g.Status, StatusMessage{Severity: sev, Text: fmt.Sprintf(format, args...)})
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	c := *g
	if g.Status != nil {
		c.Status = append([]StatusMessage(nil), g.Status...)
	}
	return &c
}
