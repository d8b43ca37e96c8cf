package manifold

// DefaultSegments is the number of facets around a full revolution.
const DefaultSegments = 64

// Option configures the Manifold kernel.
type Option func(*settings)

type settings struct {
	segments int
}

// Segments sets the facet count of a full revolution. Partial revolutions
// get a proportional share.
func Segments(n int) Option {
	return func(s *settings) {
		if n >= 3 {
			s.segments = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{segments: DefaultSegments}
	for _, o := range opts {
		o(&s)
	}
	return s
}
