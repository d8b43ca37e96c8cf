package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/kerf/pkg/model"
)

// DefaultEvalTimeout bounds one evaluation unless the engine is built with
// another limit.
const DefaultEvalTimeout = 5 * time.Second

var (
	// ErrEvalTimeout reports a script that ran past the engine's limit.
	ErrEvalTimeout = errors.New("evaluation timed out")
	// ErrSuperseded reports a result that a newer Evaluate call replaced.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

// Option configures an Engine.
type Option func(*Engine)

// Timeout sets the limit for a single evaluation. Non-positive values keep
// the default.
func Timeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// outcome carries one evaluation back from its goroutine, stamped with
// the generation that started it.
type outcome struct {
	gen    uint64
	model  *model.Model
	errors []EvalError
	err    error
}

// deadline derives the context a single evaluation waits under.
func deadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, d, fmt.Errorf("%w after %s", ErrEvalTimeout, d))
}

// await blocks for the outcome on ch until ctx ends. An outcome whose
// generation is no longer latest() is dropped with ErrSuperseded. A
// goroutine left behind by a timeout keeps running; ch must be buffered so
// its late send never blocks.
func await(ctx context.Context, ch <-chan outcome, latest func() uint64) (*model.Model, []EvalError, error) {
	select {
	case out := <-ch:
		if out.gen != latest() {
			return nil, nil, ErrSuperseded
		}
		return out.model, out.errors, out.err
	case <-ctx.Done():
		return nil, nil, context.Cause(ctx)
	}
}
