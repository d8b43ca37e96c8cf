// Package engine provides the Lisp evaluation engine for kerf.
// It wraps zygomys in a sandboxed environment and produces a geometry
// model timeline from user source code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/kerf/pkg/logger"
	"github.com/chazu/kerf/pkg/model"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal finding about an evaluated model.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	ID      model.ID
}

// Engine wraps the zygomys interpreter for kerf evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
	log        *logger.Logger
}

// NewEngine creates a new Engine instance. A nil logger discards output.
func NewEngine(log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{log: log, timeout: DefaultEvalTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) latest() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Evaluate takes Lisp source code and produces a new model. Every group
// of the result has all of its pending flags set.
//
// Return semantics:
//   - On success: returns model + nil errors + nil error
//   - On parse/eval/validation failure: returns nil model + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*model.Model, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{gen: gen, err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		m, evalErrs, err := e.evaluate(source)
		ch <- outcome{gen: gen, model: m, errors: evalErrs, err: err}
	}()

	ctx, cancel := deadline(context.Background(), e.timeout)
	defer cancel()
	m, evalErrs, err := await(ctx, ch, e.latest)
	if errors.Is(err, ErrEvalTimeout) {
		e.log.Warn("script evaluation timed out", "timeout", e.timeout.String(), "generation", gen)
	}
	return m, evalErrs, err
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*model.Model, []EvalError, error) {
	// Empty source is a valid program that produces an empty model.
	if strings.TrimSpace(source) == "" {
		return model.New(), nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	s := newScript()
	registerBuiltins(env, s)

	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	var evalErrs []EvalError
	for _, v := range model.Validate(s.m) {
		if v.Severity == model.SeverityError {
			evalErrs = append(evalErrs, EvalError{Message: v.Error()})
		}
	}
	if len(evalErrs) > 0 {
		return nil, evalErrs, nil
	}

	for _, g := range s.m.Timeline() {
		g.MarkAll()
	}
	e.log.Debug("script evaluated",
		"groups", len(s.m.Groups),
		"entities", len(s.m.Entities),
		"constraints", len(s.m.Constraints))
	return s.m, nil, nil
}

// Lint returns the non-fatal validation findings for an evaluated model.
func Lint(m *model.Model) []EvalWarning {
	var warnings []EvalWarning
	for _, v := range model.Validate(m) {
		if v.Severity == model.SeverityError {
			continue
		}
		warnings = append(warnings, EvalWarning{Message: v.Message, ID: v.ID})
	}
	return warnings
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
