package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEvaluateEmptyString(t *testing.T) {
	eng := NewEngine(nil)

	m, evalErrs, err := eng.Evaluate("")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	if len(m.Groups) != 0 {
		t.Errorf("expected empty model, got %d groups", len(m.Groups))
	}
}

func TestEvaluateWhitespaceOnly(t *testing.T) {
	eng := NewEngine(nil)

	m, evalErrs, err := eng.Evaluate("   \n\t  \n  ")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	if len(m.Groups) != 0 {
		t.Errorf("expected empty model, got %d groups", len(m.Groups))
	}
}

func TestEvaluateValidExpression(t *testing.T) {
	eng := NewEngine(nil)

	// (+ 1 2) is valid Lisp that zygomys can evaluate. It adds nothing to
	// the model.
	m, evalErrs, err := eng.Evaluate("(+ 1 2)")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	if len(m.Groups) != 0 {
		t.Errorf("expected empty model, got %d groups", len(m.Groups))
	}
}

func TestEvaluateMultipleExpressions(t *testing.T) {
	eng := NewEngine(nil)

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	m, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if m == nil {
		t.Fatal("expected non-nil model")
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := NewEngine(nil)

	// Unmatched paren is a parse error.
	m, evalErrs, err := eng.Evaluate("(+ 1 2")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil model on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for syntax error")
	}

	// The error message should contain something meaningful.
	msg := evalErrs[0].Message
	if msg == "" {
		t.Error("eval error message should not be empty")
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := NewEngine(nil)

	// Referencing an undefined symbol should produce an eval error.
	m, evalErrs, err := eng.Evaluate("(+ 1 undefined-symbol)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil model on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestEvaluateSyntaxErrorHasLineInfo(t *testing.T) {
	eng := NewEngine(nil)

	// Put the error on line 2.
	source := "(+ 1 2)\n(+ 3"
	m, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil model on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}

	// We expect the line number to be extracted from the zygomys error.
	// Line info may or may not be available depending on the error format;
	// we just check the error is populated.
	e := evalErrs[0]
	if e.Message == "" {
		t.Error("eval error message should not be empty")
	}
	// If line info was extracted, verify it's positive.
	if e.Line > 0 {
		t.Logf("extracted line info: line=%d, message=%q", e.Line, e.Message)
	} else {
		t.Logf("no line info extracted (line=0), message=%q", e.Message)
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Col: 0, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") {
		t.Errorf("Error() should contain line info, got: %s", s)
	}
	if !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() should contain message, got: %s", s)
	}

	// No line info.
	e2 := EvalError{Line: 0, Col: 0, Message: "no location"}
	s2 := e2.Error()
	if strings.Contains(s2, "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", s2)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine(nil)

	// Multiple evaluations of the same source should produce equivalent results.
	for i := 0; i < 5; i++ {
		m, evalErrs, err := eng.Evaluate("(+ 1 2)")
		if err != nil {
			t.Fatalf("iteration %d: unexpected fatal error: %v", i, err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("iteration %d: unexpected eval errors: %v", i, evalErrs)
		}
		if m == nil {
			t.Fatalf("iteration %d: expected non-nil model", i)
		}
		if len(m.Groups) != 0 {
			t.Errorf("iteration %d: expected empty model, got %d groups", i, len(m.Groups))
		}
	}
}

func TestAwaitTimesOut(t *testing.T) {
	ctx, cancel := deadline(context.Background(), 20*time.Millisecond)
	defer cancel()
	ch := make(chan outcome) // never sends

	start := time.Now()
	_, _, err := await(ctx, ch, func() uint64 { return 1 })
	if !errors.Is(err, ErrEvalTimeout) {
		t.Fatalf("expected ErrEvalTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 20ms") {
		t.Errorf("timeout error should name the limit, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("await took %s", elapsed)
	}
}

func TestAwaitDiscardsStaleGeneration(t *testing.T) {
	ch := make(chan outcome, 1)
	ch <- outcome{gen: 1}

	_, _, err := await(context.Background(), ch, func() uint64 { return 2 })
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
}

func TestAwaitReturnsCurrentOutcome(t *testing.T) {
	ch := make(chan outcome, 1)
	want := []EvalError{{Line: 3, Message: "boom"}}
	ch <- outcome{gen: 7, errors: want}

	m, evalErrs, err := await(context.Background(), ch, func() uint64 { return 7 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil || len(evalErrs) != 1 || evalErrs[0] != want[0] {
		t.Errorf("got model %v errors %v", m, evalErrs)
	}
}

func TestTimeoutOption(t *testing.T) {
	if got := NewEngine(nil).timeout; got != DefaultEvalTimeout {
		t.Errorf("default timeout = %s", got)
	}
	if got := NewEngine(nil, Timeout(time.Second)).timeout; got != time.Second {
		t.Errorf("timeout = %s, want 1s", got)
	}
	if got := NewEngine(nil, Timeout(0)).timeout; got != DefaultEvalTimeout {
		t.Errorf("zero timeout should keep the default, got %s", got)
	}

	// A generous limit does not disturb a normal evaluation.
	m, evalErrs, err := NewEngine(nil, Timeout(time.Minute)).Evaluate(`(def s (sketch "s"))`)
	if err != nil || len(evalErrs) != 0 || m == nil {
		t.Fatalf("Evaluate: model %v errors %v err %v", m, evalErrs, err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
