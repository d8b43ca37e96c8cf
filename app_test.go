package main

import (
	"os"
	"testing"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/logger"
)

// newTestApp returns an App with a coarse mesher so end-to-end tests stay fast.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Kernel.MeshCells = 32
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return NewApp(cfg, logger.Nop())
}

const block = `
(def base (sketch "base"))
(def sides (polygon (vec2 0 0) (vec2 10 0) (vec2 10 5) (vec2 0 5)))
(horizontal (nth sides 0))
(vertical (nth sides 1))
(fixed (start-of (nth sides 0)))
(extrude base :depth 5 :name "block")
`

// TestE2EBracketExample exercises the full pipeline: Lisp source → engine →
// model → regeneration → tessellate → meshes. This is the same path that the
// Wails Evaluate binding takes, but without the Wails runtime.
func TestE2EBracketExample(t *testing.T) {
	app := newTestApp(t)

	source, err := os.ReadFile("examples/bracket.kerf")
	if err != nil {
		t.Fatalf("failed to read bracket.kerf: %v", err)
	}

	result := app.Evaluate(string(source))

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error (line %d): %s", e.Line, e.Message)
		}
		t.FailNow()
	}

	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
	m := result.Meshes[0]
	if m.PartName != "bracket" {
		t.Errorf("expected part name %q, got %q", "bracket", m.PartName)
	}
	if len(m.Vertices) == 0 || len(m.Normals) == 0 || len(m.Indices) == 0 {
		t.Errorf("bracket mesh is empty: %d vertices, %d normals, %d indices",
			len(m.Vertices), len(m.Normals), len(m.Indices))
	}
	if m.Color == "" {
		t.Error("mesh has no color assigned")
	}

	if len(result.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result.Groups))
	}
	if result.Groups[0].Name != "profile" || result.Groups[1].Name != "bracket" {
		t.Errorf("groups out of order: %+v", result.Groups)
	}
	if result.Groups[1].Kind != "extrude" {
		t.Errorf("second group kind = %q, want extrude", result.Groups[1].Kind)
	}

	if result.Bounds == nil {
		t.Fatal("expected bounds")
	}
	if w := result.Bounds.Max[0] - result.Bounds.Min[0]; w < 36 || w > 44 {
		t.Errorf("bracket width = %g, want about 40", w)
	}

	sketched, generated := 0, 0
	for _, w := range result.Wires {
		if w.Generated {
			generated++
		} else {
			sketched++
		}
	}
	// six edges and two holes
	if sketched != 8 {
		t.Errorf("expected 8 sketch wires, got %d", sketched)
	}
	if generated == 0 {
		t.Error("extrusion should generate wires")
	}
}

// TestE2EEmptySource ensures the pipeline handles empty input gracefully.
func TestE2EEmptySource(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate("")

	if len(result.Errors) > 0 {
		t.Errorf("unexpected errors for empty source: %v", result.Errors)
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes for empty source, got %d", len(result.Meshes))
	}
	if result.Bounds != nil {
		t.Errorf("expected no bounds, got %+v", result.Bounds)
	}
}

// TestE2ESyntaxError ensures eval errors are reported, not fatal errors.
func TestE2ESyntaxError(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate(`(sketch "test"`)

	if len(result.Errors) == 0 {
		t.Fatal("expected eval errors for syntax error")
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on error, got %d", len(result.Meshes))
	}
}

// TestE2ESingleBlock ensures a minimal extrusion renders one mesh.
func TestE2ESingleBlock(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate(block)

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error: %s", e.Message)
		}
		t.FailNow()
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
	if result.Meshes[0].PartName != "block" {
		t.Errorf("expected part name 'block', got %q", result.Meshes[0].PartName)
	}
	if !result.CanUndo || result.CanRedo {
		t.Errorf("after one evaluation: canUndo %v canRedo %v", result.CanUndo, result.CanRedo)
	}
}

// TestE2EUndoRedo walks the document history through the bindings.
func TestE2EUndoRedo(t *testing.T) {
	app := newTestApp(t)

	if r := app.Evaluate(block); len(r.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d (errors %v)", len(r.Meshes), r.Errors)
	}
	if r := app.Evaluate(""); len(r.Meshes) != 0 {
		t.Fatalf("expected 0 meshes after clearing, got %d", len(r.Meshes))
	}

	undone := app.Undo()
	if len(undone.Meshes) != 1 || len(undone.Groups) != 2 {
		t.Errorf("undo should restore the block: %d meshes, %d groups", len(undone.Meshes), len(undone.Groups))
	}
	if !undone.CanRedo {
		t.Error("undo should enable redo")
	}

	redone := app.Redo()
	if len(redone.Meshes) != 0 || len(redone.Groups) != 0 {
		t.Errorf("redo should clear again: %d meshes, %d groups", len(redone.Meshes), len(redone.Groups))
	}
	if redone.CanRedo {
		t.Error("nothing left to redo")
	}

	if got := app.History(); len(got) != 3 {
		t.Errorf("history = %v, want 3 entries", got)
	}
}

// TestE2EFailedEvaluationKeepsDocument ensures a broken edit leaves the
// previous state undoable rather than replacing it.
func TestE2EFailedEvaluationKeepsDocument(t *testing.T) {
	app := newTestApp(t)
	app.Evaluate(block)

	if r := app.Evaluate(`(extrude "nothing" :depth 2)`); len(r.Errors) == 0 {
		t.Fatal("expected an error for a missing source group")
	}
	if got := app.History(); len(got) != 2 {
		t.Errorf("failed evaluation should not be recorded, history = %v", got)
	}

	r := app.Undo()
	if len(r.Groups) != 0 {
		t.Errorf("undo should reach the empty document, got %d groups", len(r.Groups))
	}
}

// TestKernelFallback ensures an unavailable manifold kernel falls back to
// sdfx instead of leaving the app without a kernel.
func TestKernelFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Kernel.Backend = "manifold"
	cfg.Kernel.MeshCells = 32

	app := NewApp(cfg, logger.Nop())
	if app.kernel == nil {
		t.Fatal("expected a kernel")
	}
	result := app.Evaluate(block)
	if len(result.Errors) != 0 || len(result.Meshes) != 1 {
		t.Errorf("expected one mesh from either kernel: errors %v, %d meshes", result.Errors, len(result.Meshes))
	}
}

// TestE2EDocuments keeps separate histories per open document.
func TestE2EDocuments(t *testing.T) {
	app := newTestApp(t)
	app.Evaluate(block)
	first := app.Documents()
	if len(first) != 1 || !first[0].Current {
		t.Fatalf("expected one current document, got %+v", first)
	}

	fresh := app.OpenDocument("second")
	if len(fresh.Meshes) != 0 || fresh.CanUndo {
		t.Errorf("a new document starts empty: %d meshes, canUndo %v", len(fresh.Meshes), fresh.CanUndo)
	}
	if docs := app.Documents(); len(docs) != 2 || docs[0].Current || !docs[1].Current {
		t.Errorf("second document should be current: %+v", docs)
	}

	back, err := app.SwitchDocument(first[0].ID)
	if err != nil {
		t.Fatalf("SwitchDocument failed: %v", err)
	}
	if len(back.Meshes) != 1 {
		t.Errorf("switching back should show the block, got %d meshes", len(back.Meshes))
	}
	if _, err := app.SwitchDocument("not-an-id"); err == nil {
		t.Error("expected an error for a malformed id")
	}

	app.CloseDocument()
	docs := app.Documents()
	if len(docs) != 1 || docs[0].Name != "second" || !docs[0].Current {
		t.Errorf("closing should leave the second document current: %+v", docs)
	}
	app.CloseDocument()
	if docs := app.Documents(); len(docs) != 1 || docs[0].Name != "untitled" {
		t.Errorf("closing the last document should open a fresh one: %+v", docs)
	}
}
