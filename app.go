package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/engine"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/manifold"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/logger"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/numeric"
	"github.com/chazu/kerf/pkg/profile"
	"github.com/chazu/kerf/pkg/solver"
	"github.com/chazu/kerf/pkg/tessellate"
)

// colorPalette is a default palette used to assign distinct colors to bodies.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx context.Context

	mu        sync.Mutex
	engine    *engine.Engine
	kernel    kernel.Kernel
	workspace *document.Workspace
	doc       *document.Document
	profile   profile.Options
	log       *logger.Logger
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable diagnostic for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// GroupData summarizes one regenerated group.
type GroupData struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	DOF     int      `json:"dof"`
	Verdict string   `json:"verdict"`
	Status  []string `json:"status"`
}

// BoundsData is the axis-aligned box around every mesh.
type BoundsData struct {
	Min [3]float32 `json:"min"`
	Max [3]float32 `json:"max"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Meshes   []MeshData        `json:"meshes"`
	Wires    []tessellate.Wire `json:"wires"`
	Groups   []GroupData       `json:"groups"`
	Errors   []EvalErrorData   `json:"errors"`
	Warnings []EvalErrorData   `json:"warnings"`
	Bounds   *BoundsData       `json:"bounds,omitempty"`
	CanUndo  bool              `json:"canUndo"`
	CanRedo  bool              `json:"canRedo"`
}

// NewApp wires the solver host, kernel and document workspace described
// by cfg. A nil log discards output.
func NewApp(cfg *config.Config, log *logger.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}

	newton := &numeric.Newton{
		Tolerance:     cfg.Solver.Tolerance,
		MaxIterations: cfg.Solver.MaxIterations,
		MaxUnknowns:   cfg.Solver.MaxUnknowns,
		RankTolerance: cfg.Solver.RankTolerance,
		DragWeight:    cfg.Solver.DragWeight,
	}
	k := newKernel(cfg.Kernel, log)

	opts := document.DefaultOptions()
	opts.Profile = profile.Options{
		ArcSegments:   cfg.Kernel.ArcSegments,
		CurveSegments: cfg.Kernel.CurveSegments,
	}.Normalized()
	opts.HistoryLimit = cfg.History.Limit

	ws := document.NewWorkspace(solver.NewHost(newton, log), k, log, opts)
	return &App{
		engine:    engine.NewEngine(log, engine.Timeout(cfg.Script.Timeout)),
		kernel:    k,
		workspace: ws,
		doc:       ws.AddDocument("untitled"),
		profile:   opts.Profile,
		log:       log,
	}
}

// newKernel returns the configured solid kernel. The manifold kernel needs
// a cgo build; without it the sdfx kernel is used.
func newKernel(cfg config.Kernel, log *logger.Logger) kernel.Kernel {
	if cfg.Backend == "manifold" {
		k, err := manifold.New(manifold.Segments(cfg.ArcSegments))
		if err == nil {
			return k
		}
		log.Warn("manifold kernel unavailable, using sdfx", "error", err)
	}
	return sdfx.New(sdfx.MeshCells(cfg.MeshCells))
}

// startup is called by Wails on app startup. The context is saved
// so we can call Wails runtime methods later if needed.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// shutdown flushes the logger.
func (a *App) shutdown(ctx context.Context) {
	a.log.Sync()
}

func newResult() EvalResult {
	return EvalResult{
		Meshes:   []MeshData{},
		Wires:    []tessellate.Wire{},
		Groups:   []GroupData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

// Evaluate takes Lisp source and returns mesh data + errors.
// This is the primary binding called by the frontend editor. A source that
// fails to evaluate leaves the document as it was.
func (a *App) Evaluate(source string) EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := newResult()

	// Step 1: Evaluate the Lisp source into a geometry model.
	m, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.log.Error("evaluate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}
	for _, w := range engine.Lint(m) {
		result.Warnings = append(result.Warnings, EvalErrorData{
			Line:    w.Line,
			Col:     w.Col,
			Message: w.Message,
		})
	}

	// Step 2: Regenerate the document from the new timeline.
	a.doc.Load("evaluate", m)

	// Step 3: Collect status, meshes and wires.
	a.render(&result)
	return result
}

// Undo steps the document back one evaluation.
func (a *App) Undo() EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := newResult()
	a.doc.Undo()
	a.render(&result)
	return result
}

// Redo re-applies the evaluation Undo stepped back from.
func (a *App) Redo() EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := newResult()
	a.doc.Redo()
	a.render(&result)
	return result
}

// History lists the document's undoable steps, oldest first.
func (a *App) History() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.History()
}

// DocumentData names one open document.
type DocumentData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// Documents lists the open documents.
func (a *App) Documents() []DocumentData {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := []DocumentData{}
	for _, d := range a.workspace.Documents() {
		out = append(out, DocumentData{ID: d.ID.String(), Name: d.Name, Current: d == a.doc})
	}
	return out
}

// OpenDocument starts an empty document and makes it current.
func (a *App) OpenDocument(name string) EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.doc = a.workspace.AddDocument(name)
	result := newResult()
	a.render(&result)
	return result
}

// SwitchDocument makes the document with the given id current.
func (a *App) SwitchDocument(id string) (EvalResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	docID, err := model.ParseID(id)
	if err != nil {
		return newResult(), err
	}
	d := a.workspace.Document(docID)
	if d == nil {
		return newResult(), fmt.Errorf("document %s: %w", id, model.ErrNotFound)
	}
	a.doc = d
	result := newResult()
	a.render(&result)
	return result, nil
}

// CloseDocument closes the current document. Closing the last one leaves a
// fresh empty document behind.
func (a *App) CloseDocument() EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.workspace.CloseDocument(a.doc.ID); err != nil {
		a.log.Warn("close document", "error", err)
	}
	if docs := a.workspace.Documents(); len(docs) > 0 {
		a.doc = docs[len(docs)-1]
	} else {
		a.doc = a.workspace.AddDocument("untitled")
	}
	result := newResult()
	a.render(&result)
	return result
}

// render fills result from the current document state.
func (a *App) render(result *EvalResult) {
	result.CanUndo = a.doc.CanUndo()
	result.CanRedo = a.doc.CanRedo()

	for _, g := range a.doc.Model.Timeline() {
		gd := GroupData{
			ID:      g.ID.String(),
			Name:    g.Name,
			Kind:    g.Kind.String(),
			DOF:     g.DOF,
			Verdict: g.Verdict,
			Status:  []string{},
		}
		for _, s := range g.Status {
			gd.Status = append(gd.Status, s.Text)
			diag := EvalErrorData{Message: g.Name + ": " + s.Text}
			switch s.Severity {
			case model.SeverityError:
				result.Errors = append(result.Errors, diag)
			case model.SeverityWarning:
				result.Warnings = append(result.Warnings, diag)
			}
		}
		result.Groups = append(result.Groups, gd)
	}

	meshes, err := tessellate.Tessellate(a.doc.Bodies(), a.kernel)
	if err != nil {
		a.log.Error("tessellate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{
			Message: "tessellation failed: " + err.Error(),
		})
		return
	}

	for i, m := range meshes {
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
		lo, hi, ok := m.Bounds()
		if !ok {
			continue
		}
		if result.Bounds == nil {
			result.Bounds = &BoundsData{Min: lo, Max: hi}
			continue
		}
		for j := 0; j < 3; j++ {
			if lo[j] < result.Bounds.Min[j] {
				result.Bounds.Min[j] = lo[j]
			}
			if hi[j] > result.Bounds.Max[j] {
				result.Bounds.Max[j] = hi[j]
			}
		}
	}

	result.Wires = append(result.Wires, tessellate.Wires(a.doc.Model, a.profile)...)
}
