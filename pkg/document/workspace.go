package document

import (
	"fmt"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/logger"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/solver"
)

// Workspace is the set of open documents. Its documents share one solver
// host and one kernel.
type Workspace struct {
	host   *solver.Host
	kernel kernel.Kernel
	log    *logger.Logger
	opts   Options

	docs  map[model.ID]*Document
	order []model.ID
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(host *solver.Host, k kernel.Kernel, log *logger.Logger, opts Options) *Workspace {
	if log == nil {
		log = logger.Nop()
	}
	return &Workspace{
		host:   host,
		kernel: k,
		log:    log,
		opts:   opts,
		docs:   make(map[model.ID]*Document),
	}
}

// AddDocument opens a new empty document.
func (w *Workspace) AddDocument(name string) *Document {
	d := New(name, w.host, w.kernel, w.log, w.opts)
	w.docs[d.ID] = d
	w.order = append(w.order, d.ID)
	w.log.Info("document opened", "document", d.ID, "name", name)
	return d
}

// CloseDocument drops a document and its history.
func (w *Workspace) CloseDocument(id model.ID) error {
	if w.docs[id] == nil {
		return fmt.Errorf("document %s: %w", id.Short(), model.ErrNotFound)
	}
	delete(w.docs, id)
	for i, x := range w.order {
		if x == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.log.Info("document closed", "document", id)
	return nil
}

// Document returns an open document, or nil.
func (w *Workspace) Document(id model.ID) *Document { return w.docs[id] }

// Documents returns the open documents in the order they were opened.
func (w *Workspace) Documents() []*Document {
	out := make([]*Document, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.docs[id])
	}
	return out
}

// Named returns the first open document called name, or nil.
func (w *Workspace) Named(name string) *Document {
	for _, d := range w.Documents() {
		if d.Name == name {
			return d
		}
	}
	return nil
}
