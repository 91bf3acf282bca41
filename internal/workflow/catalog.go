package workflow

import (
	"fmt"
	"sort"
)

type catalogEntry struct {
	factory   Factory
	persisted bool
}

// Option configures a catalog entry.
type Option func(*catalogEntry)

// Persisted marks a kind whose jobs are mirrored to the durable store.
func Persisted() Option {
	return func(e *catalogEntry) { e.persisted = true }
}

// Catalog maps each workflow kind to its constructor. It is populated once at
// startup and read-only afterwards, so lookups take no lock.
type Catalog struct {
	entries map[Kind]catalogEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[Kind]catalogEntry)}
}

// Register binds a factory to a kind. It panics on an invalid kind or a nil
// factory since both are programming errors.
func (c *Catalog) Register(kind Kind, factory Factory, opts ...Option) {
	if !kind.Valid() {
		panic(fmt.Sprintf("workflow: cannot register invalid kind %q", kind))
	}
	if factory == nil {
		panic(fmt.Sprintf("workflow: nil factory for kind %q", kind))
	}

	entry := catalogEntry{factory: factory}
	for _, opt := range opts {
		opt(&entry)
	}
	c.entries[kind] = entry
}

// New constructs the workflow for kind, or returns ErrNoWorkflowSelected.
func (c *Catalog) New(kind Kind, jobID string, reporter Reporter) (Workflow, error) {
	entry, ok := c.entries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWorkflowSelected, kind)
	}
	return entry.factory(jobID, reporter), nil
}

// Persisted reports whether jobs of kind are written to the durable store.
func (c *Catalog) Persisted(kind Kind) bool {
	entry, ok := c.entries[kind]
	return ok && entry.persisted
}

// Kinds returns the registered kinds in lexical order.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
