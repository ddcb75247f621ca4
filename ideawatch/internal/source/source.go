// Package source defines the retrieval capability shared by every product
// source and the registry that enumerates them.
//
// A source is anything that can turn a keyword query into listings. Sources
// fail independently; the registry carries no retry or scoring logic.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Listing is a candidate product found by a source. Never persisted as is.
type Listing struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Price       *float64 `json:"price,omitempty"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
}

// Searcher is a single retrieval capability.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Listing, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, query string) ([]Listing, error)

func (f SearchFunc) Search(ctx context.Context, query string) ([]Listing, error) {
	return f(ctx, query)
}

// SourceError is one source's failure. It never aborts other sources.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

var (
	// ErrDuplicateSource is returned by Register for a name already present.
	ErrDuplicateSource = errors.New("source: duplicate name")
	// ErrCircuitOpen is returned while a source's breaker is open.
	ErrCircuitOpen = errors.New("source: circuit open")
)

// Entry is one registered source.
type Entry struct {
	Name     string
	Searcher Searcher
}

// Registry is the ordered set of sources, populated at process start.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a source.
func (r *Registry) Register(name string, s Searcher) error {
	if name == "" || s == nil {
		return errors.New("source: name and searcher are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
		}
	}
	r.entries = append(r.entries, Entry{Name: name, Searcher: s})
	return nil
}

// Sources returns the registered sources in registration order.
func (r *Registry) Sources() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the registered source names in order.
func (r *Registry) Names() []string {
	entries := r.Sources()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
