// Package graphstore persists diagrams in a graph database and renders them
// for graph tooling.
package graphstore

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
)

// ErrNotFound is returned when no diagram is stored under the requested id.
var ErrNotFound = errors.New("diagram not found")

// Repository provides graph storage for diagrams.
type Repository interface {
	// StoreDiagram persists the diagram, replacing any earlier copy with the same id.
	StoreDiagram(ctx context.Context, d *diagram.Diagram) error
	// LoadDiagram retrieves a stored diagram by id.
	LoadDiagram(ctx context.Context, id string) (*diagram.Diagram, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
