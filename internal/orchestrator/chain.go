package orchestrator

import (
	"fmt"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Chain is the ordered model fallback list: primary first, then static
// fallbacks. It is immutable after construction; how far one logical request
// falls back is tracked by the orchestrator's local index, never by mutating
// the chain, so one request's fallback depth cannot leak into another's.
type Chain struct {
	models []domain.ModelDescriptor
}

// NewChain builds a chain from model identifiers in priority order.
func NewChain(ids []string) (*Chain, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("op=chain.new: no models configured")
	}
	models := make([]domain.ModelDescriptor, len(ids))
	for i, id := range ids {
		models[i] = domain.ModelDescriptor{Index: i, ID: id}
	}
	return &Chain{models: models}, nil
}

// Len returns the number of models in the chain.
func (c *Chain) Len() int { return len(c.models) }

// At returns the model at position i.
func (c *Chain) At(i int) domain.ModelDescriptor { return c.models[i] }

// Primary returns the configured default model.
func (c *Chain) Primary() domain.ModelDescriptor { return c.models[0] }

// IDs returns the model identifiers in priority order.
func (c *Chain) IDs() []string {
	ids := make([]string, len(c.models))
	for i, m := range c.models {
		ids[i] = m.ID
	}
	return ids
}
