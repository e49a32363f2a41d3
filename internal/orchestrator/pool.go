// Package orchestrator implements the provider attempt loop: a credential
// pool, a model fallback chain, and the bounded state machine tying them to a
// single logical request.
package orchestrator

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Pool owns the ordered set of provider credentials. The cursor persists
// across logical requests so rotation progress spreads load over time, and is
// mutex-guarded because concurrent requests rotate it freely.
type Pool struct {
	mu     sync.Mutex
	creds  []domain.Credential
	cursor int
	start  int
}

// NewPool builds a pool from the configured secrets. The cold-start cursor is
// chosen pseudo-randomly once, so many independent client processes sharing
// the same credential set do not all collide on index 0.
func NewPool(secrets []string) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("op=pool.new: no provider credentials configured")
	}
	creds := make([]domain.Credential, len(secrets))
	for i, s := range secrets {
		creds[i] = domain.Credential{Index: i, Secret: s}
	}
	start := rand.IntN(len(creds))
	return &Pool{creds: creds, cursor: start, start: start}, nil
}

// Active returns the credential at the current cursor.
func (p *Pool) Active() domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creds[p.cursor]
}

// Rotate advances the cursor modulo pool size and returns the new active
// credential.
func (p *Pool) Rotate() domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.creds)
	return p.creds[p.cursor]
}

// Rewind moves the cursor back to the pool's start position. The orchestrator
// calls this when the fallback chain advances so each model begins from the
// same credential.
func (p *Pool) Rewind() domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = p.start
	return p.creds[p.cursor]
}

// Size returns the number of credentials; the orchestrator uses it to bound
// attempts per model.
func (p *Pool) Size() int { return len(p.creds) }
