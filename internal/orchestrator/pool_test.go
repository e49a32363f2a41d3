package orchestrator_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeacherMada/tutor-engine/internal/orchestrator"
)

func TestPool_Empty(t *testing.T) {
	t.Parallel()
	_, err := orchestrator.NewPool(nil)
	require.Error(t, err)
}

func TestPool_RotateWrapsAround(t *testing.T) {
	t.Parallel()
	p, err := orchestrator.NewPool([]string{"k0", "k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Size())

	seen := map[int]bool{p.Active().Index: true}
	for i := 0; i < 2; i++ {
		seen[p.Rotate().Index] = true
	}
	// Three successive positions cover the whole pool regardless of the
	// random cold-start cursor.
	assert.Len(t, seen, 3)

	// A full cycle returns to the starting credential.
	start := p.Active()
	for i := 0; i < 3; i++ {
		p.Rotate()
	}
	assert.Equal(t, start.Index, p.Active().Index)
}

func TestPool_RewindReturnsToStart(t *testing.T) {
	t.Parallel()
	p, err := orchestrator.NewPool([]string{"k0", "k1", "k2", "k3"})
	require.NoError(t, err)

	start := p.Active()
	p.Rotate()
	p.Rotate()
	assert.Equal(t, start.Index, p.Rewind().Index)
	assert.Equal(t, start.Index, p.Active().Index)
}

func TestPool_CredentialIdentity(t *testing.T) {
	t.Parallel()
	p, err := orchestrator.NewPool([]string{"secret-a", "secret-b"})
	require.NoError(t, err)
	first := p.Active()
	second := p.Rotate()
	assert.Contains(t, []string{"secret-a", "secret-b"}, first.Secret)
	assert.NotEqual(t, first.Secret, second.Secret)
	assert.NotEqual(t, first.Index, second.Index)
}

func TestPool_ConcurrentRotation(t *testing.T) {
	t.Parallel()
	p, err := orchestrator.NewPool([]string{"k0", "k1", "k2"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = p.Rotate()
				_ = p.Active()
			}
		}()
	}
	wg.Wait()
	// No correctness requirement on which credential wins, only that the
	// cursor stays in range without racing.
	assert.Less(t, p.Active().Index, 3)
}
