package keypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyPool(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestAcquireWithinPoolSize(t *testing.T) {
	pool, err := New([]string{"k1", "k2", "k3"})
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2"}, pool.Acquire(2))
}

func TestAcquireRoundRobinWhenPoolSmaller(t *testing.T) {
	pool, err := New([]string{"k1", "k2"})
	require.NoError(t, err)

	// Assignment i must use keys[i mod size]: deterministic, not random.
	assert.Equal(t, []string{"k1", "k2", "k1", "k2", "k1"}, pool.Acquire(5))
}

func TestAcquireDoesNotMutatePool(t *testing.T) {
	source := []string{"k1", "k2"}
	pool, err := New(source)
	require.NoError(t, err)

	source[0] = "mutated"
	assert.Equal(t, []string{"k1"}, pool.Acquire(1))
	assert.Equal(t, 2, pool.Size())
}
