package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/keyring"
)

func TestNextIsMonotonic(t *testing.T) {
	seq := New(keyring.NewMemory())
	ctx := context.Background()

	var prev int64
	for i := 0; i < 10; i++ {
		n, err := seq.Next(ctx, 42)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestNextIsolatesUsers(t *testing.T) {
	seq := New(keyring.NewMemory())
	ctx := context.Background()

	n1, err := seq.Next(ctx, 1)
	require.NoError(t, err)
	n2, err := seq.Next(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(1), n2, "each user starts its own sequence")
}

func TestNextConcurrentCallersGetDistinctValues(t *testing.T) {
	seq := New(keyring.NewMemory())
	ctx := context.Background()

	const workers = 50
	results := make([]int64, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			n, err := seq.Next(ctx, 7)
			assert.NoError(t, err)
			results[idx] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i := 0; i < workers; i++ {
		assert.Equal(t, int64(i+1), results[i], "nonces must be distinct and gap-free")
	}
}
