package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/resgo/resource"
)

func TestBuffered_StagedHandlesAreNotUsed(t *testing.T) {
	b, err := NewBuffered(1, 100, 4)
	require.NoError(t, err)

	id, err := b.Allocate()
	require.NoError(t, err)
	assert.Equal(t, resource.ID(1), id)
	assert.True(t, b.IsUsed(id))

	// the first refill reserved 2×mean handles
	assert.Equal(t, 7, b.Staged())
	for h := resource.ID(2); h <= 8; h++ {
		assert.False(t, b.IsUsed(h), "staged handle %d reported as used", h)
	}
	assert.Equal(t, 1, b.Len())
}

func TestBuffered_RefillBelowMean(t *testing.T) {
	b, err := NewBuffered(1, 100, 4)
	require.NoError(t, err)

	_, err = b.AllocateN(4)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Staged())

	_, err = b.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 3, b.Staged())

	_, err = b.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 7, b.Staged(), "refilled before popping")
}

func TestBuffered_IssuesInAscendingOrder(t *testing.T) {
	b, err := NewBuffered(1, 100, 2)
	require.NoError(t, err)

	ids, err := b.AllocateN(6)
	require.NoError(t, err)
	assert.Equal(t, []resource.ID{1, 2, 3, 4, 5, 6}, ids)
}

func TestBuffered_Exhaustion(t *testing.T) {
	b, err := NewBuffered(1, 10, 4)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := b.Allocate()
		require.NoError(t, err, "allocation %d", i)
	}
	_, err = b.Allocate()
	assert.ErrorIs(t, err, ErrOutOfHandles)
	assert.Equal(t, 10, b.Len())
}

func TestBuffered_ReleaseStagedIsNoop(t *testing.T) {
	b, err := NewBuffered(1, 10, 2)
	require.NoError(t, err)

	first, err := b.Allocate()
	require.NoError(t, err)

	staged := first + 1
	require.False(t, b.IsUsed(staged))
	b.Release(staged)

	seen := map[resource.ID]bool{first: true}
	for {
		id, err := b.Allocate()
		if err != nil {
			break
		}
		require.False(t, seen[id], "handle %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 10)
}

func TestBuffered_ReleaseRecycles(t *testing.T) {
	b, err := NewBuffered(1, 4, 1)
	require.NoError(t, err)

	ids, err := b.AllocateN(4)
	require.NoError(t, err)

	b.Release(ids[1])
	assert.False(t, b.IsUsed(ids[1]))
	assert.Equal(t, 3, b.Len())

	id, err := b.Allocate()
	require.NoError(t, err)
	assert.Equal(t, ids[1], id)
}

func TestBuffered_Flush(t *testing.T) {
	b, err := NewBuffered(1, 8, 2)
	require.NoError(t, err)

	_, err = b.Allocate()
	require.NoError(t, err)
	require.Positive(t, b.Staged())

	b.Flush()
	assert.Equal(t, 0, b.Staged())
	assert.Equal(t, 1, b.lin.Len())
}
