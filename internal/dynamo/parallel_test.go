package dynamo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeReduceMatchesSequentialSum(t *testing.T) {
	pool := NewPool(3)
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		vecs := make([][]float64, n)
		want := make([]float64, 4)
		for i := range vecs {
			vecs[i] = []float64{float64(i + 1), float64(i * i), -float64(i), 0.5}
			for k, v := range vecs[i] {
				want[k] += v
			}
		}

		got := pool.TreeReduce(vecs)
		require.Len(t, got, 4)
		assert.InDeltaSlice(t, want, got, 1e-12, "n=%d", n)
	}
}

func TestTreeReduceEmpty(t *testing.T) {
	if got := NewPool(2).TreeReduce(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestPoolForVisitsEveryIndex(t *testing.T) {
	pool := NewPool(4)
	seen := make([]int32, 100)
	err := pool.For(context.Background(), len(seen), func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	require.NoError(t, err)
	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestPoolForReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := NewPool(2).For(context.Background(), 10, func(i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestPoolForCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewPool(2).For(ctx, 5, func(int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelForCoversRange(t *testing.T) {
	pool := NewPool(4)
	var total int64
	pool.ParallelFor(1000, 16, func(start, end int) {
		atomic.AddInt64(&total, int64(end-start))
	})
	if total != 1000 {
		t.Errorf("expected 1000 indices, got %d", total)
	}
}
