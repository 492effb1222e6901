package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetcher(sizes []int, calls *int) PageFetcher[int] {
	return func(_ context.Context, page, _ int) ([]int, error) {
		*calls++
		if page > len(sizes) {
			return nil, nil
		}
		return make([]int, sizes[page-1]), nil
	}
}

func TestPageSequenceStopsOnShortPage(t *testing.T) {
	calls := 0
	seq := NewPageSequence(10, countingFetcher([]int{10, 10, 3, 10}, &calls))

	items, err := CollectAll(context.Background(), seq)

	require.NoError(t, err)
	assert.Len(t, items, 23)
	assert.Equal(t, 3, calls)
}

func TestPageSequenceStopsOnEmptyPage(t *testing.T) {
	calls := 0
	seq := NewPageSequence(10, countingFetcher([]int{10, 10}, &calls))

	items, err := CollectAll(context.Background(), seq)

	require.NoError(t, err)
	assert.Len(t, items, 20)
	assert.Equal(t, 3, calls)
}

func TestPageSequenceIsRestartable(t *testing.T) {
	calls := 0
	seq := NewPageSequence(5, countingFetcher([]int{5, 1}, &calls))

	first, err := CollectAll(context.Background(), seq)
	require.NoError(t, err)
	second, err := CollectAll(context.Background(), seq)
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second))
	assert.Equal(t, 4, calls)
}

func TestPageSequenceFetchError(t *testing.T) {
	boom := errors.New("boom")
	seq := NewPageSequence(2, func(_ context.Context, page, size int) ([]int, error) {
		if page == 2 {
			return nil, boom
		}
		return make([]int, size), nil
	})

	_, err := CollectAll(context.Background(), seq)

	assert.ErrorIs(t, err, boom)
}

func TestPageSequenceMaxPages(t *testing.T) {
	seq := NewPageSequence(1, func(_ context.Context, _, size int) ([]int, error) {
		return make([]int, size), nil
	}).WithMaxPages(3)

	_, err := CollectAll(context.Background(), seq)

	assert.ErrorIs(t, err, ErrPageLimitExceeded)
}

func TestPageSequenceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	seq := NewPageSequence(10, countingFetcher([]int{10}, &calls))

	_, ok := seq.Next(ctx)

	assert.False(t, ok)
	assert.ErrorIs(t, seq.Err(), context.Canceled)
	assert.Zero(t, calls)
}
