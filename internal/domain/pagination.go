package domain

import (
	"context"
	"fmt"
)

// DefaultMaxPages bounds a page sequence that never returns a short page
const DefaultMaxPages = 1000

// PageFetcher fetches one page. Pages are numbered from 1.
type PageFetcher[T any] func(ctx context.Context, page, pageSize int) ([]T, error)

// PageSequence is a lazy, restartable iterator over pages. It ends on an
// empty page, after a page shorter than the page size, or on the first
// fetch error.
type PageSequence[T any] struct {
	fetch    PageFetcher[T]
	pageSize int
	maxPages int

	page int
	done bool
	err  error
}

// NewPageSequence creates a sequence positioned before the first page
func NewPageSequence[T any](pageSize int, fetch PageFetcher[T]) *PageSequence[T] {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &PageSequence[T]{
		fetch:    fetch,
		pageSize: pageSize,
		maxPages: DefaultMaxPages,
	}
}

// WithMaxPages overrides the page guard
func (s *PageSequence[T]) WithMaxPages(n int) *PageSequence[T] {
	if n > 0 {
		s.maxPages = n
	}
	return s
}

// PageSize returns the configured page size
func (s *PageSequence[T]) PageSize() int { return s.pageSize }

// Next fetches the next page. It returns false when the sequence is
// exhausted or failed; check Err to tell the two apart.
func (s *PageSequence[T]) Next(ctx context.Context) ([]T, bool) {
	if s.done {
		return nil, false
	}
	if s.page >= s.maxPages {
		s.done = true
		s.err = fmt.Errorf("%w: stopped after %d pages", ErrPageLimitExceeded, s.maxPages)
		return nil, false
	}
	if err := ctx.Err(); err != nil {
		s.done = true
		s.err = err
		return nil, false
	}

	s.page++
	items, err := s.fetch(ctx, s.page, s.pageSize)
	if err != nil {
		s.done = true
		s.err = fmt.Errorf("fetch page %d: %w", s.page, err)
		return nil, false
	}
	if len(items) == 0 {
		s.done = true
		return nil, false
	}
	if len(items) < s.pageSize {
		s.done = true
	}
	return items, true
}

// Err returns the error that ended the sequence, if any
func (s *PageSequence[T]) Err() error { return s.err }

// Reset rewinds the sequence to the first page
func (s *PageSequence[T]) Reset() {
	s.page = 0
	s.done = false
	s.err = nil
}

// CollectAll drains the sequence from the start
func CollectAll[T any](ctx context.Context, s *PageSequence[T]) ([]T, error) {
	s.Reset()
	var out []T
	for {
		items, ok := s.Next(ctx)
		if !ok {
			break
		}
		out = append(out, items...)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
