package pagination

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
)

// ErrConsumed is yielded when a Result is iterated a second time.
var ErrConsumed = errors.New("paginated result already consumed")

// Page is one fetched page. Next is the cursor of the following page, empty
// on the last page.
type Page[T any] struct {
	Items []T
	Next  string
}

// FirstFunc fetches the first page.
type FirstFunc[T any] func(ctx context.Context) (Page[T], error)

// NextFunc fetches the page behind a cursor returned by an earlier page.
type NextFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Result is a lazy, single-use sequence of pages. Nothing is fetched until it
// is iterated, and each page is fetched only when the consumer asks for it.
//
// A Result is meant to be consumed by one goroutine.
type Result[T any] struct {
	first    FirstFunc[T]
	next     NextFunc[T]
	consumed atomic.Bool
}

// New creates a Result from the first page fetcher and the cursor follower.
func New[T any](first FirstFunc[T], next NextFunc[T]) *Result[T] {
	return &Result[T]{first: first, next: next}
}

// Pages iterates page by page. A fetch error is yielded once, at the page
// that failed, and ends the iteration. Breaking out of the loop stops all
// further fetches.
func (r *Result[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		if r.consumed.Swap(true) {
			yield(nil, ErrConsumed)
			return
		}

		page, err := r.first(ctx)
		for {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page.Items, nil) {
				return
			}
			if page.Next == "" {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err = r.next(ctx, page.Next)
		}
	}
}

// Items iterates item by item over the same page stream.
func (r *Result[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for items, err := range r.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the result into a slice. On error the items gathered so far
// are returned alongside it.
func (r *Result[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for item, err := range r.Items(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Take collects at most n items and stops fetching once it has them.
func (r *Result[T]) Take(ctx context.Context, n int) ([]T, error) {
	out := make([]T, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	for item, err := range r.Items(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
		if len(out) == n {
			break
		}
	}
	return out, nil
}
