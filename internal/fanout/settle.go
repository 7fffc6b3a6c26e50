package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type notConfiguredError string

func (e notConfiguredError) Error() string { return string(e) + " is not configured" }

func errNotConfigured(what string) error { return notConfiguredError(what) }

// settleAll runs fn for every item with at most limit in flight and returns
// one Outcome per item, in input order. A failing or panicking item never
// stops the others.
func settleAll[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) Outcome) []Outcome {
	out := make([]Outcome, len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					out[i] = Outcome{Err: fmt.Errorf("delivery panicked: %v", r)}
				}
			}()
			out[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func countSuccess(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
