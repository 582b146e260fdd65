package fetch

import (
	"context"
	"log/slog"
)

// Future is the pending result of a submitted fetch.
type Future[T any] struct {
	done   chan struct{}
	value  T
	ok     bool
	logger *slog.Logger
	op     string
	url    string
}

func newFuture[T any](logger *slog.Logger, op, url string) *Future[T] {
	return &Future[T]{done: make(chan struct{}), logger: logger, op: op, url: url}
}

// Done is closed once the fetch, teardown included, has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the fetch finishes or ctx is done. Giving up on ctx
// does not stop the fetch; its session is still torn down in the background.
func (f *Future[T]) Wait(ctx context.Context) (T, bool) {
	select {
	case <-f.done:
		return f.value, f.ok
	default:
	}

	select {
	case <-f.done:
		return f.value, f.ok
	case <-ctx.Done():
		f.logger.Warn("stopped waiting for fetch", "op", f.op, "url", f.url, "error", ctx.Err())
		var zero T
		return zero, false
	}
}
