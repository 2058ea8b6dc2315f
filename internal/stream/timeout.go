package stream

import (
	"context"
	"time"

	"idgaf/internal/fault"
)

type stepTimeoutSource[T any] struct {
	src     Source[T]
	timeout time.Duration
}

// WithStepTimeout wraps src so each individual Recv must complete within
// timeout. The budget resets on every produced item; it is not a
// total-duration limit. On expiry the producer is told to stop (Cancel is
// invoked when the source supports it) and a timeout-kind error is
// returned. Releasing native resources remains the adapter's unload
// responsibility.
func WithStepTimeout[T any](src Source[T], timeout time.Duration) Source[T] {
	return &stepTimeoutSource[T]{src: src, timeout: timeout}
}

func (s *stepTimeoutSource[T]) Recv(ctx context.Context) (T, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.src.Recv(stepCtx)
	if err != nil && stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		if c, ok := s.src.(interface{ Cancel() }); ok {
			c.Cancel()
		}
		var zero T
		return zero, fault.New(fault.KindTimeout, "stream produced no item within %s", s.timeout)
	}
	return v, err
}
