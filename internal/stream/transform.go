package stream

import (
	"context"
	"errors"
	"io"
)

type mappedSource[T, U any] struct {
	src Source[T]
	fn  func(context.Context, T) (U, error)
}

// Transform maps every item of src through fn. Terminal states pass
// through untouched; an fn failure ends the stream with that error.
func Transform[T, U any](src Source[T], fn func(context.Context, T) (U, error)) Source[U] {
	return &mappedSource[T, U]{src: src, fn: fn}
}

func (m *mappedSource[T, U]) Recv(ctx context.Context) (U, error) {
	var zero U
	v, err := m.src.Recv(ctx)
	if err != nil {
		return zero, err
	}
	return m.fn(ctx, v)
}

type batchedSource[T any] struct {
	src  Source[T]
	size int
	done bool
}

// Batch groups items of src into fixed-size slices. The final partial group
// is flushed when the source ends.
func Batch[T any](src Source[T], size int) Source[[]T] {
	if size < 1 {
		size = 1
	}
	return &batchedSource[T]{src: src, size: size}
}

func (b *batchedSource[T]) Recv(ctx context.Context) ([]T, error) {
	if b.done {
		return nil, io.EOF
	}
	var group []T
	for len(group) < b.size {
		v, err := b.src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			b.done = true
			if len(group) > 0 {
				return group, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		group = append(group, v)
	}
	return group, nil
}
