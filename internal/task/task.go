// Package task provides the asynchronous unit of work handed between the
// HTTP server and the application. A Task does nothing until it is run.
package task

import (
	"context"
	"errors"
	"fmt"
)

// Task is a deferred computation producing a T or an error.
type Task[T any] func(ctx context.Context) (T, error)

// Succeed returns a task that yields v without doing any work.
func Succeed[T any](v T) Task[T] {
	return func(context.Context) (T, error) {
		return v, nil
	}
}

// Fail returns a task that always fails with err.
func Fail[T any](err error) Task[T] {
	return func(context.Context) (T, error) {
		var zero T
		return zero, err
	}
}

// From wraps a plain function as a task.
func From[T any](fn func() (T, error)) Task[T] {
	return func(context.Context) (T, error) {
		return fn()
	}
}

// Run executes the task. A cancelled context fails the task before it starts.
// A panic inside the task is returned as an error.
func (t Task[T]) Run(ctx context.Context) (v T, err error) {
	if err := ctx.Err(); err != nil {
		return v, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t(ctx)
}

// AndThen runs t and feeds its result into f. The task returned by f runs
// only if t succeeded.
func AndThen[A, B any](t Task[A], f func(A) Task[B]) Task[B] {
	return func(ctx context.Context) (B, error) {
		a, err := t.Run(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(a).Run(ctx)
	}
}

// Map transforms the result of a successful task.
func Map[A, B any](t Task[A], f func(A) B) Task[B] {
	return func(ctx context.Context) (B, error) {
		a, err := t.Run(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(a), nil
	}
}

// OnError lets a failed task recover by running the task returned by f.
func OnError[T any](t Task[T], f func(error) Task[T]) Task[T] {
	return func(ctx context.Context) (T, error) {
		v, err := t.Run(ctx)
		if err == nil {
			return v, nil
		}
		return f(err).Run(ctx)
	}
}

// Chain runs t and then every step in order, passing each result to the next
// step. The first failure stops the chain.
func Chain[T any](t Task[T], steps ...func(T) Task[T]) Task[T] {
	for _, step := range steps {
		t = AndThen(t, step)
	}
	return t
}

// Result carries the outcome of a performed task back to the caller.
type Result[T any] struct {
	Value T
	Err   error
}

// Perform runs t in its own goroutine and delivers toMsg(result) on out.
// The message is dropped if ctx is done before out accepts it.
func Perform[T, M any](ctx context.Context, t Task[T], toMsg func(Result[T]) M, out chan<- M) {
	go func() {
		v, err := t.Run(ctx)
		select {
		case out <- toMsg(Result[T]{Value: v, Err: err}):
		case <-ctx.Done():
		}
	}()
}

// ErrCancelled is returned by Sequence when ctx ends between tasks.
var ErrCancelled = errors.New("task sequence cancelled")

// Sequence runs tasks one after the other and collects their results.
func Sequence[T any](tasks ...Task[T]) Task[[]T] {
	return func(ctx context.Context) ([]T, error) {
		results := make([]T, 0, len(tasks))
		for _, t := range tasks {
			if ctx.Err() != nil {
				return results, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			v, err := t.Run(ctx)
			if err != nil {
				return results, err
			}
			results = append(results, v)
		}
		return results, nil
	}
}
