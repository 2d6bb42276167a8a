// Package common contains the helpers shared by cutoff projects. Subpackages hold the buffers,
// collections, URN handling, file system helpers, logging setup and the durable spool.
package common

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"
)

// PanicError is returned by [Handle.Join] when the spawned function panicked.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("goroutine %q panicked: %v", e.Name, e.Value)
}

// Handle waits for a goroutine started by [Spawn].
type Handle[T any] struct {
	name   string
	done   chan struct{}
	result T
	err    error
}

// Spawn runs fn in a new goroutine labelled thread=name for profiles.
func Spawn[T any](name string, fn func() T) *Handle[T] {
	h := &Handle[T]{
		name: name,
		done: make(chan struct{}),
	}
	go pprof.Do(context.Background(), pprof.Labels("thread", name), func(context.Context) {
		defer close(h.done)
		defer func() {
			if v := recover(); v != nil {
				h.err = &PanicError{Name: name, Value: v, Stack: debug.Stack()}
			}
		}()
		h.result = fn()
	})
	return h
}

func (h *Handle[T]) Name() string {
	return h.name
}

// Done is closed when the goroutine returns.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Join blocks until the goroutine returns and gives back its result.
func (h *Handle[T]) Join() (T, error) {
	<-h.done
	return h.result, h.err
}
