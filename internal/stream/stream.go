// Package stream provides the lazy, possibly unbounded sequence abstraction
// used to move elements between the invocation core and the transport
// adapters. A Seq carries values over an unbuffered channel, so a producer
// never runs more than one element ahead of its consumer.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// ErrCancelled is returned to a producer whose consumer has gone away.
var ErrCancelled = errors.New("sequence cancelled by consumer")

// Seq is a single-producer, single-consumer lazy sequence of cty values.
// The producer calls Emit zero or more times followed by exactly one Close
// or Fail. The consumer pulls with Next (or Collect) and may Cancel at any
// point to stop the producer.
type Seq struct {
	ch   chan cty.Value
	done chan struct{}

	cancelOnce sync.Once
	closeOnce  sync.Once

	mu  sync.Mutex
	err error
}

// New returns an empty, open sequence with no buffering.
func New() *Seq {
	return &Seq{
		ch:   make(chan cty.Value),
		done: make(chan struct{}),
	}
}

// FromValues returns a closed sequence pre-filled with the given values.
func FromValues(vals ...cty.Value) *Seq {
	s := &Seq{
		ch:   make(chan cty.Value, len(vals)),
		done: make(chan struct{}),
	}
	for _, v := range vals {
		s.ch <- v
	}
	s.Close()
	return s
}

// Emit delivers one value to the consumer, blocking until it is pulled.
// It returns ErrCancelled if the consumer cancelled, or the context error
// if ctx ends first.
func (s *Seq) Emit(ctx context.Context, v cty.Value) error {
	select {
	case s.ch <- v:
		return nil
	case <-s.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the sequence normally. It is idempotent and safe to call
// after Fail.
func (s *Seq) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Fail records a terminal error and ends the sequence. The consumer
// observes the error from Next or Collect after draining prior values.
func (s *Seq) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Cancel tells the producer to stop. Safe to call multiple times and
// concurrently with Emit.
func (s *Seq) Cancel() {
	s.cancelOnce.Do(func() { close(s.done) })
}

// Err returns the terminal error recorded by Fail, if any. Only meaningful
// once the sequence has ended.
func (s *Seq) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next pulls the next value. ok is false once the sequence has ended; the
// caller should then check Err. If ctx ends first, the sequence is
// cancelled and the context error returned.
func (s *Seq) Next(ctx context.Context) (v cty.Value, ok bool, err error) {
	select {
	case v, ok := <-s.ch:
		if !ok {
			return cty.NilVal, false, s.Err()
		}
		return v, true, nil
	case <-ctx.Done():
		s.Cancel()
		return cty.NilVal, false, ctx.Err()
	}
}

// Collect drains the sequence into a slice. On error it returns the
// elements received so far together with the terminal error.
func Collect(ctx context.Context, s *Seq) ([]cty.Value, error) {
	var out []cty.Value
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}
