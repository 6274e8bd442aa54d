/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package completion implements single-fulfillment completion slots. A slot has two ends: the Handle travels with
// the submitted payload to whoever consumes it, and the Deferred stays with the producer. The consumer settles the
// Handle exactly once, with either a result or an error, and the producer observes that outcome through the Deferred.
package completion

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	// ErrAlreadySettled is returned when a handle is settled more than once. The first outcome is kept.
	ErrAlreadySettled = errors.New("completion handle already settled")
	// ErrNotSettled is returned by Deferred.Result while the handle is still pending.
	ErrNotSettled = errors.New("completion handle not settled yet")
	// ErrRejected replaces a nil error passed to Reject.
	ErrRejected = errors.New("completion handle rejected")
)

// Outcome is the final state of a completion slot.
type Outcome int32

const (
	Pending Outcome = iota
	Resolved
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// slot is shared by a Handle and its Deferred.
type slot[R any] struct {
	id string
	// claimed flips once; the winner writes the outcome and closes done
	claimed  *atomic.Bool
	outcome  Outcome
	value    R
	err      error
	done     chan struct{}
	onSettle func(Outcome)
}

func (s *slot[R]) settle(outcome Outcome, value R, err error) error {
	if !s.claimed.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	s.outcome = outcome
	s.value = value
	s.err = err
	close(s.done)
	if s.onSettle != nil {
		s.onSettle(outcome)
	}
	return nil
}

func (s *slot[R]) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Option configures a new completion slot.
type Option func(*options)

type options struct {
	onSettle func(Outcome)
}

// WithOnSettle registers a function invoked once, right after the slot settles.
func WithOnSettle(f func(Outcome)) Option {
	return func(o *options) {
		o.onSettle = f
	}
}

// New returns the two ends of a fresh completion slot for the given payload.
func New[T, R any](payload T, opts ...Option) (*Handle[T, R], *Deferred[R]) {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	s := &slot[R]{
		id:       uuid.NewString(),
		claimed:  atomic.NewBool(false),
		done:     make(chan struct{}),
		onSettle: o.onSettle,
	}
	return &Handle[T, R]{payload: payload, slot: s}, &Deferred[R]{slot: s}
}

// Handle is the consumer end of a completion slot. It carries the submitted payload.
type Handle[T, R any] struct {
	payload T
	slot    *slot[R]
}

// ID uniquely identifies the handle.
func (h *Handle[T, R]) ID() string {
	return h.slot.id
}

// Payload returns the payload submitted with this handle.
func (h *Handle[T, R]) Payload() T {
	return h.payload
}

// Resolve settles the handle successfully with value.
func (h *Handle[T, R]) Resolve(value R) error {
	return h.slot.settle(Resolved, value, nil)
}

// Reject settles the handle with err. A nil err is replaced by ErrRejected.
func (h *Handle[T, R]) Reject(err error) error {
	if err == nil {
		err = ErrRejected
	}
	var zero R
	return h.slot.settle(Rejected, zero, err)
}

// Settled reports whether Resolve or Reject has already taken effect.
func (h *Handle[T, R]) Settled() bool {
	return h.slot.settled()
}

// Deferred is the producer end of a completion slot.
type Deferred[R any] struct {
	slot *slot[R]
}

// ID returns the ID of the matching Handle.
func (d *Deferred[R]) ID() string {
	return d.slot.id
}

// Done is closed once the handle settles.
func (d *Deferred[R]) Done() <-chan struct{} {
	return d.slot.done
}

// Settled reports whether the handle has settled.
func (d *Deferred[R]) Settled() bool {
	return d.slot.settled()
}

// Outcome returns Pending until the handle settles.
func (d *Deferred[R]) Outcome() Outcome {
	if !d.slot.settled() {
		return Pending
	}
	return d.slot.outcome
}

// Result returns the outcome without blocking. It returns ErrNotSettled while the handle is pending.
func (d *Deferred[R]) Result() (R, error) {
	if !d.slot.settled() {
		var zero R
		return zero, ErrNotSettled
	}
	return d.slot.value, d.slot.err
}

// Wait blocks until the handle settles or ctx is done.
func (d *Deferred[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-d.slot.done:
		return d.slot.value, d.slot.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
