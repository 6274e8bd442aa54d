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

// Package emitter implements the emission channel, a multicast of published values to every live subscription.
// Each subscription owns an unbounded FIFO drained by its own goroutine, so Publish never waits for a slow reader
// and one reader never delays another. There is no replay: a subscription only sees values published after it was
// created.
package emitter

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/batchq/pkg/metrics"
	"github.com/numaproj/batchq/pkg/shared/logging"
)

type options struct {
	// channelBufferSize is the capacity of every subscription's output channel
	channelBufferSize int
}

// Option configures an Emitter.
type Option func(*options) error

// WithChannelBufferSize sets the capacity of the channel returned by Subscription.C.
func WithChannelBufferSize(size int) Option {
	return func(o *options) error {
		if size < 0 {
			return fmt.Errorf("channel buffer size must not be negative, got %d", size)
		}
		o.channelBufferSize = size
		return nil
	}
}

// Emitter broadcasts values to its subscriptions.
type Emitter[B any] struct {
	name   string
	opts   *options
	mu     sync.Mutex
	subs   map[uint64]*Subscription[B]
	nextID uint64
	closed bool
	// drained holds the subscriptions being drained after Close
	drained []*Subscription[B]
	log     *zap.SugaredLogger
}

// New returns an emitter. name is used as the metrics label and in logs.
func New[B any](ctx context.Context, name string, opts ...Option) (*Emitter[B], error) {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			if err := opt(o); err != nil {
				return nil, err
			}
		}
	}
	subscriptionCount.With(map[string]string{metrics.LabelQueue: name}).Set(0)
	pendingCount.With(map[string]string{metrics.LabelQueue: name}).Set(0)
	return &Emitter[B]{
		name: name,
		opts: o,
		subs: make(map[uint64]*Subscription[B]),
		log:  logging.FromContext(ctx).With("emitter", name),
	}, nil
}

// Subscribe returns a new subscription receiving every value published from now on. On a closed emitter the
// returned subscription's channel is already closed.
func (e *Emitter[B]) Subscribe() *Subscription[B] {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	s := newSubscription[B](id, e, e.opts.channelBufferSize)
	if e.closed {
		close(s.out)
		close(s.done)
		return s
	}
	e.subs[id] = s
	go s.run()
	subscriptionCount.With(map[string]string{metrics.LabelQueue: e.name}).Inc()
	e.log.Debugw("Added subscription", zap.Uint64("subscription", id))
	return s
}

// Publish hands v to every live subscription, in publish order. It never blocks on readers. It returns false if
// the emitter is closed.
func (e *Emitter[B]) Publish(v B) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	for _, s := range e.subs {
		if s.enqueue(v) {
			e.addPending(1)
		}
	}
	return true
}

// Len returns the number of live subscriptions.
func (e *Emitter[B]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Close stops publishing. Every live subscription delivers the values already published to it and then closes its
// channel. Close does not wait for that, use Wait.
func (e *Emitter[B]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for id, s := range e.subs {
		s.finish()
		e.drained = append(e.drained, s)
		delete(e.subs, id)
	}
	subscriptionCount.With(map[string]string{metrics.LabelQueue: e.name}).Set(0)
	e.log.Infow("Closed emitter", zap.Int("draining", len(e.drained)))
}

// Wait blocks until every subscription drained by Close has delivered its values, or ctx is done. The returned
// error names each subscription that did not drain in time.
func (e *Emitter[B]) Wait(ctx context.Context) error {
	e.mu.Lock()
	drained := make([]*Subscription[B], len(e.drained))
	copy(drained, e.drained)
	e.mu.Unlock()

	var err error
	for _, s := range drained {
		select {
		case <-s.done:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("subscription %d not drained: %w", s.id, ctx.Err()))
		}
	}
	return err
}

func (e *Emitter[B]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[id]; ok {
		delete(e.subs, id)
		subscriptionCount.With(map[string]string{metrics.LabelQueue: e.name}).Dec()
		e.log.Debugw("Removed subscription", zap.Uint64("subscription", id))
	}
}

func (e *Emitter[B]) addPending(delta int64) {
	pendingCount.With(map[string]string{metrics.LabelQueue: e.name}).Add(float64(delta))
}
