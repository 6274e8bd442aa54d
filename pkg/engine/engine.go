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

// Package engine implements the grouping, windowing and buffering dispatch queue.
//
// Producers Submit payloads and get a completion.Deferred back right away. The engine groups every payload by a
// key function, buffers it in its group, and emits a Batch when the group's in-progress chunk reaches the buffer
// size, or when Flush closes the current window of every group. Consumers read batches from a Subscription and
// settle every completion.Handle of every batch exactly once; that settlement is what the producer's Deferred
// observes.
//
// Submissions are only accepted while the engine is Active, and the engine becomes Active on the first Subscribe.
// Producers must therefore attach a consumer before submitting anything; earlier submissions are rejected with
// ErrQueueClosed, exactly like submissions made after Close.
//
// All events are applied under one lock, in the order they are issued: a Flush closes windows at its own position
// among concurrent Submit calls. Delivery to subscribers is asynchronous and never blocks producers.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/batchq/pkg/completion"
	"github.com/numaproj/batchq/pkg/emitter"
	"github.com/numaproj/batchq/pkg/metrics"
	"github.com/numaproj/batchq/pkg/router"
	"github.com/numaproj/batchq/pkg/shared/logging"
	"github.com/numaproj/batchq/pkg/window"
)

// Batch is a chunk of one group's items, in submission order.
type Batch[T any, G comparable, R any] struct {
	Group G
	Items []*completion.Handle[T, R]
	// Window is the epoch the items were submitted in
	Window window.ID
	// Trigger is window.Full for chunks of exactly the buffer size, window.Flush for the partial rest of a window
	Trigger window.Trigger
}

// Payloads returns the payloads of the batch items, in order.
func (b Batch[T, G, R]) Payloads() []T {
	payloads := make([]T, len(b.Items))
	for i, h := range b.Items {
		payloads[i] = h.Payload()
	}
	return payloads
}

// Stats is a point-in-time view of an engine. Pending counts the items waiting in in-progress chunks, WindowItems
// the items submitted since the last flush.
type Stats struct {
	State         State
	Groups        int
	Pending       int
	WindowItems   int
	Subscriptions int
}

// Engine is the dispatch queue. T is the payload, G the group key and R the result consumers settle handles with.
type Engine[T any, G comparable, R any] struct {
	name       string
	bufferSize int
	// mu serialises every event: Submit, Flush, Subscribe and Close
	mu      sync.Mutex
	state   *atomic.Int32
	router  *router.Router[*completion.Handle[T, R], G]
	emitter *emitter.Emitter[Batch[T, G, R]]
	log     *zap.SugaredLogger
}

// New returns an Uninitialized engine grouping payloads with keyFn into batches of bufferSize items.
func New[T any, G comparable, R any](ctx context.Context, keyFn router.KeyFunc[T, G], bufferSize int, opts ...Option) (*Engine[T, G, R], error) {
	if bufferSize < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBufferSize, bufferSize)
	}
	if keyFn == nil {
		return nil, fmt.Errorf("grouping function is required")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			if err := opt(o); err != nil {
				return nil, err
			}
		}
	}

	log := logging.FromContext(ctx).Named("engine").With("queue", o.name)
	ctx = logging.WithLogger(ctx, log)

	e := &Engine[T, G, R]{
		name:       o.name,
		bufferSize: bufferSize,
		state:      atomic.NewInt32(int32(Uninitialized)),
		log:        log,
	}

	em, err := emitter.New[Batch[T, G, R]](ctx, o.name, emitter.WithChannelBufferSize(o.subscriptionBufferSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create emitter, %w", err)
	}
	e.emitter = em

	handleKey := func(h *completion.Handle[T, R]) G {
		return keyFn(h.Payload())
	}
	r, err := router.NewRouter[*completion.Handle[T, R], G](ctx, o.name, bufferSize, handleKey, e.emit)
	if err != nil {
		return nil, fmt.Errorf("failed to create router, %w", err)
	}
	e.router = r

	log.Infow("Created engine", zap.Int("bufferSize", bufferSize))
	return e, nil
}

// Submit hands payload to the engine and returns its deferred result. It never blocks. If the engine is not Active
// the deferred is already rejected with ErrQueueClosed and the payload is dropped.
func (e *Engine[T, G, R]) Submit(payload T) *completion.Deferred[R] {
	e.mu.Lock()
	if e.State() != Active {
		state := e.State()
		e.mu.Unlock()
		rejectedCount.With(map[string]string{metrics.LabelQueue: e.name}).Inc()
		h, d := completion.New[T, R](payload)
		_ = h.Reject(ErrQueueClosed)
		e.log.Debugw("Rejected submission", zap.String("state", state.String()), zap.String("id", h.ID()))
		return d
	}
	defer e.mu.Unlock()

	h, d := completion.New[T, R](payload, completion.WithOnSettle(e.observeSettle))
	submittedCount.With(map[string]string{metrics.LabelQueue: e.name}).Inc()
	e.router.Route(h)
	return d
}

// Flush closes the current window of every group. Each group with items left in its in-progress chunk emits them
// as a partial batch; groups without such items emit nothing. Flush is a no-op unless the engine is Active.
func (e *Engine[T, G, R]) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != Active {
		e.log.Debugw("Ignoring flush", zap.String("state", e.State().String()))
		return
	}
	flushCount.With(map[string]string{metrics.LabelQueue: e.name}).Inc()
	e.router.CloseWindows()
}

// Subscribe attaches a consumer to the emission channel. The subscription receives every batch emitted from now on.
// The first Subscribe moves the engine from Uninitialized to Active; before that, submissions are rejected. On a
// Closed engine the subscription's channel is already closed.
func (e *Engine[T, G, R]) Subscribe() *emitter.Subscription[Batch[T, G, R]] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.CompareAndSwap(int32(Uninitialized), int32(Active)) {
		e.log.Infow("Engine activated")
	}
	return e.emitter.Subscribe()
}

// Close moves the engine to Closed. The current window of every group is closed first, so every accepted item is
// emitted, then the emission channel is closed. Close waits until every subscription received the batches already
// emitted to it, or ctx is done. Closing a closed engine is a no-op.
func (e *Engine[T, G, R]) Close(ctx context.Context) error {
	e.mu.Lock()
	prev := State(e.state.Swap(int32(Closed)))
	if prev == Closed {
		e.mu.Unlock()
		return nil
	}
	if prev == Active {
		e.router.CloseWindows()
	}
	e.emitter.Close()
	e.mu.Unlock()

	e.log.Infow("Engine closed", zap.String("previous", prev.String()))
	if err := e.emitter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to drain subscriptions, %w", err)
	}
	return nil
}

// State returns the lifecycle state.
func (e *Engine[T, G, R]) State() State {
	return State(e.state.Load())
}

// Stats returns a snapshot of the engine.
func (e *Engine[T, G, R]) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		State:         e.State(),
		Groups:        e.router.Len(),
		Pending:       e.router.Pending(),
		WindowItems:   e.router.WindowItems(),
		Subscriptions: e.emitter.Len(),
	}
}

// BufferSize returns the configured chunk size.
func (e *Engine[T, G, R]) BufferSize() int {
	return e.bufferSize
}

// emit is called by the router, with mu held, for every chunk of every group.
func (e *Engine[T, G, R]) emit(group G, chunk window.Chunk[*completion.Handle[T, R]]) {
	b := Batch[T, G, R]{
		Group:   group,
		Items:   chunk.Elements,
		Window:  chunk.Window,
		Trigger: chunk.Trigger,
	}
	e.emitter.Publish(b)
	batchesEmittedCount.With(map[string]string{metrics.LabelQueue: e.name, metrics.LabelTrigger: chunk.Trigger.String()}).Inc()
	batchSize.With(map[string]string{metrics.LabelQueue: e.name}).Observe(float64(len(chunk.Elements)))
	e.log.Debugw("Emitted batch", zap.Any("group", group), zap.Uint64("window", uint64(chunk.Window)),
		zap.String("trigger", chunk.Trigger.String()), zap.Int("size", len(chunk.Elements)))
}

func (e *Engine[T, G, R]) observeSettle(o completion.Outcome) {
	settledCount.With(map[string]string{metrics.LabelQueue: e.name, metrics.LabelOutcome: o.String()}).Inc()
}
