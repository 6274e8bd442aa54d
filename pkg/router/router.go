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

// Package router classifies elements into groups and owns the per-group pipelines. A pipeline (window segmenter
// plus batch buffer) is created the first time a group key is seen and lives as long as the router. Pipelines are
// independent of each other, except that CloseWindows closes the current window of all of them at once.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/batchq/pkg/buffer"
	"github.com/numaproj/batchq/pkg/metrics"
	"github.com/numaproj/batchq/pkg/shared/logging"
	"github.com/numaproj/batchq/pkg/window"
)

// KeyFunc maps a value to its group key. It must be total, pure and deterministic.
type KeyFunc[T any, G comparable] func(T) G

// EmitFunc receives every chunk emitted by any group, tagged with the group key.
type EmitFunc[E any, G comparable] func(group G, chunk window.Chunk[E])

// Router helps in managing the lifecycle of the per-group pipelines.
// It is not safe for concurrent use; callers serialise Route and CloseWindows.
type Router[E any, G comparable] struct {
	name       string
	size       int
	keyFn      KeyFunc[E, G]
	emit       EmitFunc[E, G]
	segmenters map[G]*window.Segmenter[E]
	// groups in the order they were first seen, so that CloseWindows emits deterministically
	order []G
	epoch window.ID
	// pending is the number of elements sitting in in-progress chunks across groups
	pending int
	log     *zap.SugaredLogger
}

// NewRouter returns a router which chunks every group by size elements.
func NewRouter[E any, G comparable](ctx context.Context, name string, size int, keyFn KeyFunc[E, G], emit EmitFunc[E, G]) (*Router[E, G], error) {
	if size < 1 {
		return nil, fmt.Errorf("%w, got %d", buffer.ErrInvalidSize, size)
	}
	if keyFn == nil {
		return nil, fmt.Errorf("key function is required")
	}
	if emit == nil {
		return nil, fmt.Errorf("emit function is required")
	}
	r := &Router[E, G]{
		name:       name,
		size:       size,
		keyFn:      keyFn,
		emit:       emit,
		segmenters: make(map[G]*window.Segmenter[E]),
		log:        logging.FromContext(ctx).With("router", name),
	}
	activeGroupCount.With(map[string]string{metrics.LabelQueue: name}).Set(0)
	pendingItemCount.With(map[string]string{metrics.LabelQueue: name}).Set(0)
	return r, nil
}

// Route classifies elem and appends it to its group's current window.
func (r *Router[E, G]) Route(elem E) {
	g := r.keyFn(elem)
	seg := r.segmenters[g]
	if seg == nil {
		seg = r.register(g)
	}
	before := seg.Pending()
	seg.Append(elem)
	r.pending += seg.Pending() - before
	pendingItemCount.With(map[string]string{metrics.LabelQueue: r.name}).Set(float64(r.pending))
}

// CloseWindows closes the current window of every group, emitting the partial chunks, and returns how many chunks
// were emitted. Groups are visited in the order they were first seen.
func (r *Router[E, G]) CloseWindows() int {
	items := r.WindowItems()
	emitted := 0
	for _, g := range r.order {
		if r.segmenters[g].Close() {
			emitted++
		}
	}
	r.epoch++
	r.pending = 0
	pendingItemCount.With(map[string]string{metrics.LabelQueue: r.name}).Set(0)
	r.log.Debugw("Closed windows", zap.Uint64("window", uint64(r.epoch-1)), zap.Int("groups", len(r.order)),
		zap.Int("items", items), zap.Int("emitted", emitted))
	return emitted
}

// Groups returns the group keys seen so far, in first-seen order.
func (r *Router[E, G]) Groups() []G {
	groups := make([]G, len(r.order))
	copy(groups, r.order)
	return groups
}

// Len returns the number of groups seen so far.
func (r *Router[E, G]) Len() int {
	return len(r.order)
}

// Pending returns the number of elements waiting in in-progress chunks across all groups.
func (r *Router[E, G]) Pending() int {
	return r.pending
}

// WindowItems returns the number of elements routed since the current window opened, including those already
// emitted in full chunks.
func (r *Router[E, G]) WindowItems() int {
	n := 0
	for _, g := range r.order {
		n += r.segmenters[g].Count()
	}
	return n
}

// Epoch returns the ID of the currently open window.
func (r *Router[E, G]) Epoch() window.ID {
	return r.epoch
}

// register creates the pipeline for a new group. Its first window is the current epoch.
func (r *Router[E, G]) register(g G) *window.Segmenter[E] {
	seg, err := window.NewSegmenter[E](r.epoch, r.size, func(chunk window.Chunk[E]) {
		r.emit(g, chunk)
	})
	if err != nil {
		// size was validated by NewRouter
		panic(err)
	}
	r.segmenters[g] = seg
	r.order = append(r.order, g)
	activeGroupCount.With(map[string]string{metrics.LabelQueue: r.name}).Inc()
	r.log.Debugw("Registered new group", zap.Any("group", g), zap.Uint64("window", uint64(r.epoch)))
	return seg
}
