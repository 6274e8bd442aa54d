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

// Package buffer implements the per-group batch buffer. A buffer accumulates elements into an in-progress chunk of
// a fixed size. A chunk is handed back to the writer as soon as it is full; whatever is left when the owning window
// closes is drained as a partial chunk.
//
// A buffer is not safe for concurrent use, it is owned by exactly one window segmenter.
package buffer

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("buffer size must be positive")

// Buffer accumulates elements into chunks of Size elements.
type Buffer[E any] struct {
	size  int
	chunk []E
}

// New returns a buffer which emits chunks of the given size.
func New[E any](size int) (*Buffer[E], error) {
	if size < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, size)
	}
	return &Buffer[E]{
		size:  size,
		chunk: make([]E, 0, size),
	}, nil
}

// Write appends elem to the in-progress chunk. When the chunk reaches the configured size it is returned with
// full set to true, and the buffer starts a new chunk.
func (b *Buffer[E]) Write(elem E) (chunk []E, full bool) {
	b.chunk = append(b.chunk, elem)
	if len(b.chunk) < b.size {
		return nil, false
	}
	chunk = b.chunk
	b.chunk = make([]E, 0, b.size)
	return chunk, true
}

// Drain returns the in-progress chunk, nil if it is empty, and resets the buffer.
func (b *Buffer[E]) Drain() []E {
	if len(b.chunk) == 0 {
		return nil
	}
	chunk := b.chunk
	b.chunk = make([]E, 0, b.size)
	return chunk
}

// Len returns the number of elements in the in-progress chunk.
func (b *Buffer[E]) Len() int {
	return len(b.chunk)
}

// Size returns the configured chunk size.
func (b *Buffer[E]) Size() int {
	return b.size
}
