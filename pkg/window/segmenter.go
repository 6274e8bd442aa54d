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

package window

import (
	"github.com/numaproj/batchq/pkg/buffer"
)

// ID is the epoch of a window. It starts at 0 on activation and every flush increments it.
type ID uint64

// Trigger tells why a chunk was emitted.
type Trigger int

const (
	// Full chunks reached the configured buffer size.
	Full Trigger = iota
	// Flush chunks are the partial remainder of a window closed by a flush.
	Flush
)

func (t Trigger) String() string {
	switch t {
	case Full:
		return "full"
	case Flush:
		return "flush"
	default:
		return "unknown"
	}
}

// Chunk is an ordered run of elements of one group, emitted from one window.
type Chunk[E any] struct {
	Window   ID
	Trigger  Trigger
	Elements []E
}

// EmitFunc receives every chunk a segmenter emits, in emission order.
type EmitFunc[E any] func(Chunk[E])

// Segmenter delimits the windows of a single group and feeds the group's buffer.
// It is not safe for concurrent use.
type Segmenter[E any] struct {
	current ID
	// count of elements appended to the current window
	count int
	buf   *buffer.Buffer[E]
	emit  EmitFunc[E]
}

// NewSegmenter returns a segmenter whose first window is start. Groups created after some flushes start at the
// current epoch, so window IDs agree across groups.
func NewSegmenter[E any](start ID, size int, emit EmitFunc[E]) (*Segmenter[E], error) {
	buf, err := buffer.New[E](size)
	if err != nil {
		return nil, err
	}
	return &Segmenter[E]{
		current: start,
		buf:     buf,
		emit:    emit,
	}, nil
}

// Append adds elem to the current window. If the buffer fills up, the full chunk is emitted right away, regardless
// of the window boundary.
func (s *Segmenter[E]) Append(elem E) {
	s.count++
	if chunk, full := s.buf.Write(elem); full {
		s.emit(Chunk[E]{Window: s.current, Trigger: Full, Elements: chunk})
	}
}

// Close closes the current window and opens the next one. The partial chunk left in the buffer, if any, is emitted
// before the new window starts. It reports whether a chunk was emitted.
func (s *Segmenter[E]) Close() bool {
	closed := s.current
	s.current++
	s.count = 0
	chunk := s.buf.Drain()
	if len(chunk) == 0 {
		return false
	}
	s.emit(Chunk[E]{Window: closed, Trigger: Flush, Elements: chunk})
	return true
}

// Current returns the ID of the open window.
func (s *Segmenter[E]) Current() ID {
	return s.current
}

// Count returns how many elements were appended to the open window.
func (s *Segmenter[E]) Count() int {
	return s.count
}

// Pending returns how many elements wait in the buffer for the next chunk.
func (s *Segmenter[E]) Pending() int {
	return s.buf.Len()
}
