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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/batchq/pkg/buffer"
)

type recorder[E any] struct {
	chunks []Chunk[E]
}

func (r *recorder[E]) emit(c Chunk[E]) {
	r.chunks = append(r.chunks, c)
}

func TestNewSegmenter_InvalidSize(t *testing.T) {
	s, err := NewSegmenter[int](0, 0, func(Chunk[int]) {})
	assert.ErrorIs(t, err, buffer.ErrInvalidSize)
	assert.Nil(t, s)
}

func TestSegmenter_FullChunkBeforeFlush(t *testing.T) {
	r := &recorder[string]{}
	s, err := NewSegmenter[string](0, 2, r.emit)
	assert.NoError(t, err)

	s.Append("A")
	assert.Empty(t, r.chunks)
	s.Append("B")
	assert.Equal(t, []Chunk[string]{{Window: 0, Trigger: Full, Elements: []string{"A", "B"}}}, r.chunks)
	s.Append("C")
	assert.Len(t, r.chunks, 1)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 1, s.Pending())

	assert.True(t, s.Close())
	assert.Equal(t, Chunk[string]{Window: 0, Trigger: Flush, Elements: []string{"C"}}, r.chunks[1])
	assert.Equal(t, ID(1), s.Current())
	assert.Equal(t, 0, s.Count())
}

func TestSegmenter_EmptyWindowIsSilent(t *testing.T) {
	r := &recorder[int]{}
	s, _ := NewSegmenter[int](5, 3, r.emit)

	assert.False(t, s.Close())
	assert.False(t, s.Close())
	assert.Empty(t, r.chunks)
	assert.Equal(t, ID(7), s.Current())
}

func TestSegmenter_WindowAlignedWithFullChunk(t *testing.T) {
	r := &recorder[int]{}
	s, _ := NewSegmenter[int](0, 2, r.emit)

	s.Append(1)
	s.Append(2)
	// the window holds items, but they already left as a full chunk
	assert.False(t, s.Close())
	assert.Len(t, r.chunks, 1)
	assert.Equal(t, Full, r.chunks[0].Trigger)
}

func TestSegmenter_ConsecutiveWindows(t *testing.T) {
	r := &recorder[int]{}
	s, _ := NewSegmenter[int](0, 10, r.emit)

	s.Append(1)
	s.Close()
	s.Append(2)
	s.Append(3)
	s.Close()

	assert.Equal(t, []Chunk[int]{
		{Window: 0, Trigger: Flush, Elements: []int{1}},
		{Window: 1, Trigger: Flush, Elements: []int{2, 3}},
	}, r.chunks)
}

func TestTrigger_String(t *testing.T) {
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "flush", Flush.String())
	assert.Equal(t, "unknown", Trigger(7).String())
}
