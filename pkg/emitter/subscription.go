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

package emitter

import (
	"sync"
)

// Subscription is one reader of an Emitter.
type Subscription[B any] struct {
	id      uint64
	emitter *Emitter[B]
	out     chan B

	mu    sync.Mutex
	queue []B
	// draining is set by Emitter.Close: deliver what is queued, then close out
	draining bool
	notify   chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newSubscription[B any](id uint64, e *Emitter[B], bufferSize int) *Subscription[B] {
	return &Subscription[B]{
		id:      id,
		emitter: e,
		out:     make(chan B, bufferSize),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID identifies the subscription within its emitter.
func (s *Subscription[B]) ID() uint64 {
	return s.id
}

// C returns the channel values are delivered on. It is closed after Close, or after the emitter closed and every
// value published before that was delivered.
func (s *Subscription[B]) C() <-chan B {
	return s.out
}

// Done is closed once the subscription stopped delivering.
func (s *Subscription[B]) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. Values not yet delivered are dropped. It returns once C is closed.
func (s *Subscription[B]) Close() {
	s.stopOnce.Do(func() {
		s.emitter.remove(s.id)
		close(s.stop)
	})
	<-s.done
}

func (s *Subscription[B]) enqueue(v B) bool {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.wake()
	return true
}

func (s *Subscription[B]) finish() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[B]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run delivers queued values in FIFO order until the subscription is closed, or drained after the emitter closed.
func (s *Subscription[B]) run() {
	defer close(s.done)
	defer close(s.out)

	var zero B
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			draining := s.draining
			s.mu.Unlock()
			if draining {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				s.drop(0)
				return
			}
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
			s.emitter.addPending(-1)
		case <-s.stop:
			s.drop(1)
			return
		}
	}
}

// drop discards the queue after an unsubscribe; inflight counts values already dequeued but not delivered.
func (s *Subscription[B]) drop(inflight int) {
	s.mu.Lock()
	dropped := len(s.queue) + inflight
	s.queue = nil
	s.mu.Unlock()
	if dropped > 0 {
		s.emitter.addPending(-int64(dropped))
	}
}
