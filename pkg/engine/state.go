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

package engine

import (
	"errors"
)

var (
	// ErrQueueClosed rejects submissions made while the engine is not active, either because nothing subscribed yet
	// or because the engine was closed.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrInvalidBufferSize is returned by New for a buffer size below 1.
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
)

// State is the lifecycle state of an engine. It only moves forward:
//
//	Uninitialized -> Active -> Closed
//	Uninitialized -> Closed
type State int32

const (
	// Uninitialized engines reject submissions until the first Subscribe.
	Uninitialized State = iota
	// Active engines accept submissions and flushes.
	Active
	// Closed engines reject submissions and ignore flushes.
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Active:
		return "Active"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}
