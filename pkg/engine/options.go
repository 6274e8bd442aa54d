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
	"fmt"
)

const (
	// DefaultName labels the metrics and logs of an engine created without WithName.
	DefaultName = "default"
	// DefaultSubscriptionBufferSize is the capacity of each subscription channel.
	DefaultSubscriptionBufferSize = 0
)

type options struct {
	// name of the engine, used as the queue label of metrics
	name string
	// subscriptionBufferSize capacity of every subscription channel
	subscriptionBufferSize int
}

// Option configures an Engine.
type Option func(*options) error

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *options {
	return &options{
		name:                   DefaultName,
		subscriptionBufferSize: DefaultSubscriptionBufferSize,
	}
}

// WithName sets the engine name. Engines in the same process should have distinct names, metrics are labeled
// with it.
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("engine name must not be empty")
		}
		o.name = name
		return nil
	}
}

// WithSubscriptionBuffer sets the capacity of the channel of every subscription.
func WithSubscriptionBuffer(size int) Option {
	return func(o *options) error {
		if size < 0 {
			return fmt.Errorf("subscription buffer must not be negative, got %d", size)
		}
		o.subscriptionBufferSize = size
		return nil
	}
}
