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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/batchq/pkg/metrics"
)

// submittedCount is used to indicate the number of items accepted by Submit
var submittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "submitted_total",
	Help:      "Total number of items accepted by the engine",
}, []string{metrics.LabelQueue})

// rejectedCount is used to indicate the number of submissions rejected because the engine was not active
var rejectedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "rejected_total",
	Help:      "Total number of submissions rejected with ErrQueueClosed",
}, []string{metrics.LabelQueue})

// flushCount is used to indicate the number of flush signals applied
var flushCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "flush_total",
	Help:      "Total number of flush signals applied",
}, []string{metrics.LabelQueue})

// batchesEmittedCount is used to indicate the number of batches emitted, by trigger
var batchesEmittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "batches_emitted_total",
	Help:      "Total number of batches emitted",
}, []string{metrics.LabelQueue, metrics.LabelTrigger})

// batchSize is a histogram of the number of items per emitted batch
var batchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "batch_size",
	Help:      "Number of items per emitted batch (1 to 4096)",
	Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
}, []string{metrics.LabelQueue})

// settledCount is used to indicate the number of completion handles settled by consumers, by outcome
var settledCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "engine",
	Name:      "settled_total",
	Help:      "Total number of completion handles settled by consumers",
}, []string{metrics.LabelQueue, metrics.LabelOutcome})
