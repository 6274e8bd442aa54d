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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/batchq/pkg/metrics"
)

// subscriptionCount is used to indicate the number of live subscriptions
var subscriptionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: metrics.Namespace,
	Subsystem: "emitter",
	Name:      "subscriptions",
	Help:      "Total number of live subscriptions",
}, []string{metrics.LabelQueue})

// pendingCount is used to indicate the number of published values not yet received by subscribers
var pendingCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: metrics.Namespace,
	Subsystem: "emitter",
	Name:      "pending",
	Help:      "Total number of published values waiting in subscription queues",
}, []string{metrics.LabelQueue})
