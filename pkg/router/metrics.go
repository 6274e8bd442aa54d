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

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/batchq/pkg/metrics"
)

// activeGroupCount is used to indicate the number of groups with a pipeline
var activeGroupCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: metrics.Namespace,
	Subsystem: "router",
	Name:      "active_groups",
	Help:      "Total number of groups seen by the router",
}, []string{metrics.LabelQueue})

// pendingItemCount is used to indicate the number of items waiting in group buffers
var pendingItemCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: metrics.Namespace,
	Subsystem: "router",
	Name:      "pending_items",
	Help:      "Total number of items buffered in in-progress chunks",
}, []string{metrics.LabelQueue})
