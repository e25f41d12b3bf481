// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shard

// Metrics receives counter bumps from a shard worker without the shard
// package depending on a particular metrics backend. internal/telemetry
// supplies a Prometheus-backed implementation.
type Metrics interface {
	AddLoss(shard, producer int, n uint64)
	IncMalformed(shard int)
	IncUnknownInterval(shard int)
	IncBarrierSkipped(shard int)
	IncStaleOverwritten(shard int)
}

// NopMetrics discards every count. It is the default when a Worker is
// constructed without an explicit Metrics.
type NopMetrics struct{}

func (NopMetrics) AddLoss(shard, producer int, n uint64) {}
func (NopMetrics) IncMalformed(shard int)                {}
func (NopMetrics) IncUnknownInterval(shard int)          {}
func (NopMetrics) IncBarrierSkipped(shard int)           {}
func (NopMetrics) IncStaleOverwritten(shard int)         {}
