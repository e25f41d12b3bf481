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

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"telescope/internal/merge"
	"telescope/internal/shard"
)

var (
	_ shard.Metrics = (*Metrics)(nil)
	_ merge.Metrics = (*Metrics)(nil)
)

func TestMetricsAddLoss(t *testing.T) {
	m := New()
	m.AddLoss(1, 2, 5)
	got := testutil.ToFloat64(m.lossTotal.WithLabelValues("1", "2"))
	if got != 5 {
		t.Errorf("telescope_ingress_loss_total{shard=1,producer=2} = %v, want 5", got)
	}
}

func TestMetricsIncMalformed(t *testing.T) {
	m := New()
	m.IncMalformed(3)
	m.IncMalformed(3)
	got := testutil.ToFloat64(m.malformedTotal.WithLabelValues("3"))
	if got != 2 {
		t.Errorf("telescope_malformed_batch_dropped_total{shard=3} = %v, want 2", got)
	}
}

func TestMetricsIncUnknownInterval(t *testing.T) {
	m := New()
	m.IncUnknownInterval(0)
	if got := testutil.ToFloat64(m.unknownIntervalTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("telescope_unknown_interval_total{shard=0} = %v, want 1", got)
	}
}

func TestMetricsIncBarrierSkipped(t *testing.T) {
	m := New()
	m.IncBarrierSkipped(0)
	if got := testutil.ToFloat64(m.barrierSkippedTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("telescope_barrier_skipped_intervals_total{shard=0} = %v, want 1", got)
	}
}

func TestMetricsIncStaleOverwritten(t *testing.T) {
	m := New()
	m.IncStaleOverwritten(0)
	if got := testutil.ToFloat64(m.staleOverwrittenTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("telescope_stale_result_overwritten_total{shard=0} = %v, want 1", got)
	}
}

func TestMetricsIncSkippedInterval(t *testing.T) {
	m := New()
	m.IncSkippedInterval()
	m.IncSkippedInterval()
	if got := testutil.ToFloat64(m.skippedIntervalTotal); got != 2 {
		t.Errorf("telescope_merge_skipped_intervals_total = %v, want 2", got)
	}
}

func TestMetricsOnBackpressureObservesSeconds(t *testing.T) {
	m := New()
	m.OnBackpressure(0, 250*time.Millisecond)
	count := testutil.CollectAndCount(m.backpressureBlockedSecs)
	if count != 1 {
		t.Errorf("backpressureBlockedSecs metric family count = %d, want 1", count)
	}
}
