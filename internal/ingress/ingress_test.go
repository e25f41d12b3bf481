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

package ingress

import (
	"testing"
	"time"
)

func TestLossTrackerNoGap(t *testing.T) {
	lt := NewLossTracker()
	if lost := lt.Observe(1, 0); lost != 0 {
		t.Fatalf("first Observe() lost = %d, want 0", lost)
	}
	if lost := lt.Observe(1, 1); lost != 0 {
		t.Fatalf("sequential Observe() lost = %d, want 0", lost)
	}
}

func TestLossTrackerDetectsGap(t *testing.T) {
	lt := NewLossTracker()
	lt.Observe(1, 0)
	lost := lt.Observe(1, 5)
	if lost != 4 {
		t.Fatalf("Observe() after gap lost = %d, want 4", lost)
	}
}

func TestLossTrackerIndependentPerProducer(t *testing.T) {
	lt := NewLossTracker()
	lt.Observe(1, 0)
	lt.Observe(2, 0)
	if lost := lt.Observe(2, 1); lost != 0 {
		t.Fatalf("producer 2 Observe() lost = %d, want 0 (independent of producer 1)", lost)
	}
	if lost := lt.Observe(1, 10); lost != 9 {
		t.Fatalf("producer 1 Observe() lost = %d, want 9", lost)
	}
}

func TestQueueSendRecv(t *testing.T) {
	q := NewQueue(4)
	q.Send(UpdateBatch{WorkerID: 1, Seq: 1})
	m, ok := q.Recv(100 * time.Millisecond)
	if !ok {
		t.Fatal("Recv() ok = false, want true")
	}
	if b, isBatch := m.(UpdateBatch); !isBatch || b.WorkerID != 1 {
		t.Fatalf("Recv() = %#v, want UpdateBatch{WorkerID: 1}", m)
	}
}

func TestQueueRecvTimeout(t *testing.T) {
	q := NewQueue(4)
	_, ok := q.Recv(10 * time.Millisecond)
	if ok {
		t.Fatal("Recv() on empty queue ok = true, want false")
	}
}

func TestQueueTrySendFullQueue(t *testing.T) {
	q := NewQueue(1)
	if !q.TrySend(UpdateBatch{WorkerID: 1}) {
		t.Fatal("first TrySend() on empty queue = false, want true")
	}
	if q.TrySend(UpdateBatch{WorkerID: 2}) {
		t.Fatal("TrySend() on full queue = true, want false")
	}
}

func TestQueueBlockObserver(t *testing.T) {
	q := NewQueue(1)
	var observed time.Duration
	q.SetBlockObserver(func(d time.Duration) { observed = d })
	q.Send(UpdateBatch{WorkerID: 1})
	if observed < 0 {
		t.Fatalf("observed block duration = %v, want >= 0", observed)
	}

	done := make(chan struct{})
	go func() {
		q.Send(UpdateBatch{WorkerID: 2}) // blocks: queue already has 1 message
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	q.Recv(0) // drain the first message, unblocking the goroutine above
	<-done
	if observed < 15*time.Millisecond {
		t.Errorf("observed block duration = %v, want roughly >= 15ms (blocked on full queue)", observed)
	}
}
