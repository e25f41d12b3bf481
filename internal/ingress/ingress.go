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

// Package ingress implements the bounded, lossy-permitted, multi-producer
// single-consumer transport that carries update batches and end-of-interval
// markers from capture workers to a single shard tally worker.
package ingress

import (
	"time"

	"telescope/internal/metric"
)

// Entry is one payload entry of an update batch: either the source or the
// destination leg of a packet's contribution to a shard.
//
// BytesOrZero is the packet's byte length on the source leg and 0 on the
// destination leg — this is how bytes and packets avoid being double
// counted across both legs of the same packet.
type Entry struct {
	IP          uint32
	IsSrc       bool
	SrcASN      uint32
	BytesOrZero uint32
	Tags        []metric.Tag
}

// Message is the sum type carried on a shard's ingress queue: an update
// batch, an end-of-interval marker, or a halt request.
type Message interface {
	producer() int
}

// UpdateBatch carries one producer's batched entries toward one shard.
// Seq is the monotonically increasing per-(producer,shard) sequence number
// used by LossTracker to detect gaps.
type UpdateBatch struct {
	WorkerID int
	Seq      uint64
	Entries  []Entry
}

func (b UpdateBatch) producer() int { return b.WorkerID }

// EOI is the distinct end-of-interval message kind: a capture worker
// announces it has flushed every packet up to the interval boundary.
type EOI struct {
	WorkerID   int
	IntervalTS int64
}

func (e EOI) producer() int { return e.WorkerID }

// Halt asks the consuming shard worker to begin the drain-then-stop
// sequence. It is a message, not a signal, so it respects per-producer
// FIFO ordering instead of preempting whatever is already queued.
type Halt struct {
	WorkerID int
}

func (h Halt) producer() int { return h.WorkerID }

// Queue is one shard's bounded ingress transport. FIFO holds per producer;
// no ordering is required or provided across producers.
type Queue struct {
	ch      chan Message
	onBlock func(time.Duration)
}

// NewQueue creates a queue with the given high-water mark (message count).
func NewQueue(hwm int) *Queue {
	if hwm <= 0 {
		hwm = 30
	}
	return &Queue{ch: make(chan Message, hwm)}
}

// SetBlockObserver registers a callback invoked after every Send with how
// long that send took to be accepted. A full queue makes this large;
// telemetry uses it to populate a backpressure histogram.
func (q *Queue) SetBlockObserver(f func(time.Duration)) { q.onBlock = f }

// Send enqueues a message, blocking the caller if the queue is full. This
// is the intended backpressure path: no packets may be silently dropped by
// the batcher.
func (q *Queue) Send(m Message) {
	if q.onBlock == nil {
		q.ch <- m
		return
	}
	start := time.Now()
	q.ch <- m
	q.onBlock(time.Since(start))
}

// TrySend enqueues a message without blocking. Returns false if the queue
// is full. Reserved for callers (tests, tools) that must never stall —
// ordinary capture-worker batchers always use the blocking Send.
func (q *Queue) TrySend(m Message) bool {
	select {
	case q.ch <- m:
		return true
	default:
		return false
	}
}

// Recv waits up to timeout for the next message. ok is false on timeout,
// letting the shard worker poll for halt without burning CPU; callers
// typically pass a timeout around 10ms.
func (q *Queue) Recv(timeout time.Duration) (m Message, ok bool) {
	select {
	case m = <-q.ch:
		return m, true
	default:
	}
	select {
	case m = <-q.ch:
		return m, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Close stops accepting new sends going forward. Callers must ensure no
// further Send/TrySend calls race with Close.
func (q *Queue) Close() { close(q.ch) }
