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

package batch

import (
	"context"

	"telescope/internal/metric"
	"telescope/internal/tagger"
)

type opKind int

const (
	opObserve opKind = iota
	opEndOfInterval
	opHalt
)

type op struct {
	kind opKind
	rec  tagger.Record
	tags []metric.Tag
	ts   int64
}

// Actor serializes access to a Batcher behind a command channel. A Batcher
// is only safe for use by the single goroutine that owns it; Actor lets
// other goroutines (an HTTP ingest handler, an interval ticker, a generator
// loop) hand that owning goroutine work to do instead of touching the
// Batcher themselves, so a shared capture worker can be fed from more than
// one place without racing its pending-entry slices or sequence counters.
type Actor struct {
	b    *Batcher
	ops  chan op
	done chan struct{}
}

// NewActor wraps b for serialized access. Run must be started exactly once,
// from exactly one goroutine, before any caller uses Observe, EndOfInterval,
// or Halt.
func NewActor(b *Batcher) *Actor {
	return &Actor{b: b, ops: make(chan op, 256), done: make(chan struct{})}
}

// Run drains queued operations against the owned Batcher until ctx is
// cancelled or a Halt has been applied, whichever comes first. It is the
// only goroutine allowed to touch the underlying Batcher.
func (a *Actor) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-a.ops:
			switch o.kind {
			case opObserve:
				a.b.Observe(o.rec, o.tags)
			case opEndOfInterval:
				a.b.EndOfInterval(o.ts)
			case opHalt:
				a.b.Halt()
				return
			}
		}
	}
}

// Observe enqueues a tagged packet for the owning goroutine to apply.
func (a *Actor) Observe(r tagger.Record, tags []metric.Tag) {
	a.ops <- op{kind: opObserve, rec: r, tags: tags}
}

// EndOfInterval enqueues an end-of-interval flush and barrier signal.
func (a *Actor) EndOfInterval(ts int64) {
	a.ops <- op{kind: opEndOfInterval, ts: ts}
}

// Halt enqueues the final flush and halt signal; Run returns once it has
// been applied.
func (a *Actor) Halt() {
	a.ops <- op{kind: opHalt}
}

// Wait blocks until Run has applied a Halt and returned.
func (a *Actor) Wait() {
	<-a.done
}
