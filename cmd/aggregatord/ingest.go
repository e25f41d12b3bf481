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

package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"telescope/internal/control"
	"telescope/internal/policy"
	"telescope/internal/tagger"
)

// ingestServer exposes the seam between an external capture front-end and
// the aggregation engine: POST a tagger.PacketView as JSON, it gets tagged,
// compiled against the active policy, and handed to one of the engine's
// capture-worker batchers.
//
// Real deployments replace this with whatever decoder sits in front of the
// capture interface; this HTTP form exists so the binary is runnable
// end-to-end without one, mirroring the teacher's own /consume endpoint in
// cmd/tfd-sim.
type ingestServer struct {
	engine             *control.Engine
	compiler           *policy.Compiler
	provider           tagger.Provider
	log                zerolog.Logger
	captureWorkerCount int

	next atomic.Uint64
}

func newIngestServer(engine *control.Engine, p *policy.Policy, provider tagger.Provider, captureWorkerCount int, log zerolog.Logger) *ingestServer {
	return &ingestServer{
		engine:             engine,
		compiler:           policy.NewCompiler(p),
		provider:           provider,
		captureWorkerCount: captureWorkerCount,
		log:                log,
	}
}

func (s *ingestServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var pkt tagger.PacketView
	if err := json.NewDecoder(r.Body).Decode(&pkt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := s.provider.Tag(pkt)
	if err != nil {
		s.log.Warn().Err(err).Msg("tagger rejected packet")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tags := s.compiler.Compile(rec)
	workerID := int((s.next.Add(1) - 1) % uint64(s.captureWorkerCount))
	s.engine.Batcher(workerID).Observe(rec, tags)
	w.WriteHeader(http.StatusAccepted)
}
