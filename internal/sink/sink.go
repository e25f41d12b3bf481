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

// Package sink implements ResultSink adapters that deliver merged interval
// rows out of the process: a buffered JSONL file, a Redis list, and stdout
// for local runs.
package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"telescope/internal/merge"
)

type row struct {
	BinTimestamp uint64 `json:"bin_timestamp"`
	SourceLabel  string `json:"source_label"`
	MetricName   string `json:"metric_name"`
	MetricValue  string `json:"metric_value"`
	SrcIPCount   uint64 `json:"src_ip_count"`
	DestIPCount  uint64 `json:"dest_ip_count"`
	PktCount     uint64 `json:"pkt_count"`
	ByteCount    uint64 `json:"byte_count"`
}

func toRow(r merge.ResultRow) row {
	return row{
		BinTimestamp: r.BinTimestamp,
		SourceLabel:  r.SourceLabel,
		MetricName:   r.MetricName,
		MetricValue:  r.MetricValue,
		SrcIPCount:   r.SrcIPCount,
		DestIPCount:  r.DestIPCount,
		PktCount:     r.PktCount,
		ByteCount:    r.ByteCount,
	}
}

// FileSink is a buffered JSONL sink. It is safe for concurrent use and
// optimized for append-only workloads.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewFileSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close when done.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Emit writes each row as one JSON line, then flushes.
func (s *FileSink) Emit(rows []merge.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	for _, r := range rows {
		if err := enc.Encode(toRow(r)); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// StdoutSink writes rows as JSON lines to stdout, for local runs and
// telescope-sim.
type StdoutSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdoutSink builds a StdoutSink wrapping os.Stdout.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{w: bufio.NewWriter(os.Stdout)}
}

// Emit writes each row as one JSON line, then flushes.
func (s *StdoutSink) Emit(rows []merge.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	for _, r := range rows {
		if err := enc.Encode(toRow(r)); err != nil {
			return err
		}
	}
	return s.w.Flush()
}
