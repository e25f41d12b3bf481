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

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"telescope/internal/merge"
)

// RedisSink pushes rows onto a Redis list, one JSON-encoded entry per row,
// pipelined per Emit call to keep round trips to one regardless of batch
// size.
type RedisSink struct {
	client  redis.Cmdable
	listKey string
	timeout time.Duration
}

// NewRedisSink builds a RedisSink over an existing client. timeout bounds
// each Emit call; zero means 5s.
func NewRedisSink(client redis.Cmdable, listKey string, timeout time.Duration) *RedisSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisSink{client: client, listKey: listKey, timeout: timeout}
}

// Emit pipelines one RPUSH per row and executes the pipeline once.
func (s *RedisSink) Emit(rows []merge.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	for _, r := range rows {
		b, err := json.Marshal(toRow(r))
		if err != nil {
			return fmt.Errorf("sink: marshal row: %w", err)
		}
		pipe.RPush(ctx, s.listKey, b)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sink: redis pipeline exec: %w", err)
	}
	return nil
}
