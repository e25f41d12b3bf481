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

// telescope-sim is a synthetic traffic generator and soak tool for the
// aggregation fabric. It drives a real control.Engine with a configurable
// mix of addresses and ports across many capture workers, so the
// sharding/barrier/merge path can be exercised and measured without a
// live capture feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telescope/internal/control"
	"telescope/internal/metric"
	"telescope/internal/policy"
	"telescope/internal/sink"
	"telescope/internal/tagger"
)

type syntheticTagger struct{}

func (syntheticTagger) Tag(pkt tagger.PacketView) (tagger.Record, error) {
	return tagger.Record{
		SrcIP: pkt.SrcIP, DstIP: pkt.DstIP, Bytes: pkt.Bytes,
		Proto: pkt.Proto, SrcPort: pkt.SrcPort, DstPort: pkt.DstPort,
	}, nil
}

func (syntheticTagger) LookupLabel(class metric.Class, value uint32) (string, error) {
	return "", nil
}

func main() {
	shardCount := flag.Int("shards", 4, "number of tally shards")
	workers := flag.Int("workers", 4, "number of simulated capture workers")
	addrs := flag.Int("addrs", 10000, "number of distinct simulated IP addresses")
	qps := flag.Int("qps", 50000, "target packets per second")
	burst := flag.Int("burst", 1000, "burst size per generator tick")
	interval := flag.Duration("interval", 10*time.Second, "aggregation interval width")
	duration := flag.Duration("duration", time.Minute, "run duration; 0 for forever")
	httpAddr := flag.String("http", ":8091", "address for /metrics")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	reg := prometheus.NewRegistry()
	packetsGenerated := prometheus.NewCounter(prometheus.CounterOpts{Name: "telescope_sim_packets_generated_total", Help: "Synthetic packets generated"})
	reg.MustRegister(packetsGenerated)

	pol := policy.New(map[metric.Class]bool{
		metric.IPProtocol: true,
		metric.TCPDstPort: true,
		metric.UDPDstPort: true,
	})

	engine, err := control.New(control.Config{
		ShardCount:         *shardCount,
		CaptureWorkerCount: *workers,
		IngressHWM:         64,
		Policy:             pol,
		Sink:               sink.NewStdoutSink(),
		SourceLabel:        "telescope-sim",
		Tagger:             syntheticTagger{},
		Logger:             log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not construct engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, err := engine.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start shard workers")
	}

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(*httpAddr, nil)
	}()

	compiler := policy.NewCompiler(pol)
	rng := rand.New(rand.NewSource(1))

	genStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(max(1, *qps/max(1, *burst))))
		defer ticker.Stop()
		for {
			select {
			case <-genStop:
				return
			case <-ticker.C:
				for i := 0; i < *burst; i++ {
					srcIP := uint32(rng.Intn(*addrs)) + 1
					dstIP := uint32(rng.Intn(*addrs)) + 1_000_000
					proto := []uint8{6, 17}[rng.Intn(2)]
					pkt := tagger.PacketView{
						SrcIP: srcIP, DstIP: dstIP, Bytes: uint32(64 + rng.Intn(1400)),
						Proto: proto, SrcPort: uint16(1024 + rng.Intn(64000)), DstPort: uint16(1 + rng.Intn(65000)),
					}
					rec, _ := syntheticTagger{}.Tag(pkt)
					tags := compiler.Compile(rec)
					workerID := rng.Intn(*workers)
					engine.Batcher(workerID).Observe(rec, tags)
					packetsGenerated.Inc()
				}
			}
		}
	}()

	intervalStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-intervalStop:
				return
			case t := <-ticker.C:
				for w := 0; w < *workers; w++ {
					engine.Batcher(w).EndOfInterval(t.Unix())
				}
			}
		}
	}()

	var endTimer <-chan time.Time
	if *duration > 0 {
		endTimer = time.After(*duration)
	}
	select {
	case <-runCtx.Done():
	case <-endTimer:
	}
	close(genStop)
	close(intervalStop)

	if err := engine.Stop(); err != nil {
		log.Error().Err(err).Msg("engine stop did not complete cleanly")
	}
	fmt.Fprintln(os.Stderr, "telescope-sim stopped")
}
