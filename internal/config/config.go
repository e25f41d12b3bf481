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

// Package config assembles the aggregator's run configuration: compiled-in
// defaults, an optional HJSON file, then flag overrides — in that order,
// so flags always win.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hjson/hjson-go/v4"

	"telescope/internal/metric"
	"telescope/internal/policy"
)

// limitMetricGroups mirrors the report plugin's limitmetrics vocabulary:
// each entry is a named group of metric classes, not a single class. A
// config naming "tcpports" enables both TCP port classes at once.
var limitMetricGroups = map[string][]metric.Class{
	"basic":    {metric.COMBINED, metric.IPProtocol},
	"tcpports": {metric.TCPSrcPort, metric.TCPDstPort},
	"udpports": {metric.UDPSrcPort, metric.UDPDstPort},
	"icmp":     {metric.ICMPTypeCode},
	"netacq":   {metric.NetAcqContinent, metric.NetAcqCountry, metric.NetAcqRegion, metric.NetAcqPolygon},
	"maxmind":  {metric.MaxmindContinent, metric.MaxmindCountry},
	"ipinfo":   {metric.IPInfoContinent, metric.IPInfoRegion, metric.IPInfoCountry},
	"pfx2asn":  {metric.PrefixASN, metric.IPInfoCountryPrefixASN, metric.IPInfoRegionPrefixASN},
	"filter":   {metric.FilterCriteria},
}

// IPCountingConfig mirrors policy.IPCounting in config-file-friendly form.
type IPCountingConfig struct {
	Method     string `json:"method"` // "none", "sample", "prefixagg"
	SubnetMask uint8  `json:"subnetmask"`
}

// Config carries every run-time knob the original telescope aggregator
// exposes, whether or not this module's core reads it directly — knobs
// consumed by the external capture/tagging front-end are kept here as
// pass-through fields so one config file describes the whole pipeline.
type Config struct {
	InputSources []string `json:"input_sources"`
	PktThreads      int     `json:"pkt_threads"`
	ShardCount      int     `json:"iptracker_threads"`
	IngressHWM      int     `json:"internalhwm"`
	SampleRate      float64 `json:"sample_rate"`
	IntervalSeconds int     `json:"interval_seconds"`
	IngestAddr      string  `json:"ingest_addr"`

	LimitMetrics []string `json:"limitmetrics"`

	TCPSrcPorts []policy.PortRange `json:"tcp_source_port_range"`
	TCPDstPorts []policy.PortRange `json:"tcp_dest_port_range"`
	UDPSrcPorts []policy.PortRange `json:"udp_source_port_range"`
	UDPDstPorts []policy.PortRange `json:"udp_dest_port_range"`

	SrcIPCounting IPCountingConfig `json:"source_ip_counting"`
	DstIPCounting IPCountingConfig `json:"dest_ip_counting"`

	GeoMode             string `json:"geo_mode"` // "full", "lite"
	GeoASNWhitelistFile string `json:"geoasn_whitelist_file"`

	OutputRowLabel    string `json:"output_row_label"`
	OutputFormat      string `json:"output_format"` // "avro", "timeseries"
	QueryTaggerLabels bool   `json:"querytaggerlabels"`

	ResultSinkKind string `json:"result_sink"` // "stdout", "file", "redis"
	ResultSinkPath string `json:"result_sink_path"`
	RedisAddr      string `json:"redis_addr"`

	MetricsAddr string `json:"metrics_addr"`
}

// Default returns the compiled-in defaults every run starts from.
func Default() Config {
	return Config{
		PktThreads:      4,
		ShardCount:      4,
		IngressHWM:      30,
		SampleRate:      1.0,
		IntervalSeconds: 60,
		GeoMode:         "full",
		OutputFormat:    "timeseries",
		ResultSinkKind:  "stdout",
		MetricsAddr:     ":9090",
		IngestAddr:      ":8090",
	}
}

// Load builds a Config by layering, in order: compiled-in defaults, the
// HJSON file at configPath (skipped if empty), then flags parsed from
// args. Flags always win over the file.
func Load(args []string, configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := hjson.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	fs := flag.NewFlagSet("aggregatord", flag.ContinueOnError)
	pktThreads := fs.Int("pkt-threads", cfg.PktThreads, "number of capture workers")
	shardCount := fs.Int("shard-count", cfg.ShardCount, "number of tally shards, 1..32")
	ingressHWM := fs.Int("ingress-hwm", cfg.IngressHWM, "per-producer ingress queue high-water mark")
	sampleRate := fs.Float64("sample-rate", cfg.SampleRate, "downsample factor applied upstream of tagging")
	intervalSeconds := fs.Int("interval-seconds", cfg.IntervalSeconds, "aggregation interval width in seconds")
	ingestAddr := fs.String("ingest-addr", cfg.IngestAddr, "address the packet-ingest HTTP endpoint listens on")
	geoMode := fs.String("geo-mode", cfg.GeoMode, "full or lite")
	geoWhitelist := fs.String("geoasn-whitelist-file", cfg.GeoASNWhitelistFile, "path to the (region,asn) couplet whitelist")
	outputRowLabel := fs.String("output-row-label", cfg.OutputRowLabel, "label copied into every result row")
	outputFormat := fs.String("output-format", cfg.OutputFormat, "avro or timeseries")
	queryTaggerLabels := fs.Bool("query-tagger-labels", cfg.QueryTaggerLabels, "resolve region/polygon ids to text via the tagger")
	resultSinkKind := fs.String("result-sink", cfg.ResultSinkKind, "stdout, file, or redis")
	resultSinkPath := fs.String("result-sink-path", cfg.ResultSinkPath, "file path when result-sink=file")
	redisAddr := fs.String("redis-addr", cfg.RedisAddr, "redis address when result-sink=redis")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "address for /metrics and /healthz; empty disables")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.PktThreads = *pktThreads
	cfg.ShardCount = *shardCount
	cfg.IngressHWM = *ingressHWM
	cfg.SampleRate = *sampleRate
	cfg.IntervalSeconds = *intervalSeconds
	cfg.IngestAddr = *ingestAddr
	cfg.GeoMode = *geoMode
	cfg.GeoASNWhitelistFile = *geoWhitelist
	cfg.OutputRowLabel = *outputRowLabel
	cfg.OutputFormat = *outputFormat
	cfg.QueryTaggerLabels = *queryTaggerLabels
	cfg.ResultSinkKind = *resultSinkKind
	cfg.ResultSinkPath = *resultSinkPath
	cfg.RedisAddr = *redisAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.InputSources = fs.Args()

	return cfg, cfg.Validate()
}

// Validate checks the knobs the aggregation core itself depends on.
func (c Config) Validate() error {
	if c.ShardCount < 1 || c.ShardCount > 32 {
		return fmt.Errorf("config: iptracker_threads must be in [1,32], got %d", c.ShardCount)
	}
	if c.PktThreads < 1 {
		return fmt.Errorf("config: pkt_threads must be >= 1, got %d", c.PktThreads)
	}
	if c.IntervalSeconds < 1 {
		return fmt.Errorf("config: interval_seconds must be >= 1, got %d", c.IntervalSeconds)
	}
	if c.GeoMode != "full" && c.GeoMode != "lite" {
		return fmt.Errorf("config: geo_mode must be full or lite, got %q", c.GeoMode)
	}
	switch c.SrcIPCounting.Method {
	case "", "none", "sample", "prefixagg":
	default:
		return fmt.Errorf("config: source_ip_counting.method invalid: %q", c.SrcIPCounting.Method)
	}
	switch c.DstIPCounting.Method {
	case "", "none", "sample", "prefixagg":
	default:
		return fmt.Errorf("config: dest_ip_counting.method invalid: %q", c.DstIPCounting.Method)
	}
	return nil
}

func ipCountingMethod(s string) policy.IPCountingMethod {
	switch s {
	case "sample":
		return policy.CountSample
	case "prefixagg":
		return policy.CountPrefixAgg
	default:
		return policy.CountAll
	}
}

// ToPolicy compiles the config into the immutable policy the aggregation
// core runs against.
func (c Config) ToPolicy() *policy.Policy {
	enabled := make(map[metric.Class]bool, len(c.LimitMetrics))
	for _, name := range c.LimitMetrics {
		group, ok := limitMetricGroups[strings.ToLower(name)]
		if !ok {
			continue
		}
		for _, cls := range group {
			enabled[cls] = true
		}
	}
	p := policy.New(enabled)

	p.TCPSrcPorts = policy.BuildPortSet(c.TCPSrcPorts)
	p.TCPDstPorts = policy.BuildPortSet(c.TCPDstPorts)
	p.UDPSrcPorts = policy.BuildPortSet(c.UDPSrcPorts)
	p.UDPDstPorts = policy.BuildPortSet(c.UDPDstPorts)

	if c.GeoMode == "lite" {
		p.GeoMode = policy.GeoLite
	} else {
		p.GeoMode = policy.GeoFull
	}

	p.SrcIPCounting = policy.IPCounting{
		Method:     ipCountingMethod(c.SrcIPCounting.Method),
		SubnetMask: c.SrcIPCounting.SubnetMask,
	}
	p.DstIPCounting = policy.IPCounting{
		Method:     ipCountingMethod(c.DstIPCounting.Method),
		SubnetMask: c.DstIPCounting.SubnetMask,
	}

	p.OutputRowLabel = c.OutputRowLabel
	p.QueryTaggerLabels = c.QueryTaggerLabels

	if c.GeoASNWhitelistFile != "" {
		wl, err := loadASNWhitelist(c.GeoASNWhitelistFile)
		if err == nil {
			p.ASNWhitelist = wl
		}
	}

	return p
}
