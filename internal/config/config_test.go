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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"telescope/internal/metric"
	"telescope/internal/policy"
)

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	cfg, err := Load([]string{"-shard-count", "8", "-pkt-threads", "2", "eth0"}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ShardCount != 8 {
		t.Errorf("ShardCount = %d, want 8", cfg.ShardCount)
	}
	if cfg.PktThreads != 2 {
		t.Errorf("PktThreads = %d, want 2", cfg.PktThreads)
	}
	if len(cfg.InputSources) != 1 || cfg.InputSources[0] != "eth0" {
		t.Errorf("InputSources = %v, want [eth0]", cfg.InputSources)
	}
}

func TestLoadFileThenFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggregatord.hjson")
	if err := os.WriteFile(path, []byte(`{
		iptracker_threads: 6
		pkt_threads: 3
	}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load([]string{"-shard-count", "16"}, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ShardCount != 16 {
		t.Errorf("ShardCount = %d, want 16 (flag must win over file)", cfg.ShardCount)
	}
	if cfg.PktThreads != 3 {
		t.Errorf("PktThreads = %d, want 3 (from file, no flag override)", cfg.PktThreads)
	}
}

func TestLoadRejectsInvalidShardCount(t *testing.T) {
	if _, err := Load([]string{"-shard-count", "0"}, ""); err == nil {
		t.Error("Load() error = nil, want a validation error for shard-count=0")
	}
}

func TestValidateRejectsBadGeoMode(t *testing.T) {
	cfg := Default()
	cfg.GeoMode = "weird"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want an error for an unknown geo_mode")
	}
}

func TestValidateRejectsBadIPCountingMethod(t *testing.T) {
	cfg := Default()
	cfg.SrcIPCounting.Method = "nonsense"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want an error for an unknown source_ip_counting.method")
	}
}

func TestToPolicyAppliesLimitMetricsAndGeoMode(t *testing.T) {
	cfg := Default()
	cfg.LimitMetrics = []string{"TCPPorts", "netacq"}
	cfg.GeoMode = "lite"
	p := cfg.ToPolicy()

	if !p.Enabled(metric.TCPDstPort) {
		t.Error("tcpports should enable tcp_dst_port via limitmetrics")
	}
	if !p.Enabled(metric.TCPSrcPort) {
		t.Error("tcpports should enable tcp_src_port via limitmetrics")
	}
	if p.Enabled(metric.NetAcqRegion) {
		t.Error("region-like classes must stay disabled under geo_mode=lite even if their group is named in limitmetrics")
	}
	if !p.Enabled(metric.COMBINED) {
		t.Error("COMBINED must always be enabled regardless of limitmetrics")
	}
}

func TestToPolicyLimitMetricsGroupExpansion(t *testing.T) {
	cfg := Default()
	cfg.LimitMetrics = []string{"pfx2asn"}
	p := cfg.ToPolicy()

	for _, cls := range []metric.Class{metric.PrefixASN, metric.IPInfoCountryPrefixASN, metric.IPInfoRegionPrefixASN} {
		if !p.Enabled(cls) {
			t.Errorf("pfx2asn should enable %v, but it is disabled", cls)
		}
	}
	if p.Enabled(metric.ICMPTypeCode) {
		t.Error("pfx2asn must not enable icmp, which belongs to a different group")
	}
}

func TestToPolicyBuildsPortSets(t *testing.T) {
	cfg := Default()
	cfg.TCPDstPorts = []policy.PortRange{{Lo: 443, Hi: 443}}
	p := cfg.ToPolicy()
	if !p.TCPDstPorts.Contains(443) {
		t.Error("TCPDstPorts should contain 443 after ToPolicy")
	}
	if p.TCPDstPorts.Contains(80) {
		t.Error("TCPDstPorts should not contain 80, outside the configured range")
	}
}

func TestToPolicyIPCountingMethods(t *testing.T) {
	cfg := Default()
	cfg.SrcIPCounting = IPCountingConfig{Method: "prefixagg", SubnetMask: 24}
	p := cfg.ToPolicy()
	if p.SrcIPCounting.Method != policy.CountPrefixAgg {
		t.Errorf("SrcIPCounting.Method = %v, want CountPrefixAgg", p.SrcIPCounting.Method)
	}
	if p.SrcIPCounting.SubnetMask != 24 {
		t.Errorf("SrcIPCounting.SubnetMask = %d, want 24", p.SrcIPCounting.SubnetMask)
	}
}

func TestLoadASNWhitelist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.hjson")
	if err := os.WriteFile(path, []byte(`[
		{region: 1, asn: 65001}
		{region: 2, asn: 65002}
	]`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	wl, err := loadASNWhitelist(path)
	if err != nil {
		t.Fatalf("loadASNWhitelist() error = %v", err)
	}
	if len(wl) != 2 {
		t.Fatalf("loadASNWhitelist() returned %d entries, want 2", len(wl))
	}
	if !wl[policy.ASNCoupletKey{Region: 1, ASN: 65001}] {
		t.Error("missing expected couplet {Region:1, ASN:65001}")
	}
}

func TestLoadASNWhitelistMissingFile(t *testing.T) {
	if _, err := loadASNWhitelist(filepath.Join(t.TempDir(), "missing.hjson")); err == nil {
		t.Error("loadASNWhitelist() error = nil, want an error for a missing file")
	}
}

func TestToPolicyIgnoresUnreadableWhitelistFile(t *testing.T) {
	cfg := Default()
	cfg.GeoASNWhitelistFile = filepath.Join(t.TempDir(), "missing.hjson")
	p := cfg.ToPolicy()
	if p.ASNWhitelist != nil {
		t.Error("ASNWhitelist should stay nil when the configured file cannot be read")
	}
}
