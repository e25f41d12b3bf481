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
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"

	"telescope/internal/policy"
)

type whitelistEntry struct {
	Region uint32 `json:"region"`
	ASN    uint32 `json:"asn"`
}

// loadASNWhitelist parses an HJSON array of {region, asn} couplets into
// the set policy.Policy.ASNWhitelist expects.
func loadASNWhitelist(path string) (map[policy.ASNCoupletKey]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read geoasn whitelist %s: %w", path, err)
	}
	var entries []whitelistEntry
	if err := hjson.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config: parse geoasn whitelist %s: %w", path, err)
	}
	out := make(map[policy.ASNCoupletKey]bool, len(entries))
	for _, e := range entries {
		out[policy.ASNCoupletKey{Region: e.Region, ASN: e.ASN}] = true
	}
	return out, nil
}
