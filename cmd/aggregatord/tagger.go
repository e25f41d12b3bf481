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
	"telescope/internal/metric"
	"telescope/internal/tagger"
)

// passthroughTagger is the default tagger.Provider when no geo/ASN
// database is wired in: it carries proto/port/byte fields straight
// through and leaves every geo field at its zero value, so COMBINED,
// port, and protocol metrics work out of the box without a real
// geolocation backend.
type passthroughTagger struct{}

func (passthroughTagger) Tag(pkt tagger.PacketView) (tagger.Record, error) {
	return tagger.Record{
		SrcIP:   pkt.SrcIP,
		DstIP:   pkt.DstIP,
		Bytes:   pkt.Bytes,
		Proto:   pkt.Proto,
		SrcPort: pkt.SrcPort,
		DstPort: pkt.DstPort,
	}, nil
}

func (passthroughTagger) LookupLabel(class metric.Class, value uint32) (string, error) {
	return "", nil
}
