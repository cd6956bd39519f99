// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package stats

import "runtime"

// MemStatsWrapper exposes a subset of runtime.MemStats suitable for
// periodic snapshotting into the stats JSON payload.
type MemStatsWrapper struct {
	Verbose bool `json:"-"`

	Alloc      uint64 `json:"memAlloc"`
	TotalAlloc uint64 `json:"memTotalAlloc"`
	Sys        uint64 `json:"memSys"`
	HeapAlloc  uint64 `json:"memHeapAlloc,omitempty"`
	HeapSys    uint64 `json:"memHeapSys,omitempty"`
	NumGC      uint32 `json:"memNumGC"`
	PauseTotal uint64 `json:"memPauseTotalNs,omitempty"`
}

// NewMemStatsWrapper builds a wrapper whose Update populates only the
// always-on fields unless verbose is set.
func NewMemStatsWrapper(verbose bool) *MemStatsWrapper {
	return &MemStatsWrapper{Verbose: verbose}
}

// Update refreshes the wrapped fields from a fresh runtime.ReadMemStats
// call. Reasonably cheap but not free; callers decide the polling cadence.
func (m *MemStatsWrapper) Update() {
	var rt runtime.MemStats
	runtime.ReadMemStats(&rt)

	m.Alloc = rt.Alloc
	m.TotalAlloc = rt.TotalAlloc
	m.Sys = rt.Sys
	m.NumGC = rt.NumGC

	if m.Verbose {
		m.HeapAlloc = rt.HeapAlloc
		m.HeapSys = rt.HeapSys
		m.PauseTotal = rt.PauseTotalNs
	}
}
