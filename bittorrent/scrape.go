// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

// ScrapeRequest is the normalized form of a scrape: zero or more info
// hashes plus whatever credential the transport carried.
type ScrapeRequest struct {
	InfoHashes []InfoHash
	AuthToken  string
}

// Scrape holds the aggregate counters for a single swarm.
type Scrape struct {
	InfoHash   InfoHash
	Complete   int
	Incomplete int
	Downloaded uint64
}

// ScrapeResponse is the normalized result of a scrape.
type ScrapeResponse struct {
	Files map[InfoHash]Scrape
}

// MaxScrapeInfoHashes caps how many info hashes a single scrape may name,
// matching the compact encoding limits clients and trackers agree on.
const MaxScrapeInfoHashes = 100

// SanitizeScrape truncates a scrape request's info hash list down to max
// entries, matching how the wire protocols will simply stop reading after
// that many 20-byte records rather than reject the request.
func SanitizeScrape(r *ScrapeRequest, max int) {
	if max > 0 && len(r.InfoHashes) > max {
		r.InfoHashes = r.InfoHashes[:max]
	}
}
