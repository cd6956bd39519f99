// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

import "net/url"

// Params holds any additional key/value pairs a client attached to an
// announce: HTTP query parameters beyond the ones this package normalizes,
// or the URL-encoded data BEP 41 lets a UDP client attach.
type Params struct {
	values url.Values
}

// NewParams builds a Params from already-parsed URL values.
func NewParams(values url.Values) Params {
	if values == nil {
		values = url.Values{}
	}
	return Params{values: values}
}

// ParseURLData parses the data BEP 41 option 0x2 carries, which is just a
// URL query string missing its leading '?'.
func ParseURLData(data string) (Params, error) {
	values, err := url.ParseQuery(data)
	if err != nil {
		return Params{}, err
	}
	return Params{values: values}, nil
}

// String returns a parameter's string value and whether it was present.
func (p Params) String(key string) (string, bool) {
	if p.values == nil {
		return "", false
	}
	v, ok := p.values[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}
