/*
 * Copyright 2026 Threatwire Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"sort"
	"strings"
	"time"
)

// IndicatorType enumerates the observable kinds the exchange accepts.
type IndicatorType string

const (
	ITypeIPv4   IndicatorType = "ipv4"
	ITypeIPv6   IndicatorType = "ipv6"
	ITypeFQDN   IndicatorType = "fqdn"
	ITypeURL    IndicatorType = "url"
	ITypeEmail  IndicatorType = "email"
	ITypeMD5    IndicatorType = "md5"
	ITypeSHA1   IndicatorType = "sha1"
	ITypeSHA256 IndicatorType = "sha256"
	ITypeSHA512 IndicatorType = "sha512"
	ITypeSSDEEP IndicatorType = "ssdeep"
)

// ValidITypes is the closed set of accepted indicator types.
var ValidITypes = map[IndicatorType]struct{}{
	ITypeIPv4:   {},
	ITypeIPv6:   {},
	ITypeFQDN:   {},
	ITypeURL:    {},
	ITypeEmail:  {},
	ITypeMD5:    {},
	ITypeSHA1:   {},
	ITypeSHA256: {},
	ITypeSHA512: {},
	ITypeSSDEEP: {},
}

// IsHashType reports whether t identifies indicator values by digest.
func (t IndicatorType) IsHashType() bool {
	switch t {
	case ITypeMD5, ITypeSHA1, ITypeSHA256, ITypeSHA512, ITypeSSDEEP:
		return true
	default:
		return false
	}
}

// IsIPType reports whether t is an address type subject to CIDR matching.
func (t IndicatorType) IsIPType() bool {
	return t == ITypeIPv4 || t == ITypeIPv6
}

// Indicator is a single observation of a malicious or suspicious artifact.
type Indicator struct {
	ID          string        `json:"id,omitempty"`
	Value       string        `json:"indicator"`
	IType       IndicatorType `json:"itype"`
	Provider    string        `json:"provider"`
	Group       string        `json:"group"`
	Tags        []string      `json:"tags"`
	Confidence  float64       `json:"confidence"`
	FirstTime   *time.Time    `json:"firsttime,omitempty"`
	LastTime    *time.Time    `json:"lasttime,omitempty"`
	ReportTime  *time.Time    `json:"reporttime,omitempty"`
	Count       int           `json:"count"`
	TLP         string        `json:"tlp,omitempty"`
	ASN         *int64        `json:"asn,omitempty"`
	ASNDesc     string        `json:"asn_desc,omitempty"`
	CC          string        `json:"cc,omitempty"`
	City        string        `json:"city,omitempty"`
	Latitude    *float64      `json:"latitude,omitempty"`
	Longitude   *float64      `json:"longitude,omitempty"`
	Peers       []string      `json:"peers,omitempty"`
	Description string        `json:"description,omitempty"`
	RData       string        `json:"rdata,omitempty"`
}

// DedupKey returns the identity tuple for merge decisions. Two submissions
// sharing this key are the same logical indicator; tags are order-insensitive.
func (i *Indicator) DedupKey() string {
	tags := make([]string, len(i.Tags))
	copy(tags, i.Tags)
	sort.Strings(tags)

	return strings.Join([]string{
		i.Provider,
		string(i.IType),
		i.Value,
		i.RData,
		strings.Join(tags, ","),
	}, "\x1f")
}

// Validate checks the create-time invariants.
func (i *Indicator) Validate() error {
	switch {
	case i.Value == "":
		return &ValidationError{Field: "indicator", Reason: "required"}
	case i.IType == "":
		return &ValidationError{Field: "itype", Reason: "required"}
	case i.Provider == "":
		return &ValidationError{Field: "provider", Reason: "required"}
	case i.Group == "":
		return &ValidationError{Field: "group", Reason: "required"}
	case len(i.Tags) == 0:
		return &ValidationError{Field: "tags", Reason: "required"}
	}

	if _, ok := ValidITypes[i.IType]; !ok {
		return &ValidationError{Field: "itype", Reason: "unknown type " + string(i.IType)}
	}

	if i.Confidence < 0 || i.Confidence > 10 {
		return &ValidationError{Field: "confidence", Reason: "must be within 0..10"}
	}

	if i.FirstTime != nil && i.LastTime != nil && i.LastTime.Before(*i.FirstTime) {
		return &ValidationError{Field: "lasttime", Reason: "must not precede firsttime"}
	}

	return nil
}

// Normalize defaults the observation timestamps to now when absent. Records
// arriving from feeds frequently carry only a report time.
func (i *Indicator) Normalize(now time.Time) {
	if i.FirstTime == nil {
		t := now
		i.FirstTime = &t
	}

	if i.LastTime == nil {
		t := *i.FirstTime
		i.LastTime = &t
	}

	if i.ReportTime == nil {
		t := now
		i.ReportTime = &t
	}

	if i.Count == 0 {
		i.Count = 1
	}
}
