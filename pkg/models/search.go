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
	"strconv"
	"strings"
	"time"
)

// SearchFilter is the flat filter map of an indicators_search request,
// decoded into typed fields. Zero values mean "not filtered on".
type SearchFilter struct {
	Indicator     string        `json:"indicator,omitempty"`
	IType         IndicatorType `json:"itype,omitempty"`
	Provider      string        `json:"provider,omitempty"` // comma OR, ! negation
	Tags          string        `json:"tags,omitempty"`     // comma OR, ! negation
	Confidence    string        `json:"confidence,omitempty"` // "low" or "low,high"
	ReportTimeGTE *time.Time    `json:"reporttime,omitempty"`
	ReportTimeLTE *time.Time    `json:"reporttimeend,omitempty"`
	Days          int           `json:"days,omitempty"`
	Hours         int           `json:"hours,omitempty"`
	CC            string        `json:"cc,omitempty"`
	RData         string        `json:"rdata,omitempty"`
	ASN           string        `json:"asn,omitempty"`
	Groups        []string      `json:"groups,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Sort          string        `json:"sort,omitempty"` // up to two comma-separated columns, "-" prefix for desc
	FindRelatives bool          `json:"find_relatives,omitempty"`
	ID            string        `json:"id,omitempty"`
}

// ConfidenceRange parses the confidence filter into [low, high]. The high
// bound defaults to the scale maximum.
func (f *SearchFilter) ConfidenceRange() (low, high float64, err error) {
	high = 10

	if f.Confidence == "" {
		return 0, high, nil
	}

	parts := strings.SplitN(f.Confidence, ",", 2)

	low, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, &ValidationError{Field: "confidence", Reason: "not a number"}
	}

	if len(parts) == 2 {
		high, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, 0, &ValidationError{Field: "confidence", Reason: "not a number"}
		}
	}

	return low, high, nil
}

// ReportWindow resolves the report-time bounds. A relative days/hours
// lookback takes precedence over an explicit range when both are given.
func (f *SearchFilter) ReportWindow(now time.Time) (gte, lte *time.Time) {
	if f.Days > 0 || f.Hours > 0 {
		from := now.Add(-time.Duration(f.Days)*24*time.Hour - time.Duration(f.Hours)*time.Hour)
		return &from, nil
	}

	return f.ReportTimeGTE, f.ReportTimeLTE
}

// MultiValue splits a provider/tags style filter into wanted and unwanted
// value sets. A "!" prefix negates a value; commas express OR.
func MultiValue(raw string) (want, not []string) {
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if strings.HasPrefix(v, "!") {
			not = append(not, v[1:])
		} else {
			want = append(want, v)
		}
	}

	return want, not
}

// SortColumns parses the explicit sort clause into at most two columns.
// Allowed columns are reporttime, lasttime, firsttime and confidence.
func (f *SearchFilter) SortColumns() ([]SortColumn, error) {
	if f.Sort == "" {
		return []SortColumn{
			{Field: "reporttime", Desc: true},
			{Field: "lasttime", Desc: true},
		}, nil
	}

	parts := strings.Split(f.Sort, ",")
	if len(parts) > 2 {
		return nil, &ValidationError{Field: "sort", Reason: "at most two columns"}
	}

	allowed := map[string]struct{}{
		"reporttime": {}, "lasttime": {}, "firsttime": {}, "confidence": {},
	}

	cols := make([]SortColumn, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		desc := strings.HasPrefix(p, "-")
		p = strings.TrimPrefix(p, "-")

		if _, ok := allowed[p]; !ok {
			return nil, &ValidationError{Field: "sort", Reason: "unknown column " + p}
		}

		cols = append(cols, SortColumn{Field: p, Desc: desc})
	}

	return cols, nil
}

// SortColumn is one resolved ordering term.
type SortColumn struct {
	Field string
	Desc  bool
}
