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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceRange(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		wantLow    float64
		wantHigh   float64
		wantErr    bool
	}{
		{"empty defaults to full scale", "", 0, 10, false},
		{"low only", "7", 7, 10, false},
		{"low and high", "2,6", 2, 6, false},
		{"whitespace tolerated", " 3 , 8 ", 3, 8, false},
		{"garbage low", "high", 0, 0, true},
		{"garbage high", "5,max", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &SearchFilter{Confidence: tt.confidence}

			low, high, err := f.ConfidenceRange()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLow, low)
			assert.Equal(t, tt.wantHigh, high)
		})
	}
}

func TestReportWindowLookbackPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	explicit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f := &SearchFilter{
		Days:          2,
		Hours:         3,
		ReportTimeGTE: &explicit,
		ReportTimeLTE: &now,
	}

	gte, lte := f.ReportWindow(now)
	require.NotNil(t, gte)
	assert.Equal(t, now.Add(-51*time.Hour), *gte)
	assert.Nil(t, lte)
}

func TestReportWindowExplicitRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	f := &SearchFilter{ReportTimeGTE: &from, ReportTimeLTE: &to}

	gte, lte := f.ReportWindow(now)
	assert.Equal(t, &from, gte)
	assert.Equal(t, &to, lte)
}

func TestMultiValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantWant []string
		wantNot  []string
	}{
		{"empty", "", nil, nil},
		{"single", "spamhaus", []string{"spamhaus"}, nil},
		{"comma or", "a,b,c", []string{"a", "b", "c"}, nil},
		{"negation", "!noise", nil, []string{"noise"}},
		{"mixed", "spamhaus,!dragon,abuse", []string{"spamhaus", "abuse"}, []string{"dragon"}},
		{"blank segments skipped", "a,,b", []string{"a", "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, not := MultiValue(tt.raw)
			assert.Equal(t, tt.wantWant, want)
			assert.Equal(t, tt.wantNot, not)
		})
	}
}

func TestSortColumns(t *testing.T) {
	tests := []struct {
		name    string
		sort    string
		want    []SortColumn
		wantErr bool
	}{
		{
			"default ordering",
			"",
			[]SortColumn{{Field: "reporttime", Desc: true}, {Field: "lasttime", Desc: true}},
			false,
		},
		{"single ascending", "confidence", []SortColumn{{Field: "confidence"}}, false},
		{"single descending", "-lasttime", []SortColumn{{Field: "lasttime", Desc: true}}, false},
		{
			"two columns",
			"-reporttime,firsttime",
			[]SortColumn{{Field: "reporttime", Desc: true}, {Field: "firsttime"}},
			false,
		},
		{"too many columns", "reporttime,lasttime,confidence", nil, true},
		{"unknown column", "provider", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &SearchFilter{Sort: tt.sort}

			cols, err := f.SortColumns()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cols)
		})
	}
}
