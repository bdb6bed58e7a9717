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

// Package memory is an in-process store backend. It backs development
// deployments and the test suites; it carries the full contract semantics
// so engine behavior can be exercised without a database.
package memory

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/store"
)

// Backend holds everything under one mutex; upserts to the same dedup key
// serialize trivially.
type Backend struct {
	mu         sync.Mutex
	tokens     []*models.Token
	indicators map[string]*models.Indicator // by id
	byKey      map[string]string            // dedup key -> id
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		indicators: make(map[string]*models.Indicator),
		byKey:      make(map[string]string),
	}
}

func (b *Backend) Close() error { return nil }

func (b *Backend) InsertToken(_ context.Context, token *models.Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	clone := *token
	b.tokens = append(b.tokens, &clone)

	return nil
}

func (b *Backend) QueryTokens(_ context.Context, filter *models.TokenFilter) ([]*models.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.Token

	for _, t := range b.tokens {
		if tokenMatches(t, filter) {
			clone := *t
			out = append(out, &clone)
		}
	}

	return out, nil
}

func (b *Backend) UpdateTokenGroups(_ context.Context, token string, groups []string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tokens {
		if t.Token == token {
			t.Groups = append([]string(nil), groups...)
			return true, nil
		}
	}

	return false, nil
}

func (b *Backend) TouchToken(_ context.Context, token string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tokens {
		if t.Token == token {
			ts := at
			t.LastActivityAt = &ts
		}
	}

	return nil
}

func (b *Backend) RemoveTokens(_ context.Context, filter *models.TokenFilter) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.tokens[:0]
	removed := 0

	for _, t := range b.tokens {
		match := true

		if filter.Token != "" && t.Token != filter.Token {
			match = false
		}

		if filter.Username != "" && t.Username != filter.Username {
			match = false
		}

		if match {
			removed++
		} else {
			kept = append(kept, t)
		}
	}

	b.tokens = kept

	return removed, nil
}

func (b *Backend) UpsertIndicator(_ context.Context, record *models.Indicator) (store.UpsertResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := record.DedupKey()

	id, exists := b.byKey[key]
	if !exists {
		clone := *record
		clone.ID = uuid.New().String()
		b.indicators[clone.ID] = &clone
		b.byKey[key] = clone.ID

		return store.UpsertCreated, nil
	}

	stored := b.indicators[id]

	if record.LastTime == nil || stored.LastTime == nil || !record.LastTime.After(*stored.LastTime) {
		return store.UpsertNoop, nil
	}

	stored.Count++
	stored.LastTime = record.LastTime

	if record.ReportTime != nil {
		stored.ReportTime = record.ReportTime
	}

	return store.UpsertMerged, nil
}

func (b *Backend) QueryIndicators(_ context.Context, q *store.Query) ([]*models.Indicator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.Indicator

	for _, rec := range b.indicators {
		if indicatorMatches(rec, q) {
			clone := *rec
			out = append(out, &clone)
		}
	}

	sortIndicators(out, q.Sort)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (b *Backend) RemoveIndicators(_ context.Context, ids []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0

	for _, id := range ids {
		rec, ok := b.indicators[id]
		if !ok {
			continue
		}

		delete(b.indicators, id)
		delete(b.byKey, rec.DedupKey())
		removed++
	}

	return removed, nil
}

func tokenMatches(t *models.Token, f *models.TokenFilter) bool {
	if f == nil {
		return true
	}

	if f.Token != "" && t.Token != f.Token {
		return false
	}

	if f.Username != "" && t.Username != f.Username {
		return false
	}

	if f.Read != nil && t.Read != *f.Read {
		return false
	}

	if f.Write != nil && t.Write != *f.Write {
		return false
	}

	if f.Admin != nil && t.Admin != *f.Admin {
		return false
	}

	return true
}

func indicatorMatches(rec *models.Indicator, q *store.Query) bool {
	if q.ID != "" && rec.ID != q.ID {
		return false
	}

	if !valueMatches(rec, q) {
		return false
	}

	if q.IType != "" && rec.IType != q.IType {
		return false
	}

	if len(q.ITypes) > 0 && !containsIType(q.ITypes, rec.IType) {
		return false
	}

	if rec.Confidence < q.ConfLow || rec.Confidence > q.ConfHigh {
		return false
	}

	if q.ReportGTE != nil && (rec.ReportTime == nil || rec.ReportTime.Before(*q.ReportGTE)) {
		return false
	}

	if q.ReportLTE != nil && (rec.ReportTime == nil || rec.ReportTime.After(*q.ReportLTE)) {
		return false
	}

	if len(q.Providers) > 0 && !containsString(q.Providers, rec.Provider) {
		return false
	}

	if containsString(q.NotProviders, rec.Provider) {
		return false
	}

	if len(q.Tags) > 0 && !intersects(rec.Tags, q.Tags) {
		return false
	}

	if intersects(rec.Tags, q.NotTags) {
		return false
	}

	if q.CC != "" && !strings.EqualFold(rec.CC, q.CC) {
		return false
	}

	if q.RData != "" && rec.RData != q.RData {
		return false
	}

	if len(q.Groups) > 0 && !containsString(q.Groups, rec.Group) {
		return false
	}

	return true
}

func valueMatches(rec *models.Indicator, q *store.Query) bool {
	switch q.ValueKind {
	case store.ValueNone:
		return true
	case store.ValueExact:
		return rec.Value == q.Value
	case store.ValueSuffix:
		// The queried domain itself and stored subdomains of it match;
		// stored parents of the queried domain do not.
		if strings.EqualFold(rec.Value, q.Value) {
			return true
		}

		return strings.HasSuffix(strings.ToLower(rec.Value), "."+strings.ToLower(q.Value))
	case store.ValueSubstring:
		needle := strings.Trim(q.Value, "%*")
		return strings.Contains(strings.ToLower(rec.Value), strings.ToLower(needle))
	case store.ValueCIDR:
		return cidrMatches(rec.Value, q.Value, q.FindRelatives)
	default:
		return false
	}
}

// cidrMatches compares two address-or-prefix values. With relatives off only
// the literal value matches; with relatives on, ancestry in either
// direction counts.
func cidrMatches(stored, queried string, relatives bool) bool {
	if stored == queried {
		return true
	}

	if !relatives {
		return false
	}

	sp, sok := parsePrefix(stored)
	qp, qok := parsePrefix(queried)

	if !sok || !qok {
		return false
	}

	return sp.Overlaps(qp)
}

func parsePrefix(value string) (netip.Prefix, bool) {
	if p, err := netip.ParsePrefix(value); err == nil {
		return p, true
	}

	if a, err := netip.ParseAddr(value); err == nil {
		return netip.PrefixFrom(a, a.BitLen()), true
	}

	return netip.Prefix{}, false
}

func sortIndicators(recs []*models.Indicator, cols []models.SortColumn) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, col := range cols {
			cmp := compareColumn(recs[i], recs[j], col.Field)
			if cmp == 0 {
				continue
			}

			if col.Desc {
				return cmp > 0
			}

			return cmp < 0
		}

		return false
	})
}

func compareColumn(a, b *models.Indicator, field string) int {
	switch field {
	case "confidence":
		switch {
		case a.Confidence < b.Confidence:
			return -1
		case a.Confidence > b.Confidence:
			return 1
		default:
			return 0
		}
	case "reporttime":
		return compareTimes(a.ReportTime, b.ReportTime)
	case "lasttime":
		return compareTimes(a.LastTime, b.LastTime)
	case "firsttime":
		return compareTimes(a.FirstTime, b.FirstTime)
	default:
		return 0
	}
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}

	return false
}

func containsIType(haystack []models.IndicatorType, needle models.IndicatorType) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}

	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}

	return false
}

var _ store.Backend = (*Backend)(nil)
