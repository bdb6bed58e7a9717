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

package elastic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/store"
)

// indicatorDoc is the indexed shape: the record plus derived match fields.
type indicatorDoc struct {
	models.Indicator

	DedupKey string `json:"dedup_key"`
	RDomain  string `json:"rdomain,omitempty"`
	IPRange  string `json:"ip_range,omitempty"`
}

// docID derives a stable document id from the dedup key so concurrent
// creates of the same logical indicator collide instead of duplicating.
func docID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newIndicatorDoc(record *models.Indicator) *indicatorDoc {
	doc := &indicatorDoc{
		Indicator: *record,
		DedupKey:  record.DedupKey(),
	}

	switch {
	case record.IType == models.ITypeFQDN:
		doc.RDomain = store.ReverseLabels(record.Value)
	case record.IType.IsIPType():
		doc.IPRange = record.Value
	}

	return doc
}

// UpsertIndicator applies the merge rule with optimistic concurrency: the
// existing document's seq_no/primary_term guard the update, and a conflict
// re-reads and retries a bounded number of times.
func (b *Backend) UpsertIndicator(ctx context.Context, record *models.Indicator) (store.UpsertResult, error) {
	key := record.DedupKey()

	for attempt := 0; attempt < b.retryAttempts; attempt++ {
		hit, err := b.findByDedupKey(ctx, key)
		if err != nil {
			return store.UpsertNoop, err
		}

		if hit == nil {
			doc := newIndicatorDoc(record)
			doc.ID = docID(key)

			_, err := b.client.Index().
				Index(b.writeIndex(record.ReportTime, time.Now())).
				Id(doc.ID).
				BodyJson(doc).
				OpType("create").
				Refresh("true").
				Do(ctx)
			if err != nil {
				if elastic.IsConflict(err) {
					continue // lost the race to another writer, re-read
				}

				return store.UpsertNoop, fmt.Errorf("failed to index indicator: %w", err)
			}

			return store.UpsertCreated, nil
		}

		var stored indicatorDoc
		if err := json.Unmarshal(hit.Source, &stored); err != nil {
			return store.UpsertNoop, fmt.Errorf("failed to decode stored indicator: %w", err)
		}

		if record.LastTime == nil || stored.LastTime == nil || !record.LastTime.After(*stored.LastTime) {
			return store.UpsertNoop, nil
		}

		partial := map[string]interface{}{
			"count":    stored.Count + 1,
			"lasttime": record.LastTime,
		}
		if record.ReportTime != nil {
			partial["reporttime"] = record.ReportTime
		}

		update := b.client.Update().
			Index(hit.Index).
			Id(hit.Id).
			Doc(partial).
			Refresh("true")

		if hit.SeqNo != nil && hit.PrimaryTerm != nil {
			update = update.IfSeqNo(*hit.SeqNo).IfPrimaryTerm(*hit.PrimaryTerm)
		}

		if _, err := update.Do(ctx); err != nil {
			if elastic.IsConflict(err) {
				continue
			}

			return store.UpsertNoop, fmt.Errorf("failed to merge indicator: %w", err)
		}

		return store.UpsertMerged, nil
	}

	return store.UpsertNoop, fmt.Errorf("%w: upsert contention on dedup key", models.ErrBackendUnavailable)
}

// findByDedupKey is the exact-key lookup backing upserts. It never widens
// to relatives.
func (b *Backend) findByDedupKey(ctx context.Context, key string) (*elastic.SearchHit, error) {
	result, err := b.client.Search().
		Index(b.searchPattern()).
		Query(elastic.NewTermQuery("dedup_key", key)).
		SeqNoPrimaryTerm(true).
		Size(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search dedup key: %w", err)
	}

	if len(result.Hits.Hits) == 0 {
		return nil, nil
	}

	return result.Hits.Hits[0], nil
}

func (b *Backend) QueryIndicators(ctx context.Context, q *store.Query) ([]*models.Indicator, error) {
	query, err := buildIndicatorQuery(q)
	if err != nil {
		return nil, err
	}

	search := b.client.Search().
		Index(b.searchPattern()).
		Query(query).
		Size(q.Limit)

	for _, col := range q.Sort {
		search = search.Sort(col.Field, !col.Desc)
	}

	result, err := search.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search indicators: %w", err)
	}

	out := make([]*models.Indicator, 0, len(result.Hits.Hits))

	for _, hit := range result.Hits.Hits {
		var doc indicatorDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			b.log.Warn().Err(err).Str("id", hit.Id).Msg("skipping undecodable indicator document")
			continue
		}

		rec := doc.Indicator
		rec.ID = hit.Id
		out = append(out, &rec)
	}

	return out, nil
}

func (b *Backend) RemoveIndicators(ctx context.Context, ids []string) (int, error) {
	result, err := b.client.DeleteByQuery(b.searchPattern()).
		Query(elastic.NewIdsQuery().Ids(ids...)).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete indicators: %w", err)
	}

	return int(result.Deleted), nil
}

func buildIndicatorQuery(q *store.Query) (elastic.Query, error) {
	query := elastic.NewBoolQuery()

	switch q.ValueKind {
	case store.ValueExact:
		query.Must(elastic.NewTermQuery("indicator", q.Value))
	case store.ValueCIDR:
		if q.FindRelatives {
			clause, err := cidrRelativesQuery(q.Value)
			if err != nil {
				return nil, err
			}

			query.Must(clause)
		} else {
			query.Must(elastic.NewTermQuery("indicator", q.Value))
		}
	case store.ValueSuffix:
		rdomain := store.ReverseLabels(q.Value)
		query.Must(elastic.NewBoolQuery().
			Should(elastic.NewTermQuery("rdomain", rdomain)).
			Should(elastic.NewPrefixQuery("rdomain", rdomain+".")).
			MinimumNumberShouldMatch(1))
	case store.ValueSubstring:
		pattern := strings.ReplaceAll(q.Value, "%", "*")
		if !strings.Contains(pattern, "*") {
			pattern = "*" + pattern + "*"
		}

		query.Must(elastic.NewWildcardQuery("indicator", pattern))
	case store.ValueNone:
	}

	if q.IType != "" {
		query.Must(elastic.NewTermQuery("itype", string(q.IType)))
	}

	if len(q.ITypes) > 0 {
		allowed := make([]interface{}, 0, len(q.ITypes))
		for _, t := range q.ITypes {
			allowed = append(allowed, string(t))
		}

		query.Must(elastic.NewTermsQuery("itype", allowed...))
	}

	query.Must(elastic.NewRangeQuery("confidence").Gte(q.ConfLow).Lte(q.ConfHigh))

	if q.ReportGTE != nil || q.ReportLTE != nil {
		rq := elastic.NewRangeQuery("reporttime")
		if q.ReportGTE != nil {
			rq = rq.Gte(*q.ReportGTE)
		}

		if q.ReportLTE != nil {
			rq = rq.Lte(*q.ReportLTE)
		}

		query.Must(rq)
	}

	if len(q.Providers) > 0 {
		query.Must(elastic.NewTermsQuery("provider", toInterfaces(q.Providers)...))
	}

	for _, p := range q.NotProviders {
		query.MustNot(elastic.NewTermQuery("provider", p))
	}

	if len(q.Tags) > 0 {
		query.Must(elastic.NewTermsQuery("tags", toInterfaces(q.Tags)...))
	}

	for _, t := range q.NotTags {
		query.MustNot(elastic.NewTermQuery("tags", t))
	}

	if q.CC != "" {
		query.Must(elastic.NewTermQuery("cc", strings.ToLower(q.CC)))
	}

	if q.RData != "" {
		query.Must(elastic.NewTermQuery("rdata", q.RData))
	}

	if q.ASN != "" {
		query.Must(elastic.NewTermQuery("asn", q.ASN))
	}

	if q.ID != "" {
		query.Must(elastic.NewIdsQuery().Ids(q.ID))
	}

	if len(q.Groups) > 0 {
		query.Must(elastic.NewTermsQuery("group", toInterfaces(q.Groups)...))
	}

	return query, nil
}

// cidrRelativesQuery matches stored ranges that contain the queried value
// or sit within it, which covers both CIDR ancestors and descendants.
func cidrRelativesQuery(value string) (elastic.Query, error) {
	prefix, err := parsePrefix(value)
	if err != nil {
		return nil, &models.ValidationError{Field: "indicator", Reason: "not an address or CIDR"}
	}

	lo, hi := prefixBounds(prefix)

	contains := elastic.NewRawStringQuery(fmt.Sprintf(
		`{"range":{"ip_range":{"gte":"%s","lte":"%s","relation":"contains"}}}`, lo, hi))
	within := elastic.NewRawStringQuery(fmt.Sprintf(
		`{"range":{"ip_range":{"gte":"%s","lte":"%s","relation":"within"}}}`, lo, hi))

	return elastic.NewBoolQuery().
		Should(contains).
		Should(within).
		MinimumNumberShouldMatch(1), nil
}

func parsePrefix(value string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(value); err == nil {
		return p, nil
	}

	a, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}

	return netip.PrefixFrom(a, a.BitLen()), nil
}

// prefixBounds returns the first and last address of a prefix.
func prefixBounds(p netip.Prefix) (lo, hi string) {
	first := p.Masked().Addr()
	raw := first.AsSlice()

	for bit := p.Bits(); bit < len(raw)*8; bit++ {
		raw[bit/8] |= 1 << (7 - bit%8)
	}

	last, _ := netip.AddrFromSlice(raw)

	return first.String(), last.String()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}

	return out
}

var _ store.Backend = (*Backend)(nil)
