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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/store"
)

func seed(t *testing.T, b *Backend, recs ...*models.Indicator) {
	t.Helper()

	for _, rec := range recs {
		result, err := b.UpsertIndicator(context.Background(), rec)
		require.NoError(t, err)
		require.Equal(t, store.UpsertCreated, result)
	}
}

func rec(value string, provider string, tags []string, conf float64, report time.Time) *models.Indicator {
	last := report
	first := report.Add(-time.Hour)

	return &models.Indicator{
		Value:      value,
		IType:      models.ITypeFQDN,
		Provider:   provider,
		Group:      "everyone",
		Tags:       tags,
		Confidence: conf,
		FirstTime:  &first,
		LastTime:   &last,
		ReportTime: &report,
		Count:      1,
	}
}

func TestQueryIndicatorsDefaultOrderAndLimit(t *testing.T) {
	b := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		rec("old.example.com", "p", []string{"x"}, 5, base),
		rec("mid.example.com", "p", []string{"x"}, 5, base.Add(time.Hour)),
		rec("new.example.com", "p", []string{"x"}, 5, base.Add(2*time.Hour)),
	)

	q := &store.Query{
		ConfHigh: 10,
		Limit:    2,
		Sort: []models.SortColumn{
			{Field: "reporttime", Desc: true},
			{Field: "lasttime", Desc: true},
		},
	}

	out, err := b.QueryIndicators(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "new.example.com", out[0].Value)
	assert.Equal(t, "mid.example.com", out[1].Value)
}

func TestQueryIndicatorsProviderAndTagNegation(t *testing.T) {
	b := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		rec("a.example.com", "spamhaus", []string{"phishing"}, 5, base),
		rec("b.example.com", "dragon", []string{"phishing", "noise"}, 5, base),
		rec("c.example.com", "spamhaus", []string{"noise"}, 5, base),
	)

	q := &store.Query{
		ConfHigh:  10,
		Providers: []string{"spamhaus"},
		NotTags:   []string{"noise"},
		Limit:     10,
		Sort:      []models.SortColumn{{Field: "reporttime", Desc: true}},
	}

	out, err := b.QueryIndicators(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.example.com", out[0].Value)
}

func TestQueryIndicatorsSuffixMatch(t *testing.T) {
	b := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		rec("deep.sub.example.com", "p", []string{"x"}, 5, base),
		rec("example.org", "p", []string{"x"}, 5, base),
	)

	q := &store.Query{
		Value:     "example.com",
		ValueKind: store.ValueSuffix,
		ConfHigh:  10,
		Limit:     10,
	}

	out, err := b.QueryIndicators(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "deep.sub.example.com", out[0].Value)
}

func TestQueryIndicatorsSuffixIgnoresStoredParents(t *testing.T) {
	b := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		rec("example.com", "p", []string{"x"}, 5, base),
		rec("sub.example.com", "p", []string{"x"}, 5, base),
	)

	// A subdomain query returns only the queried name and deeper
	// subdomains, never a stored parent zone.
	q := &store.Query{
		Value:     "sub.example.com",
		ValueKind: store.ValueSuffix,
		ConfHigh:  10,
		Limit:     10,
	}

	out, err := b.QueryIndicators(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sub.example.com", out[0].Value)
}

func TestQueryIndicatorsSubstringMatch(t *testing.T) {
	b := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		rec("payload.evil-kit.example.com", "p", []string{"x"}, 5, base),
		rec("clean.example.com", "p", []string{"x"}, 5, base),
	)

	q := &store.Query{
		Value:     "%evil-kit%",
		ValueKind: store.ValueSubstring,
		ConfHigh:  10,
		Limit:     10,
	}

	out, err := b.QueryIndicators(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "payload.evil-kit.example.com", out[0].Value)
}

func TestUpsertIndicatorMergeAdvancesReportTime(t *testing.T) {
	b := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := rec("a.example.com", "p", []string{"x"}, 5, base)
	result, err := b.UpsertIndicator(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, store.UpsertCreated, result)

	newer := rec("a.example.com", "p", []string{"x"}, 5, base.Add(time.Hour))
	result, err = b.UpsertIndicator(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, store.UpsertMerged, result)

	out, err := b.QueryIndicators(ctx, &store.Query{ConfHigh: 10, Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Count)
	assert.Equal(t, base.Add(time.Hour), *out[0].ReportTime)
	assert.Equal(t, base.Add(time.Hour), *out[0].LastTime)
}

func TestRemoveIndicatorsFreesDedupKey(t *testing.T) {
	b := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b, rec("a.example.com", "p", []string{"x"}, 5, base))

	out, err := b.QueryIndicators(ctx, &store.Query{ConfHigh: 10, Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)

	removed, err := b.RemoveIndicators(ctx, []string{out[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The identity is free again; re-creating is not a merge.
	result, err := b.UpsertIndicator(ctx, rec("a.example.com", "p", []string{"x"}, 5, base))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertCreated, result)
}

func TestRemoveTokensByUsername(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.InsertToken(ctx, &models.Token{Token: "t1", Username: "alice"}))
	require.NoError(t, b.InsertToken(ctx, &models.Token{Token: "t2", Username: "alice"}))
	require.NoError(t, b.InsertToken(ctx, &models.Token{Token: "t3", Username: "bob"}))

	removed, err := b.RemoveTokens(ctx, &models.TokenFilter{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	rest, err := b.QueryTokens(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "bob", rest[0].Username)
}
