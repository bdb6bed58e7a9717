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

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/store"
)

func TestBuildIndicatorQueryExactValue(t *testing.T) {
	q := &store.Query{
		Value:     "d41d8cd98f00b204e9800998ecf8427e",
		ValueKind: store.ValueExact,
		ConfHigh:  10,
		Limit:     500,
	}

	sql, args := buildIndicatorQuery(q)

	assert.Contains(t, sql, "i.value = $1")
	assert.NotContains(t, sql, "JOIN")
	assert.Contains(t, sql, "ORDER BY i.reporttime DESC, i.lasttime DESC")
	assert.Contains(t, sql, "LIMIT $4")
	assert.Equal(t, []interface{}{"d41d8cd98f00b204e9800998ecf8427e", float64(0), float64(10), 500}, args)
}

func TestBuildIndicatorQueryCIDRRelatives(t *testing.T) {
	q := &store.Query{
		Value:         "198.51.100.7",
		ValueKind:     store.ValueCIDR,
		FindRelatives: true,
		ConfHigh:      10,
	}

	sql, args := buildIndicatorQuery(q)

	assert.Contains(t, sql, "JOIN indicators_ip ip ON ip.indicator_id = i.id")
	assert.Contains(t, sql, "(ip.addr >>= $1::cidr OR ip.addr <<= $1::cidr)")
	assert.Equal(t, "198.51.100.7", args[0])
}

func TestBuildIndicatorQueryCIDRWithoutRelativesIsExact(t *testing.T) {
	q := &store.Query{
		Value:     "198.51.100.7",
		ValueKind: store.ValueCIDR,
		ConfHigh:  10,
	}

	sql, _ := buildIndicatorQuery(q)

	assert.Contains(t, sql, "i.value = $1")
	assert.NotContains(t, sql, "indicators_ip")
}

func TestBuildIndicatorQuerySuffix(t *testing.T) {
	q := &store.Query{
		Value:     "example.com",
		ValueKind: store.ValueSuffix,
		ConfHigh:  10,
	}

	sql, args := buildIndicatorQuery(q)

	assert.Contains(t, sql, "JOIN indicators_fqdn f ON f.indicator_id = i.id")
	assert.Contains(t, sql, "(f.rdomain = $1 OR f.rdomain LIKE $2)")
	assert.Equal(t, "com.example", args[0])
	assert.Equal(t, "com.example.%", args[1])
}

func TestBuildIndicatorQuerySubstring(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"star wildcard", "*evil*", "%evil%"},
		{"percent wildcard", "%evil%", "%evil%"},
		{"bare needle wrapped", "evil", "%evil%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &store.Query{Value: tt.value, ValueKind: store.ValueSubstring, ConfHigh: 10}

			sql, args := buildIndicatorQuery(q)

			assert.Contains(t, sql, "i.value ILIKE $1")
			assert.Equal(t, tt.want, args[0])
		})
	}
}

func TestBuildIndicatorQueryFilters(t *testing.T) {
	gte := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	lte := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	q := &store.Query{
		IType:        models.ITypeFQDN,
		ConfLow:      5,
		ConfHigh:     8,
		ReportGTE:    &gte,
		ReportLTE:    &lte,
		Providers:    []string{"spamhaus"},
		NotProviders: []string{"dragon"},
		Tags:         []string{"phishing"},
		NotTags:      []string{"noise"},
		CC:           "nl",
		RData:        "ns1.example.org",
		ASN:          "64496",
		Groups:       []string{"everyone", "staff"},
		ITypes:       []models.IndicatorType{models.ITypeFQDN, models.ITypeURL},
		Limit:        100,
	}

	sql, args := buildIndicatorQuery(q)

	assert.Contains(t, sql, "i.itype = $1")
	assert.Contains(t, sql, "i.itype = ANY($2)")
	assert.Contains(t, sql, "i.confidence >= $3")
	assert.Contains(t, sql, "i.confidence <= $4")
	assert.Contains(t, sql, "i.reporttime >= $5")
	assert.Contains(t, sql, "i.reporttime <= $6")
	assert.Contains(t, sql, "i.provider = ANY($7)")
	assert.Contains(t, sql, "i.provider != ALL($8)")
	assert.Contains(t, sql, "i.tags && $9")
	assert.Contains(t, sql, "NOT (i.tags && $10)")
	assert.Contains(t, sql, "i.cc ILIKE $11")
	assert.Contains(t, sql, "i.rdata = $12")
	assert.Contains(t, sql, "i.asn = $13::bigint")
	assert.Contains(t, sql, "i.grp = ANY($14)")
	assert.Contains(t, sql, "LIMIT $15")
	require.Len(t, args, 15)
	assert.Equal(t, []string{"everyone", "staff"}, args[13])
}

func TestBuildIndicatorQueryByID(t *testing.T) {
	q := &store.Query{ID: "abc-123", ConfHigh: 10}

	sql, args := buildIndicatorQuery(q)

	assert.Contains(t, sql, "i.id = $3")
	assert.Equal(t, "abc-123", args[2])
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, "i.reporttime DESC, i.lasttime DESC", orderClause(nil))

	cols := []models.SortColumn{{Field: "confidence", Desc: true}, {Field: "firsttime"}}
	assert.Equal(t, "i.confidence DESC, i.firsttime ASC", orderClause(cols))
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, logger.NewTestLogger())
	assert.Error(t, err)
}

type execCall struct {
	sql  string
	args []any
}

// fakeTx scripts the Exec and QueryRow responses the upsert path consumes;
// no other transaction method is reached.
type fakeTx struct {
	pgx.Tx

	calls []execCall
	tags  []pgconn.CommandTag
	rows  []pgx.Row
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})

	tag := f.tags[0]
	f.tags = f.tags[1:]

	return tag, nil
}

func (f *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	row := f.rows[0]
	f.rows = f.rows[1:]

	return row
}

type fakeRow struct {
	id       string
	lasttime *time.Time
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}

	*(dest[0].(*string)) = r.id
	*(dest[1].(**time.Time)) = r.lasttime

	return nil
}

func upsertRecord(last time.Time) *models.Indicator {
	first := last.Add(-time.Hour)
	report := last

	return &models.Indicator{
		Value:      "a.example.com",
		IType:      models.ITypeFQDN,
		Provider:   "p",
		Group:      "everyone",
		Tags:       []string{"x"},
		Confidence: 5,
		FirstTime:  &first,
		LastTime:   &last,
		ReportTime: &report,
		Count:      1,
	}
}

func TestUpsertInTxCreates(t *testing.T) {
	tx := &fakeTx{tags: []pgconn.CommandTag{
		pgconn.NewCommandTag("INSERT 0 1"),
		pgconn.NewCommandTag("INSERT 0 1"),
	}}

	result, err := upsertInTx(context.Background(), tx, upsertRecord(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertCreated, result)

	require.Len(t, tx.calls, 2)
	assert.Contains(t, tx.calls[0].sql, "ON CONFLICT (dedup_key) DO NOTHING")
	assert.Contains(t, tx.calls[1].sql, "indicators_fqdn")
	assert.Equal(t, "com.example.a", tx.calls[1].args[1])
}

func TestUpsertInTxLostRaceMerges(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := base.Add(-time.Hour)

	// A concurrent writer claimed the key first: the insert reports zero
	// rows and the locked row is merged instead of surfacing a conflict.
	tx := &fakeTx{
		tags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 0"),
			pgconn.NewCommandTag("UPDATE 1"),
		},
		rows: []pgx.Row{fakeRow{id: "existing-id", lasttime: &existing}},
	}

	result, err := upsertInTx(context.Background(), tx, upsertRecord(base))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertMerged, result)

	require.Len(t, tx.calls, 2)
	assert.Contains(t, tx.calls[1].sql, "count = count + 1")
	assert.Equal(t, "existing-id", tx.calls[1].args[0])
}

func TestUpsertInTxLostRaceNoopsWhenNotNewer(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tx := &fakeTx{
		tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")},
		rows: []pgx.Row{fakeRow{id: "existing-id", lasttime: &base}},
	}

	result, err := upsertInTx(context.Background(), tx, upsertRecord(base))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertNoop, result)

	// No side row and no merge for an equal-lasttime resubmission.
	assert.Len(t, tx.calls, 1)
}

func TestUpsertInTxReclaimsVanishedRow(t *testing.T) {
	tx := &fakeTx{
		tags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 0"),
			pgconn.NewCommandTag("INSERT 0 1"),
			pgconn.NewCommandTag("INSERT 0 1"),
		},
		rows: []pgx.Row{fakeRow{err: pgx.ErrNoRows}},
	}

	result, err := upsertInTx(context.Background(), tx, upsertRecord(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertCreated, result)
	assert.Len(t, tx.calls, 3)
}
