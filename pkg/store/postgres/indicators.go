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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/store"
)

const indicatorColumns = `id, value, itype, provider, grp, tags, confidence,
	firsttime, lasttime, reporttime, count, tlp, asn, asn_desc, cc, city,
	latitude, longitude, peers, description, rdata`

// upsertInsertSQL claims the dedup key without racing a concurrent first
// writer: the loser of an insert-insert race sees zero rows affected and
// falls through to the locked merge path instead of a unique violation.
const upsertInsertSQL = `
	INSERT INTO indicators (id, dedup_key, value, itype, provider, grp, tags, confidence,
		firsttime, lasttime, reporttime, count, tlp, asn, asn_desc, cc, city,
		latitude, longitude, peers, description, rdata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	ON CONFLICT (dedup_key) DO NOTHING`

// UpsertIndicator serializes same-key submissions. New keys are claimed
// with an INSERT ... ON CONFLICT DO NOTHING; when the key already exists
// the row is selected FOR UPDATE and merged or left alone by the lasttime
// rule.
func (b *Backend) UpsertIndicator(ctx context.Context, record *models.Indicator) (store.UpsertResult, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.UpsertNoop, fmt.Errorf("%w: begin upsert: %w", ErrFailedToInsert, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := upsertInTx(ctx, tx, record)
	if err != nil {
		return store.UpsertNoop, err
	}

	return result, tx.Commit(ctx)
}

func upsertInTx(ctx context.Context, tx pgx.Tx, record *models.Indicator) (store.UpsertResult, error) {
	for {
		created, err := insertIndicator(ctx, tx, record)
		if err != nil {
			return store.UpsertNoop, err
		}

		if created {
			return store.UpsertCreated, nil
		}

		var (
			id       string
			lasttime *time.Time
		)

		err = tx.QueryRow(ctx,
			`SELECT id, lasttime FROM indicators WHERE dedup_key = $1 FOR UPDATE`,
			record.DedupKey()).Scan(&id, &lasttime)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// The conflicting row vanished between statements; claim again.
			continue
		case err != nil:
			return store.UpsertNoop, fmt.Errorf("%w: dedup lookup: %w", ErrFailedToQuery, err)
		}

		if record.LastTime == nil || lasttime == nil || !record.LastTime.After(*lasttime) {
			return store.UpsertNoop, nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE indicators SET count = count + 1, lasttime = $2, reporttime = COALESCE($3, reporttime) WHERE id = $1`,
			id, record.LastTime, record.ReportTime)
		if err != nil {
			return store.UpsertNoop, fmt.Errorf("%w: merge: %w", ErrFailedToInsert, err)
		}

		return store.UpsertMerged, nil
	}
}

// insertIndicator reports whether the record claimed its dedup key. The
// side-table row is written only for a claimed key.
func insertIndicator(ctx context.Context, tx pgx.Tx, record *models.Indicator) (bool, error) {
	id := uuid.New().String()

	tag, err := tx.Exec(ctx, upsertInsertSQL,
		id, record.DedupKey(), record.Value, string(record.IType), record.Provider, record.Group,
		record.Tags, record.Confidence, record.FirstTime, record.LastTime, record.ReportTime,
		record.Count, record.TLP, record.ASN, record.ASNDesc, record.CC, record.City,
		record.Latitude, record.Longitude, record.Peers, record.Description, record.RData)
	if err != nil {
		return false, fmt.Errorf("%w: indicator: %w", ErrFailedToInsert, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertSideRow(ctx, tx, id, record); err != nil {
		return false, err
	}

	return true, nil
}

func insertSideRow(ctx context.Context, tx pgx.Tx, id string, record *models.Indicator) error {
	var err error

	switch {
	case record.IType.IsIPType():
		_, err = tx.Exec(ctx,
			`INSERT INTO indicators_ip (indicator_id, addr) VALUES ($1, $2::cidr)`,
			id, record.Value)
	case record.IType == models.ITypeFQDN:
		_, err = tx.Exec(ctx,
			`INSERT INTO indicators_fqdn (indicator_id, rdomain) VALUES ($1, $2)`,
			id, store.ReverseLabels(record.Value))
	case record.IType == models.ITypeURL:
		_, err = tx.Exec(ctx,
			`INSERT INTO indicators_url (indicator_id, url) VALUES ($1, $2)`,
			id, record.Value)
	case record.IType.IsHashType():
		_, err = tx.Exec(ctx,
			`INSERT INTO indicators_hash (indicator_id, algo, digest) VALUES ($1, $2, $3)`,
			id, string(record.IType), record.Value)
	}

	if err != nil {
		return fmt.Errorf("%w: side table: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (b *Backend) QueryIndicators(ctx context.Context, q *store.Query) ([]*models.Indicator, error) {
	query, args := buildIndicatorQuery(q)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: indicators: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []*models.Indicator

	for rows.Next() {
		rec, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: indicators: %w", ErrFailedToQuery, err)
	}

	return out, nil
}

func (b *Backend) RemoveIndicators(ctx context.Context, ids []string) (int, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM indicators WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: indicators: %w", ErrFailedToInsert, err)
	}

	return int(tag.RowsAffected()), nil
}

// buildIndicatorQuery assembles the WHERE clause in the contract's filter
// order. Value matching joins the side table matching the query kind.
func buildIndicatorQuery(q *store.Query) (string, []interface{}) {
	var (
		joins   []string
		clauses []string
		args    []interface{}
	)

	arg := func(value interface{}) int {
		args = append(args, value)
		return len(args)
	}

	switch q.ValueKind {
	case store.ValueExact:
		clauses = append(clauses, fmt.Sprintf("i.value = $%d", arg(q.Value)))
	case store.ValueCIDR:
		if q.FindRelatives {
			joins = append(joins, "JOIN indicators_ip ip ON ip.indicator_id = i.id")
			n := arg(q.Value)
			clauses = append(clauses, fmt.Sprintf("(ip.addr >>= $%d::cidr OR ip.addr <<= $%d::cidr)", n, n))
		} else {
			clauses = append(clauses, fmt.Sprintf("i.value = $%d", arg(q.Value)))
		}
	case store.ValueSuffix:
		joins = append(joins, "JOIN indicators_fqdn f ON f.indicator_id = i.id")
		rdomain := store.ReverseLabels(q.Value)
		clauses = append(clauses, fmt.Sprintf("(f.rdomain = $%d OR f.rdomain LIKE $%d)",
			arg(rdomain), arg(rdomain+".%")))
	case store.ValueSubstring:
		pattern := strings.ReplaceAll(q.Value, "*", "%")
		if !strings.Contains(pattern, "%") {
			pattern = "%" + pattern + "%"
		}

		clauses = append(clauses, fmt.Sprintf("i.value ILIKE $%d", arg(pattern)))
	case store.ValueNone:
	}

	if q.IType != "" {
		clauses = append(clauses, fmt.Sprintf("i.itype = $%d", arg(string(q.IType))))
	}

	if len(q.ITypes) > 0 {
		allowed := make([]string, 0, len(q.ITypes))
		for _, t := range q.ITypes {
			allowed = append(allowed, string(t))
		}

		clauses = append(clauses, fmt.Sprintf("i.itype = ANY($%d)", arg(allowed)))
	}

	clauses = append(clauses, fmt.Sprintf("i.confidence >= $%d", arg(q.ConfLow)))
	clauses = append(clauses, fmt.Sprintf("i.confidence <= $%d", arg(q.ConfHigh)))

	if q.ReportGTE != nil {
		clauses = append(clauses, fmt.Sprintf("i.reporttime >= $%d", arg(*q.ReportGTE)))
	}

	if q.ReportLTE != nil {
		clauses = append(clauses, fmt.Sprintf("i.reporttime <= $%d", arg(*q.ReportLTE)))
	}

	if len(q.Providers) > 0 {
		clauses = append(clauses, fmt.Sprintf("i.provider = ANY($%d)", arg(q.Providers)))
	}

	if len(q.NotProviders) > 0 {
		clauses = append(clauses, fmt.Sprintf("i.provider != ALL($%d)", arg(q.NotProviders)))
	}

	if len(q.Tags) > 0 {
		clauses = append(clauses, fmt.Sprintf("i.tags && $%d", arg(q.Tags)))
	}

	if len(q.NotTags) > 0 {
		clauses = append(clauses, fmt.Sprintf("NOT (i.tags && $%d)", arg(q.NotTags)))
	}

	if q.CC != "" {
		clauses = append(clauses, fmt.Sprintf("i.cc ILIKE $%d", arg(q.CC)))
	}

	if q.RData != "" {
		clauses = append(clauses, fmt.Sprintf("i.rdata = $%d", arg(q.RData)))
	}

	if q.ASN != "" {
		clauses = append(clauses, fmt.Sprintf("i.asn = $%d::bigint", arg(q.ASN)))
	}

	if q.ID != "" {
		clauses = append(clauses, fmt.Sprintf("i.id = $%d", arg(q.ID)))
	}

	if len(q.Groups) > 0 {
		clauses = append(clauses, fmt.Sprintf("i.grp = ANY($%d)", arg(q.Groups)))
	}

	query := "SELECT DISTINCT " + indicatorColumnsAliased() + " FROM indicators i"

	if len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}

	query += " WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY " + orderClause(q.Sort)

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", arg(q.Limit))
	}

	return query, args
}

func indicatorColumnsAliased() string {
	cols := strings.Split(indicatorColumns, ",")
	for i, c := range cols {
		cols[i] = "i." + strings.TrimSpace(c)
	}

	return strings.Join(cols, ", ")
}

func orderClause(cols []models.SortColumn) string {
	if len(cols) == 0 {
		return "i.reporttime DESC, i.lasttime DESC"
	}

	terms := make([]string, 0, len(cols))

	for _, col := range cols {
		dir := "ASC"
		if col.Desc {
			dir = "DESC"
		}

		terms = append(terms, "i."+col.Field+" "+dir)
	}

	return strings.Join(terms, ", ")
}

func scanIndicator(rows pgx.Rows) (*models.Indicator, error) {
	var (
		rec   models.Indicator
		itype string
	)

	if err := rows.Scan(&rec.ID, &rec.Value, &itype, &rec.Provider, &rec.Group, &rec.Tags,
		&rec.Confidence, &rec.FirstTime, &rec.LastTime, &rec.ReportTime, &rec.Count,
		&rec.TLP, &rec.ASN, &rec.ASNDesc, &rec.CC, &rec.City,
		&rec.Latitude, &rec.Longitude, &rec.Peers, &rec.Description, &rec.RData); err != nil {
		return nil, fmt.Errorf("%w: indicator row: %w", ErrFailedToScan, err)
	}

	rec.IType = models.IndicatorType(itype)

	return &rec, nil
}

var _ store.Backend = (*Backend)(nil)
