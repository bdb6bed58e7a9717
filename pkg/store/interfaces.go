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

// Package store implements the storage-agnostic engine contract: token
// management, indicator dedup/merge and authorization-scoped querying. The
// physical persistence lives behind the Backend interface; the engine
// guarantees that both backends answer identically.
package store

import (
	"context"
	"time"

	"github.com/threatwire/threatwire/pkg/models"
)

//go:generate mockgen -destination=mock_store.go -package=store github.com/threatwire/threatwire/pkg/store Backend

// UpsertResult reports what a backend upsert did to the stored record.
type UpsertResult int

const (
	// UpsertNoop means the record existed and the submission was not newer.
	UpsertNoop UpsertResult = iota
	// UpsertCreated means a new record was inserted.
	UpsertCreated
	// UpsertMerged means the existing record's count and timestamps advanced.
	UpsertMerged
)

// Query is the compiled form of a search filter that backends execute. The
// engine resolves authorization scoping and value classification before a
// backend ever sees the query.
type Query struct {
	Value     string
	ValueKind ValueKind
	IType     models.IndicatorType

	// FindRelatives widens IP matches to CIDR ancestors/descendants. It is
	// never set on dedup or allow-list lookups.
	FindRelatives bool

	ConfLow  float64
	ConfHigh float64

	ReportGTE *time.Time
	ReportLTE *time.Time

	Providers    []string
	NotProviders []string
	Tags         []string
	NotTags      []string

	CC    string
	RData string
	ASN   string
	ID    string

	// ITypes restricts results to the token's itype allow-list.
	ITypes []models.IndicatorType

	// Groups is always non-empty for non-admin callers.
	Groups []string

	Limit int
	Sort  []models.SortColumn
}

// ValueKind classifies how a query value is matched.
type ValueKind int

const (
	// ValueNone means no value filter.
	ValueNone ValueKind = iota
	// ValueExact matches hashes, URLs and email addresses literally.
	ValueExact
	// ValueCIDR matches IP types by address or range.
	ValueCIDR
	// ValueSuffix matches domains by label suffix.
	ValueSuffix
	// ValueSubstring matches partial strings.
	ValueSubstring
)

// Backend is the physical persistence contract realized by the relational
// and document-search engines.
type Backend interface {
	// InsertToken persists a fully populated token record.
	InsertToken(ctx context.Context, token *models.Token) error

	// QueryTokens returns records matching the filter.
	QueryTokens(ctx context.Context, filter *models.TokenFilter) ([]*models.Token, error)

	// UpdateTokenGroups replaces the group set of one token. Returns false
	// when no record matched.
	UpdateTokenGroups(ctx context.Context, token string, groups []string) (bool, error)

	// TouchToken advances last_activity_at. Best effort.
	TouchToken(ctx context.Context, token string, at time.Time) error

	// RemoveTokens deletes matching records and returns the count removed.
	RemoveTokens(ctx context.Context, filter *models.TokenFilter) (int, error)

	// UpsertIndicator atomically locates the record sharing the submission's
	// dedup key and applies the merge rule: a strictly newer lasttime
	// increments count and advances lasttime/reporttime, anything else is a
	// no-op. Missing records are inserted. Concurrent upserts to the same
	// key must serialize inside the backend.
	UpsertIndicator(ctx context.Context, record *models.Indicator) (UpsertResult, error)

	// QueryIndicators executes a compiled query.
	QueryIndicators(ctx context.Context, q *Query) ([]*models.Indicator, error)

	// RemoveIndicators deletes by id and returns the count removed.
	RemoveIndicators(ctx context.Context, ids []string) (int, error)

	Close() error
}
