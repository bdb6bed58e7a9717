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
	"fmt"
)

// Schema statements are idempotent; the backend applies them at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		token            TEXT PRIMARY KEY,
		username         TEXT NOT NULL,
		groups           TEXT[] NOT NULL DEFAULT '{}',
		can_read         BOOLEAN NOT NULL DEFAULT FALSE,
		can_write        BOOLEAN NOT NULL DEFAULT FALSE,
		can_admin        BOOLEAN NOT NULL DEFAULT FALSE,
		acl              TEXT[] NOT NULL DEFAULT '{}',
		revoked          BOOLEAN NOT NULL DEFAULT FALSE,
		expires          TIMESTAMPTZ,
		last_activity_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_username ON tokens (username)`,

	`CREATE TABLE IF NOT EXISTS indicators (
		id          UUID PRIMARY KEY,
		dedup_key   TEXT NOT NULL UNIQUE,
		value       TEXT NOT NULL,
		itype       TEXT NOT NULL,
		provider    TEXT NOT NULL,
		grp         TEXT NOT NULL,
		tags        TEXT[] NOT NULL DEFAULT '{}',
		confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
		firsttime   TIMESTAMPTZ,
		lasttime    TIMESTAMPTZ,
		reporttime  TIMESTAMPTZ,
		count       INTEGER NOT NULL DEFAULT 1,
		tlp         TEXT NOT NULL DEFAULT '',
		asn         BIGINT,
		asn_desc    TEXT NOT NULL DEFAULT '',
		cc          TEXT NOT NULL DEFAULT '',
		city        TEXT NOT NULL DEFAULT '',
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION,
		peers       TEXT[] NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		rdata       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_reporttime ON indicators (reporttime DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_itype ON indicators (itype)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_provider ON indicators (provider)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_grp ON indicators (grp)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_tags ON indicators USING GIN (tags)`,

	// Per-type side tables keep range and suffix lookups indexed.
	`CREATE TABLE IF NOT EXISTS indicators_ip (
		indicator_id UUID NOT NULL REFERENCES indicators(id) ON DELETE CASCADE,
		addr         CIDR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_ip_addr ON indicators_ip USING GIST (addr inet_ops)`,

	`CREATE TABLE IF NOT EXISTS indicators_fqdn (
		indicator_id UUID NOT NULL REFERENCES indicators(id) ON DELETE CASCADE,
		rdomain      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_fqdn_rdomain ON indicators_fqdn (rdomain text_pattern_ops)`,

	`CREATE TABLE IF NOT EXISTS indicators_url (
		indicator_id UUID NOT NULL REFERENCES indicators(id) ON DELETE CASCADE,
		url          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_url_url ON indicators_url (url)`,

	`CREATE TABLE IF NOT EXISTS indicators_hash (
		indicator_id UUID NOT NULL REFERENCES indicators(id) ON DELETE CASCADE,
		algo         TEXT NOT NULL,
		digest       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_hash_digest ON indicators_hash (digest)`,
}

func (b *Backend) migrate(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres migrations: acquire connection: %w", err)
	}
	defer conn.Release()

	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrations: apply statement: %w", err)
		}
	}

	b.log.Debug().Int("statements", len(schemaStatements)).Msg("schema hydrated")

	return nil
}
