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
	"strings"
	"time"

	"github.com/threatwire/threatwire/pkg/models"
)

func (b *Backend) InsertToken(ctx context.Context, token *models.Token) error {
	acl := make([]string, 0, len(token.ACL))
	for _, t := range token.ACL {
		acl = append(acl, string(t))
	}

	_, err := b.pool.Exec(ctx, `
		INSERT INTO tokens (token, username, groups, can_read, can_write, can_admin, acl, revoked, expires, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		token.Token, token.Username, token.Groups,
		token.Read, token.Write, token.Admin,
		acl, token.Revoked, token.Expires, token.LastActivityAt)
	if err != nil {
		return fmt.Errorf("%w: token: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (b *Backend) QueryTokens(ctx context.Context, filter *models.TokenFilter) ([]*models.Token, error) {
	var (
		clauses []string
		args    []interface{}
	)

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter != nil {
		if filter.Token != "" {
			add("token = $%d", filter.Token)
		}

		if filter.Username != "" {
			add("username = $%d", filter.Username)
		}

		if filter.Read != nil {
			add("can_read = $%d", *filter.Read)
		}

		if filter.Write != nil {
			add("can_write = $%d", *filter.Write)
		}

		if filter.Admin != nil {
			add("can_admin = $%d", *filter.Admin)
		}
	}

	query := `SELECT token, username, groups, can_read, can_write, can_admin, acl, revoked, expires, last_activity_at FROM tokens`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: tokens: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []*models.Token

	for rows.Next() {
		var (
			t   models.Token
			acl []string
		)

		if err := rows.Scan(&t.Token, &t.Username, &t.Groups, &t.Read, &t.Write, &t.Admin,
			&acl, &t.Revoked, &t.Expires, &t.LastActivityAt); err != nil {
			return nil, fmt.Errorf("%w: token row: %w", ErrFailedToScan, err)
		}

		for _, a := range acl {
			t.ACL = append(t.ACL, models.IndicatorType(a))
		}

		out = append(out, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: tokens: %w", ErrFailedToQuery, err)
	}

	return out, nil
}

func (b *Backend) UpdateTokenGroups(ctx context.Context, token string, groups []string) (bool, error) {
	tag, err := b.pool.Exec(ctx, `UPDATE tokens SET groups = $2 WHERE token = $1`, token, groups)
	if err != nil {
		return false, fmt.Errorf("%w: token groups: %w", ErrFailedToInsert, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (b *Backend) TouchToken(ctx context.Context, token string, at time.Time) error {
	_, err := b.pool.Exec(ctx, `UPDATE tokens SET last_activity_at = $2 WHERE token = $1`, token, at)
	if err != nil {
		return fmt.Errorf("%w: token activity: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (b *Backend) RemoveTokens(ctx context.Context, filter *models.TokenFilter) (int, error) {
	var (
		clauses []string
		args    []interface{}
	)

	if filter.Token != "" {
		args = append(args, filter.Token)
		clauses = append(clauses, fmt.Sprintf("token = $%d", len(args)))
	}

	if filter.Username != "" {
		args = append(args, filter.Username)
		clauses = append(clauses, fmt.Sprintf("username = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return 0, nil
	}

	tag, err := b.pool.Exec(ctx, `DELETE FROM tokens WHERE `+strings.Join(clauses, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: tokens: %w", ErrFailedToInsert, err)
	}

	return int(tag.RowsAffected()), nil
}
