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

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/threatwire/threatwire/pkg/models"
)

const tokenBytes = 20 // 40 hex characters on the wire

// Capability is one of the boolean permission flags on a token.
type Capability string

const (
	CapRead  Capability = "read"
	CapWrite Capability = "write"
	CapAdmin Capability = "admin"
)

// CreateToken persists a token record, generating the opaque secret when
// absent. Capability flags default to false; groups default to "everyone".
func (e *Engine) CreateToken(ctx context.Context, record *models.Token) (*models.Token, error) {
	if record.Username == "" {
		return nil, &models.ValidationError{Field: "username", Reason: "required"}
	}

	if record.Token == "" {
		secret, err := generateTokenSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}

		record.Token = secret
	}

	if len(record.Groups) == 0 {
		record.Groups = []string{defaultGroup}
	}

	if err := e.backend.InsertToken(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// SearchTokens returns records matching the filter.
func (e *Engine) SearchTokens(ctx context.Context, filter *models.TokenFilter) ([]*models.Token, error) {
	return e.backend.QueryTokens(ctx, filter)
}

// EditToken replaces the group set of one token; groups is the only field
// that may change after creation. The principal's cache entry is dropped so
// the change takes effect immediately.
func (e *Engine) EditToken(ctx context.Context, edit *models.TokenEdit) error {
	if edit.Token == "" {
		return &models.ValidationError{Field: "token", Reason: "required"}
	}

	found, err := e.backend.UpdateTokenGroups(ctx, edit.Token, edit.Groups)
	if err != nil {
		return err
	}

	if !found {
		return &models.ValidationError{Field: "token", Reason: "not found"}
	}

	e.cache.invalidate(edit.Token)

	return nil
}

// DeleteTokens removes records by token string and/or username and returns
// the count removed.
func (e *Engine) DeleteTokens(ctx context.Context, filter *models.TokenFilter) (int, error) {
	if filter.Token == "" && filter.Username == "" {
		return 0, &models.ValidationError{Field: "token", Reason: "token or username required"}
	}

	removed, err := e.backend.RemoveTokens(ctx, filter)
	if err != nil {
		return 0, err
	}

	if filter.Token != "" {
		e.cache.invalidate(filter.Token)
	}

	if filter.Username != "" {
		e.cache.invalidateUser(filter.Username)
	}

	return removed, nil
}

// ResolveToken looks up one token record by its secret. More than one match
// is corruption, never a valid state. Hits refresh last_activity_at best
// effort on the slow path only.
func (e *Engine) ResolveToken(ctx context.Context, token string) (*models.Token, error) {
	if token == "" {
		return nil, &models.AuthorizationError{Reason: "missing token"}
	}

	if record, ok := e.cache.get(token); ok {
		return record, nil
	}

	records, err := e.backend.QueryTokens(ctx, &models.TokenFilter{Token: token})
	if err != nil {
		return nil, err
	}

	switch {
	case len(records) == 0:
		return nil, &models.AuthorizationError{Reason: "invalid token"}
	case len(records) > 1:
		return nil, &models.CorruptionError{Detail: fmt.Sprintf("%d records share one token string", len(records))}
	}

	record := records[0]
	e.cache.put(token, record)

	if err := e.backend.TouchToken(ctx, token, e.now()); err != nil {
		e.log.Warn().Err(err).Msg("failed to refresh token activity timestamp")
	}

	return record, nil
}

// CheckCapability short-circuits through the cache before falling back to a
// full lookup.
func (e *Engine) CheckCapability(ctx context.Context, token string, capability Capability) (bool, error) {
	record, err := e.ResolveToken(ctx, token)
	if err != nil {
		if models.IsAuthorization(err) {
			return false, nil
		}

		return false, err
	}

	if !record.Usable(e.now()) {
		return false, nil
	}

	switch capability {
	case CapRead:
		return record.Read, nil
	case CapWrite:
		return record.Write, nil
	case CapAdmin:
		return record.Admin, nil
	default:
		return false, &models.ValidationError{Field: "capability", Reason: "unknown flag " + string(capability)}
	}
}

func generateTokenSecret() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
