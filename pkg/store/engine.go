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
	"fmt"
	"time"

	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

const (
	defaultResultCap     = 500
	defaultTokenCacheTTL = 5 * time.Minute

	bootstrapUsername = "admin"
	serviceUsername   = "threatwire-system"
	defaultGroup      = models.DefaultGroup
)

// Engine realizes the store contract on top of a physical backend. All
// dedup, merge, scoping and caching semantics live here so the relational
// and document-search backends stay interchangeable.
type Engine struct {
	backend   Backend
	cache     *tokenCache
	resultCap int
	now       Clock
	log       logger.Logger

	serviceToken *models.Token
}

// NewEngine wraps the backend, bootstraps the admin token if no admin
// exists, and ensures the internal service token.
func NewEngine(ctx context.Context, backend Backend, cfg *models.StoreConfig, now Clock, log logger.Logger) (*Engine, error) {
	if now == nil {
		now = time.Now
	}

	resultCap := defaultResultCap
	if cfg != nil && cfg.ResultCap > 0 {
		resultCap = cfg.ResultCap
	}

	ttl := defaultTokenCacheTTL
	if cfg != nil && cfg.TokenCacheTTL > 0 {
		ttl = time.Duration(cfg.TokenCacheTTL)
	}

	e := &Engine{
		backend:   backend,
		cache:     newTokenCache(ttl, now),
		resultCap: resultCap,
		now:       now,
		log:       log.WithComponent("store"),
	}

	if err := e.bootstrapAdmin(ctx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin token: %w", err)
	}

	if err := e.ensureServiceToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure service token: %w", err)
	}

	return e, nil
}

// ServiceToken returns the distinguished internal token used by the worker
// pipelines. The router learns it through the control handshake.
func (e *Engine) ServiceToken() *models.Token {
	return e.serviceToken
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}

func (e *Engine) bootstrapAdmin(ctx context.Context) error {
	admin := true

	existing, err := e.backend.QueryTokens(ctx, &models.TokenFilter{Admin: &admin})
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return nil
	}

	token, err := e.CreateToken(ctx, &models.Token{
		Username: bootstrapUsername,
		Groups:   []string{defaultGroup},
		Read:     true,
		Write:    true,
		Admin:    true,
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Str("username", token.Username).
		Str("token", token.Token).
		Msg("bootstrapped admin token")

	return nil
}

func (e *Engine) ensureServiceToken(ctx context.Context) error {
	existing, err := e.backend.QueryTokens(ctx, &models.TokenFilter{Username: serviceUsername})
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		e.serviceToken = existing[0]
		return nil
	}

	token, err := e.CreateToken(ctx, &models.Token{
		Username: serviceUsername,
		Groups:   []string{defaultGroup},
		Read:     true,
		Write:    true,
	})
	if err != nil {
		return err
	}

	e.serviceToken = token

	e.log.Info().Str("username", token.Username).Msg("created internal service token")

	return nil
}
