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

// Package elastic is the document-search store backend. Indicators live in
// time-partitioned monthly indices with range-encoded IP fields; tokens
// live in a single principal index.
package elastic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

const (
	defaultIndexPrefix   = "threatwire-indicators"
	defaultTokenIndex    = "threatwire-tokens"
	defaultRetryAttempts = 5

	monthLayout = "2006.01"
)

var errNilConfig = errors.New("elastic config is nil")

// Backend implements store.Backend on an Elasticsearch cluster.
type Backend struct {
	client        *elastic.Client
	indexPrefix   string
	tokenIndex    string
	retryAttempts int
	log           logger.Logger
}

// New connects to the cluster and installs the index template and token
// index mapping.
func New(ctx context.Context, cfg *models.ElasticConfig, log logger.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	options := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.URL),
		elastic.SetSniff(cfg.Sniff),
		elastic.SetGzip(cfg.Gzip),
	}

	if cfg.Username != "" && cfg.Password != "" {
		options = append(options, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}

	client, err := elastic.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create elastic client: %w", err)
	}

	b := &Backend{
		client:        client,
		indexPrefix:   cfg.IndexPrefix,
		tokenIndex:    cfg.TokenIndex,
		retryAttempts: cfg.RetryAttempts,
		log:           log.WithComponent("elastic"),
	}

	if b.indexPrefix == "" {
		b.indexPrefix = defaultIndexPrefix
	}

	if b.tokenIndex == "" {
		b.tokenIndex = defaultTokenIndex
	}

	if b.retryAttempts <= 0 {
		b.retryAttempts = defaultRetryAttempts
	}

	if err := b.installTemplates(ctx); err != nil {
		return nil, err
	}

	return b, nil
}

// Close stops the client's background processes.
func (b *Backend) Close() error {
	b.client.Stop()
	return nil
}

// writeIndex names the monthly partition a record lands in, keyed by its
// report time.
func (b *Backend) writeIndex(reporttime *time.Time, now time.Time) string {
	at := now
	if reporttime != nil {
		at = *reporttime
	}

	return fmt.Sprintf("%s-%s", b.indexPrefix, at.UTC().Format(monthLayout))
}

// searchPattern spans every monthly partition.
func (b *Backend) searchPattern() string {
	return b.indexPrefix + "-*"
}
