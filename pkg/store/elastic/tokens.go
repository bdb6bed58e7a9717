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
	"encoding/json"
	"fmt"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/threatwire/threatwire/pkg/models"
)

func (b *Backend) InsertToken(ctx context.Context, token *models.Token) error {
	_, err := b.client.Index().
		Index(b.tokenIndex).
		Id(token.Token).
		BodyJson(token).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to index token: %w", err)
	}

	return nil
}

func (b *Backend) QueryTokens(ctx context.Context, filter *models.TokenFilter) ([]*models.Token, error) {
	query := elastic.NewBoolQuery()

	if filter != nil {
		if filter.Token != "" {
			query.Must(elastic.NewTermQuery("token", filter.Token))
		}

		if filter.Username != "" {
			query.Must(elastic.NewTermQuery("username", filter.Username))
		}

		if filter.Read != nil {
			query.Must(elastic.NewTermQuery("read", *filter.Read))
		}

		if filter.Write != nil {
			query.Must(elastic.NewTermQuery("write", *filter.Write))
		}

		if filter.Admin != nil {
			query.Must(elastic.NewTermQuery("admin", *filter.Admin))
		}
	}

	result, err := b.client.Search().
		Index(b.tokenIndex).
		Query(query).
		Size(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search tokens: %w", err)
	}

	var out []*models.Token

	for _, hit := range result.Hits.Hits {
		var t models.Token
		if err := json.Unmarshal(hit.Source, &t); err != nil {
			b.log.Warn().Err(err).Str("id", hit.Id).Msg("skipping undecodable token document")
			continue
		}

		out = append(out, &t)
	}

	return out, nil
}

func (b *Backend) UpdateTokenGroups(ctx context.Context, token string, groups []string) (bool, error) {
	_, err := b.client.Update().
		Index(b.tokenIndex).
		Id(token).
		Doc(map[string]interface{}{"groups": groups}).
		Refresh("true").
		Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to update token groups: %w", err)
	}

	return true, nil
}

func (b *Backend) TouchToken(ctx context.Context, token string, at time.Time) error {
	_, err := b.client.Update().
		Index(b.tokenIndex).
		Id(token).
		Doc(map[string]interface{}{"last_activity_at": at}).
		Do(ctx)
	if err != nil && !elastic.IsNotFound(err) {
		return fmt.Errorf("failed to touch token: %w", err)
	}

	return nil
}

func (b *Backend) RemoveTokens(ctx context.Context, filter *models.TokenFilter) (int, error) {
	query := elastic.NewBoolQuery()

	if filter.Token != "" {
		query.Must(elastic.NewTermQuery("token", filter.Token))
	}

	if filter.Username != "" {
		query.Must(elastic.NewTermQuery("username", filter.Username))
	}

	result, err := b.client.DeleteByQuery(b.tokenIndex).
		Query(query).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}

	return int(result.Deleted), nil
}
