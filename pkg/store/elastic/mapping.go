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
	"fmt"
)

// indicatorTemplate types every monthly partition. The ip_range field is
// what makes CIDR ancestry queries index-native.
const indicatorTemplate = `{
	"index_patterns": ["%s-*"],
	"settings": {
		"number_of_shards": 2,
		"number_of_replicas": 1
	},
	"mappings": {
		"properties": {
			"dedup_key":   {"type": "keyword"},
			"indicator":   {"type": "keyword"},
			"itype":       {"type": "keyword"},
			"provider":    {"type": "keyword"},
			"group":       {"type": "keyword"},
			"tags":        {"type": "keyword"},
			"confidence":  {"type": "double"},
			"firsttime":   {"type": "date"},
			"lasttime":    {"type": "date"},
			"reporttime":  {"type": "date"},
			"count":       {"type": "integer"},
			"tlp":         {"type": "keyword"},
			"asn":         {"type": "long"},
			"asn_desc":    {"type": "text"},
			"cc":          {"type": "keyword"},
			"city":        {"type": "keyword"},
			"rdata":       {"type": "keyword"},
			"rdomain":     {"type": "keyword"},
			"ip_range":    {"type": "ip_range"},
			"description": {"type": "text"},
			"peers":       {"type": "keyword"}
		}
	}
}`

const tokenMapping = `{
	"mappings": {
		"properties": {
			"token":            {"type": "keyword"},
			"username":         {"type": "keyword"},
			"groups":           {"type": "keyword"},
			"read":             {"type": "boolean"},
			"write":            {"type": "boolean"},
			"admin":            {"type": "boolean"},
			"acl":              {"type": "keyword"},
			"revoked":          {"type": "boolean"},
			"expires":          {"type": "date"},
			"last_activity_at": {"type": "date"}
		}
	}
}`

func (b *Backend) installTemplates(ctx context.Context) error {
	body := fmt.Sprintf(indicatorTemplate, b.indexPrefix)

	if _, err := b.client.IndexPutTemplate(b.indexPrefix).BodyString(body).Do(ctx); err != nil {
		return fmt.Errorf("failed to install indicator index template: %w", err)
	}

	exists, err := b.client.IndexExists(b.tokenIndex).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check token index: %w", err)
	}

	if !exists {
		if _, err := b.client.CreateIndex(b.tokenIndex).BodyString(tokenMapping).Do(ctx); err != nil {
			return fmt.Errorf("failed to create token index: %w", err)
		}
	}

	return nil
}
