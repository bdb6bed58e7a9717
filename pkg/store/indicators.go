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
	"strings"

	"github.com/glaslos/ssdeep"

	"github.com/threatwire/threatwire/pkg/models"
)

// ssdeepMatchScore is the minimum similarity score (0-100) for a fuzzy hash
// to count as a relative.
const ssdeepMatchScore = 50

// UpsertIndicators applies the create/merge rule to each record under the
// submitting token's group authority and returns the number of records
// actually created or merged, not the number submitted.
func (e *Engine) UpsertIndicators(ctx context.Context, token *models.Token, records []*models.Indicator) (int, error) {
	now := e.now()
	applied := 0

	for _, record := range records {
		if err := record.Validate(); err != nil {
			return applied, err
		}

		if !token.InGroup(record.Group) {
			return applied, &models.AuthorizationError{
				Reason: "token is not a member of group " + record.Group,
			}
		}

		record.Normalize(now)

		result, err := e.backend.UpsertIndicator(ctx, record)
		if err != nil {
			return applied, err
		}

		if result != UpsertNoop {
			applied++
		}
	}

	return applied, nil
}

// SearchIndicators compiles the filter under the token's authority and
// executes it. findRelatives widens IP and fuzzy-hash matches; it is only
// ever honored here, on externally facing discovery queries.
func (e *Engine) SearchIndicators(ctx context.Context, token *models.Token, filter *models.SearchFilter) ([]*models.Indicator, error) {
	q, err := e.compileQuery(token, filter)
	if err != nil {
		return nil, err
	}

	if q.FindRelatives && isSSDEEPQuery(q) {
		return e.searchFuzzyRelatives(ctx, q)
	}

	return e.backend.QueryIndicators(ctx, q)
}

// DeleteIndicators resolves the filter to record ids through the same
// search machinery with relatives disabled, removes them and returns the
// count removed.
func (e *Engine) DeleteIndicators(ctx context.Context, token *models.Token, filter *models.SearchFilter) (int, error) {
	if filter.ID != "" {
		return e.backend.RemoveIndicators(ctx, []string{filter.ID})
	}

	if filter.Indicator == "" && filter.IType == "" && filter.Provider == "" && filter.Tags == "" {
		return 0, &models.ValidationError{Field: "filter", Reason: "refusing unbounded delete"}
	}

	q, err := e.compileQuery(token, filter)
	if err != nil {
		return 0, err
	}

	// Deletion must only ever touch exact matches.
	q.FindRelatives = false

	matches, err := e.backend.QueryIndicators(ctx, q)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	return e.backend.RemoveIndicators(ctx, ids)
}

// compileQuery resolves authorization scoping and value classification into
// the backend-neutral query form.
func (e *Engine) compileQuery(token *models.Token, filter *models.SearchFilter) (*Query, error) {
	low, high, err := filter.ConfidenceRange()
	if err != nil {
		return nil, err
	}

	sort, err := filter.SortColumns()
	if err != nil {
		return nil, err
	}

	groups, err := scopeGroups(token, filter.Groups)
	if err != nil {
		return nil, err
	}

	if filter.IType != "" && !token.AllowsIType(filter.IType) {
		return nil, &models.AuthorizationError{Reason: "itype " + string(filter.IType) + " not in token acl"}
	}

	gte, lte := filter.ReportWindow(e.now())

	providers, notProviders := models.MultiValue(filter.Provider)
	tags, notTags := models.MultiValue(filter.Tags)

	limit := filter.Limit
	if limit <= 0 || limit > e.resultCap {
		limit = e.resultCap
	}

	return &Query{
		Value:         filter.Indicator,
		ValueKind:     classifyValue(filter.Indicator, filter.IType),
		IType:         filter.IType,
		FindRelatives: filter.FindRelatives,
		ConfLow:       low,
		ConfHigh:      high,
		ReportGTE:     gte,
		ReportLTE:     lte,
		Providers:     providers,
		NotProviders:  notProviders,
		Tags:          tags,
		NotTags:       notTags,
		CC:            filter.CC,
		RData:         filter.RData,
		ASN:           filter.ASN,
		ID:            filter.ID,
		ITypes:        token.ACL,
		Groups:        groups,
		Limit:         limit,
		Sort:          sort,
	}, nil
}

// scopeGroups restricts a search to groups the token may read. Admin tokens
// read everything unless they narrow explicitly.
func scopeGroups(token *models.Token, requested []string) ([]string, error) {
	if token.Admin {
		return requested, nil
	}

	if len(requested) == 0 {
		return token.Groups, nil
	}

	var scoped []string

	for _, g := range requested {
		if token.InGroup(g) {
			scoped = append(scoped, g)
		}
	}

	if len(scoped) == 0 {
		return nil, &models.AuthorizationError{Reason: "token is not a member of any requested group"}
	}

	return scoped, nil
}

// searchFuzzyRelatives fetches the fuzzy-hash corpus in the caller's scope
// and keeps near-duplicates of the query value. Similarity cannot be pushed
// into either backend, so the comparison happens here.
func (e *Engine) searchFuzzyRelatives(ctx context.Context, q *Query) ([]*models.Indicator, error) {
	corpus := *q
	corpus.Value = ""
	corpus.ValueKind = ValueNone
	corpus.IType = models.ITypeSSDEEP
	corpus.FindRelatives = false

	candidates, err := e.backend.QueryIndicators(ctx, &corpus)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Indicator, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.Value == q.Value {
			matches = append(matches, candidate)
			continue
		}

		score, err := ssdeep.Distance(q.Value, candidate.Value)
		if err != nil {
			continue
		}

		if score >= ssdeepMatchScore {
			matches = append(matches, candidate)
		}
	}

	return matches, nil
}

func isSSDEEPQuery(q *Query) bool {
	if q.IType == models.ITypeSSDEEP {
		return q.Value != ""
	}

	// Shape check: "chunksize:chunk:double_chunk".
	return q.IType == "" && strings.Count(q.Value, ":") == 2
}
