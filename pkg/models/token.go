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

package models

import (
	"time"
)

// DefaultGroup is the group every deployment starts with. Tokens created
// without groups and records submitted without one land here.
const DefaultGroup = "everyone"

// Token is an authorization principal. The token string itself is an opaque
// generated secret and is never reused after deletion.
type Token struct {
	Token          string          `json:"token"`
	Username       string          `json:"username"`
	Groups         []string        `json:"groups"`
	Read           bool            `json:"read"`
	Write          bool            `json:"write"`
	Admin          bool            `json:"admin"`
	ACL            []IndicatorType `json:"acl,omitempty"`
	Revoked        bool            `json:"revoked"`
	Expires        *time.Time      `json:"expires,omitempty"`
	LastActivityAt *time.Time      `json:"last_activity_at,omitempty"`
}

// InGroup reports whether the token is a member of group.
func (t *Token) InGroup(group string) bool {
	for _, g := range t.Groups {
		if g == group {
			return true
		}
	}

	return false
}

// Usable reports whether the token authorizes anything at all at now.
func (t *Token) Usable(now time.Time) bool {
	if t.Revoked {
		return false
	}

	if t.Expires != nil && now.After(*t.Expires) {
		return false
	}

	return true
}

// AllowsIType reports whether the optional itype allow-list admits ty. An
// empty ACL admits everything.
func (t *Token) AllowsIType(ty IndicatorType) bool {
	if len(t.ACL) == 0 {
		return true
	}

	for _, allowed := range t.ACL {
		if allowed == ty {
			return true
		}
	}

	return false
}

// TokenFilter selects token records in search and delete operations. Nil
// capability pointers mean "not filtered on".
type TokenFilter struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Read     *bool  `json:"read,omitempty"`
	Write    *bool  `json:"write,omitempty"`
	Admin    *bool  `json:"admin,omitempty"`
}

// TokenEdit carries the mutable fields of a token record. Only group
// membership may change after creation.
type TokenEdit struct {
	Token  string   `json:"token"`
	Groups []string `json:"groups"`
}
