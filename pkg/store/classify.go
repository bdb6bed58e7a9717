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
	"net/netip"
	"strings"

	"github.com/threatwire/threatwire/pkg/models"
)

// classifyValue decides how a search value is matched: exact for hashes,
// URLs and emails, CIDR for addresses, suffix for domain names, substring
// for anything carrying a wildcard.
func classifyValue(value string, itype models.IndicatorType) ValueKind {
	if value == "" {
		return ValueNone
	}

	if itype != "" {
		switch {
		case itype.IsIPType():
			return ValueCIDR
		case itype == models.ITypeFQDN:
			return ValueSuffix
		case itype.IsHashType(), itype == models.ITypeURL, itype == models.ITypeEmail:
			return ValueExact
		}
	}

	if strings.ContainsAny(value, "%*") {
		return ValueSubstring
	}

	if _, err := netip.ParseAddr(value); err == nil {
		return ValueCIDR
	}

	if _, err := netip.ParsePrefix(value); err == nil {
		return ValueCIDR
	}

	if looksLikeFQDN(value) {
		return ValueSuffix
	}

	return ValueExact
}

// looksLikeFQDN is a cheap shape check: dotted labels, no scheme, no "@".
func looksLikeFQDN(value string) bool {
	if !strings.Contains(value, ".") {
		return false
	}

	if strings.Contains(value, "/") || strings.Contains(value, "@") || strings.Contains(value, ":") {
		return false
	}

	for _, label := range strings.Split(value, ".") {
		if label == "" {
			return false
		}
	}

	return true
}

// ReverseLabels flips domain labels for rightmost-suffix indexing:
// "a.example.com" becomes "com.example.a". Both backends index domains this
// way so suffix lookups become prefix scans.
func ReverseLabels(domain string) string {
	labels := strings.Split(strings.ToLower(domain), ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	return strings.Join(labels, ".")
}
