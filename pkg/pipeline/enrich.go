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

package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/threatwire/threatwire/pkg/models"
)

// Enricher annotates an indicator in place. Enrichers must be idempotent;
// a record can pass through the pool more than once.
type Enricher interface {
	Name() string
	Enrich(ind *models.Indicator) error
}

// Enrichers builds the static enricher set for a pool. The geo enricher
// is only installed when a database path is configured.
func Enrichers(cfg *models.PipelineConfig) ([]Enricher, error) {
	enrichers := []Enricher{&typeEnricher{}}

	if cfg.GeoDBPath != "" {
		geo, err := NewGeoEnricher(cfg.GeoDBPath)
		if err != nil {
			return nil, err
		}

		enrichers = append(enrichers, geo)
	}

	return enrichers, nil
}

// typeEnricher fills in a missing itype from the shape of the value.
type typeEnricher struct{}

func (e *typeEnricher) Name() string { return "itype" }

func (e *typeEnricher) Enrich(ind *models.Indicator) error {
	if ind.IType != "" {
		return nil
	}

	ind.IType = guessIType(ind.Value)

	return nil
}

// guessIType classifies a raw value. Hash types are told apart by hex
// digest length; everything else falls through to fqdn.
func guessIType(value string) models.IndicatorType {
	if ip := net.ParseIP(value); ip != nil {
		if ip.To4() != nil {
			return models.ITypeIPv4
		}

		return models.ITypeIPv6
	}

	if _, _, err := net.ParseCIDR(value); err == nil {
		if strings.Contains(value, ":") {
			return models.ITypeIPv6
		}

		return models.ITypeIPv4
	}

	if strings.Contains(value, "://") {
		return models.ITypeURL
	}

	if strings.Count(value, "@") == 1 && !strings.Contains(value, "/") {
		return models.ITypeEmail
	}

	if isHexDigest(value) {
		switch len(value) {
		case 32:
			return models.ITypeMD5
		case 40:
			return models.ITypeSHA1
		case 64:
			return models.ITypeSHA256
		case 128:
			return models.ITypeSHA512
		}
	}

	if strings.Count(value, ":") == 2 {
		return models.ITypeSSDEEP
	}

	return models.ITypeFQDN
}

func isHexDigest(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return value != ""
}

// geoRecord is the slice of a GeoLite2-City document we read.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// GeoEnricher annotates IP indicators with country, city and coordinates
// from a MaxMind database.
type GeoEnricher struct {
	reader *maxminddb.Reader
}

// NewGeoEnricher opens the database at path.
func NewGeoEnricher(path string) (*GeoEnricher, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database: %w", err)
	}

	return &GeoEnricher{reader: reader}, nil
}

func (e *GeoEnricher) Name() string { return "geo" }

// Enrich looks up the indicator address. CIDR values use the network
// address; non-IP types and already-annotated records are left alone.
func (e *GeoEnricher) Enrich(ind *models.Indicator) error {
	if !ind.IType.IsIPType() || ind.CC != "" {
		return nil
	}

	addr := ind.Value
	if slash := strings.IndexByte(addr, '/'); slash >= 0 {
		addr = addr[:slash]
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return nil
	}

	var rec geoRecord
	if err := e.reader.Lookup(ip, &rec); err != nil {
		return fmt.Errorf("geo lookup failed: %w", err)
	}

	ind.CC = rec.Country.ISOCode
	if name, ok := rec.City.Names["en"]; ok {
		ind.City = name
	}

	if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
		lat, lon := rec.Location.Latitude, rec.Location.Longitude
		ind.Latitude = &lat
		ind.Longitude = &lon
	}

	return nil
}

// Close releases the database handle.
func (e *GeoEnricher) Close() error {
	return e.reader.Close()
}

// hostOf extracts the hostname from a URL value, or "" when there is none.
func hostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}
