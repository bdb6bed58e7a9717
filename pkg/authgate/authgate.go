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

// Package authgate validates a token against a requested operation and
// attaches the resolved permission record. The gate keeps no state of its
// own; all caching lives in the store engine.
package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

// TokenLookup resolves every record sharing a token string. The gate needs
// the full set to detect duplicates.
type TokenLookup interface {
	Lookup(ctx context.Context, token string) ([]*models.Token, error)
}

// Clock supplies the current time for expiry checks.
type Clock func() time.Time

// Gate is the authorization decision point.
type Gate struct {
	lookup TokenLookup
	now    Clock
	log    logger.Logger
}

// New builds a gate over a token lookup.
func New(lookup TokenLookup, now Clock, log logger.Logger) *Gate {
	if now == nil {
		now = time.Now
	}

	return &Gate{lookup: lookup, now: now, log: log.WithComponent("authgate")}
}

// Authorize resolves the token and checks it against the operation. On
// success the resolved record is returned so downstream components skip a
// second lookup.
func (g *Gate) Authorize(ctx context.Context, token, mtype string, payload []byte) (*models.Token, error) {
	if token == "" {
		return nil, &models.AuthorizationError{Reason: "missing token"}
	}

	records, err := g.lookup.Lookup(ctx, token)
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

	if record.Revoked {
		return nil, &models.AuthorizationError{Reason: "token revoked"}
	}

	if record.Expires != nil && g.now().After(*record.Expires) {
		return nil, &models.AuthorizationError{Reason: "token expired"}
	}

	if err := checkCapability(record, mtype); err != nil {
		return nil, err
	}

	if mtype == envelope.TypeIndicatorsCreate {
		if err := checkCreateGroups(record, payload); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// checkCapability maps the operation to the flag it demands: token
// management and deletes need admin, writes need write, everything else
// needs read.
func checkCapability(record *models.Token, mtype string) error {
	switch {
	case strings.HasPrefix(mtype, "tokens_") || strings.HasSuffix(mtype, "_delete"):
		if record.Admin {
			return nil
		}

		return &models.AuthorizationError{Reason: mtype + " requires admin"}
	case strings.HasSuffix(mtype, "_create") || strings.HasSuffix(mtype, "_write"):
		if record.Write || record.Admin {
			return nil
		}

		return &models.AuthorizationError{Reason: mtype + " requires write"}
	default:
		if record.Read || record.Admin {
			return nil
		}

		return &models.AuthorizationError{Reason: mtype + " requires read"}
	}
}

// checkCreateGroups enforces group membership for every submitted record,
// even when the capability check already passed.
func checkCreateGroups(record *models.Token, payload []byte) error {
	records, err := decodeIndicators(payload)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Group == "" {
			continue // validation rejects this later with a clearer error
		}

		if !record.InGroup(rec.Group) {
			return &models.AuthorizationError{
				Reason: "token is not a member of group " + rec.Group,
			}
		}
	}

	return nil
}

func decodeIndicators(payload []byte) ([]*models.Indicator, error) {
	var list []*models.Indicator
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}

	var one models.Indicator
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, &models.ValidationError{Field: "payload", Reason: "malformed indicator record"}
	}

	return []*models.Indicator{&one}, nil
}
