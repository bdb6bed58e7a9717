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

// Package envelope defines the wire unit exchanged by every component: a
// routing id, an auth token, a message type and an opaque payload. Pipeline
// channels carry no routing id, so a broker-minted correlation id travels in
// the envelope itself and survives every hop.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/threatwire/threatwire/pkg/models"
)

// Message types dispatched by the broker.
const (
	TypePing             = "ping"
	TypePingWrite        = "ping_write"
	TypeIndicatorsSearch = "indicators_search"
	TypeIndicatorsCreate = "indicators_create"
	TypeIndicatorsDelete = "indicators_delete"
	TypeTokensSearch     = "tokens_search"
	TypeTokensCreate     = "tokens_create"
	TypeTokensDelete     = "tokens_delete"
	TypeTokensEdit       = "tokens_edit"
	TypeServiceToken     = "service_token" // control handshake announcement
	TypeAuthDenied       = "auth_denied"   // gate refusal; payload is the failure status
)

// NATS subjects for the five channels of the exchange.
const (
	SubjectFrontend   = "threatwire.frontend"
	SubjectStore      = "threatwire.store"
	SubjectAuth       = "threatwire.auth"
	SubjectEnrichOut  = "threatwire.pipeline.enrich.out"
	SubjectEnrichIn   = "threatwire.pipeline.enrich.in"
	SubjectHuntOut    = "threatwire.pipeline.hunt.out"
	SubjectHuntIn     = "threatwire.pipeline.hunt.in"
	SubjectControl    = "threatwire.control.token"
	SubjectWorkerSink = "threatwire.pipeline.replies"
)

// Envelope is the unit every channel carries.
type Envelope struct {
	RoutingID     string          `json:"routing_id,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Token         string          `json:"token,omitempty"`
	TokenRecord   *models.Token   `json:"token_record,omitempty"` // attached by the auth gate
	Type          string          `json:"mtype"`
	Payload       json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope with a fresh correlation id.
func New(mtype, token string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", mtype, err)
	}

	return &Envelope{
		CorrelationID: uuid.New().String(),
		Token:         token,
		Type:          mtype,
		Payload:       raw,
	}, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return raw, nil
}

// Decode parses an envelope off the wire. A missing message type is treated
// as malformed so broken messages never reach a handler.
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	if e.Type == "" {
		return nil, &models.ValidationError{Field: "mtype", Reason: "required"}
	}

	return &e, nil
}

// Reply builds a response envelope preserving the request's addressing.
func (e *Envelope) Reply(payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s reply: %w", e.Type, err)
	}

	return &Envelope{
		RoutingID:     e.RoutingID,
		CorrelationID: e.CorrelationID,
		Token:         e.Token,
		TokenRecord:   e.TokenRecord,
		Type:          e.Type,
		Payload:       raw,
	}, nil
}
