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
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/lifecycle"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/natsutil"
)

// Service exposes the engine on the store channel. At startup it announces
// the internal service token on the control subject so the broker can tell
// worker traffic from client traffic.
type Service struct {
	cfg    *models.StoreConfig
	engine *Engine
	nc     *nats.Conn
	sub    *nats.Subscription
	log    logger.Logger
}

// NewService wires an engine to the store channel.
func NewService(cfg *models.StoreConfig, engine *Engine, log logger.Logger) *Service {
	return &Service{cfg: cfg, engine: engine, log: log.WithComponent("store-service")}
}

// Start connects, subscribes to the store subject and performs the control
// handshake.
func (s *Service) Start(ctx context.Context) error {
	nc, err := natsutil.Connect(s.cfg.NATSURL, s.cfg.Security)
	if err != nil {
		return err
	}

	s.nc = nc

	sub, err := nc.Subscribe(envelope.SubjectStore, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to store subject: %w", err)
	}

	s.sub = sub

	if err := s.announceServiceToken(); err != nil {
		nc.Close()
		return err
	}

	s.log.Info().Str("subject", envelope.SubjectStore).Msg("store engine listening")

	return nil
}

// Stop drains the subscription and releases the backend.
func (s *Service) Stop(_ context.Context) error {
	if s.sub != nil {
		_ = s.sub.Drain()
	}

	if s.nc != nil {
		s.nc.Close()
	}

	return s.engine.Close()
}

func (s *Service) announceServiceToken() error {
	env, err := envelope.New(envelope.TypeServiceToken, "", s.engine.ServiceToken())
	if err != nil {
		return fmt.Errorf("failed to build handshake envelope: %w", err)
	}

	raw, err := env.Encode()
	if err != nil {
		return err
	}

	if err := s.nc.Publish(envelope.SubjectControl, raw); err != nil {
		return fmt.Errorf("failed to announce service token: %w", err)
	}

	return nil
}

func (s *Service) handle(ctx context.Context, msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		s.log.Error().Err(err).Msg("dropping malformed store message")
		return
	}

	payload := s.dispatch(ctx, env)

	if msg.Reply == "" {
		return
	}

	reply, err := env.Reply(payload)
	if err != nil {
		s.log.Error().Err(err).Str("mtype", env.Type).Msg("failed to build store reply")
		return
	}

	raw, err := reply.Encode()
	if err != nil {
		s.log.Error().Err(err).Str("mtype", env.Type).Msg("failed to encode store reply")
		return
	}

	if err := s.nc.Publish(msg.Reply, raw); err != nil {
		s.log.Error().Err(err).Str("mtype", env.Type).Msg("failed to send store reply")
	}
}

// dispatch executes one envelope against the engine and translates errors
// into the failure payload shape.
func (s *Service) dispatch(ctx context.Context, env *envelope.Envelope) *envelope.Status {
	payload, err := s.execute(ctx, env)
	if err != nil {
		if models.IsCorruption(err) {
			s.log.Error().Err(err).Str("mtype", env.Type).Msg("store corruption detected")
		} else {
			s.log.Debug().Err(err).Str("mtype", env.Type).Msg("store request failed")
		}

		return envelope.Failed(err.Error())
	}

	return payload
}

func (s *Service) execute(ctx context.Context, env *envelope.Envelope) (*envelope.Status, error) {
	switch env.Type {
	case envelope.TypePing, envelope.TypePingWrite:
		return envelope.Success(time.Now().UTC().Format(time.RFC3339Nano))

	case envelope.TypeTokensCreate:
		var record models.Token
		if err := json.Unmarshal(env.Payload, &record); err != nil {
			return nil, &models.ValidationError{Field: "payload", Reason: "malformed token record"}
		}

		created, err := s.engine.CreateToken(ctx, &record)
		if err != nil {
			return nil, err
		}

		return envelope.Success(created)

	case envelope.TypeTokensSearch:
		var filter models.TokenFilter
		if err := json.Unmarshal(env.Payload, &filter); err != nil {
			return nil, &models.ValidationError{Field: "payload", Reason: "malformed token filter"}
		}

		records, err := s.engine.SearchTokens(ctx, &filter)
		if err != nil {
			return nil, err
		}

		return envelope.Success(records)

	case envelope.TypeTokensEdit:
		var edit models.TokenEdit
		if err := json.Unmarshal(env.Payload, &edit); err != nil {
			return nil, &models.ValidationError{Field: "payload", Reason: "malformed token edit"}
		}

		if err := s.engine.EditToken(ctx, &edit); err != nil {
			return nil, err
		}

		return envelope.Success(true)

	case envelope.TypeTokensDelete:
		var filter models.TokenFilter
		if err := json.Unmarshal(env.Payload, &filter); err != nil {
			return nil, &models.ValidationError{Field: "payload", Reason: "malformed token filter"}
		}

		removed, err := s.engine.DeleteTokens(ctx, &filter)
		if err != nil {
			return nil, err
		}

		return envelope.Success(removed)

	case envelope.TypeIndicatorsCreate:
		records, err := decodeIndicators(env.Payload)
		if err != nil {
			return nil, err
		}

		token, err := s.callerToken(ctx, env)
		if err != nil {
			return nil, err
		}

		applied, err := s.engine.UpsertIndicators(ctx, token, records)
		if err != nil {
			return nil, err
		}

		return envelope.Success(applied)

	case envelope.TypeIndicatorsSearch:
		var filter models.SearchFilter
		if err := json.Unmarshal(env.Payload, &filter); err != nil {
			return nil, &models.ValidationError{Field: "payload", Reason: "malformed search filter"}
		}

		token, err := s.callerToken(ctx, env)
		if err != nil {
			return nil, err
		}

		records, err := s.engine.SearchIndicators(ctx, token, &filter)
		if err != nil {
			return nil, err
		}

		return envelope.Success(records)

	case envelope.TypeIndicatorsDelete:
		filters, err := decodeDeleteFilters(env.Payload)
		if err != nil {
			return nil, err
		}

		token, err := s.callerToken(ctx, env)
		if err != nil {
			return nil, err
		}

		removed := 0

		for _, filter := range filters {
			n, err := s.engine.DeleteIndicators(ctx, token, filter)
			if err != nil {
				return nil, err
			}

			removed += n
		}

		return envelope.Success(removed)

	default:
		return nil, &models.ValidationError{Field: "mtype", Reason: "unknown message type " + env.Type}
	}
}

// callerToken prefers the record the auth gate resolved; with authorization
// disabled it falls back to a direct lookup.
func (s *Service) callerToken(ctx context.Context, env *envelope.Envelope) (*models.Token, error) {
	if env.TokenRecord != nil {
		return env.TokenRecord, nil
	}

	return s.engine.ResolveToken(ctx, env.Token)
}

// decodeIndicators accepts a single record or a list.
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

// decodeDeleteFilters accepts a single filter map or a list of {id} maps.
func decodeDeleteFilters(payload []byte) ([]*models.SearchFilter, error) {
	var list []*models.SearchFilter
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}

	var one models.SearchFilter
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, &models.ValidationError{Field: "payload", Reason: "malformed delete filter"}
	}

	return []*models.SearchFilter{&one}, nil
}

var _ lifecycle.Service = (*Service)(nil)
