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

package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/natsutil"
)

const lookupTimeout = 5 * time.Second

// Service exposes the gate on the auth channel. A successful authorization
// replies with the original envelope carrying the resolved token record;
// a refusal replies with an auth_denied envelope carrying the failure
// status.
type Service struct {
	cfg  *models.AuthGateConfig
	gate *Gate
	nc   *nats.Conn
	sub  *nats.Subscription
	log  logger.Logger
}

// NewService builds the auth channel service. The gate is created on Start
// once the NATS connection exists, because token lookups ride the store
// channel.
func NewService(cfg *models.AuthGateConfig, log logger.Logger) *Service {
	return &Service{cfg: cfg, log: log.WithComponent("authgate-service")}
}

func (s *Service) Start(ctx context.Context) error {
	nc, err := natsutil.Connect(s.cfg.NATSURL, s.cfg.Security)
	if err != nil {
		return err
	}

	s.nc = nc
	s.gate = New(&storeLookup{nc: nc}, nil, s.log)

	sub, err := nc.Subscribe(envelope.SubjectAuth, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to auth subject: %w", err)
	}

	s.sub = sub

	s.log.Info().Str("subject", envelope.SubjectAuth).Msg("auth gate listening")

	return nil
}

func (s *Service) Stop(_ context.Context) error {
	if s.sub != nil {
		_ = s.sub.Drain()
	}

	if s.nc != nil {
		s.nc.Close()
	}

	return nil
}

func (s *Service) handle(ctx context.Context, msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		s.log.Error().Err(err).Msg("dropping malformed auth request")
		return
	}

	record, err := s.gate.Authorize(ctx, env.Token, env.Type, env.Payload)

	var reply *envelope.Envelope

	if err != nil {
		if models.IsCorruption(err) {
			s.log.Error().Err(err).Msg("token corruption detected")
		}

		reply, _ = env.Reply(envelope.Failed(err.Error()))
		reply.Type = envelope.TypeAuthDenied
	} else {
		env.TokenRecord = record
		reply = env
	}

	if msg.Reply == "" {
		return
	}

	raw, err := reply.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode auth reply")
		return
	}

	if err := s.nc.Publish(msg.Reply, raw); err != nil {
		s.log.Error().Err(err).Msg("failed to send auth reply")
	}
}

// storeLookup resolves tokens over the store channel.
type storeLookup struct {
	nc *nats.Conn
}

func (l *storeLookup) Lookup(ctx context.Context, token string) ([]*models.Token, error) {
	env, err := envelope.New(envelope.TypeTokensSearch, "", &models.TokenFilter{Token: token})
	if err != nil {
		return nil, err
	}

	raw, err := env.Encode()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	msg, err := l.nc.RequestWithContext(ctx, envelope.SubjectStore, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: token lookup: %w", models.ErrBackendUnavailable, err)
	}

	reply, err := envelope.Decode(msg.Data)
	if err != nil {
		return nil, err
	}

	status, err := envelope.DecodeStatus(reply.Payload)
	if err != nil {
		return nil, err
	}

	if status.Status != envelope.StatusSuccess {
		return nil, fmt.Errorf("%w: token lookup: %s", models.ErrBackendUnavailable, status.Message)
	}

	var records []*models.Token
	if err := json.Unmarshal(status.Data, &records); err != nil {
		return nil, err
	}

	return records, nil
}
