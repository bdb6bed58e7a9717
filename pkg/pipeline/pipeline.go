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

// Package pipeline runs the enrichment and hunting worker pools. Each
// pool is a fixed set of goroutines fed from a fan-out subject; results
// return to the broker on the matching fan-in subject.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/lifecycle"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/natsutil"
)

const (
	// PoolEnrich annotates submissions before they reach the store.
	PoolEnrich = "enrich"
	// PoolHunt derives new submissions from client searches.
	PoolHunt = "hunt"

	defaultWorkers     = 4
	defaultSendTimeout = 5 * time.Second

	publishAttempts = 5
	publishBackoff  = 500 * time.Millisecond
)

var errUnknownPool = errors.New("unknown worker pool")

// Service is one worker pool attached to the broker.
type Service struct {
	cfg *models.PipelineConfig
	log logger.Logger

	nc    *nats.Conn
	subs  []*nats.Subscription
	jobs  chan *envelope.Envelope
	wg    sync.WaitGroup
	leave context.CancelFunc

	enrichers []Enricher
	hunters   []Hunter

	mu           sync.Mutex
	serviceToken *models.Token
}

var _ lifecycle.Service = (*Service)(nil)

// NewService validates the pool selection and builds the worker set.
func NewService(cfg *models.PipelineConfig, log logger.Logger) (*Service, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SendTimeout.Duration() <= 0 {
		cfg.SendTimeout = models.Duration(defaultSendTimeout)
	}

	s := &Service{
		cfg:  cfg,
		log:  log.WithComponent("pipeline." + cfg.Pool),
		jobs: make(chan *envelope.Envelope, cfg.Workers*4),
	}

	switch cfg.Pool {
	case PoolEnrich:
		enrichers, err := Enrichers(cfg)
		if err != nil {
			return nil, err
		}

		s.enrichers = enrichers
	case PoolHunt:
		s.hunters = Hunters(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownPool, cfg.Pool)
	}

	return s, nil
}

// Start connects to the broker and launches the workers.
func (s *Service) Start(ctx context.Context) error {
	nc, err := natsutil.Connect(s.cfg.NATSURL, s.cfg.Security)
	if err != nil {
		return err
	}
	s.nc = nc

	workCtx, cancel := context.WithCancel(context.Background())
	s.leave = cancel

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)

		go s.worker(workCtx)
	}

	fanOut := envelope.SubjectEnrichOut
	if s.cfg.Pool == PoolHunt {
		fanOut = envelope.SubjectHuntOut
	}

	if err := s.subscribe(fanOut, s.enqueue); err != nil {
		return err
	}
	if err := s.subscribe(envelope.SubjectControl, s.handleControl); err != nil {
		return err
	}
	if err := s.subscribe(envelope.SubjectWorkerSink, s.handleSink); err != nil {
		return err
	}

	s.log.Info().
		Str("pool", s.cfg.Pool).
		Int("workers", s.cfg.Workers).
		Msg("Worker pool started")

	return nil
}

// Stop drains the subscriptions and waits for in-flight work.
func (s *Service) Stop(ctx context.Context) error {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to unsubscribe")
		}
	}
	s.subs = nil

	if s.leave != nil {
		s.leave()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.nc != nil {
		s.nc.Close()
	}

	return nil
}

func (s *Service) subscribe(subject string, handler func(*envelope.Envelope)) error {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		env, err := envelope.Decode(msg.Data)
		if err != nil {
			s.log.Debug().Err(err).Msg("Dropping undecodable message")
			return
		}

		handler(env)
	})
	if err != nil {
		return err
	}

	s.subs = append(s.subs, sub)

	return nil
}

// enqueue hands a fan-out message to the pool, dropping when all workers
// stay busy past the send timeout.
func (s *Service) enqueue(env *envelope.Envelope) {
	timer := time.NewTimer(s.cfg.SendTimeout.Duration())
	defer timer.Stop()

	select {
	case s.jobs <- env:
	case <-timer.C:
		s.log.Warn().Str("type", env.Type).Msg("Pool saturated, dropping message")
	}
}

// handleControl captures the service token announced by the store.
func (s *Service) handleControl(env *envelope.Envelope) {
	if env.Type != envelope.TypeServiceToken {
		return
	}

	var tok models.Token
	if err := json.Unmarshal(env.Payload, &tok); err != nil {
		s.log.Error().Err(err).Msg("Failed to decode service token announcement")
		return
	}

	s.mu.Lock()
	s.serviceToken = &tok
	s.mu.Unlock()

	s.log.Info().Str("username", tok.Username).Msg("Service token registered")
}

// handleSink logs outcomes of our own submissions.
func (s *Service) handleSink(env *envelope.Envelope) {
	st, err := envelope.DecodeStatus(env.Payload)
	if err != nil {
		return
	}

	if st.Status == envelope.StatusFailed {
		s.log.Warn().
			Str("correlation_id", env.CorrelationID).
			Str("reason", st.Message).
			Msg("Submission rejected")
	}
}

func (s *Service) token() *models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serviceToken
}

// worker consumes jobs until shutdown.
func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.jobs:
			switch s.cfg.Pool {
			case PoolEnrich:
				s.runEnrich(env)
			case PoolHunt:
				s.runHunt(env)
			}
		}
	}
}

// runEnrich annotates the submission and returns it to the broker. The
// original envelope is forwarded untouched when decoding fails so the
// store can produce the authoritative validation error.
func (s *Service) runEnrich(env *envelope.Envelope) {
	records, err := decodeIndicators(env.Payload)
	if err != nil {
		s.publishWithRetry(envelope.SubjectEnrichIn, env)
		return
	}

	for _, rec := range records {
		for _, enricher := range s.enrichers {
			if err := enricher.Enrich(rec); err != nil {
				s.log.Debug().Err(err).
					Str("enricher", enricher.Name()).
					Str("indicator", rec.Value).
					Msg("Enrichment failed")
			}
		}
	}

	payload, err := json.Marshal(records)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to re-encode submission")
		return
	}
	env.Payload = payload

	s.publishWithRetry(envelope.SubjectEnrichIn, env)
}

// runHunt derives indicators from a search and submits them under the
// service token. Searches arriving before the handshake are skipped.
func (s *Service) runHunt(env *envelope.Envelope) {
	tok := s.token()
	if tok == nil {
		s.log.Debug().Msg("Skipping hunt before handshake")
		return
	}

	var filter models.SearchFilter
	if err := json.Unmarshal(env.Payload, &filter); err != nil {
		s.log.Debug().Err(err).Msg("Dropping undecodable search")
		return
	}

	var derived []*models.Indicator
	for _, hunter := range s.hunters {
		derived = append(derived, hunter.Hunt(&filter)...)
	}

	if len(derived) == 0 {
		return
	}

	submission, err := envelope.New(envelope.TypeIndicatorsCreate, tok.Token, derived)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode derived indicators")
		return
	}
	submission.RoutingID = envelope.SubjectWorkerSink

	s.log.Debug().
		Int("count", len(derived)).
		Str("seed", filter.Indicator).
		Msg("Submitting derived indicators")

	s.publishWithRetry(envelope.SubjectHuntIn, submission)
}

// publishWithRetry pushes a result to the broker, retrying a bounded
// number of times before giving the record up.
func (s *Service) publishWithRetry(subject string, env *envelope.Envelope) {
	data, err := env.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode envelope")
		return
	}

	var last error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if last = s.nc.Publish(subject, data); last == nil {
			return
		}

		time.Sleep(publishBackoff)
	}

	s.log.Error().Err(last).
		Str("subject", subject).
		Msg("Dropping result after repeated publish failures")
}

// decodeIndicators accepts either a single record or a batch.
func decodeIndicators(payload []byte) ([]*models.Indicator, error) {
	var records []*models.Indicator
	if err := json.Unmarshal(payload, &records); err == nil {
		return records, nil
	}

	var one models.Indicator
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, err
	}

	return []*models.Indicator{&one}, nil
}
