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

// Package router implements the central message broker. A single goroutine
// owns all routing state; subscriptions only feed it through bounded
// channels, so no lock guards the pending-reply table or the counters.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/lifecycle"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/natsutil"
)

const (
	defaultBackendPoll     = 10 * time.Millisecond
	defaultFrontendPoll    = 100 * time.Millisecond
	defaultSendTimeout     = 5 * time.Second
	defaultStatsInterval   = 60 * time.Second
	defaultPendingReplyTTL = 5 * time.Minute

	channelDepth = 1024
)

// source tells the loop which channel a message arrived on.
type source int

const (
	sourceFrontend source = iota
	sourceAuthReply
	sourceStoreReply
	sourceEnrichIn
	sourceHuntIn
	sourceControl
)

// inbound is one decoded message queued for the loop.
type inbound struct {
	src source
	env *envelope.Envelope
}

// pendingReply remembers where a store reply must be delivered.
type pendingReply struct {
	inbox    string
	deadline time.Time
}

// counters accumulate between stats flushes. Loop-owned, no locking.
type counters struct {
	frontendIn   int64
	workersIn    int64
	repliesOut   int64
	dropped      int64
	deadLettered int64
}

// Router is the broker service.
type Router struct {
	cfg *models.RouterConfig
	log logger.Logger

	transport Transport
	closeConn bool

	backendCh  chan inbound
	frontendCh chan inbound

	storeInbox string
	authInbox  string

	// Loop-owned state.
	pending      map[string]pendingReply
	serviceToken *models.Token
	stats        counters

	unsubs []Unsubscribe
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

var _ lifecycle.Service = (*Router)(nil)

// New builds a router on an injected transport. Pass a nil transport to
// have Start dial NATS from the config.
func New(cfg *models.RouterConfig, transport Transport, log logger.Logger) *Router {
	if cfg.BackendPoll.Duration() <= 0 {
		cfg.BackendPoll = models.Duration(defaultBackendPoll)
	}
	if cfg.FrontendPoll.Duration() <= 0 {
		cfg.FrontendPoll = models.Duration(defaultFrontendPoll)
	}
	if cfg.SendTimeout.Duration() <= 0 {
		cfg.SendTimeout = models.Duration(defaultSendTimeout)
	}
	if cfg.StatsInterval.Duration() <= 0 {
		cfg.StatsInterval = models.Duration(defaultStatsInterval)
	}
	if cfg.PendingReplyTTL.Duration() <= 0 {
		cfg.PendingReplyTTL = models.Duration(defaultPendingReplyTTL)
	}

	return &Router{
		cfg:        cfg,
		log:        log.WithComponent("router"),
		transport:  transport,
		backendCh:  make(chan inbound, channelDepth),
		frontendCh: make(chan inbound, channelDepth),
		pending:    make(map[string]pendingReply),
		done:       make(chan struct{}),
	}
}

// Start connects the transport, wires the subscriptions and launches the
// routing loop.
func (r *Router) Start(ctx context.Context) error {
	if r.transport == nil {
		nc, err := natsutil.Connect(r.cfg.NATSURL, r.cfg.Security)
		if err != nil {
			return err
		}

		r.transport = NewNATSTransport(nc)
		r.closeConn = true
	}

	r.storeInbox = r.transport.NewInbox()
	r.authInbox = r.transport.NewInbox()

	subs := []struct {
		subject string
		src     source
		ch      chan inbound
	}{
		{envelope.SubjectFrontend, sourceFrontend, r.frontendCh},
		{r.authInbox, sourceAuthReply, r.frontendCh},
		{r.storeInbox, sourceStoreReply, r.backendCh},
		{envelope.SubjectEnrichIn, sourceEnrichIn, r.backendCh},
		{envelope.SubjectHuntIn, sourceHuntIn, r.backendCh},
		{envelope.SubjectControl, sourceControl, r.backendCh},
	}

	for _, s := range subs {
		s := s

		unsub, err := r.transport.Subscribe(s.subject, func(_, reply string, data []byte) {
			r.ingest(s.src, s.ch, reply, data)
		})
		if err != nil {
			return err
		}

		r.unsubs = append(r.unsubs, unsub)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(loopCtx)

	r.log.Info().
		Str("frontend", envelope.SubjectFrontend).
		Bool("auth_required", r.cfg.AuthRequired).
		Bool("workers", r.cfg.WorkersEnabled).
		Msg("Router started")

	return nil
}

// Stop tears down the subscriptions and waits for the loop to exit.
func (r *Router) Stop(ctx context.Context) error {
	for _, unsub := range r.unsubs {
		if err := unsub(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to unsubscribe")
		}
	}
	r.unsubs = nil

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.closeConn && r.transport != nil {
		r.transport.Close()
	}

	return nil
}

// ingest decodes a raw message and queues it on the target channel,
// dropping with a log entry when the channel stays full past the send
// timeout.
func (r *Router) ingest(src source, ch chan inbound, reply string, data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		r.log.Debug().Err(err).Msg("Dropping undecodable message")
		return
	}

	// Client requests carry their reply inbox in the transport header;
	// it becomes the routing identity for the lifetime of the request.
	if src == sourceFrontend && reply != "" {
		env.RoutingID = reply
	}

	timer := time.NewTimer(r.cfg.SendTimeout.Duration())
	defer timer.Stop()

	select {
	case ch <- inbound{src: src, env: env}:
	case <-timer.C:
		r.log.Warn().
			Str("type", env.Type).
			Msg("Channel full, dropping message")
	}
}

// loop is the single-threaded scheduler. Backend traffic is drained ahead
// of frontend traffic on every pass so replies and worker results are
// never starved by client load.
func (r *Router) loop(ctx context.Context) {
	defer close(r.done)

	statsTicker := time.NewTicker(r.cfg.StatsInterval.Duration())
	defer statsTicker.Stop()

	expireTicker := time.NewTicker(r.cfg.PendingReplyTTL.Duration() / 2)
	defer expireTicker.Stop()

	for {
		if !r.drain(ctx, r.backendCh, r.cfg.BackendPoll.Duration()) {
			return
		}

		if !r.drain(ctx, r.frontendCh, r.cfg.FrontendPoll.Duration()) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			r.flushStats()
		case <-expireTicker.C:
			r.expirePending(time.Now())
		default:
		}
	}
}

// drain handles messages from ch until it is empty or the poll window
// elapses. Returns false when the context is done.
func (r *Router) drain(ctx context.Context, ch chan inbound, window time.Duration) bool {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case in := <-ch:
			r.handle(in)
		case <-timer.C:
			return true
		}
	}
}

// flushStats logs and resets the throughput counters.
func (r *Router) flushStats() {
	r.log.Info().
		Int64("frontend_in", r.stats.frontendIn).
		Int64("workers_in", r.stats.workersIn).
		Int64("replies_out", r.stats.repliesOut).
		Int64("dropped", r.stats.dropped).
		Int64("dead_lettered", r.stats.deadLettered).
		Int("pending", len(r.pending)).
		Msg("Router throughput")

	r.stats = counters{}
}

// expirePending drops reply slots whose clients have given up waiting.
func (r *Router) expirePending(now time.Time) {
	for id, p := range r.pending {
		if now.After(p.deadline) {
			delete(r.pending, id)
			r.stats.deadLettered++
			r.log.Debug().Str("correlation_id", id).Msg("Expired pending reply")
		}
	}
}

// registerPending records where the eventual store reply for env must go.
// Mints a correlation id when the client did not supply one.
func (r *Router) registerPending(env *envelope.Envelope) {
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.New().String()
	}

	r.pending[env.CorrelationID] = pendingReply{
		inbox:    env.RoutingID,
		deadline: time.Now().Add(r.cfg.PendingReplyTTL.Duration()),
	}
}

// send publishes an encoded envelope, counting failures as drops.
func (r *Router) send(subject string, env *envelope.Envelope) {
	data, err := env.Encode()
	if err != nil {
		r.stats.dropped++
		r.log.Error().Err(err).Str("type", env.Type).Msg("Failed to encode envelope")

		return
	}

	if err := r.transport.Publish(subject, data); err != nil {
		r.stats.dropped++
		r.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish")
	}
}

// request publishes an envelope expecting the reply on inbox.
func (r *Router) request(subject, inbox string, env *envelope.Envelope) {
	data, err := env.Encode()
	if err != nil {
		r.stats.dropped++
		r.log.Error().Err(err).Str("type", env.Type).Msg("Failed to encode envelope")

		return
	}

	if err := r.transport.PublishRequest(subject, inbox, data); err != nil {
		r.stats.dropped++
		r.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish request")
	}
}
