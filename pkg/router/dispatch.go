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

package router

import (
	"encoding/json"
	"time"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/models"
)

// handle routes one queued message. Only the loop goroutine calls it.
func (r *Router) handle(in inbound) {
	switch in.src {
	case sourceControl:
		r.handleControl(in.env)
	case sourceFrontend:
		r.stats.frontendIn++
		r.handleFrontend(in.env)
	case sourceAuthReply:
		r.handleAuthReply(in.env)
	case sourceStoreReply:
		r.handleStoreReply(in.env)
	case sourceEnrichIn:
		r.handleEnrichIn(in.env)
	case sourceHuntIn:
		r.handleHuntIn(in.env)
	}
}

// handleControl records the shared worker identity announced by the store.
func (r *Router) handleControl(env *envelope.Envelope) {
	if env.Type != envelope.TypeServiceToken {
		r.log.Debug().Str("type", env.Type).Msg("Ignoring unknown control message")
		return
	}

	var tok models.Token
	if err := json.Unmarshal(env.Payload, &tok); err != nil {
		r.log.Error().Err(err).Msg("Failed to decode service token announcement")
		return
	}

	r.serviceToken = &tok
	r.log.Info().Str("username", tok.Username).Msg("Service token registered")
}

// handleFrontend forwards a client request through the auth gate, or
// straight to the dispatch table when authorization is disabled.
func (r *Router) handleFrontend(env *envelope.Envelope) {
	if env.RoutingID == "" {
		r.stats.dropped++
		r.log.Debug().Str("type", env.Type).Msg("Dropping request without reply subject")

		return
	}

	if r.cfg.AuthRequired {
		r.request(envelope.SubjectAuth, r.authInbox, env)
		return
	}

	r.dispatch(env)
}

// handleAuthReply delivers denials to the client and dispatches the rest.
// A denial comes back typed auth_denied; anything else is the original
// request with the token record attached.
func (r *Router) handleAuthReply(env *envelope.Envelope) {
	if env.Type == envelope.TypeAuthDenied {
		r.deliver(env)
		return
	}

	r.dispatch(env)
}

// dispatch is the routing table for authorized requests.
func (r *Router) dispatch(env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypePingWrite:
		// Answered in place; the round trip proved write authorization.
		r.answerPing(env)

	case envelope.TypeIndicatorsCreate:
		r.registerPending(env)

		if r.cfg.WorkersEnabled && r.serviceToken != nil {
			r.send(envelope.SubjectEnrichOut, env)
		} else {
			r.request(envelope.SubjectStore, r.storeInbox, env)
		}

	case envelope.TypeIndicatorsSearch:
		r.registerPending(env)
		r.request(envelope.SubjectStore, r.storeInbox, env)

		if r.cfg.WorkersEnabled && r.serviceToken != nil && !r.fromWorker(env) {
			r.send(envelope.SubjectHuntOut, env)
		}

	default:
		r.registerPending(env)
		r.request(envelope.SubjectStore, r.storeInbox, env)
	}
}

// handleStoreReply matches a reply to its waiting client. Replies for
// worker-originated requests have no pending slot and are redirected to
// the worker sink; everything else unmatched is dead-lettered.
func (r *Router) handleStoreReply(env *envelope.Envelope) {
	if p, ok := r.pending[env.CorrelationID]; ok {
		delete(r.pending, env.CorrelationID)
		env.RoutingID = p.inbox
		r.deliver(env)

		return
	}

	if r.fromWorker(env) {
		env.RoutingID = envelope.SubjectWorkerSink
		r.deliver(env)

		return
	}

	r.stats.deadLettered++
	r.log.Warn().
		Str("correlation_id", env.CorrelationID).
		Str("type", env.Type).
		Msg("Dead-lettering unmatched reply")
}

// handleEnrichIn forwards an enriched submission to the store. Worker
// results arriving before the service token handshake are dropped.
func (r *Router) handleEnrichIn(env *envelope.Envelope) {
	r.stats.workersIn++

	if r.serviceToken == nil {
		r.stats.dropped++
		r.log.Debug().Msg("Dropping worker result before handshake")

		return
	}

	r.request(envelope.SubjectStore, r.storeInbox, env)
}

// handleHuntIn treats hunter output as an internal request. Derived
// submissions go back through the enrichment pool like any other create,
// with their replies routed to the worker sink.
func (r *Router) handleHuntIn(env *envelope.Envelope) {
	r.stats.workersIn++

	if r.serviceToken == nil {
		r.stats.dropped++
		r.log.Debug().Msg("Dropping hunter output before handshake")

		return
	}

	if env.RoutingID == "" {
		env.RoutingID = envelope.SubjectWorkerSink
	}

	r.dispatch(env)
}

// answerPing synthesizes the ping reply without a store round trip.
func (r *Router) answerPing(env *envelope.Envelope) {
	payload, err := envelope.Success(time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		r.stats.dropped++
		r.log.Error().Err(err).Msg("Failed to build ping payload")

		return
	}

	reply, err := env.Reply(payload)
	if err != nil {
		r.stats.dropped++
		r.log.Error().Err(err).Msg("Failed to build ping reply")

		return
	}

	r.deliver(reply)
}

// deliver sends a reply to its routing subject.
func (r *Router) deliver(env *envelope.Envelope) {
	if env.RoutingID == "" {
		r.stats.dropped++
		r.log.Debug().Str("type", env.Type).Msg("Dropping reply without routing id")

		return
	}

	r.send(env.RoutingID, env)
	r.stats.repliesOut++
}

// fromWorker reports whether env was produced under the service token.
func (r *Router) fromWorker(env *envelope.Envelope) bool {
	if r.serviceToken == nil {
		return false
	}

	if env.Token != "" && env.Token == r.serviceToken.Token {
		return true
	}

	return env.TokenRecord != nil && env.TokenRecord.Username == r.serviceToken.Username
}
