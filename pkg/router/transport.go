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
	"github.com/nats-io/nats.go"
)

// Transport is the socket layer under the broker. The in-memory double in
// the tests implements the same surface.
type Transport interface {
	Publish(subject string, data []byte) error
	PublishRequest(subject, reply string, data []byte) error
	Subscribe(subject string, cb func(subject, reply string, data []byte)) (Unsubscribe, error)
	NewInbox() string
	Close()
}

// Unsubscribe tears down one subscription.
type Unsubscribe func() error

// natsTransport adapts a NATS connection.
type natsTransport struct {
	nc *nats.Conn
}

// NewNATSTransport wraps an established connection.
func NewNATSTransport(nc *nats.Conn) Transport {
	return &natsTransport{nc: nc}
}

func (t *natsTransport) Publish(subject string, data []byte) error {
	return t.nc.Publish(subject, data)
}

func (t *natsTransport) PublishRequest(subject, reply string, data []byte) error {
	return t.nc.PublishRequest(subject, reply, data)
}

func (t *natsTransport) Subscribe(subject string, cb func(subject, reply string, data []byte)) (Unsubscribe, error) {
	sub, err := t.nc.Subscribe(subject, func(msg *nats.Msg) {
		cb(msg.Subject, msg.Reply, msg.Data)
	})
	if err != nil {
		return nil, err
	}

	return sub.Unsubscribe, nil
}

func (t *natsTransport) NewInbox() string {
	return nats.NewInbox()
}

func (t *natsTransport) Close() {
	t.nc.Close()
}
