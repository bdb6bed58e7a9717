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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration is a time.Duration that unmarshals from either a JSON number
// (nanoseconds) or a Go duration string such as "750ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// TLSConfig names the certificate material for an mTLS channel.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// SecurityConfig holds common channel security configuration.
type SecurityConfig struct {
	Mode       string    `json:"mode"` // "none" or "mtls"
	CertDir    string    `json:"cert_dir"`
	ServerName string    `json:"server_name,omitempty"`
	TLS        TLSConfig `json:"tls"`
}

// RouterConfig configures the broker service.
type RouterConfig struct {
	NATSURL         string          `json:"nats_url"`
	Security        *SecurityConfig `json:"security,omitempty"`
	AuthRequired    bool            `json:"auth_required"`
	WorkersEnabled  bool            `json:"workers_enabled"`
	BackendPoll     Duration        `json:"backend_poll"`      // backend group poll deadline
	FrontendPoll    Duration        `json:"frontend_poll"`     // client group poll deadline
	SendTimeout     Duration        `json:"send_timeout"`      // bounded outbound send deadline
	StatsInterval   Duration        `json:"stats_interval"`    // throughput log cadence
	PendingReplyTTL Duration        `json:"pending_reply_ttl"` // correlation table entry lifetime
}

// StoreConfig configures the store engine service.
type StoreConfig struct {
	NATSURL       string          `json:"nats_url"`
	Security      *SecurityConfig `json:"security,omitempty"`
	Backend       string          `json:"backend"` // "postgres" or "elastic"
	Postgres      *PostgresConfig `json:"postgres,omitempty"`
	Elastic       *ElasticConfig  `json:"elastic,omitempty"`
	ResultCap     int             `json:"result_cap"`      // server-side search ceiling
	TokenCacheTTL Duration        `json:"token_cache_ttl"` // capability cache window
}

// PostgresConfig configures the relational backend pool.
type PostgresConfig struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Database        string            `json:"database"`
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	SSLMode         string            `json:"ssl_mode"`
	MaxConnections  int32             `json:"max_connections"`
	MinConnections  int32             `json:"min_connections"`
	MaxConnLifetime Duration          `json:"max_conn_lifetime"`
	ApplicationName string            `json:"application_name"`
	RuntimeParams   map[string]string `json:"runtime_params,omitempty"`
}

// ElasticConfig configures the document-search backend.
type ElasticConfig struct {
	URL           string `json:"url"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	IndexPrefix   string `json:"index_prefix"`   // monthly indices <prefix>-YYYY.MM
	TokenIndex    string `json:"token_index"`    // single index for principals
	Sniff         bool   `json:"sniff"`
	Gzip          bool   `json:"gzip"`
	RetryAttempts int    `json:"retry_attempts"` // optimistic concurrency retries
}

// AuthGateConfig configures the authorization service.
type AuthGateConfig struct {
	NATSURL  string          `json:"nats_url"`
	Security *SecurityConfig `json:"security,omitempty"`
}

// PipelineConfig configures a worker pool service.
type PipelineConfig struct {
	NATSURL     string          `json:"nats_url"`
	Security    *SecurityConfig `json:"security,omitempty"`
	Pool        string          `json:"pool"` // "enrich" or "hunt"
	Workers     int             `json:"workers"`
	GeoDBPath   string          `json:"geo_db_path,omitempty"`
	SendTimeout Duration        `json:"send_timeout"`
}

// Store backend selectors.
const (
	BackendPostgres = "postgres"
	BackendElastic  = "elastic"
	BackendMemory   = "memory"
)

var (
	errMissingNATSURL = errors.New("nats_url is required")
	errUnknownBackend = errors.New("backend must be postgres, elastic or memory")
	errMissingBackend = errors.New("backend configuration block is missing")
	errMissingPool    = errors.New("pool must be enrich or hunt")
)

// SecurityRef exposes the channel security block for TLS path resolution.
func (c *RouterConfig) SecurityRef() *SecurityConfig { return c.Security }

func (c *RouterConfig) Validate() error {
	if c.NATSURL == "" {
		return errMissingNATSURL
	}

	return nil
}

// SecurityRef exposes the channel security block for TLS path resolution.
func (c *StoreConfig) SecurityRef() *SecurityConfig { return c.Security }

func (c *StoreConfig) Validate() error {
	if c.NATSURL == "" {
		return errMissingNATSURL
	}

	switch c.Backend {
	case BackendPostgres:
		if c.Postgres == nil {
			return errMissingBackend
		}
	case BackendElastic:
		if c.Elastic == nil {
			return errMissingBackend
		}
	case BackendMemory:
	default:
		return errUnknownBackend
	}

	return nil
}

// SecurityRef exposes the channel security block for TLS path resolution.
func (c *AuthGateConfig) SecurityRef() *SecurityConfig { return c.Security }

func (c *AuthGateConfig) Validate() error {
	if c.NATSURL == "" {
		return errMissingNATSURL
	}

	return nil
}

// SecurityRef exposes the channel security block for TLS path resolution.
func (c *PipelineConfig) SecurityRef() *SecurityConfig { return c.Security }

func (c *PipelineConfig) Validate() error {
	if c.NATSURL == "" {
		return errMissingNATSURL
	}

	if c.Pool != "enrich" && c.Pool != "hunt" {
		return errMissingPool
	}

	return nil
}
