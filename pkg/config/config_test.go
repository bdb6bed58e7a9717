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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "service.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `{"nats_url": "nats://localhost:4222"}`)

	var cfg models.RouterConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadAndValidateRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `{}`)

	var cfg models.RouterConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TW_TEST_NATS_URL", "nats://broker:4222")

	path := writeConfig(t, `{"nats_url": "${TW_TEST_NATS_URL}"}`)

	var cfg models.RouterConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
}

func TestLoadKeepsUnsetReferences(t *testing.T) {
	path := writeConfig(t, `{"nats_url": "${TW_TEST_UNSET_VARIABLE}"}`)

	var cfg models.RouterConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "${TW_TEST_UNSET_VARIABLE}", cfg.NATSURL)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg models.RouterConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "/nonexistent/service.json", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestNormalizeTLSPaths(t *testing.T) {
	tls := models.TLSConfig{CertFile: "client.pem", KeyFile: "/abs/key.pem", CAFile: "ca.pem"}
	NormalizeTLSPaths(&tls, "/etc/threatwire/certs")

	assert.Equal(t, "/etc/threatwire/certs/client.pem", tls.CertFile)
	assert.Equal(t, "/abs/key.pem", tls.KeyFile)
	assert.Equal(t, "/etc/threatwire/certs/ca.pem", tls.CAFile)
}
