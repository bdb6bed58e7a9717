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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

type fakeLookup struct {
	records []*models.Token
	err     error
	calls   int
}

func (f *fakeLookup) Lookup(_ context.Context, _ string) ([]*models.Token, error) {
	f.calls++
	return f.records, f.err
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func readerToken() *models.Token {
	return &models.Token{
		Username: "analyst",
		Token:    "tok-reader",
		Groups:   []string{"everyone"},
		Read:     true,
	}
}

func TestAuthorizeMissingToken(t *testing.T) {
	gate := New(&fakeLookup{}, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), "", envelope.TypeIndicatorsSearch, nil)
	require.Error(t, err)
	assert.True(t, models.IsAuthorization(err))
}

func TestAuthorizeUnknownToken(t *testing.T) {
	lookup := &fakeLookup{}
	gate := New(lookup, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), "nope", envelope.TypeIndicatorsSearch, nil)
	require.Error(t, err)
	assert.True(t, models.IsAuthorization(err))
	assert.Equal(t, 1, lookup.calls)
}

func TestAuthorizeLookupFailure(t *testing.T) {
	lookup := &fakeLookup{err: models.ErrBackendUnavailable}
	gate := New(lookup, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), "tok", envelope.TypeIndicatorsSearch, nil)
	assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
}

func TestAuthorizeDuplicateTokenIsCorruption(t *testing.T) {
	lookup := &fakeLookup{records: []*models.Token{readerToken(), readerToken()}}
	gate := New(lookup, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), "tok-reader", envelope.TypeIndicatorsSearch, nil)
	require.Error(t, err)
	assert.True(t, models.IsCorruption(err))
}

func TestAuthorizeRevokedToken(t *testing.T) {
	record := readerToken()
	record.Revoked = true

	gate := New(&fakeLookup{records: []*models.Token{record}}, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsSearch, nil)
	require.Error(t, err)
	assert.True(t, models.IsAuthorization(err))
}

func TestAuthorizeExpiredToken(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	record := readerToken()
	record.Expires = &expired

	gate := New(&fakeLookup{records: []*models.Token{record}}, fixedClock(now), logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsSearch, nil)
	require.Error(t, err)
	assert.True(t, models.IsAuthorization(err))
}

func TestAuthorizeFutureExpiryStillValid(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	record := readerToken()
	record.Expires = &later

	gate := New(&fakeLookup{records: []*models.Token{record}}, fixedClock(now), logger.NewTestLogger())

	got, err := gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsSearch, nil)
	require.NoError(t, err)
	assert.Equal(t, record.Username, got.Username)
}

func TestCheckCapability(t *testing.T) {
	tests := []struct {
		name    string
		mtype   string
		record  *models.Token
		wantErr bool
	}{
		{
			name:   "reader can search indicators",
			mtype:  envelope.TypeIndicatorsSearch,
			record: &models.Token{Read: true},
		},
		{
			name:    "reader cannot create indicators",
			mtype:   envelope.TypeIndicatorsCreate,
			record:  &models.Token{Read: true},
			wantErr: true,
		},
		{
			name:   "writer can create indicators",
			mtype:  envelope.TypeIndicatorsCreate,
			record: &models.Token{Write: true},
		},
		{
			name:    "writer cannot delete indicators",
			mtype:   envelope.TypeIndicatorsDelete,
			record:  &models.Token{Read: true, Write: true},
			wantErr: true,
		},
		{
			name:   "admin can delete indicators",
			mtype:  envelope.TypeIndicatorsDelete,
			record: &models.Token{Admin: true},
		},
		{
			name:    "writer cannot manage tokens",
			mtype:   envelope.TypeTokensSearch,
			record:  &models.Token{Read: true, Write: true},
			wantErr: true,
		},
		{
			name:   "admin can manage tokens",
			mtype:  envelope.TypeTokensCreate,
			record: &models.Token{Admin: true},
		},
		{
			name:   "admin implies read",
			mtype:  envelope.TypePing,
			record: &models.Token{Admin: true},
		},
		{
			name:   "write flag covers ping_write",
			mtype:  envelope.TypePingWrite,
			record: &models.Token{Write: true},
		},
		{
			name:    "bare token has no capabilities",
			mtype:   envelope.TypePing,
			record:  &models.Token{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCapability(tt.record, tt.mtype)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsAuthorization(err))
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestAuthorizeCreateChecksGroupMembership(t *testing.T) {
	record := readerToken()
	record.Write = true

	gate := New(&fakeLookup{records: []*models.Token{record}}, nil, logger.NewTestLogger())

	payload, err := json.Marshal([]*models.Indicator{
		{Value: "example.com", IType: models.ITypeFQDN, Group: "everyone"},
		{Value: "evil.example", IType: models.ITypeFQDN, Group: "private"},
	})
	require.NoError(t, err)

	_, err = gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsCreate, payload)
	require.Error(t, err)
	assert.True(t, models.IsAuthorization(err))
	assert.Contains(t, err.Error(), "private")
}

func TestAuthorizeCreateAcceptsMemberGroups(t *testing.T) {
	record := readerToken()
	record.Write = true

	gate := New(&fakeLookup{records: []*models.Token{record}}, nil, logger.NewTestLogger())

	payload, err := json.Marshal(&models.Indicator{
		Value: "example.com", IType: models.ITypeFQDN, Group: "everyone",
	})
	require.NoError(t, err)

	got, err := gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsCreate, payload)
	require.NoError(t, err)
	assert.Equal(t, record.Token, got.Token)
}

func TestAuthorizeCreateSkipsEmptyGroup(t *testing.T) {
	record := readerToken()
	record.Write = true

	gate := New(&fakeLookup{records: []*models.Token{record}}, nil, logger.NewTestLogger())

	payload, err := json.Marshal(&models.Indicator{Value: "example.com", IType: models.ITypeFQDN})
	require.NoError(t, err)

	_, err = gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsCreate, payload)
	assert.NoError(t, err)
}

func TestAuthorizeCreateRejectsMalformedPayload(t *testing.T) {
	record := readerToken()
	record.Write = true

	gate := New(&fakeLookup{records: []*models.Token{record}}, nil, logger.NewTestLogger())

	_, err := gate.Authorize(context.Background(), record.Token, envelope.TypeIndicatorsCreate, []byte("{broken"))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
