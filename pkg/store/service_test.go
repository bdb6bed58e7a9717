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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/threatwire/threatwire/pkg/envelope"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
)

// newServiceHarness builds a Service over a mocked backend with the
// bootstrap lookups satisfied by pre-existing admin and service tokens.
func newServiceHarness(t *testing.T, ctrl *gomock.Controller) (*Service, *MockBackend) {
	t.Helper()

	backend := NewMockBackend(ctrl)

	admin := &models.Token{
		Username: bootstrapUsername,
		Token:    "admin-secret",
		Groups:   []string{defaultGroup},
		Read:     true,
		Write:    true,
		Admin:    true,
	}
	service := &models.Token{
		Username: serviceUsername,
		Token:    "svc-secret",
		Groups:   []string{defaultGroup},
		Read:     true,
		Write:    true,
	}

	gomock.InOrder(
		backend.EXPECT().QueryTokens(gomock.Any(), gomock.Any()).Return([]*models.Token{admin}, nil),
		backend.EXPECT().QueryTokens(gomock.Any(), gomock.Any()).Return([]*models.Token{service}, nil),
	)

	engine, err := NewEngine(context.Background(), backend, nil, nil, logger.NewTestLogger())
	require.NoError(t, err)

	return NewService(&models.StoreConfig{}, engine, logger.NewTestLogger()), backend
}

func adminEnvelope(t *testing.T, mtype string, payload interface{}) *envelope.Envelope {
	t.Helper()

	env, err := envelope.New(mtype, "admin-secret", payload)
	require.NoError(t, err)

	env.TokenRecord = &models.Token{
		Username: bootstrapUsername,
		Token:    "admin-secret",
		Groups:   []string{defaultGroup},
		Read:     true,
		Write:    true,
		Admin:    true,
	}

	return env
}

func TestExecutePing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newServiceHarness(t, ctrl)

	st, err := svc.execute(context.Background(), adminEnvelope(t, envelope.TypePing, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusSuccess, st.Status)

	var stamp string
	require.NoError(t, json.Unmarshal(st.Data, &stamp))
	assert.NotEmpty(t, stamp)
}

func TestExecuteUnknownType(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newServiceHarness(t, ctrl)

	env := adminEnvelope(t, envelope.TypePing, nil)
	env.Type = "indicators_rewrite"

	_, err := svc.execute(context.Background(), env)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestExecuteIndicatorsSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, backend := newServiceHarness(t, ctrl)

	stored := []*models.Indicator{{
		Value: "evil.example.com", IType: models.ITypeFQDN,
		Provider: "spamhaus", Group: defaultGroup, Confidence: 8,
	}}
	backend.EXPECT().QueryIndicators(gomock.Any(), gomock.Any()).Return(stored, nil)

	env := adminEnvelope(t, envelope.TypeIndicatorsSearch, &models.SearchFilter{Indicator: "evil.example.com"})

	st, err := svc.execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusSuccess, st.Status)

	var got []*models.Indicator
	require.NoError(t, json.Unmarshal(st.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "evil.example.com", got[0].Value)
}

func TestExecuteIndicatorsSearchMalformedFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newServiceHarness(t, ctrl)

	env := adminEnvelope(t, envelope.TypeIndicatorsSearch, nil)
	env.Payload = []byte(`{broken`)

	_, err := svc.execute(context.Background(), env)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestExecuteIndicatorsCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, backend := newServiceHarness(t, ctrl)

	backend.EXPECT().UpsertIndicator(gomock.Any(), gomock.Any()).Return(UpsertCreated, nil)

	env := adminEnvelope(t, envelope.TypeIndicatorsCreate, &models.Indicator{
		Value: "evil.example.com", IType: models.ITypeFQDN,
		Provider: "spamhaus", Group: defaultGroup,
		Tags: []string{"phishing"}, Confidence: 8,
	})

	st, err := svc.execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusSuccess, st.Status)

	var applied int
	require.NoError(t, json.Unmarshal(st.Data, &applied))
	assert.Equal(t, 1, applied)
}

func TestExecuteTokensSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, backend := newServiceHarness(t, ctrl)

	backend.EXPECT().QueryTokens(gomock.Any(), gomock.Any()).
		Return([]*models.Token{{Username: "analyst", Token: "tok-1"}}, nil)

	env := adminEnvelope(t, envelope.TypeTokensSearch, &models.TokenFilter{Username: "analyst"})

	st, err := svc.execute(context.Background(), env)
	require.NoError(t, err)

	var got []*models.Token
	require.NoError(t, json.Unmarshal(st.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "analyst", got[0].Username)
}

func TestExecuteFallsBackToTokenLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, backend := newServiceHarness(t, ctrl)

	caller := &models.Token{
		Username: "analyst", Token: "tok-1",
		Groups: []string{defaultGroup}, Read: true,
	}
	backend.EXPECT().QueryTokens(gomock.Any(), gomock.Any()).Return([]*models.Token{caller}, nil)
	backend.EXPECT().TouchToken(gomock.Any(), "tok-1", gomock.Any()).Return(nil)
	backend.EXPECT().QueryIndicators(gomock.Any(), gomock.Any()).Return(nil, nil)

	env, err := envelope.New(envelope.TypeIndicatorsSearch, "tok-1", &models.SearchFilter{Indicator: "evil.example.com"})
	require.NoError(t, err)

	st, err := svc.execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusSuccess, st.Status)
}

func TestDispatchTranslatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newServiceHarness(t, ctrl)

	env := adminEnvelope(t, envelope.TypeIndicatorsDelete, &models.SearchFilter{})

	st := svc.dispatch(context.Background(), env)
	require.NotNil(t, st)
	assert.Equal(t, envelope.StatusFailed, st.Status)
	assert.Contains(t, st.Message, "unbounded")
}

func TestDecodeDeleteFilters(t *testing.T) {
	one, err := decodeDeleteFilters([]byte(`{"id":"abc"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "abc", one[0].ID)

	many, err := decodeDeleteFilters([]byte(`[{"id":"abc"},{"id":"def"}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = decodeDeleteFilters([]byte(`{broken`))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
