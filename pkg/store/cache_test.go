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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/pkg/models"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestTokenCacheHitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newTokenCache(5*time.Minute, clock.Now)

	cache.put("secret", &models.Token{Username: "alice"})

	clock.Advance(4 * time.Minute)

	record, ok := cache.get("secret")
	require.True(t, ok)
	assert.Equal(t, "alice", record.Username)
}

func TestTokenCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := newTokenCache(5*time.Minute, clock.Now)

	cache.put("secret", &models.Token{Username: "alice"})

	clock.Advance(5*time.Minute + time.Second)

	_, ok := cache.get("secret")
	assert.False(t, ok)
}

func TestTokenCacheInvalidate(t *testing.T) {
	cache := newTokenCache(5*time.Minute, newFakeClock().Now)

	cache.put("secret", &models.Token{Username: "alice"})
	cache.invalidate("secret")

	_, ok := cache.get("secret")
	assert.False(t, ok)
}

func TestTokenCacheInvalidateUser(t *testing.T) {
	cache := newTokenCache(5*time.Minute, newFakeClock().Now)

	cache.put("a", &models.Token{Username: "alice"})
	cache.put("b", &models.Token{Username: "alice"})
	cache.put("c", &models.Token{Username: "bob"})

	cache.invalidateUser("alice")

	_, ok := cache.get("a")
	assert.False(t, ok)

	_, ok = cache.get("b")
	assert.False(t, ok)

	_, ok = cache.get("c")
	assert.True(t, ok)
}
