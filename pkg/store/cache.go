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
	"sync"
	"time"

	"github.com/threatwire/threatwire/pkg/models"
)

// Clock supplies the current time. Tests inject a fake to advance the
// cache window deterministically.
type Clock func() time.Time

type cacheEntry struct {
	token    *models.Token
	cachedAt time.Time
}

// tokenCache caches resolved token records for a bounded window. An edit or
// delete invalidates the specific principal immediately so permission
// changes never wait out the TTL.
type tokenCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     Clock
}

func newTokenCache(ttl time.Duration, now Clock) *tokenCache {
	if now == nil {
		now = time.Now
	}

	return &tokenCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *tokenCache) get(token string) (*models.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.cachedAt) > c.ttl {
		delete(c.entries, token)
		return nil, false
	}

	return entry.token, true
}

func (c *tokenCache) put(token string, record *models.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[token] = cacheEntry{token: record, cachedAt: c.now()}
}

func (c *tokenCache) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, token)
}

func (c *tokenCache) invalidateUser(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.token.Username == username {
			delete(c.entries, key)
		}
	}
}
