package router

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"netagent/pkg/models"
)

// Cache remembers model-produced routing decisions keyed by a hash of the
// normalized request text, so repeated questions skip the routing model
// call entirely. Entries expire after the configured TTL; writes are
// last-writer-wins.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	plan        []models.AgentPlanEntry
	firstAction *models.Decision
	expiresAt   time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *Cache) Get(query string) ([]models.AgentPlanEntry, *models.Decision, bool) {
	k := cacheKey(query)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		return nil, nil, false
	}
	return clonePlan(e.plan), e.firstAction, true
}

func (c *Cache) Set(query string, plan []models.AgentPlanEntry, firstAction *models.Decision) {
	c.mu.Lock()
	c.entries[cacheKey(query)] = cacheEntry{
		plan:        clonePlan(plan),
		firstAction: firstAction,
		expiresAt:   time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// cacheKey hashes the query after trimming and lowercasing, so case and
// whitespace variants of the same question share one entry.
func cacheKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// clonePlan guards cached plans against the status mutation the loop
// controller performs on the copy it executes.
func clonePlan(plan []models.AgentPlanEntry) []models.AgentPlanEntry {
	out := make([]models.AgentPlanEntry, len(plan))
	copy(out, plan)
	return out
}
