package engine

import (
	"sync"
	"time"
)

// CooldownRegistry tracks per-symbol cooldown expiry. A symbol with an
// unexpired entry cannot re-enter SIGNAL state. Expired entries are removed
// lazily on lookup; no background sweep is needed at the scale of a few
// dozen monitored symbols.
type CooldownRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time // symbol -> expires_at
}

func NewCooldownRegistry() *CooldownRegistry {
	return &CooldownRegistry{entries: make(map[string]time.Time)}
}

// Register puts a symbol on cooldown until expiresAt.
func (c *CooldownRegistry) Register(symbol string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = expiresAt
}

// IsCoolingDown reports whether symbol still has a live cooldown entry,
// dropping it if it has expired.
func (c *CooldownRegistry) IsCoolingDown(symbol string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.entries[symbol]
	if !ok {
		return false
	}
	if !now.Before(expiresAt) {
		delete(c.entries, symbol)
		return false
	}
	return true
}

// Remaining returns how much cooldown time is left for symbol, zero if none.
func (c *CooldownRegistry) Remaining(symbol string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.entries[symbol]
	if !ok || !now.Before(expiresAt) {
		return 0
	}
	return expiresAt.Sub(now)
}

// Snapshot returns a copy of all live entries, for persistence.
func (c *CooldownRegistry) Snapshot(now time.Time) map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]time.Time, len(c.entries))
	for symbol, expiresAt := range c.entries {
		if now.Before(expiresAt) {
			out[symbol] = expiresAt
		}
	}
	return out
}

// Restore replaces the registry contents, dropping already-expired entries.
// Used on process restart.
func (c *CooldownRegistry) Restore(entries map[string]time.Time, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]time.Time, len(entries))
	for symbol, expiresAt := range entries {
		if now.Before(expiresAt) {
			c.entries[symbol] = expiresAt
		}
	}
}

// Clear removes all cooldown entries.
func (c *CooldownRegistry) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
}
