package binance

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements proactive weight-based rate limiting for the spot
// API, with a circuit breaker that opens on 429/418 responses.
type RateLimiter struct {
	mu sync.Mutex

	// Weight tracking (Binance uses weight-based limits)
	currentWeight int
	weightResetAt time.Time
	maxWeight     int // 6000 per minute for spot

	// Circuit breaker state
	banUntil time.Time
}

// Endpoint weights for the Binance Spot API
var endpointWeights = map[string]int{
	"/api/v3/ticker/price": 2,
	"/api/v3/ticker/24hr":  80, // full list, no symbol param
	"/api/v3/klines":       2,
	"/api/v3/account":      20,
	"/api/v3/order":        1,
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		maxWeight:     6000,
		weightResetAt: time.Now().Add(time.Minute),
	}
}

// Acquire reserves weight for a request to the given endpoint. It returns an
// error when the exchange has banned us or the weight budget for the current
// minute is exhausted; callers should skip the request and retry later.
func (rl *RateLimiter) Acquire(endpoint string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Before(rl.banUntil) {
		return fmt.Errorf("rate limited: banned until %s", rl.banUntil.Format(time.RFC3339))
	}

	if now.After(rl.weightResetAt) {
		rl.currentWeight = 0
		rl.weightResetAt = now.Add(time.Minute)
	}

	weight, ok := endpointWeights[endpoint]
	if !ok {
		weight = 1
	}

	if rl.currentWeight+weight > rl.maxWeight {
		return fmt.Errorf("rate limited: weight budget exhausted, resets at %s", rl.weightResetAt.Format(time.RFC3339))
	}

	rl.currentWeight += weight
	return nil
}

// RecordStatus inspects an error response. 429 and 418 open the circuit for
// the Retry-After duration (or a default) so we stop hammering the API.
func (rl *RateLimiter) RecordStatus(status int, header http.Header) {
	if status != http.StatusTooManyRequests && status != http.StatusTeapot {
		return
	}

	wait := time.Minute
	if ra := header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}

	rl.mu.Lock()
	rl.banUntil = time.Now().Add(wait)
	rl.mu.Unlock()

	log.Printf("Rate limit hit (status %d), backing off for %s", status, wait)
}

// Usage returns the fraction of the weight budget used this minute.
func (rl *RateLimiter) Usage() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Now().After(rl.weightResetAt) {
		return 0
	}
	return float64(rl.currentWeight) / float64(rl.maxWeight)
}
