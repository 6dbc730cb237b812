package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// EndpointRateLimiter enforces sliding minute+hour request windows with a
// temporary block on violation, used as the ingestion endpoint's
// per-source throttle.
type EndpointRateLimiter struct {
	clients map[string]*clientRateLimit
	mutex   sync.RWMutex

	requestsPerMinute int
	requestsPerHour   int
	blockDuration     time.Duration
}

type clientRateLimit struct {
	minuteRequests []time.Time
	hourRequests   []time.Time
	blocked        bool
	blockUntil     time.Time
	lastRequest    time.Time
}

func NewEndpointRateLimiter(requestsPerMinute, requestsPerHour int, blockDuration time.Duration) *EndpointRateLimiter {
	limiter := &EndpointRateLimiter{
		clients:           make(map[string]*clientRateLimit),
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		blockDuration:     blockDuration,
	}
	go limiter.cleanup()
	return limiter
}

// RateLimit keys on the authenticated event source rather than client IP,
// since ingestion traffic comes from a handful of known integrations
// (spec.md §5 "per-source rate limit") rather than arbitrary browsers.
func (erl *EndpointRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, _ := c.Get("event_source")
		keyStr, _ := key.(string)
		if keyStr == "" {
			keyStr = c.ClientIP()
		}

		if blocked, retryAfter := erl.checkRateLimit(keyStr); blocked {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d per minute, %d per hour", erl.requestsPerMinute, erl.requestsPerHour))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "too many requests, try again later",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

func (erl *EndpointRateLimiter) checkRateLimit(key string) (blocked bool, retryAfter int64) {
	erl.mutex.Lock()
	defer erl.mutex.Unlock()

	now := time.Now()
	client, exists := erl.clients[key]
	if !exists {
		client = &clientRateLimit{}
		erl.clients[key] = client
	}

	if client.blocked && now.Before(client.blockUntil) {
		return true, client.blockUntil.Unix() - now.Unix()
	}
	if client.blocked && now.After(client.blockUntil) {
		client.blocked = false
		client.minuteRequests = nil
		client.hourRequests = nil
	}

	client.minuteRequests = filterRecent(client.minuteRequests, now.Add(-time.Minute))
	client.hourRequests = filterRecent(client.hourRequests, now.Add(-time.Hour))

	if len(client.minuteRequests) >= erl.requestsPerMinute || len(client.hourRequests) >= erl.requestsPerHour {
		client.blocked = true
		client.blockUntil = now.Add(erl.blockDuration)
		return true, client.blockUntil.Unix() - now.Unix()
	}

	client.minuteRequests = append(client.minuteRequests, now)
	client.hourRequests = append(client.hourRequests, now)
	client.lastRequest = now
	return false, 0
}

func filterRecent(requests []time.Time, cutoff time.Time) []time.Time {
	filtered := requests[:0]
	for _, req := range requests {
		if req.After(cutoff) {
			filtered = append(filtered, req)
		}
	}
	return filtered
}

func (erl *EndpointRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		erl.mutex.Lock()
		cutoff := time.Now().Add(-2 * time.Hour)
		for key, client := range erl.clients {
			if client.lastRequest.Before(cutoff) {
				delete(erl.clients, key)
			}
		}
		erl.mutex.Unlock()
	}
}
