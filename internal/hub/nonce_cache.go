package hub

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dtvctl/internal/device"
)

const (
	defaultNoncesPerReceiver = 50
	defaultNonceExpiration   = time.Hour
	nonceCleanupInterval     = 10 * time.Minute
)

// cachedAction is the response stored for one nonce
type cachedAction struct {
	response *device.ActionResponse
	storedAt time.Time
}

// NonceCacheStats summarises the cache contents
type NonceCacheStats struct {
	Receivers   int            `json:"receivers"`
	Nonces      int            `json:"nonces"`
	MaxSize     int            `json:"max_size"`
	Expiration  string         `json:"expiration"`
	PerReceiver map[string]int `json:"per_receiver"`
}

// NonceCache replays the response of an action whose nonce was already seen,
// so retried requests do not press a key twice. One LRU per receiver.
type NonceCache struct {
	caches     map[string]*lru.Cache[string, cachedAction]
	mutex      sync.RWMutex
	maxSize    int
	expiration time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewNonceCache creates a cache and starts its expiry sweep
func NewNonceCache(maxSize int, expiration time.Duration) *NonceCache {
	if maxSize <= 0 {
		maxSize = defaultNoncesPerReceiver
	}
	if expiration <= 0 {
		expiration = defaultNonceExpiration
	}

	nc := &NonceCache{
		caches:     make(map[string]*lru.Cache[string, cachedAction]),
		maxSize:    maxSize,
		expiration: expiration,
		stop:       make(chan struct{}),
	}

	go nc.sweepLoop()

	return nc
}

// GenerateNonce returns "<unix millis>-<8 hex chars>"
func GenerateNonce() string {
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		n := time.Now().UnixNano()
		random = []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
	return fmt.Sprintf("%d-%x", time.Now().UnixMilli(), random)
}

// ValidateNonce checks the GenerateNonce format
func ValidateNonce(nonce string) bool {
	timestamp, random, found := strings.Cut(nonce, "-")
	if !found || strings.Contains(random, "-") {
		return false
	}
	if len(timestamp) < 13 || len(random) != 8 {
		return false
	}
	for _, c := range timestamp {
		if c < '0' || c > '9' {
			return false
		}
	}
	for _, c := range strings.ToLower(random) {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func (nc *NonceCache) receiverCache(receiverID string) *lru.Cache[string, cachedAction] {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	cache, exists := nc.caches[receiverID]
	if !exists {
		cache, _ = lru.New[string, cachedAction](nc.maxSize)
		nc.caches[receiverID] = cache
	}
	return cache
}

// Check returns the stored response for nonce, if any and not expired
func (nc *NonceCache) Check(receiverID, nonce string) (*device.ActionResponse, bool) {
	if nonce == "" {
		return nil, false
	}

	cache := nc.receiverCache(receiverID)
	entry, found := cache.Get(nonce)
	if !found {
		return nil, false
	}
	if time.Since(entry.storedAt) > nc.expiration {
		cache.Remove(nonce)
		return nil, false
	}
	return entry.response, true
}

// Store remembers response for nonce; empty nonces are ignored
func (nc *NonceCache) Store(receiverID, nonce string, response *device.ActionResponse) {
	if nonce == "" {
		return
	}
	nc.receiverCache(receiverID).Add(nonce, cachedAction{response: response, storedAt: time.Now()})
}

// Stats returns cache statistics
func (nc *NonceCache) Stats() NonceCacheStats {
	nc.mutex.RLock()
	defer nc.mutex.RUnlock()

	stats := NonceCacheStats{
		Receivers:   len(nc.caches),
		MaxSize:     nc.maxSize,
		Expiration:  nc.expiration.String(),
		PerReceiver: make(map[string]int, len(nc.caches)),
	}
	for receiverID, cache := range nc.caches {
		stats.PerReceiver[receiverID] = cache.Len()
		stats.Nonces += cache.Len()
	}
	return stats
}

func (nc *NonceCache) sweepLoop() {
	ticker := time.NewTicker(nonceCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nc.sweep(time.Now())
		case <-nc.stop:
			return
		}
	}
}

// sweep removes entries older than the expiration and empty receiver caches
func (nc *NonceCache) sweep(now time.Time) int {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	removed := 0
	for receiverID, cache := range nc.caches {
		for _, nonce := range cache.Keys() {
			if entry, found := cache.Peek(nonce); found && now.Sub(entry.storedAt) > nc.expiration {
				cache.Remove(nonce)
				removed++
			}
		}
		if cache.Len() == 0 {
			delete(nc.caches, receiverID)
		}
	}
	return removed
}

// Close stops the sweep and clears every cache
func (nc *NonceCache) Close() {
	nc.stopOnce.Do(func() { close(nc.stop) })

	nc.mutex.Lock()
	defer nc.mutex.Unlock()
	for _, cache := range nc.caches {
		cache.Purge()
	}
	nc.caches = make(map[string]*lru.Cache[string, cachedAction])
}
