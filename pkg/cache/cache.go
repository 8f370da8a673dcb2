// Package cache holds the engine's short-lived shared caches. Values are
// idempotent snapshots: writers overwrite, readers tolerate staleness up to TTL.
package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"wallet-engine/pkg/types"
)

// Defaults
const (
	DefaultSize      = 1024
	DefaultPriceTTL  = 60 * time.Second
	DefaultStatusTTL = 30 * time.Second
	DefaultTokenTTL  = time.Hour
)

// TTL is a size-bounded cache whose entries expire after a fixed duration.
type TTL[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewTTL creates a cache holding at most size entries for ttl each
func NewTTL[K comparable, V any](size int, ttl time.Duration) *TTL[K, V] {
	if size <= 0 {
		size = DefaultSize
	}
	return &TTL[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl), ttl: ttl}
}

// Get returns a live entry
func (c *TTL[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores or overwrites an entry
func (c *TTL[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

// Remove drops an entry
func (c *TTL[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len is the number of entries, expired ones included until they are reaped
func (c *TTL[K, V]) Len() int {
	return c.lru.Len()
}

// TTL returns the configured lifetime
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns hit and miss counts
func (c *TTL[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Config sizes the cache service
type Config struct {
	Size      int
	PriceTTL  time.Duration
	StatusTTL time.Duration
	TokenTTL  time.Duration
}

// Service groups the caches shared by the engine. Construct once and pass it in.
type Service struct {
	Prices *TTL[string, types.Price]
	Status *TTL[string, types.BridgeStatus]
	Tokens *TTL[string, types.Token]
}

// New builds the cache service, filling zero fields with defaults
func New(cfg Config) *Service {
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = DefaultPriceTTL
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultStatusTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		Prices: NewTTL[string, types.Price](cfg.Size, cfg.PriceTTL),
		Status: NewTTL[string, types.BridgeStatus](cfg.Size, cfg.StatusTTL),
		Tokens: NewTTL[string, types.Token](cfg.Size, cfg.TokenTTL),
	}
}

// PriceKey is "price:<chain>:<address>"; EVM addresses are lower-cased
func PriceKey(chain types.ChainID, address string) string {
	return fmt.Sprintf("price:%s:%s", chain, normalizeAddress(address))
}

// TokenKey is "token:<chain>:<address>"
func TokenKey(chain types.ChainID, address string) string {
	return fmt.Sprintf("token:%s:%s", chain, normalizeAddress(address))
}

// StatusKey is "status:<deposit address>"
func StatusKey(depositAddress string) string {
	return "status:" + depositAddress
}

func normalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}
