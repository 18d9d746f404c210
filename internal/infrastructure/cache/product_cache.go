// Package cache provides the read-mostly product/pricing cache sitting in
// front of the catalog repository. A Redis-backed cache is preferred; when
// Redis is unreachable at startup the factory falls back to an in-process
// cache so the gateway keeps serving.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/cloudmeter/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// productDTO is the cached wire form of a product
type productDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unit_price"`
	Unit       string `json:"unit"`
	PolicyJSON string `json:"policy_json"`
}

func toDTO(p *billing.Product) productDTO {
	return productDTO{
		ID:         p.ID.String(),
		Name:       p.Name,
		UnitPrice:  p.UnitPrice.String(),
		Unit:       string(p.Unit),
		PolicyJSON: p.PolicyJSON,
	}
}

func (d productDTO) toEntity() (*billing.Product, error) {
	price, err := valueobject.NewMoneyFromString(d.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached product %q: %w", d.Name, err)
	}
	product, err := billing.NewProduct(d.Name, price, billing.BillingUnit(d.Unit), d.PolicyJSON)
	if err != nil {
		return nil, err
	}
	if id, parseErr := uuid.Parse(d.ID); parseErr == nil {
		product.ID = id
	}
	return product, nil
}

// RedisProductCache caches products in Redis with a TTL
type RedisProductCache struct {
	client *redis.Client
	repo   billing.ProductRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisProductCache creates the Redis-backed cache
func NewRedisProductCache(client *redis.Client, repo billing.ProductRepository, ttl time.Duration, logger *zap.Logger) *RedisProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisProductCache{client: client, repo: repo, ttl: ttl, logger: logger.Named("product_cache")}
}

func productKey(name string) string {
	return "cloudmeter:product:" + name
}

// GetByName returns the cached product, falling back to the repository on a
// miss. Cache failures degrade to repository reads, never to request errors.
func (c *RedisProductCache) GetByName(ctx context.Context, name string) (*billing.Product, error) {
	raw, err := c.client.Get(ctx, productKey(name)).Result()
	if err == nil {
		var dto productDTO
		if jsonErr := json.Unmarshal([]byte(raw), &dto); jsonErr == nil {
			if product, convErr := dto.toEntity(); convErr == nil {
				return product, nil
			}
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("product", name))
	} else if err != redis.Nil {
		c.logger.Warn("product cache read failed", zap.String("product", name), zap.Error(err))
	}

	product, err := c.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(toDTO(product)); jsonErr == nil {
		if setErr := c.client.Set(ctx, productKey(name), payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("product cache write failed", zap.String("product", name), zap.Error(setErr))
		}
	}
	return product, nil
}

// Invalidate drops the cached entry after a catalog change
func (c *RedisProductCache) Invalidate(ctx context.Context, name string) error {
	return c.client.Del(ctx, productKey(name)).Err()
}

// InMemoryProductCache is the fallback cache used when Redis is unavailable
type InMemoryProductCache struct {
	repo billing.ProductRepository
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	dto       productDTO
	expiresAt time.Time
}

// NewInMemoryProductCache creates the in-process cache
func NewInMemoryProductCache(repo billing.ProductRepository, ttl time.Duration) *InMemoryProductCache {
	return &InMemoryProductCache{
		repo:    repo,
		ttl:     ttl,
		entries: make(map[string]inMemoryEntry),
	}
}

// GetByName returns the cached product, falling back to the repository
func (c *InMemoryProductCache) GetByName(ctx context.Context, name string) (*billing.Product, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		if product, err := entry.dto.toEntity(); err == nil {
			return product, nil
		}
	}

	product, err := c.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = inMemoryEntry{dto: toDTO(product), expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return product, nil
}

// Invalidate drops the cached entry
func (c *InMemoryProductCache) Invalidate(_ context.Context, name string) error {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
	return nil
}

// NewProductCache builds the preferred cache for the given Redis settings,
// falling back to the in-process cache when Redis cannot be reached.
func NewProductCache(cfg config.RedisConfig, repo billing.ProductRepository, ttl time.Duration, logger *zap.Logger) billing.ProductSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory product cache", zap.Error(err))
		return NewInMemoryProductCache(repo, ttl)
	}
	return NewRedisProductCache(client, repo, ttl, logger)
}
