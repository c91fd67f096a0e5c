package cache

import (
	"context"
	"sync"
	"time"

	"solana-pool-sentinel/internal/constants"
	"solana-pool-sentinel/internal/models"
)

// MemoryCache is the in-process fallback used when no redis address is
// configured. Same contract as RedisCache, no durability.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	reports map[models.MintAddress]memoryEntry
	alerts  []*AlertEntry
}

type memoryEntry struct {
	report    *models.RiskReport
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache with the given report TTL.
func NewMemoryCache(reportTTL time.Duration) *MemoryCache {
	if reportTTL <= 0 {
		reportTTL = 5 * time.Minute
	}
	return &MemoryCache{
		ttl:     reportTTL,
		reports: make(map[models.MintAddress]memoryEntry),
	}
}

func (c *MemoryCache) GetReport(_ context.Context, mint models.MintAddress) (*models.RiskReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.reports[mint]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.reports, mint)
		return nil, ErrNotFound
	}
	return entry.report, nil
}

func (c *MemoryCache) PutReport(_ context.Context, report *models.RiskReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports[report.Mint] = memoryEntry{
		report:    report,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) AddRecentAlert(_ context.Context, entry *AlertEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alerts = append([]*AlertEntry{entry}, c.alerts...)
	if len(c.alerts) > constants.MaxRecentAlerts {
		c.alerts = c.alerts[:constants.MaxRecentAlerts]
	}
	return nil
}

func (c *MemoryCache) GetRecentAlerts(_ context.Context, limit int64) ([]*AlertEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit < 1 || limit > int64(len(c.alerts)) {
		limit = int64(len(c.alerts))
	}
	out := make([]*AlertEntry, limit)
	copy(out, c.alerts[:limit])
	return out, nil
}
