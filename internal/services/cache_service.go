package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService is the shared Redis layer behind the per-instance query
// caches. It lets separate pipeline instances reuse each other's SPARQL
// results. Every operation degrades to a cache miss on error, a cache
// problem never fails a query.
type CacheService struct {
	client *redis.Client
	config config.CacheConfig
	logger *logger.Logger
}

type cachedQueryPayload struct {
	Rows            []models.ResultRow `json:"rows"`
	ExecutionTimeMS int64              `json:"execution_time_ms"`
	CachedAt        string             `json:"cached_at"`
}

func NewCacheService(cfg config.CacheConfig, log *logger.Logger) (*CacheService, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL : %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	service := &CacheService{
		client: redis.NewClient(opt),
		config: cfg,
		logger: log,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Cache Service Initialized Successfully",
		"ttl", cfg.TTL,
		"pool_size", cfg.PoolSize)

	return service, nil
}

func (service *CacheService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connection to Redis failed: %w", err)
	}

	service.logger.Info("Cache Service Connection Tested Successfully")
	return nil
}

func queryCacheKey(queryText string) string {
	return fmt.Sprintf("sparql:query:%x", sha256.Sum256([]byte(queryText)))
}

// GetQueryResults looks a query's cached rows up by exact query text.
// The second return is the original execution time, the third reports
// whether the lookup hit.
func (service *CacheService) GetQueryResults(ctx context.Context, queryText string) ([]models.ResultRow, time.Duration, bool) {
	key := queryCacheKey(queryText)
	startTime := time.Now()

	payloadJSON, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			service.logger.WithError(err).Warn("Query cache lookup failed", "key", key)
		}
		return nil, 0, false
	}

	var payload cachedQueryPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		service.logger.WithError(err).Warn("Query cache payload corrupt", "key", key)
		return nil, 0, false
	}

	service.logger.LogService("cache", "get_query_results", time.Since(startTime), map[string]interface{}{
		"key":  key,
		"rows": len(payload.Rows),
	}, nil)

	return payload.Rows, time.Duration(payload.ExecutionTimeMS) * time.Millisecond, true
}

// StoreQueryResults writes a query's rows with the configured TTL. Write
// failures are logged and dropped.
func (service *CacheService) StoreQueryResults(ctx context.Context, queryText string, rows []models.ResultRow, executionTime time.Duration) {
	key := queryCacheKey(queryText)
	startTime := time.Now()

	payload := cachedQueryPayload{
		Rows:            rows,
		ExecutionTimeMS: executionTime.Milliseconds(),
		CachedAt:        time.Now().UTC().Format(time.RFC3339),
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		service.logger.WithError(err).Warn("Failed to serialize query cache payload")
		return
	}

	if err := service.client.Set(ctx, key, payloadJSON, service.config.TTL).Err(); err != nil {
		service.logger.LogService("cache", "store_query_results", time.Since(startTime), map[string]interface{}{
			"key": key,
		}, err)
		return
	}

	service.logger.LogService("cache", "store_query_results", time.Since(startTime), map[string]interface{}{
		"key":  key,
		"rows": len(rows),
		"ttl":  service.config.TTL.String(),
	}, nil)
}

func (service *CacheService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Cache Connection Unhealthy: %w", err)
	}
	return nil
}

func (service *CacheService) GetStats() map[string]interface{} {
	poolStats := service.client.PoolStats()
	return map[string]interface{}{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"ttl":         service.config.TTL.String(),
	}
}

func (service *CacheService) Close() error {
	service.logger.Info("Closing Cache Service")

	if err := service.client.Close(); err != nil {
		return fmt.Errorf("Error closing Redis connection : %w", err)
	}

	service.logger.Info("Cache Service Closed Successfully")
	return nil
}
