package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RunCacheService caches completed allocation runs keyed by
// (time_slot_id, run_seed, n_trials, preference-table hash), so calls
// matching on those skip re-solving. Sessions, groups and the priority
// flag are not part of the key.
type RunCacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRunCacheService creates a new allocation-run cache service.
func NewRunCacheService(client *redis.Client, logger *logrus.Logger) *RunCacheService {
	return &RunCacheService{client: client, logger: logger}
}

// Key derives a deterministic cache key from a time slot and the
// hashed contents of its preference table, combined with the run
// parameters that affect the outcome.
func Key(timeSlotID string, runSeed int64, nTrials int, preferences interface{}) string {
	hash := sha256.New()
	if data, err := json.Marshal(preferences); err == nil {
		hash.Write(data)
	}
	return fmt.Sprintf("allocation:%s:%d:%d:%s", timeSlotID, runSeed, nTrials, hex.EncodeToString(hash.Sum(nil)))
}

// SetResult stores a run result under key for the given expiration.
func (c *RunCacheService) SetResult(ctx context.Context, key string, result interface{}, expiration time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal allocation result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set allocation result in cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":  key,
		"expiration": expiration,
	}).Debug("cached allocation result")

	return nil
}

// GetResult retrieves a cached run result into dest. It reports
// (false, nil) on a cache miss, not an error.
func (c *RunCacheService) GetResult(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get allocation result from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal allocation result: %w", err)
	}

	c.logger.WithField("cache_key", key).Debug("retrieved allocation result from cache")
	return true, nil
}

// GetStatus returns cache statistics (database size and cached run count).
func (c *RunCacheService) GetStatus(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"service":   "allocation-run-cache",
		"connected": true,
	}

	if dbSize, err := c.client.DBSize(ctx).Result(); err == nil {
		status["db_size"] = dbSize
	}

	if keys, err := c.client.Keys(ctx, "allocation:*").Result(); err == nil {
		status["cached_runs"] = len(keys)
	}

	return status
}
