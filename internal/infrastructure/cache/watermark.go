package cache

import (
	"context"
	"fmt"
	"sync"
)

const scanHeightKey = "chainpoller:last_checked_block"

// WatermarkStore persists the poller's last checked block height so a
// restart resumes from where the previous run left off.
type WatermarkStore interface {
	LastCheckedBlock(ctx context.Context) (uint64, bool, error)
	SetLastCheckedBlock(ctx context.Context, height uint64) error
}

type redisWatermarkStore struct {
	cache RedisClient
}

// NewWatermarkStore creates a Redis-backed watermark store
func NewWatermarkStore(cache RedisClient) WatermarkStore {
	return &redisWatermarkStore{cache: cache}
}

func (s *redisWatermarkStore) LastCheckedBlock(ctx context.Context) (uint64, bool, error) {
	exists, err := s.cache.Exists(ctx, scanHeightKey)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check watermark: %w", err)
	}
	if !exists {
		return 0, false, nil
	}

	var height uint64
	if err := s.cache.Get(ctx, scanHeightKey, &height); err != nil {
		return 0, false, fmt.Errorf("failed to read watermark: %w", err)
	}
	return height, true, nil
}

func (s *redisWatermarkStore) SetLastCheckedBlock(ctx context.Context, height uint64) error {
	// no expiration: the watermark must survive restarts
	if err := s.cache.Set(ctx, scanHeightKey, height, 0); err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}
	return nil
}

// MemoryWatermarkStore keeps the watermark in memory. Used when Redis is
// unavailable; the poller falls back to the chain head on startup.
type MemoryWatermarkStore struct {
	mu     sync.Mutex
	height uint64
	set    bool
}

func NewMemoryWatermarkStore() *MemoryWatermarkStore {
	return &MemoryWatermarkStore{}
}

func (s *MemoryWatermarkStore) LastCheckedBlock(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height, s.set, nil
}

func (s *MemoryWatermarkStore) SetLastCheckedBlock(ctx context.Context, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = height
	s.set = true
	return nil
}
