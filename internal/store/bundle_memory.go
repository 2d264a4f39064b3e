package store

import (
	"context"
	"sync"
	"time"

	"assetrelay/internal/asset"
)

type BundleMemory struct {
	mu      sync.RWMutex
	entries map[string]asset.Entry
	now     func() time.Time
}

func NewBundleMemory() *BundleMemory {
	return &BundleMemory{
		entries: make(map[string]asset.Entry),
		now:     time.Now,
	}
}

func (s *BundleMemory) Get(_ context.Context, key string) (asset.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *BundleMemory) Put(_ context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = asset.Entry{Data: cp, ModTime: s.now()}
	return nil
}
