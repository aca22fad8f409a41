package storage

import (
	"sync"

	"commit-reveal-voting/models"
)

// MemStore is a Store that keeps blocks in memory only.
type MemStore struct {
	mu     sync.RWMutex
	blocks []*models.Block
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) SaveBlock(block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, block)
	return nil
}

func (s *MemStore) LoadChain() ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := make([]*models.Block, len(s.blocks))
	copy(blocks, s.blocks)
	return blocks, nil
}
