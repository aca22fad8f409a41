package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"commit-reveal-voting/models"
)

const chainFileName = "ledger_chain.json"

// Store persists ledger blocks in append order.
type Store interface {
	SaveBlock(block *models.Block) error
	LoadChain() ([]*models.Block, error)
}

// Chain is the on-disk form of the ledger.
type Chain struct {
	Blocks []*models.Block `json:"blocks"`
}

// JSONStore keeps the whole chain in one JSON file, rewritten atomically on
// every append.
type JSONStore struct {
	path  string
	mu    sync.RWMutex
	chain *Chain
}

// ChainPath returns the chain file a JSONStore rooted at basePath uses.
func ChainPath(basePath string) string {
	return filepath.Join(basePath, chainFileName)
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create directory")
	}

	store := &JSONStore{path: ChainPath(basePath)}
	chain, err := store.loadChainFromFile()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load chain")
	}
	store.chain = chain
	return store, nil
}

func (s *JSONStore) SaveBlock(block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chain.Blocks = append(s.chain.Blocks, block)
	if err := s.saveChainToFile(); err != nil {
		s.chain.Blocks = s.chain.Blocks[:len(s.chain.Blocks)-1]
		return err
	}
	return nil
}

func (s *JSONStore) LoadChain() ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]*models.Block, len(s.chain.Blocks))
	copy(blocks, s.chain.Blocks)
	return blocks, nil
}

func (s *JSONStore) loadChainFromFile() (*Chain, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Chain{Blocks: make([]*models.Block, 0)}, nil
		}
		return nil, errors.WithStack(err)
	}

	var chain Chain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal chain")
	}
	return &chain, nil
}

func (s *JSONStore) saveChainToFile() error {
	data, err := json.MarshalIndent(s.chain, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal chain")
	}

	// Write to temporary file first
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write chain file")
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to save chain file")
	}
	return nil
}
