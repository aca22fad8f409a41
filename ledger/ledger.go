// Package ledger is the append-only execution log of an election. Block 0
// holds the election setup, every later block holds one accepted transaction
// and the events it emitted.
package ledger

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"commit-reveal-voting/models"
	"commit-reveal-voting/storage"
)

var (
	ErrNoGenesis       = errors.New("ledger has no genesis block")
	ErrGenesisExists   = errors.New("ledger already has a genesis block")
	ErrMissingGenesis  = errors.New("first block does not hold the election setup")
	ErrUnexpectedSetup = errors.New("setup found after genesis")
)

type Option func(l *Ledger)

// WithDifficulty sets the number of leading zero bytes new block hashes need.
// Open rejects values above models.MaxDifficulty.
func WithDifficulty(d uint8) Option {
	return func(l *Ledger) {
		l.difficulty = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

type Ledger struct {
	mu         sync.RWMutex
	blocks     []*models.Block
	store      storage.Store
	difficulty uint8

	logger zerolog.Logger
}

// Open loads and verifies the chain held by store.
func Open(store storage.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		logger: zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := models.CheckDifficulty(l.difficulty); err != nil {
		return nil, err
	}

	blocks, err := store.LoadChain()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load chain")
	}
	if err := models.VerifyChain(blocks); err != nil {
		return nil, err
	}
	l.blocks = blocks

	l.logger.Info().
		Int("blocks", len(blocks)).
		Uint8("difficulty", l.difficulty).
		Msg("ledger opened")
	return l, nil
}

func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// LastTimestamp returns the timestamp of the newest block, or 0.
func (l *Ledger) LastTimestamp() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return 0
	}
	return l.blocks[len(l.blocks)-1].Timestamp
}

// NextTimestamp clamps now so that block time never runs backwards.
func (l *Ledger) NextTimestamp(now int64) int64 {
	if last := l.LastTimestamp(); now < last {
		return last
	}
	return now
}

// WriteGenesis appends block 0 holding setup.
func (l *Ledger) WriteGenesis(setup models.Setup, timestamp int64) (*models.Block, error) {
	if l.Height() > 0 {
		return nil, ErrGenesisExists
	}
	block, _, err := l.append(models.Entry{Setup: &setup}, timestamp)
	return block, err
}

// Append stores an accepted transaction with its events. The events are
// stamped with the block number and timestamp and returned.
func (l *Ledger) Append(tx *models.Transaction, events []models.Event, timestamp int64) (*models.Block, []models.Event, error) {
	if l.Height() == 0 {
		return nil, nil, ErrNoGenesis
	}
	block, entry, err := l.append(models.Entry{Tx: tx, Events: events}, timestamp)
	if err != nil {
		return nil, nil, err
	}
	return block, entry.Events, nil
}

func (l *Ledger) append(entry models.Entry, timestamp int64) (*models.Block, models.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prevHash []byte
	index := uint64(len(l.blocks))
	if index > 0 {
		last := l.blocks[index-1]
		prevHash = last.Hash
		if timestamp < last.Timestamp {
			timestamp = last.Timestamp
		}
	}

	stamped := make([]models.Event, len(entry.Events))
	for i, ev := range entry.Events {
		ev.Block = index
		ev.Timestamp = timestamp
		stamped[i] = ev
	}
	entry.Events = stamped

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, models.Entry{}, errors.Wrap(err, "failed to encode entry")
	}

	block := models.NewBlock(index, timestamp, data, prevHash, l.difficulty)
	if err := l.store.SaveBlock(block); err != nil {
		return nil, models.Entry{}, errors.Wrap(err, "failed to save block")
	}
	l.blocks = append(l.blocks, block)

	l.logger.Debug().
		Uint64("block", index).
		Int64("timestamp", timestamp).
		Int("events", len(stamped)).
		Msg("block appended")
	return block, entry, nil
}

// Decode returns the entry stored in block.
func Decode(block *models.Block) (models.Entry, error) {
	var entry models.Entry
	if err := json.Unmarshal(block.Data, &entry); err != nil {
		return models.Entry{}, errors.Wrapf(err, "failed to decode block %d", block.Index)
	}
	return entry, nil
}

// Genesis returns the election setup stored in block 0.
func (l *Ledger) Genesis() (models.Setup, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return models.Setup{}, ErrNoGenesis
	}
	entry, err := Decode(l.blocks[0])
	if err != nil {
		return models.Setup{}, err
	}
	if entry.Setup == nil {
		return models.Setup{}, ErrMissingGenesis
	}
	return *entry.Setup, nil
}

// Blocks returns a copy of the block list.
func (l *Ledger) Blocks() []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	blocks := make([]*models.Block, len(l.blocks))
	copy(blocks, l.blocks)
	return blocks
}

// Transaction is an accepted transaction as recorded in the ledger.
type Transaction struct {
	Block     uint64
	Timestamp int64
	Tx        *models.Transaction
	Events    []models.Event
}

// Transactions decodes every block after genesis.
func (l *Ledger) Transactions() ([]Transaction, error) {
	return Transactions(l.Blocks())
}

// Transactions decodes every block after genesis in blocks.
func Transactions(blocks []*models.Block) ([]Transaction, error) {
	var out []Transaction
	for i, block := range blocks {
		entry, err := Decode(block)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if entry.Setup == nil {
				return nil, ErrMissingGenesis
			}
			continue
		}
		if entry.Setup != nil {
			return nil, errors.Wrapf(ErrUnexpectedSetup, "block %d", block.Index)
		}
		out = append(out, Transaction{
			Block:     block.Index,
			Timestamp: block.Timestamp,
			Tx:        entry.Tx,
			Events:    entry.Events,
		})
	}
	return out, nil
}

// Events returns every event recorded at or after block from, in order.
func (l *Ledger) Events(from uint64) ([]models.Event, error) {
	txs, err := l.Transactions()
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0)
	for _, tx := range txs {
		if tx.Block < from {
			continue
		}
		events = append(events, tx.Events...)
	}
	return events, nil
}

// Validate re-verifies every hash, link and timestamp.
func (l *Ledger) Validate() error {
	return models.VerifyChain(l.Blocks())
}
