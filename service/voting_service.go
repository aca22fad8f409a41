package service

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"commit-reveal-voting/auth"
	"commit-reveal-voting/election"
	"commit-reveal-voting/ledger"
	"commit-reveal-voting/models"
	"commit-reveal-voting/storage"
)

// ErrUnavailable is returned after the ledger failed to persist an accepted
// transaction. State and ledger may disagree, so the service stops accepting.
var ErrUnavailable = errors.New("voting service unavailable")

type Option func(vs *VotingService)

func WithLogger(logger zerolog.Logger) Option {
	return func(vs *VotingService) {
		vs.logger = logger
	}
}

func WithClock(clock Clock) Option {
	return func(vs *VotingService) {
		vs.clock = clock
	}
}

func WithVerifier(verifier election.SignatureVerifier) Option {
	return func(vs *VotingService) {
		vs.verifier = verifier
	}
}

// WithDifficulty sets the proof-of-work difficulty of new ledger blocks.
func WithDifficulty(d uint8) Option {
	return func(vs *VotingService) {
		vs.difficulty = d
	}
}

// VotingService serializes every call into the election and records each
// accepted transaction in the ledger.
type VotingService struct {
	mu       sync.RWMutex
	election *election.Election
	ledger   *ledger.Ledger
	failure  error

	verifier         election.SignatureVerifier
	clock            Clock
	difficulty       uint8
	metricsCollector *MetricsCollector
	logger           zerolog.Logger
}

// PhaseInfo describes the phase at log time Now.
type PhaseInfo struct {
	Phase  election.Phase `json:"phase"`
	Now    int64          `json:"now"`
	Window models.Window  `json:"window"`
}

// NewVotingService opens the ledger in store. An empty ledger is initialized
// with setup as its genesis block. Otherwise the recorded setup is used and
// the ledger is replayed to rebuild state.
func NewVotingService(store storage.Store, setup models.Setup, opts ...Option) (*VotingService, error) {
	vs := &VotingService{
		clock:            SystemClock,
		metricsCollector: NewMetricsCollector(),
		logger:           zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(vs)
	}
	if vs.verifier == nil {
		vs.verifier = auth.NewVerifier()
	}

	l, err := ledger.Open(store, ledger.WithDifficulty(vs.difficulty), ledger.WithLogger(vs.logger))
	if err != nil {
		return nil, err
	}
	vs.ledger = l

	if l.Height() == 0 {
		e, err := election.New(setup, vs.verifier)
		if err != nil {
			return nil, err
		}
		if _, err := l.WriteGenesis(e.Setup(), vs.clock.Now()); err != nil {
			return nil, err
		}
		vs.election = e
		vs.logger.Info().
			Uint64("chain_scope", setup.ChainScope).
			Str("authority", setup.Authority.Hex()).
			Int("candidates", len(setup.Candidates)).
			Msg("election created")
		return vs, nil
	}

	genesis, err := l.Genesis()
	if err != nil {
		return nil, err
	}
	if !sameSetup(genesis, setup) {
		vs.logger.Warn().
			Uint64("chain_scope", genesis.ChainScope).
			Str("authority", genesis.Authority.Hex()).
			Msg("configured setup differs from ledger genesis, using ledger")
	}
	e, err := election.New(genesis, vs.verifier)
	if err != nil {
		return nil, errors.Wrap(err, "genesis setup rejected")
	}
	txs, err := l.Transactions()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := replay(e, txs); err != nil {
		return nil, err
	}
	vs.election = e

	vs.logger.Info().
		Int("transactions", len(txs)).
		Dur("took", time.Since(start)).
		Msg("ledger replayed")
	return vs, nil
}

func sameSetup(a, b models.Setup) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(x, y)
}

// Submit verifies and executes a signed transaction. On success the
// transaction is appended to the ledger and its receipt returned. A rejected
// transaction has no effect and is not recorded.
func (vs *VotingService) Submit(tx *models.Transaction) (*models.Receipt, error) {
	start := time.Now()
	receipt, err := vs.submit(tx)

	kind := models.TxKind("")
	if tx != nil {
		kind = tx.Kind
	}
	vs.metricsCollector.Record(kind, time.Since(start), err)
	if err != nil {
		vs.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("rejection", string(election.KindOf(err))).
			Msg("transaction rejected")
		return nil, err
	}

	vs.logger.Info().
		Str("kind", string(kind)).
		Str("from", tx.From.Hex()).
		Uint64("block", receipt.Block).
		Msg("transaction accepted")
	return receipt, nil
}

func (vs *VotingService) submit(tx *models.Transaction) (*models.Receipt, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.failure != nil {
		return nil, errors.Wrap(ErrUnavailable, vs.failure.Error())
	}
	if _, err := checkTransaction(tx, vs.election.Setup().ChainScope); err != nil {
		return nil, err
	}

	now := vs.ledger.NextTimestamp(vs.clock.Now())
	events, err := apply(vs.election, tx, now)
	if err != nil {
		return nil, err
	}

	block, stamped, err := vs.ledger.Append(tx, events, now)
	if err != nil {
		vs.failure = err
		vs.logger.Error().Err(err).Msg("failed to record accepted transaction")
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return &models.Receipt{
		TxHash:    tx.Hash(),
		Block:     block.Index,
		Timestamp: block.Timestamp,
		Events:    stamped,
	}, nil
}

func (vs *VotingService) Setup() models.Setup {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.election.Setup()
}

func (vs *VotingService) Phase() PhaseInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	now := vs.ledger.NextTimestamp(vs.clock.Now())
	return PhaseInfo{
		Phase:  vs.election.Phase(now),
		Now:    now,
		Window: vs.election.Setup().Window,
	}
}

func (vs *VotingService) Candidates() []models.Candidate {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.election.Candidates()
}

func (vs *VotingService) Results() models.Results {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.election.Results()
}

func (vs *VotingService) Voter(addr common.Address) (models.Voter, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.election.Voter(addr)
}

func (vs *VotingService) Stats() election.Stats {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.election.Stats()
}

// Events returns the recorded events from block from onwards.
func (vs *VotingService) Events(from uint64) ([]models.Event, error) {
	return vs.ledger.Events(from)
}

func (vs *VotingService) Blocks() []*models.Block {
	return vs.ledger.Blocks()
}

// VerifyTally audits the ledger and compares the outcome with live state.
func (vs *VotingService) VerifyTally() (*TallyVerification, error) {
	vs.mu.RLock()
	blocks := vs.ledger.Blocks()
	live := vs.election.Results().Counts
	vs.mu.RUnlock()

	v, err := Audit(blocks, vs.verifier)
	if err != nil {
		return nil, err
	}
	v.Live = live
	v.Match = v.Match && equalCounts(v.Recount, live)
	return v, nil
}

func (vs *VotingService) GetMetrics() MetricsResponse {
	return vs.metricsCollector.GetMetrics()
}
