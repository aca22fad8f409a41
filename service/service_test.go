package service_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"commit-reveal-voting/auth"
	"commit-reveal-voting/election"
	"commit-reveal-voting/encryption"
	"commit-reveal-voting/models"
	"commit-reveal-voting/service"
	"commit-reveal-voting/storage"
)

const (
	T     = int64(1_700_000_000)
	scope = uint64(31337)
)

type harness struct {
	t         *testing.T
	store     *storage.MemStore
	clock     *service.ManualClock
	owner     *ecdsa.PrivateKey
	authority *auth.Authority
	setup     models.Setup
	vs        *service.VotingService
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func addr(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		store:     storage.NewMemStore(),
		clock:     service.NewManualClock(T - 100),
		owner:     newKey(t),
		authority: auth.NewAuthority(newKey(t)),
	}
	h.setup = models.Setup{
		Owner:      addr(h.owner),
		Authority:  h.authority.Address(),
		ChainScope: scope,
		Window:     models.Window{CommitStart: T, CommitEnd: T + 300, RevealEnd: T + 600},
		Candidates: []string{"Alice", "Bob"},
	}
	h.vs = h.open()
	return h
}

func (h *harness) open() *service.VotingService {
	h.t.Helper()
	vs, err := service.NewVotingService(h.store, h.setup,
		service.WithLogger(zerolog.Nop()),
		service.WithClock(h.clock),
	)
	require.NoError(h.t, err)
	return vs
}

func (h *harness) send(key *ecdsa.PrivateKey, tx models.Transaction) (*models.Receipt, error) {
	h.t.Helper()
	tx.Scope = scope
	require.NoError(h.t, tx.Sign(key))
	return h.vs.Submit(&tx)
}

func (h *harness) register(key *ecdsa.PrivateKey) {
	h.t.Helper()
	a, err := h.authority.SignAssertion(scope, addr(key))
	require.NoError(h.t, err)
	_, err = h.send(key, models.Transaction{Kind: models.TxRegisterVoter, Authorization: a.Signature})
	require.NoError(h.t, err)
}

func (h *harness) commit(key *ecdsa.PrivateKey, choice uint64) common.Hash {
	h.t.Helper()
	salt, err := encryption.NewSalt()
	require.NoError(h.t, err)
	c := election.Commitment(choice, salt, addr(key))
	_, err = h.send(key, models.Transaction{Kind: models.TxCommitVote, Commitment: &c})
	require.NoError(h.t, err)
	return salt
}

func (h *harness) reveal(key *ecdsa.PrivateKey, choice uint64, salt common.Hash) (*models.Receipt, error) {
	h.t.Helper()
	return h.send(key, models.Transaction{Kind: models.TxRevealVote, CandidateID: &choice, Salt: &salt})
}

func requireKind(t *testing.T, err error, kind election.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, election.KindOf(err), err.Error())
}

func TestElectionThroughService(t *testing.T) {
	h := newHarness(t)
	alice := newKey(t)
	silent := newKey(t)

	name := "Charlie"
	receipt, err := h.send(h.owner, models.Transaction{Kind: models.TxAddCandidate, Name: name})
	require.NoError(t, err)
	require.EqualValues(t, 1, receipt.Block)
	require.Equal(t, models.EventCandidateAdded, receipt.Events[0].Kind)

	h.clock.Set(T + 10)
	h.register(alice)
	h.register(silent)
	require.Equal(t, election.PhaseCommit, h.vs.Phase().Phase)

	h.clock.Set(T + 20)
	salt := h.commit(alice, 2)
	h.commit(silent, 0)

	c := election.Commitment(2, salt, addr(alice))
	_, err = h.send(alice, models.Transaction{Kind: models.TxCommitVote, Commitment: &c})
	requireKind(t, err, election.KindAlreadyCommitted)

	h.clock.Set(T + 310)
	receipt, err = h.reveal(alice, 2, salt)
	require.NoError(t, err)
	require.Equal(t, models.EventVoteRevealed, receipt.Events[0].Kind)
	require.Equal(t, T+310, receipt.Timestamp)
	require.Equal(t, []uint64{0, 0, 1}, h.vs.Results().Counts)

	_, err = h.send(alice, models.Transaction{Kind: models.TxTallyVotes})
	requireKind(t, err, election.KindTooEarly)

	h.clock.Set(T + 601)
	receipt, err = h.send(silent, models.Transaction{Kind: models.TxTallyVotes})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0, 1}, receipt.Events[0].Results)
	require.True(t, h.vs.Results().Final)
	require.Equal(t, election.PhaseTallied, h.vs.Phase().Phase)

	v, err := h.vs.VerifyTally()
	require.NoError(t, err)
	require.True(t, v.ChainValid)
	require.True(t, v.Match)
	require.Equal(t, 1, v.Reveals)
	require.Equal(t, []uint64{0, 0, 1}, v.Tallied)

	events, err := h.vs.Events(0)
	require.NoError(t, err)
	kinds := make([]models.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	require.Equal(t, []models.EventKind{
		models.EventCandidateAdded,
		models.EventVoterRegistered,
		models.EventVoterRegistered,
		models.EventVoteCommitted,
		models.EventVoteCommitted,
		models.EventVoteRevealed,
		models.EventVotesTallied,
	}, kinds)

	m := h.vs.GetMetrics()
	require.Equal(t, 2, m.Operations[models.TxCommitVote].Accepted)
	require.Equal(t, 1, m.Operations[models.TxCommitVote].Rejected)
	require.Equal(t, 1, m.Rejections[election.KindAlreadyCommitted])
	require.Equal(t, 1, m.Rejections[election.KindTooEarly])
}

func TestRejectedTransactionsAreNotRecorded(t *testing.T) {
	h := newHarness(t)
	voter := newKey(t)
	height := len(h.vs.Blocks())

	// wrong phase
	h.clock.Set(T + 400)
	a, err := h.authority.SignAssertion(scope, addr(voter))
	require.NoError(t, err)
	_, err = h.send(voter, models.Transaction{Kind: models.TxRegisterVoter, Authorization: a.Signature})
	requireKind(t, err, election.KindWrongPhase)

	// forged sender
	tx := models.Transaction{Kind: models.TxTallyVotes, Scope: scope}
	require.NoError(t, tx.Sign(voter))
	tx.From = addr(h.owner)
	_, err = h.vs.Submit(&tx)
	require.True(t, errors.Is(err, models.ErrInvalidTransaction))

	// wrong scope
	tx = models.Transaction{Kind: models.TxTallyVotes, Scope: scope + 1}
	require.NoError(t, tx.Sign(voter))
	_, err = h.vs.Submit(&tx)
	require.True(t, errors.Is(err, models.ErrInvalidTransaction))

	// missing parameter
	_, err = h.send(voter, models.Transaction{Kind: models.TxCommitVote})
	require.True(t, errors.Is(err, models.ErrInvalidTransaction))

	_, err = h.send(voter, models.Transaction{Kind: "launch_missiles"})
	require.True(t, errors.Is(err, models.ErrInvalidTransaction))

	require.Len(t, h.vs.Blocks(), height)
	require.Equal(t, 4, h.vs.GetMetrics().Failures)
}

func TestBlockTimeNeverRunsBackwards(t *testing.T) {
	h := newHarness(t)
	voter := newKey(t)

	h.clock.Set(T + 299)
	h.register(voter)

	// a clock that jumps back must not reopen the pending phase
	h.clock.Set(T - 50)
	require.Equal(t, election.PhaseCommit, h.vs.Phase().Phase)
	_, err := h.send(h.owner, models.Transaction{Kind: models.TxAddCandidate, Name: "Late"})
	requireKind(t, err, election.KindWrongPhase)

	blocks := h.vs.Blocks()
	require.NoError(t, models.VerifyChain(blocks))
	require.Equal(t, T+299, blocks[len(blocks)-1].Timestamp)
}

func TestRestartReplaysLedger(t *testing.T) {
	h := newHarness(t)
	voter := newKey(t)

	h.clock.Set(T + 1)
	h.register(voter)
	salt := h.commit(voter, 1)

	restarted := h.open()
	require.Equal(t, h.vs.Stats(), restarted.Stats())
	v, ok := restarted.Voter(addr(voter))
	require.True(t, ok)
	require.NotNil(t, v.Commitment)

	h.vs = restarted
	h.clock.Set(T + 300)
	_, err := h.reveal(voter, 1, salt)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, h.vs.Results().Counts)

	// configuration drift does not override the recorded setup
	h.setup.Candidates = []string{"Somebody else"}
	again := h.open()
	require.Equal(t, []uint64{0, 1}, again.Results().Counts)
	require.Equal(t, "Alice", again.Candidates()[0].Name)
}

func TestNewServiceRejectsInvalidWindow(t *testing.T) {
	_, err := service.NewVotingService(storage.NewMemStore(), models.Setup{
		Window: models.Window{CommitStart: 10, CommitEnd: 10, RevealEnd: 20},
	}, service.WithLogger(zerolog.Nop()))
	requireKind(t, err, election.KindInvalidWindow)
}

func TestNewServiceRejectsUnreachableDifficulty(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() {
		_, err := service.NewVotingService(storage.NewMemStore(), h.setup,
			service.WithLogger(zerolog.Nop()),
			service.WithClock(h.clock),
			service.WithDifficulty(40),
		)
		done <- err
	}()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, models.ErrInvalidDifficulty), "%v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("service creation did not return")
	}
}

func TestAuditDetectsForgedResults(t *testing.T) {
	h := newHarness(t)
	voter := newKey(t)
	h.clock.Set(T + 1)
	h.register(voter)
	salt := h.commit(voter, 0)
	h.clock.Set(T + 300)
	_, err := h.reveal(voter, 0, salt)
	require.NoError(t, err)

	blocks, err := h.store.LoadChain()
	require.NoError(t, err)
	v, err := service.Audit(blocks, auth.NewVerifier())
	require.NoError(t, err)
	require.True(t, v.Match)
	require.Equal(t, []uint64{1, 0}, v.Recount)

	// rewrite the reveal event, keeping the chain internally consistent
	last := blocks[len(blocks)-1]
	data := append([]byte(nil), last.Data...)
	at := bytes.LastIndex(data, []byte(`"candidate_id":0`))
	require.Positive(t, at)
	data[at+len(`"candidate_id":`)] = '1'

	forged := make([]*models.Block, len(blocks))
	copy(forged, blocks)
	forged[len(forged)-1] = models.NewBlock(last.Index, last.Timestamp, data, last.PrevHash, last.Difficulty)

	v, err = service.Audit(forged, auth.NewVerifier())
	require.NoError(t, err)
	require.True(t, v.ChainValid)
	require.Equal(t, []uint64{0, 1}, v.Recount)
	require.NotEmpty(t, v.ReplayError)
	require.False(t, v.Match)

	// editing a block without re-mining breaks the chain instead
	tampered := *last
	tampered.Data = data
	forged[len(forged)-1] = &tampered
	v, err = service.Audit(forged, auth.NewVerifier())
	require.NoError(t, err)
	require.False(t, v.ChainValid)
	require.False(t, v.Match)
}

func TestSequencerSerializesSubmissions(t *testing.T) {
	h := newHarness(t)
	seq := service.NewSequencer(h.vs, 64)
	seq.Start()
	defer seq.Stop()

	h.clock.Set(T + 1)
	voters := make([]*ecdsa.PrivateKey, 20)
	errCh := make(chan error, len(voters))
	for i := range voters {
		voters[i] = newKey(t)
		a, err := h.authority.SignAssertion(scope, addr(voters[i]))
		require.NoError(t, err)
		tx := models.Transaction{Kind: models.TxRegisterVoter, Scope: scope, Authorization: a.Signature}
		require.NoError(t, tx.Sign(voters[i]))
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := seq.Submit(ctx, &tx)
			errCh <- err
		}()
	}
	for range voters {
		require.NoError(t, <-errCh)
	}
	require.Equal(t, len(voters), h.vs.Stats().Registered)
	require.NoError(t, models.VerifyChain(h.vs.Blocks()))
	require.Len(t, h.vs.Blocks(), len(voters)+1)
}

func TestSequencerQueueFullAndStop(t *testing.T) {
	h := newHarness(t)
	seq := service.NewSequencer(h.vs, 1)

	tx := models.Transaction{Kind: models.TxTallyVotes, Scope: scope}
	require.NoError(t, tx.Sign(newKey(t)))

	// worker not started, the first request occupies the only slot
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := seq.Submit(ctx, &tx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = seq.Submit(context.Background(), &tx)
	require.True(t, errors.Is(err, service.ErrQueueFull))

	seq.Stop()
	_, err = seq.Submit(context.Background(), &tx)
	require.True(t, errors.Is(err, service.ErrStopped))
}

func TestSubmitRacingStopIsAnswered(t *testing.T) {
	h := newHarness(t)
	// no worker, so queued requests are only answered by the drain in Stop
	seq := service.NewSequencer(h.vs, 64)

	tx := models.Transaction{Kind: models.TxTallyVotes, Scope: scope}
	require.NoError(t, tx.Sign(newKey(t)))

	const submitters = 32
	errCh := make(chan error, submitters)
	start := make(chan struct{})
	for i := 0; i < submitters; i++ {
		go func() {
			<-start
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := seq.Submit(ctx, &tx)
			errCh <- err
		}()
	}
	close(start)
	seq.Stop()

	for i := 0; i < submitters; i++ {
		err := <-errCh
		require.True(t, errors.Is(err, service.ErrStopped), "%v", err)
	}
	require.Zero(t, seq.Pending())
}
