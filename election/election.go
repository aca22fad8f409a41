// Package election implements the commit-reveal voting state machine.
//
// An Election owns all voting state. Every operation takes the current log
// time, checks it against the phase window, validates its preconditions and
// only then mutates state, so a rejected call never has a visible effect. An
// accepted call returns the single event describing the transition.
//
// Election does no locking. Callers serialize access, see the service package.
package election

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"commit-reveal-voting/models"
)

// SignatureVerifier reports whether signature over digest was produced by
// authority.
type SignatureVerifier interface {
	Verify(authority common.Address, digest common.Hash, signature []byte) bool
}

type Election struct {
	setup    models.Setup
	verifier SignatureVerifier

	candidates []string
	voters     map[common.Address]*models.Voter
	counts     []uint64
	tallied    bool
}

// New creates an election in the pending phase. It fails with
// ErrInvalidWindow unless the boundaries are strictly increasing.
func New(setup models.Setup, verifier SignatureVerifier) (*Election, error) {
	if verifier == nil {
		return nil, errors.New("election requires a signature verifier")
	}
	if err := ValidateWindow(setup.Window); err != nil {
		return nil, err
	}

	e := &Election{
		setup:    setup,
		verifier: verifier,
		voters:   make(map[common.Address]*models.Voter),
	}
	for _, name := range setup.Candidates {
		if err := validateName(name); err != nil {
			return nil, err
		}
		e.candidates = append(e.candidates, name)
		e.counts = append(e.counts, 0)
	}
	e.setup.Candidates = append([]string(nil), setup.Candidates...)
	return e, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidCandidate
	}
	return nil
}

func (e *Election) Setup() models.Setup {
	s := e.setup
	s.Candidates = append([]string(nil), e.setup.Candidates...)
	return s
}

// Phase is CurrentPhase, except that it reports PhaseTallied once the tally ran.
func (e *Election) Phase(now int64) Phase {
	if e.tallied {
		return PhaseTallied
	}
	return CurrentPhase(now, e.setup.Window)
}

func (e *Election) requirePhase(now int64, allowed ...Phase) error {
	current := CurrentPhase(now, e.setup.Window)
	for _, p := range allowed {
		if current == p {
			return nil
		}
	}
	return errors.Wrapf(ErrWrongPhase, "phase is %s at %d", current, now)
}

// AddCandidate appends a candidate and returns its ordinal in the event.
// Only the owner may call it, and only before the commit window opens.
func (e *Election) AddCandidate(caller common.Address, name string, now int64) (models.Event, error) {
	if caller != e.setup.Owner {
		return models.Event{}, errors.Wrapf(ErrUnauthorized, "caller %s", caller.Hex())
	}
	if err := e.requirePhase(now, PhasePending); err != nil {
		return models.Event{}, err
	}
	if err := validateName(name); err != nil {
		return models.Event{}, err
	}

	id := uint64(len(e.candidates))
	e.candidates = append(e.candidates, name)
	e.counts = append(e.counts, 0)
	return models.CandidateAdded(id, name), nil
}

// RegisterVoter admits a.Voter if the authority signed its authorization
// digest. Registration is open while pending and during the commit window,
// so a registered voter always has a chance to commit.
func (e *Election) RegisterVoter(a models.Assertion, now int64) (models.Event, error) {
	if err := e.requirePhase(now, PhasePending, PhaseCommit); err != nil {
		return models.Event{}, err
	}
	if v, ok := e.voters[a.Voter]; ok && v.Registered {
		return models.Event{}, errors.Wrapf(ErrAlreadyRegistered, "voter %s", a.Voter.Hex())
	}
	if a.ChainScope != e.setup.ChainScope {
		return models.Event{}, errors.Wrapf(ErrInvalidSignature, "assertion scope %d, election scope %d", a.ChainScope, e.setup.ChainScope)
	}
	digest := AuthorizationDigest(e.setup.ChainScope, a.Voter)
	if !e.verifier.Verify(e.setup.Authority, digest, a.Signature) {
		return models.Event{}, errors.Wrapf(ErrInvalidSignature, "voter %s", a.Voter.Hex())
	}

	e.voters[a.Voter] = &models.Voter{Address: a.Voter, Registered: true}
	return models.VoterRegistered(a.Voter), nil
}

func (e *Election) registered(addr common.Address) (*models.Voter, error) {
	v, ok := e.voters[addr]
	if !ok || !v.Registered {
		return nil, errors.Wrapf(ErrNotRegistered, "voter %s", addr.Hex())
	}
	return v, nil
}

// CommitVote stores the voter's hidden commitment. One per voter.
func (e *Election) CommitVote(voter common.Address, commitment common.Hash, now int64) (models.Event, error) {
	if err := e.requirePhase(now, PhaseCommit); err != nil {
		return models.Event{}, err
	}
	v, err := e.registered(voter)
	if err != nil {
		return models.Event{}, err
	}
	if v.Commitment != nil || v.Revealed {
		return models.Event{}, errors.Wrapf(ErrAlreadyCommitted, "voter %s", voter.Hex())
	}

	c := commitment
	v.Commitment = &c
	return models.VoteCommitted(voter, commitment), nil
}

// AnchorBallot records the hash of the voter's sealed ballot backup. One per
// voter, during the commit window.
func (e *Election) AnchorBallot(voter common.Address, ballotHash common.Hash, now int64) (models.Event, error) {
	if err := e.requirePhase(now, PhaseCommit); err != nil {
		return models.Event{}, err
	}
	v, err := e.registered(voter)
	if err != nil {
		return models.Event{}, err
	}
	if v.BallotHash != nil {
		return models.Event{}, errors.Wrapf(ErrAlreadyAnchored, "voter %s", voter.Hex())
	}

	h := ballotHash
	v.BallotHash = &h
	return models.EncryptedBallotAnchored(voter, ballotHash), nil
}

// RevealVote opens the voter's commitment and counts the vote. A voter who
// never reveals simply abstains.
func (e *Election) RevealVote(voter common.Address, candidateID uint64, salt common.Hash, now int64) (models.Event, error) {
	if err := e.requirePhase(now, PhaseReveal); err != nil {
		return models.Event{}, err
	}
	v, err := e.registered(voter)
	if err != nil {
		return models.Event{}, err
	}
	if v.Commitment == nil {
		return models.Event{}, errors.Wrapf(ErrNotCommitted, "voter %s", voter.Hex())
	}
	if candidateID >= uint64(len(e.candidates)) {
		return models.Event{}, errors.Wrapf(ErrUnknownCandidate, "candidate %d of %d", candidateID, len(e.candidates))
	}
	if Commitment(candidateID, salt, voter) != *v.Commitment {
		return models.Event{}, errors.Wrapf(ErrCommitmentMismatch, "voter %s", voter.Hex())
	}

	e.counts[candidateID]++
	v.Revealed = true
	v.Commitment = nil
	return models.VoteRevealed(voter, candidateID), nil
}

// TallyVotes finalizes the results once the reveal window has closed.
func (e *Election) TallyVotes(now int64) (models.Event, error) {
	if e.tallied {
		return models.Event{}, ErrAlreadyTallied
	}
	if now < e.setup.Window.RevealEnd {
		return models.Event{}, errors.Wrapf(ErrTooEarly, "reveal closes at %d, now %d", e.setup.Window.RevealEnd, now)
	}

	e.tallied = true
	return models.VotesTallied(e.counts), nil
}

func (e *Election) Candidates() []models.Candidate {
	out := make([]models.Candidate, len(e.candidates))
	for i, name := range e.candidates {
		out[i] = models.Candidate{ID: uint64(i), Name: name}
	}
	return out
}

// Results returns a copy of the counts. They update live during the reveal
// window and are final once tallied.
func (e *Election) Results() models.Results {
	counts := make([]uint64, len(e.counts))
	copy(counts, e.counts)
	return models.Results{Counts: counts, Final: e.tallied}
}

func (e *Election) Voter(addr common.Address) (models.Voter, bool) {
	v, ok := e.voters[addr]
	if !ok {
		return models.Voter{}, false
	}
	out := *v
	if v.Commitment != nil {
		c := *v.Commitment
		out.Commitment = &c
	}
	if v.BallotHash != nil {
		h := *v.BallotHash
		out.BallotHash = &h
	}
	return out, true
}

// Stats summarizes voter participation.
type Stats struct {
	Registered int `json:"registered"`
	Committed  int `json:"committed"`
	Revealed   int `json:"revealed"`
}

func (e *Election) Stats() Stats {
	var s Stats
	for _, v := range e.voters {
		if v.Registered {
			s.Registered++
		}
		if v.Commitment != nil || v.Revealed {
			s.Committed++
		}
		if v.Revealed {
			s.Revealed++
		}
	}
	return s
}
