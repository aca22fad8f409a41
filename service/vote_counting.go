package service

import (
	"github.com/pkg/errors"

	"commit-reveal-voting/election"
	"commit-reveal-voting/ledger"
	"commit-reveal-voting/models"
)

// TallyVerification is the outcome of auditing a ledger. Recount is derived
// from VoteRevealed events alone, Replayed from re-executing every recorded
// transaction. Tallied holds the VotesTallied event, if any.
type TallyVerification struct {
	Blocks      int      `json:"blocks"`
	ChainValid  bool     `json:"chain_valid"`
	ChainError  string   `json:"chain_error,omitempty"`
	ReplayError string   `json:"replay_error,omitempty"`
	Reveals     int      `json:"reveals"`
	Recount     []uint64 `json:"recount"`
	Replayed    []uint64 `json:"replayed"`
	Tallied     []uint64 `json:"tallied,omitempty"`
	Live        []uint64 `json:"live,omitempty"`
	Match       bool     `json:"match"`
}

// Recount counts VoteRevealed events per candidate. The candidate list is the
// genesis list extended by CandidateAdded events.
func Recount(setup models.Setup, txs []ledger.Transaction) ([]uint64, int, error) {
	counts := make([]uint64, len(setup.Candidates))
	reveals := 0
	for _, tx := range txs {
		for _, ev := range tx.Events {
			switch ev.Kind {
			case models.EventCandidateAdded:
				counts = append(counts, 0)
			case models.EventVoteRevealed:
				if ev.CandidateID == nil || *ev.CandidateID >= uint64(len(counts)) {
					return nil, 0, errors.Errorf("block %d reveals an unknown candidate", tx.Block)
				}
				counts[*ev.CandidateID]++
				reveals++
			}
		}
	}
	return counts, reveals, nil
}

// Audit verifies blocks offline: chain integrity, a full replay through a
// fresh election, and a recount of revealed votes.
func Audit(blocks []*models.Block, verifier election.SignatureVerifier) (*TallyVerification, error) {
	v := &TallyVerification{Blocks: len(blocks), ChainValid: true}
	if err := models.VerifyChain(blocks); err != nil {
		v.ChainValid = false
		v.ChainError = err.Error()
		return v, nil
	}
	if len(blocks) == 0 {
		return nil, ledger.ErrNoGenesis
	}

	entry, err := ledger.Decode(blocks[0])
	if err != nil {
		return nil, err
	}
	if entry.Setup == nil {
		return nil, ledger.ErrMissingGenesis
	}
	txs, err := ledger.Transactions(blocks)
	if err != nil {
		return nil, err
	}

	v.Recount, v.Reveals, err = Recount(*entry.Setup, txs)
	if err != nil {
		v.ReplayError = err.Error()
		return v, nil
	}
	for _, tx := range txs {
		for _, ev := range tx.Events {
			if ev.Kind == models.EventVotesTallied {
				v.Tallied = ev.Results
			}
		}
	}

	e, err := election.New(*entry.Setup, verifier)
	if err != nil {
		return nil, errors.Wrap(err, "genesis setup rejected")
	}
	if err := replay(e, txs); err != nil {
		v.ReplayError = err.Error()
		return v, nil
	}
	v.Replayed = e.Results().Counts

	v.Match = equalCounts(v.Recount, v.Replayed) &&
		(v.Tallied == nil || equalCounts(v.Tallied, v.Recount))
	return v, nil
}

func equalCounts(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
