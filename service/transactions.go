package service

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"commit-reveal-voting/election"
	"commit-reveal-voting/ledger"
	"commit-reveal-voting/models"
)

var ErrReplayDiverged = errors.New("ledger replay diverged from recorded events")

// checkTransaction verifies the signature and scope of tx and returns its
// sender.
func checkTransaction(tx *models.Transaction, chainScope uint64) (common.Address, error) {
	if tx == nil {
		return common.Address{}, errors.Wrap(models.ErrInvalidTransaction, "empty transaction")
	}
	sender, err := tx.Sender()
	if err != nil {
		return common.Address{}, err
	}
	if tx.Scope != chainScope {
		return common.Address{}, errors.Wrapf(models.ErrInvalidTransaction, "scope %d, election scope %d", tx.Scope, chainScope)
	}
	return sender, nil
}

func missing(kind models.TxKind, field string) error {
	return errors.Wrapf(models.ErrInvalidTransaction, "%s requires %s", kind, field)
}

// apply executes tx against e at log time now. The sender must already be
// verified.
func apply(e *election.Election, tx *models.Transaction, now int64) ([]models.Event, error) {
	var (
		ev  models.Event
		err error
	)
	switch tx.Kind {
	case models.TxAddCandidate:
		ev, err = e.AddCandidate(tx.From, tx.Name, now)
	case models.TxRegisterVoter:
		if len(tx.Authorization) == 0 {
			return nil, missing(tx.Kind, "authorization")
		}
		ev, err = e.RegisterVoter(models.Assertion{
			Voter:      tx.From,
			ChainScope: tx.Scope,
			Signature:  tx.Authorization,
		}, now)
	case models.TxCommitVote:
		if tx.Commitment == nil {
			return nil, missing(tx.Kind, "commitment")
		}
		ev, err = e.CommitVote(tx.From, *tx.Commitment, now)
	case models.TxAnchorBallot:
		if tx.BallotHash == nil {
			return nil, missing(tx.Kind, "ballot_hash")
		}
		ev, err = e.AnchorBallot(tx.From, *tx.BallotHash, now)
	case models.TxRevealVote:
		if tx.CandidateID == nil || tx.Salt == nil {
			return nil, missing(tx.Kind, "candidate_id and salt")
		}
		ev, err = e.RevealVote(tx.From, *tx.CandidateID, *tx.Salt, now)
	case models.TxTallyVotes:
		ev, err = e.TallyVotes(now)
	default:
		return nil, errors.Wrapf(models.ErrInvalidTransaction, "unknown kind %q", tx.Kind)
	}
	if err != nil {
		return nil, err
	}
	return []models.Event{ev}, nil
}

// replay re-executes recorded transactions against e and checks that each
// one is accepted with exactly the recorded events.
func replay(e *election.Election, txs []ledger.Transaction) error {
	chainScope := e.Setup().ChainScope
	for _, rec := range txs {
		if _, err := checkTransaction(rec.Tx, chainScope); err != nil {
			return errors.Wrapf(ErrReplayDiverged, "block %d: %v", rec.Block, err)
		}
		events, err := apply(e, rec.Tx, rec.Timestamp)
		if err != nil {
			return errors.Wrapf(ErrReplayDiverged, "block %d: %v", rec.Block, err)
		}
		for i := range events {
			events[i].Block = rec.Block
			events[i].Timestamp = rec.Timestamp
		}
		if !sameEvents(events, rec.Events) {
			return errors.Wrapf(ErrReplayDiverged, "block %d: events differ", rec.Block)
		}
	}
	return nil
}

func sameEvents(a, b []models.Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, err := json.Marshal(a[i])
		if err != nil {
			return false
		}
		y, err := json.Marshal(b[i])
		if err != nil {
			return false
		}
		if !bytes.Equal(x, y) {
			return false
		}
	}
	return true
}
