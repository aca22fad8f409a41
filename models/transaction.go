package models

import (
	"crypto/ecdsa"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"commit-reveal-voting/encryption"
)

type TxKind string

const (
	TxAddCandidate  TxKind = "add_candidate"
	TxRegisterVoter TxKind = "register_voter"
	TxCommitVote    TxKind = "commit_vote"
	TxRevealVote    TxKind = "reveal_vote"
	TxAnchorBallot  TxKind = "anchor_ballot"
	TxTallyVotes    TxKind = "tally_votes"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is a client call signed by its sender. Only the parameters of
// Kind are set.
type Transaction struct {
	Kind  TxKind         `json:"kind"`
	From  common.Address `json:"from"`
	Scope uint64         `json:"scope"`

	Name          string        `json:"name,omitempty"`
	Authorization hexutil.Bytes `json:"authorization,omitempty"`
	Commitment    *common.Hash  `json:"commitment,omitempty"`
	CandidateID   *uint64       `json:"candidate_id,omitempty"`
	Salt          *common.Hash  `json:"salt,omitempty"`
	BallotHash    *common.Hash  `json:"ballot_hash,omitempty"`

	Sig hexutil.Bytes `json:"sig,omitempty"`
}

// SigningHash is the hash the sender signs: every field except Sig.
func (tx *Transaction) SigningHash() (common.Hash, error) {
	unsigned := *tx
	unsigned.Sig = nil
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return common.Hash{}, errors.WithStack(err)
	}
	return encryption.Keccak256(data), nil
}

// Hash identifies the signed transaction.
func (tx *Transaction) Hash() common.Hash {
	data, _ := json.Marshal(tx)
	return encryption.Keccak256(data)
}

// Sign sets From to the key's address and signs the transaction.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	tx.From = crypto.PubkeyToAddress(key.PublicKey)
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := encryption.SignMessage(hash, key)
	if err != nil {
		return err
	}
	tx.Sig = sig
	return nil
}

// Sender recovers the signer and checks it against From.
func (tx *Transaction) Sender() (common.Address, error) {
	hash, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	signer, err := encryption.RecoverMessageSigner(hash, tx.Sig)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrInvalidTransaction, err.Error())
	}
	if signer != tx.From {
		return common.Address{}, errors.Wrapf(ErrInvalidTransaction, "signed by %s, claims %s", signer.Hex(), tx.From.Hex())
	}
	return signer, nil
}

// Entry is the payload of a ledger block: the genesis setup, or an accepted
// transaction together with the events it emitted.
type Entry struct {
	Setup  *Setup       `json:"setup,omitempty"`
	Tx     *Transaction `json:"tx,omitempty"`
	Events []Event      `json:"events,omitempty"`
}

// Receipt is returned to the submitter of an accepted transaction.
type Receipt struct {
	TxHash    common.Hash `json:"tx_hash"`
	Block     uint64      `json:"block"`
	Timestamp int64       `json:"timestamp"`
	Events    []Event     `json:"events"`
}
