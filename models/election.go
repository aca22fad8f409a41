package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Window holds the three phase boundaries in unix seconds.
type Window struct {
	CommitStart int64 `json:"commit_start"`
	CommitEnd   int64 `json:"commit_end"`
	RevealEnd   int64 `json:"reveal_end"`
}

// Setup is fixed when the election is deployed and stored in the genesis block.
type Setup struct {
	// Owner may add candidates while the election is pending.
	Owner common.Address `json:"owner"`
	// Authority is the only identity whose authorization signatures admit voters.
	Authority  common.Address `json:"authority"`
	ChainScope uint64         `json:"chain_scope"`
	Window     Window         `json:"window"`
	Candidates []string       `json:"candidates,omitempty"`
}

// Assertion is the authority's permission for one address to register.
type Assertion struct {
	Voter      common.Address `json:"voter"`
	ChainScope uint64         `json:"chain_scope"`
	Signature  hexutil.Bytes  `json:"signature"`
}

type Candidate struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Voter is the per-address record. Commitment is cleared once revealed.
type Voter struct {
	Address    common.Address `json:"address"`
	Registered bool           `json:"registered"`
	Commitment *common.Hash   `json:"commitment,omitempty"`
	Revealed   bool           `json:"revealed"`
	BallotHash *common.Hash   `json:"ballot_hash,omitempty"`
}

// Results are indexed like the candidate list. Final is set by the tally.
type Results struct {
	Counts []uint64 `json:"counts"`
	Final  bool     `json:"final"`
}

// Total returns the number of counted votes.
func (r Results) Total() uint64 {
	var total uint64
	for _, c := range r.Counts {
		total += c
	}
	return total
}
