package models

import (
	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventCandidateAdded          EventKind = "CandidateAdded"
	EventVoterRegistered         EventKind = "VoterRegistered"
	EventVoteCommitted           EventKind = "VoteCommitted"
	EventVoteRevealed            EventKind = "VoteRevealed"
	EventEncryptedBallotAnchored EventKind = "EncryptedBallotAnchored"
	EventVotesTallied            EventKind = "VotesTallied"
)

// Event is emitted once per accepted state transition. Only the fields
// relevant to Kind are set. Block and Timestamp are filled in by the ledger.
type Event struct {
	Kind        EventKind       `json:"kind"`
	Voter       *common.Address `json:"voter,omitempty"`
	Commitment  *common.Hash    `json:"commitment,omitempty"`
	CandidateID *uint64         `json:"candidate_id,omitempty"`
	Name        string          `json:"name,omitempty"`
	BallotHash  *common.Hash    `json:"ballot_hash,omitempty"`
	Results     []uint64        `json:"results,omitempty"`

	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
}

func CandidateAdded(id uint64, name string) Event {
	return Event{Kind: EventCandidateAdded, CandidateID: &id, Name: name}
}

func VoterRegistered(voter common.Address) Event {
	return Event{Kind: EventVoterRegistered, Voter: &voter}
}

func VoteCommitted(voter common.Address, commitment common.Hash) Event {
	return Event{Kind: EventVoteCommitted, Voter: &voter, Commitment: &commitment}
}

func VoteRevealed(voter common.Address, candidateID uint64) Event {
	return Event{Kind: EventVoteRevealed, Voter: &voter, CandidateID: &candidateID}
}

func EncryptedBallotAnchored(voter common.Address, ballotHash common.Hash) Event {
	return Event{Kind: EventEncryptedBallotAnchored, Voter: &voter, BallotHash: &ballotHash}
}

func VotesTallied(results []uint64) Event {
	counts := make([]uint64, len(results))
	copy(counts, results)
	return Event{Kind: EventVotesTallied, Results: counts}
}
