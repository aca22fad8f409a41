package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/pkg/errors"
)

// BallotBackup is the secret half of a commitment. Sealing it to the election
// authority lets a voter recover a lost salt before the reveal window closes.
type BallotBackup struct {
	CandidateID uint64         `json:"candidate_id"`
	Salt        common.Hash    `json:"salt"`
	Voter       common.Address `json:"voter"`
}

// SealBallot encrypts the backup to recipient and returns the ciphertext with
// the hash that gets anchored on the ledger.
func SealBallot(backup BallotBackup, recipient *ecdsa.PublicKey) ([]byte, common.Hash, error) {
	plaintext, err := json.Marshal(backup)
	if err != nil {
		return nil, common.Hash{}, errors.WithStack(err)
	}
	ciphertext, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(recipient), plaintext, nil, nil)
	if err != nil {
		return nil, common.Hash{}, errors.Wrap(err, "failed to seal ballot")
	}
	return ciphertext, Keccak256(ciphertext), nil
}

// OpenBallot decrypts a sealed ballot. The caller should compare
// Keccak256(ciphertext) with the anchored hash before trusting the content.
func OpenBallot(ciphertext []byte, key *ecdsa.PrivateKey) (*BallotBackup, error) {
	plaintext, err := ecies.ImportECDSA(key).Decrypt(ciphertext, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ballot")
	}
	var backup BallotBackup
	if err := json.Unmarshal(plaintext, &backup); err != nil {
		return nil, errors.Wrap(err, "malformed ballot")
	}
	return &backup, nil
}
