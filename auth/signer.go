package auth

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"commit-reveal-voting/election"
	"commit-reveal-voting/encryption"
	"commit-reveal-voting/models"
)

// Authority holds the registration authority's key and produces signed
// assertions for individual voters.
type Authority struct {
	key *ecdsa.PrivateKey
}

func NewAuthority(key *ecdsa.PrivateKey) *Authority {
	return &Authority{key: key}
}

func (a *Authority) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

func (a *Authority) PublicKey() *ecdsa.PublicKey {
	return &a.key.PublicKey
}

// SignAssertion signs the authorization digest of voter under chainScope.
func (a *Authority) SignAssertion(chainScope uint64, voter common.Address) (models.Assertion, error) {
	sig, err := encryption.SignMessage(election.AuthorizationDigest(chainScope, voter), a.key)
	if err != nil {
		return models.Assertion{}, err
	}
	return models.Assertion{Voter: voter, ChainScope: chainScope, Signature: sig}, nil
}
