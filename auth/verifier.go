package auth

import (
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"commit-reveal-voting/encryption"
)

const inMemorySignatures = 4096

// Verifier checks authorization signatures by recovering the signer. Recovered
// addresses are cached by digest and signature, so a client retrying the same
// registration does not pay for a second recovery.
type Verifier struct {
	signatures *lru.ARCCache
}

func NewVerifier() *Verifier {
	signatures, err := lru.NewARC(inMemorySignatures)
	if err != nil {
		panic(err)
	}
	return &Verifier{signatures: signatures}
}

// Verify implements election.SignatureVerifier.
func (v *Verifier) Verify(authority common.Address, digest common.Hash, signature []byte) bool {
	signer, err := v.ecrecover(digest, signature)
	if err != nil {
		return false
	}
	return signer == authority
}

func (v *Verifier) ecrecover(digest common.Hash, signature []byte) (common.Address, error) {
	key := encryption.Keccak256(digest[:], signature)
	if address, known := v.signatures.Get(key); known {
		return address.(common.Address), nil
	}
	signer, err := encryption.RecoverMessageSigner(digest, signature)
	if err != nil {
		return common.Address{}, err
	}
	v.signatures.Add(key, signer)
	return signer, nil
}
