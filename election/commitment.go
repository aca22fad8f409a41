package election

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"commit-reveal-voting/encryption"
)

// DomainTag is "VOTE" as bytes4. It keeps authorization signatures from
// being replayed in another protocol.
var DomainTag = [4]byte{0x56, 0x4f, 0x54, 0x45}

func uint256(v uint64) []byte {
	return math.U256Bytes(new(big.Int).SetUint64(v))
}

// AuthorizationDigest is keccak256(bytes4 tag ‖ uint256 chainScope ‖ address),
// tightly packed.
func AuthorizationDigest(chainScope uint64, voter common.Address) common.Hash {
	return encryption.Keccak256(DomainTag[:], uint256(chainScope), voter.Bytes())
}

// Commitment is keccak256(uint256 candidateID ‖ bytes32 salt ‖ address),
// tightly packed. Binding the voter address stops one voter from replaying
// another's commitment.
func Commitment(candidateID uint64, salt common.Hash, voter common.Address) common.Hash {
	return encryption.Keccak256(uint256(candidateID), salt.Bytes(), voter.Bytes())
}
