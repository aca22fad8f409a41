package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Block is one entry of the append-only execution log. Data holds a JSON
// encoded Entry.
type Block struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"`
	Data       []byte `json:"data"`
	PrevHash   []byte `json:"prev_hash"`
	Hash       []byte `json:"hash"`
	Nonce      uint64 `json:"nonce"`
	Difficulty uint8  `json:"difficulty"` // Number of leading zero bytes required
}

// MaxDifficulty is the highest supported difficulty. Each step multiplies the
// expected mining work by 256.
const MaxDifficulty uint8 = 3

var (
	ErrInvalidChain      = errors.New("invalid chain")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
)

// CheckDifficulty rejects difficulties above MaxDifficulty.
func CheckDifficulty(difficulty uint8) error {
	if difficulty > MaxDifficulty {
		return errors.Wrapf(ErrInvalidDifficulty, "%d exceeds maximum %d", difficulty, MaxDifficulty)
	}
	return nil
}

// NewBlock mines a block. Difficulty is capped at MaxDifficulty.
func NewBlock(index uint64, timestamp int64, data []byte, prevHash []byte, difficulty uint8) *Block {
	if difficulty > MaxDifficulty {
		difficulty = MaxDifficulty
	}
	block := &Block{
		Index:      index,
		Timestamp:  timestamp,
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()
		if bytes.HasPrefix(b.Hash, target) {
			return
		}
		nonce++
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.Write(b.Data)
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)
	buffer.WriteByte(b.Difficulty)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// VerifyChain checks hashes, links, indices and timestamps of the whole chain
// and reports the first broken block.
func VerifyChain(blocks []*Block) error {
	for i, block := range blocks {
		if !block.Validate() {
			return errors.Wrapf(ErrInvalidChain, "block %d has invalid hash", i)
		}
		if block.Index != uint64(i) {
			return errors.Wrapf(ErrInvalidChain, "block %d has index %d", i, block.Index)
		}
		if i == 0 {
			continue
		}

		previous := blocks[i-1]
		if !bytes.Equal(block.PrevHash, previous.Hash) {
			return errors.Wrapf(ErrInvalidChain, "block %d has invalid previous hash link", i)
		}
		// log time may stall but never runs backwards
		if block.Timestamp < previous.Timestamp {
			return errors.Wrapf(ErrInvalidChain, "block %d has invalid timestamp", i)
		}
	}
	return nil
}

// ValidateChain validates the entire chain
func ValidateChain(blocks []*Block) bool {
	return VerifyChain(blocks) == nil
}
