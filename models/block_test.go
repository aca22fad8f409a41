package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"commit-reveal-voting/models"
)

func buildChain(n int, difficulty uint8) []*models.Block {
	blocks := make([]*models.Block, 0, n)
	prev := make([]byte, 32)
	for i := 0; i < n; i++ {
		b := models.NewBlock(uint64(i), int64(1000+i), []byte{byte(i)}, prev, difficulty)
		blocks = append(blocks, b)
		prev = b.Hash
	}
	return blocks
}

func TestMinedBlockMeetsDifficulty(t *testing.T) {
	b := models.NewBlock(0, 1000, []byte("genesis"), make([]byte, 32), 1)
	require.True(t, b.Validate())
	require.Equal(t, byte(0), b.Hash[0])
}

func TestVerifyChain(t *testing.T) {
	require.NoError(t, models.VerifyChain(nil))
	require.NoError(t, models.VerifyChain(buildChain(4, 0)))
	require.True(t, models.ValidateChain(buildChain(3, 1)))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		blocks := buildChain(3, 0)
		blocks[1].Data = []byte("forged")
		require.ErrorIs(t, models.VerifyChain(blocks), models.ErrInvalidChain)
	})
	t.Run("link", func(t *testing.T) {
		blocks := buildChain(3, 0)
		blocks[2] = models.NewBlock(2, 1002, []byte{2}, make([]byte, 32), 0)
		require.ErrorIs(t, models.VerifyChain(blocks), models.ErrInvalidChain)
	})
	t.Run("timestamp", func(t *testing.T) {
		blocks := buildChain(2, 0)
		blocks[1] = models.NewBlock(1, 999, []byte{1}, blocks[0].Hash, 0)
		require.ErrorIs(t, models.VerifyChain(blocks), models.ErrInvalidChain)
	})
	t.Run("equal timestamps are fine", func(t *testing.T) {
		blocks := buildChain(1, 0)
		blocks = append(blocks, models.NewBlock(1, blocks[0].Timestamp, nil, blocks[0].Hash, 0))
		require.NoError(t, models.VerifyChain(blocks))
	})
}

func TestCheckDifficulty(t *testing.T) {
	require.NoError(t, models.CheckDifficulty(0))
	require.NoError(t, models.CheckDifficulty(models.MaxDifficulty))
	require.ErrorIs(t, models.CheckDifficulty(models.MaxDifficulty+1), models.ErrInvalidDifficulty)
	require.ErrorIs(t, models.CheckDifficulty(33), models.ErrInvalidDifficulty)
}
