package encryption_test

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"commit-reveal-voting/encryption"
)

func TestKeccak256MatchesGoEthereum(t *testing.T) {
	a, b := []byte("VOTE"), []byte{0x01, 0x02}
	require.Equal(t, crypto.Keccak256Hash(a, b), encryption.Keccak256(a, b))
	// keccak256("") is a well known constant
	require.Equal(t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(encryption.Keccak256().Bytes()))
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hash := encryption.Keccak256([]byte("hello"))

	sig, err := encryption.SignMessage(hash, key)
	require.NoError(t, err)
	require.Len(t, sig, encryption.SignatureLength)
	require.Contains(t, []byte{27, 28}, sig[64])

	signer, err := encryption.RecoverMessageSigner(hash, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	// raw 0/1 recovery ids are accepted too
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	signer, err = encryption.RecoverMessageSigner(hash, raw)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	hash := encryption.Keccak256([]byte("hello"))

	_, err := encryption.RecoverMessageSigner(hash, []byte{1, 2, 3})
	require.ErrorIs(t, err, encryption.ErrInvalidSignature)

	bad := make([]byte, encryption.SignatureLength)
	bad[64] = 9
	_, err = encryption.RecoverMessageSigner(hash, bad)
	require.ErrorIs(t, err, encryption.ErrInvalidSignature)
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "authority.json")

	key, created, err := encryption.LoadOrGenerateKey(path)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := encryption.LoadOrGenerateKey(path)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, crypto.FromECDSA(key), crypto.FromECDSA(again))
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	kf := encryption.NewKeyFile(key)

	parsed, err := encryption.ParsePrivateKey(kf.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, kf.Address, crypto.PubkeyToAddress(parsed.PublicKey).Hex())

	_, err = encryption.ParsePrivateKey("0xnothex")
	require.Error(t, err)
}

func TestSealAndOpenBallot(t *testing.T) {
	authority, err := crypto.GenerateKey()
	require.NoError(t, err)
	salt, err := encryption.NewSalt()
	require.NoError(t, err)

	backup := encryption.BallotBackup{
		CandidateID: 1,
		Salt:        salt,
		Voter:       crypto.PubkeyToAddress(authority.PublicKey),
	}
	ciphertext, anchor, err := encryption.SealBallot(backup, &authority.PublicKey)
	require.NoError(t, err)
	require.Equal(t, encryption.Keccak256(ciphertext), anchor)

	opened, err := encryption.OpenBallot(ciphertext, authority)
	require.NoError(t, err)
	require.Equal(t, backup, *opened)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = encryption.OpenBallot(ciphertext, other)
	require.Error(t, err)
}
