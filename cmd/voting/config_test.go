package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"commit-reveal-voting/election"
	"commit-reveal-voting/encryption"
	"commit-reveal-voting/models"
	"commit-reveal-voting/storage"
)

func validConfig() Config {
	return Config{
		DataDir:     "data",
		APIEndpoint: "localhost:0",
		QueueSize:   8,
		ChainScope:  1,
		Owner:       "0x00000000000000000000000000000000000000aa",
		Authority:   "0x00000000000000000000000000000000000000bb",
		CommitStart: 100,
		CommitEnd:   200,
		RevealEnd:   300,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Setenv(authorizerKeyEnv, "")

	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	require.Nil(t, cfg.authorityKey)

	for name, mutate := range map[string]func(c *Config){
		"no data dir":   func(c *Config) { c.DataDir = " " },
		"bad owner":     func(c *Config) { c.Owner = "alice" },
		"bad authority": func(c *Config) { c.Authority = "" },
		"bad window":    func(c *Config) { c.CommitEnd = c.RevealEnd },
		"no queue":      func(c *Config) { c.QueueSize = 0 },
		"missing key":   func(c *Config) { c.AuthorityKeyFile = filepath.Join(t.TempDir(), "nope.json") },
		"difficulty":    func(c *Config) { c.Difficulty = models.MaxDifficulty + 1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.True(t, errors.Is(err, errInvalidConfig), "%v", err)
		})
	}
}

func TestConfigExistingLedgerSkipsSetupFlags(t *testing.T) {
	t.Setenv(authorizerKeyEnv, "")
	dir := t.TempDir()

	cfg := Config{DataDir: dir, APIEndpoint: "localhost:0", QueueSize: 1}
	require.True(t, errors.Is(cfg.Validate(), errInvalidConfig))

	require.NoError(t, os.WriteFile(storage.ChainPath(dir), []byte(`{"blocks":[]}`), 0644))
	require.NoError(t, cfg.Validate())

	cfg.Difficulty = 40
	require.True(t, errors.Is(cfg.Validate(), errInvalidConfig))
}

func TestConfigAuthorityKey(t *testing.T) {
	t.Setenv(authorizerKeyEnv, "")
	path := filepath.Join(t.TempDir(), "authority.json")
	key, created, err := encryption.LoadOrGenerateKey(path)
	require.NoError(t, err)
	require.True(t, created)

	cfg := validConfig()
	cfg.Authority = ""
	cfg.AuthorityKeyFile = path
	require.NoError(t, cfg.Validate())
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), cfg.Authority)

	cfg = validConfig()
	cfg.AuthorityKeyFile = path
	require.True(t, errors.Is(cfg.Validate(), errInvalidConfig))

	// the environment wins over the key file
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv(authorizerKeyEnv, hexutil.Encode(crypto.FromECDSA(other)))
	cfg = validConfig()
	cfg.Authority = ""
	cfg.AuthorityKeyFile = path
	require.NoError(t, cfg.Validate())
	require.Equal(t, crypto.PubkeyToAddress(other.PublicKey).Hex(), cfg.Authority)
}

func TestCommitmentCommand(t *testing.T) {
	voter := "0x00000000000000000000000000000000000000cc"
	salt := "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{7}, 32))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"commitment", "--voter", voter, "--candidate", "2", "--salt", salt})
	require.NoError(t, rootCmd.Execute())

	var res struct {
		Commitment common.Hash `json:"commitment"`
		Salt       common.Hash `json:"salt"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, common.HexToHash(salt), res.Salt)
	require.Equal(t, election.Commitment(2, common.HexToHash(salt), common.HexToAddress(voter)), res.Commitment)
}
