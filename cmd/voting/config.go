package main

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"commit-reveal-voting/election"
	"commit-reveal-voting/encryption"
	"commit-reveal-voting/models"
	"commit-reveal-voting/storage"
)

// authorizerKeyEnv overrides the authority key file.
const authorizerKeyEnv = "AUTHORIZER_PRIVATE_KEY"

var errInvalidConfig = errors.New("invalid configuration")

// Config holds everything serve needs. Setup fields only matter for a new
// ledger and are not required when one already exists in DataDir; an existing
// ledger keeps the setup recorded in its genesis block.
type Config struct {
	DataDir        string
	APIEndpoint    string
	RequestTimeout time.Duration
	QueueSize      int
	Difficulty     uint8

	ChainScope  uint64
	Owner       string
	Authority   string
	CommitStart int64
	CommitEnd   int64
	RevealEnd   int64
	Candidates  []string

	AuthorityKeyFile string
	RegistryFile     string

	authorityKey *ecdsa.PrivateKey
}

// Validate checks the configuration and resolves the authority key. When a
// key is available the authority address defaults to the key's address.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.Wrap(errInvalidConfig, "data dir is required")
	}
	if c.APIEndpoint == "" {
		return errors.Wrap(errInvalidConfig, "api endpoint is required")
	}
	if c.QueueSize < 1 {
		return errors.Wrapf(errInvalidConfig, "queue size must be positive, got %d", c.QueueSize)
	}
	if err := models.CheckDifficulty(c.Difficulty); err != nil {
		return errors.Wrap(errInvalidConfig, err.Error())
	}

	// an existing ledger keeps its genesis setup, so the setup flags are optional
	resume := c.ledgerExists()
	if !resume {
		if !common.IsHexAddress(c.Owner) {
			return errors.Wrapf(errInvalidConfig, "owner %q is not an address", c.Owner)
		}
		if err := election.ValidateWindow(c.Window()); err != nil {
			return errors.Wrap(errInvalidConfig, err.Error())
		}
	}

	key, err := c.loadAuthorityKey()
	if err != nil {
		return err
	}
	c.authorityKey = key

	switch {
	case key != nil && c.Authority == "":
		c.Authority = crypto.PubkeyToAddress(key.PublicKey).Hex()
	case resume && c.Authority == "":
	case !common.IsHexAddress(c.Authority):
		return errors.Wrapf(errInvalidConfig, "authority %q is not an address", c.Authority)
	case key != nil && crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(c.Authority):
		return errors.Wrap(errInvalidConfig, "authority key does not match authority address")
	}
	return nil
}

func (c *Config) loadAuthorityKey() (*ecdsa.PrivateKey, error) {
	if hex := os.Getenv(authorizerKeyEnv); hex != "" {
		key, err := encryption.ParsePrivateKey(hex)
		if err != nil {
			return nil, errors.Wrap(errInvalidConfig, authorizerKeyEnv+": "+err.Error())
		}
		return key, nil
	}
	if c.AuthorityKeyFile == "" {
		return nil, nil
	}
	key, err := encryption.LoadKey(c.AuthorityKeyFile)
	if err != nil {
		return nil, errors.Wrap(errInvalidConfig, err.Error())
	}
	return key, nil
}

func (c *Config) ledgerExists() bool {
	_, err := os.Stat(storage.ChainPath(c.DataDir))
	return err == nil
}

func (c *Config) Window() models.Window {
	return models.Window{CommitStart: c.CommitStart, CommitEnd: c.CommitEnd, RevealEnd: c.RevealEnd}
}

func (c *Config) Setup() models.Setup {
	return models.Setup{
		Owner:      common.HexToAddress(c.Owner),
		Authority:  common.HexToAddress(c.Authority),
		ChainScope: c.ChainScope,
		Window:     c.Window(),
		Candidates: c.Candidates,
	}
}

func (c *Config) registryPath() string {
	if c.RegistryFile != "" {
		return c.RegistryFile
	}
	return filepath.Join(c.DataDir, "authorizations.json")
}
