package encryption

import (
	"crypto/ecdsa"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// KeyFile is the on-disk form of a secp256k1 key pair.
type KeyFile struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// NewKeyFile renders key for storage.
func NewKeyFile(key *ecdsa.PrivateKey) KeyFile {
	return KeyFile{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	keyStr = strings.TrimPrefix(strings.TrimSpace(keyStr), "0x")
	key, err := crypto.HexToECDSA(keyStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return key, nil
}

// LoadKey reads a key previously written by SaveKey.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, errors.Wrap(err, "failed to parse key file")
	}
	return ParsePrivateKey(kf.PrivateKey)
}

// SaveKey writes key to path with owner-only permissions.
func SaveKey(path string, key *ecdsa.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create key directory")
	}
	data, err := json.MarshalIndent(NewKeyFile(key), "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to save key file")
	}
	return nil
}

// LoadOrGenerateKey loads the key at path, creating and saving a fresh one
// when the file does not exist yet.
func LoadOrGenerateKey(path string) (*ecdsa.PrivateKey, bool, error) {
	key, err := LoadKey(path)
	if err == nil {
		return key, false, nil
	}
	if !os.IsNotExist(errors.Cause(err)) {
		return nil, false, err
	}

	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to generate key")
	}
	if err := SaveKey(path, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
