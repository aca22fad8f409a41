package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"commit-reveal-voting/models"
)

var (
	ErrAlreadyAuthorized = errors.New("email already authorized")
	ErrInvalidEmail      = errors.New("invalid email")
)

// Authorization records which address an email was authorized for.
type Authorization struct {
	Email    string         `json:"email"`
	Voter    common.Address `json:"voter"`
	IssuedAt time.Time      `json:"issued_at"`
}

type IssuerConfig struct {
	RegistryFilePath string `json:"registry_file_path"`
	AutoSave         bool   `json:"auto_save"`
	ChainScope       uint64 `json:"chain_scope"`
}

// Issuer hands out authorization signatures, at most one per email.
type Issuer struct {
	authority *Authority
	config    IssuerConfig

	mu     sync.RWMutex
	issued map[string]*Authorization
	now    func() time.Time
}

// NewIssuer creates an issuer and loads previously issued authorizations
// from the registry file, if it exists.
func NewIssuer(authority *Authority, config IssuerConfig) (*Issuer, error) {
	i := &Issuer{
		authority: authority,
		config:    config,
		issued:    make(map[string]*Authorization),
		now:       time.Now,
	}
	if config.RegistryFilePath == "" {
		return i, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.RegistryFilePath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create registry directory")
	}
	if err := i.load(); err != nil {
		return nil, err
	}
	return i, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", errors.Wrapf(ErrInvalidEmail, "%q", email)
	}
	return email, nil
}

// Authorize signs an assertion for voter on behalf of email. A second request
// for the same email fails, even for the same address.
func (i *Issuer) Authorize(email string, voter common.Address) (models.Assertion, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.Assertion{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if prev, ok := i.issued[email]; ok {
		return models.Assertion{}, errors.Wrapf(ErrAlreadyAuthorized, "%s was authorized for %s", email, prev.Voter.Hex())
	}

	assertion, err := i.authority.SignAssertion(i.config.ChainScope, voter)
	if err != nil {
		return models.Assertion{}, err
	}
	i.issued[email] = &Authorization{Email: email, Voter: voter, IssuedAt: i.now().UTC()}

	if i.config.AutoSave && i.config.RegistryFilePath != "" {
		if err := i.save(); err != nil {
			delete(i.issued, email)
			return models.Assertion{}, err
		}
	}
	return assertion, nil
}

// IsAuthorized reports whether email has already been used.
func (i *Issuer) IsAuthorized(email string) bool {
	email, err := normalizeEmail(email)
	if err != nil {
		return false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.issued[email]
	return ok
}

func (i *Issuer) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.issued)
}

type registryFile struct {
	Authorizations []*Authorization `json:"authorizations"`
}

func (i *Issuer) load() error {
	data, err := os.ReadFile(i.config.RegistryFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read registry file")
	}

	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return errors.Wrap(err, "failed to unmarshal registry")
	}
	for _, a := range reg.Authorizations {
		email, err := normalizeEmail(a.Email)
		if err != nil {
			return errors.Wrap(err, "invalid registry entry")
		}
		a.Email = email
		i.issued[email] = a
	}
	return nil
}

// save writes the registry file. Callers hold i.mu.
func (i *Issuer) save() error {
	reg := registryFile{Authorizations: make([]*Authorization, 0, len(i.issued))}
	for _, a := range i.issued {
		reg.Authorizations = append(reg.Authorizations, a)
	}
	sort.Slice(reg.Authorizations, func(x, y int) bool {
		return reg.Authorizations[x].Email < reg.Authorizations[y].Email
	})

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal registry")
	}

	tempPath := i.config.RegistryFilePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write registry file")
	}
	if err := os.Rename(tempPath, i.config.RegistryFilePath); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to save registry file")
	}
	return nil
}
