package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"commit-reveal-voting/election"
	"commit-reveal-voting/encryption"
	"commit-reveal-voting/models"
)

var ballot struct {
	voter     string
	candidate uint64
	salt      string
	recipient string
	keyFile   string
	sealed    string
}

func init() {
	for _, cmd := range []*cobra.Command{commitmentCmd, sealCmd} {
		cmd.Flags().StringVar(&ballot.voter, "voter", "", "voter address")
		cmd.Flags().Uint64Var(&ballot.candidate, "candidate", 0, "candidate id")
		cmd.Flags().StringVar(&ballot.salt, "salt", "", "32-byte hex salt (random if empty)")
	}
	sealCmd.Flags().StringVar(&ballot.recipient, "authority-pubkey", "", "uncompressed authority public key, hex")
	openCmd.Flags().StringVar(&ballot.keyFile, "key", "", "authority key file")
	openCmd.Flags().StringVar(&ballot.sealed, "ciphertext", "", "sealed ballot, hex")

	rootCmd.AddCommand(commitmentCmd, sealCmd, openCmd)
}

func ballotInputs() (common.Address, common.Hash, error) {
	if !common.IsHexAddress(ballot.voter) {
		return common.Address{}, common.Hash{}, errors.Errorf("voter %q is not an address", ballot.voter)
	}
	if ballot.salt == "" {
		salt, err := encryption.NewSalt()
		return common.HexToAddress(ballot.voter), salt, err
	}
	raw, err := hexutil.Decode(ballot.salt)
	if err != nil || len(raw) != common.HashLength {
		return common.Address{}, common.Hash{}, errors.Errorf("salt must be 32 bytes of 0x-prefixed hex")
	}
	return common.HexToAddress(ballot.voter), common.BytesToHash(raw), nil
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment",
	Short: "Compute the commitment for a choice; keep the salt for the reveal",
	RunE: func(cmd *cobra.Command, args []string) error {
		voter, salt, err := ballotInputs()
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"voter":        voter,
			"candidate_id": ballot.candidate,
			"salt":         salt,
			"commitment":   election.Commitment(ballot.candidate, salt, voter),
		})
	},
}

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Encrypt a ballot backup to the authority and print its anchor hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		voter, salt, err := ballotInputs()
		if err != nil {
			return err
		}
		raw, err := hexutil.Decode(ballot.recipient)
		if err != nil {
			return errors.Wrap(err, "authority-pubkey")
		}
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return errors.Wrap(err, "authority-pubkey")
		}

		backup := encryption.BallotBackup{CandidateID: ballot.candidate, Salt: salt, Voter: voter}
		ciphertext, anchor, err := encryption.SealBallot(backup, pub)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"salt":        salt,
			"commitment":  election.Commitment(ballot.candidate, salt, voter),
			"ciphertext":  hexutil.Bytes(ciphertext),
			"ballot_hash": anchor,
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Decrypt a sealed ballot backup with the authority key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := encryption.LoadKey(ballot.keyFile)
		if err != nil {
			return err
		}
		ciphertext, err := hexutil.Decode(ballot.sealed)
		if err != nil {
			return errors.Wrap(err, "ciphertext")
		}
		backup, err := encryption.OpenBallot(ciphertext, key)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"ballot":      backup,
			"ballot_hash": encryption.Keccak256(ciphertext),
		})
	},
}

var txFlags struct {
	keyFile       string
	kind          string
	scope         uint64
	name          string
	authorization string
	commitment    string
	candidate     int64
	salt          string
	ballotHash    string
}

func init() {
	f := txCmd.Flags()
	f.StringVar(&txFlags.keyFile, "key", "", "sender key file")
	f.StringVar(&txFlags.kind, "kind", "", "add_candidate, register_voter, commit_vote, anchor_ballot, reveal_vote or tally_votes")
	f.Uint64Var(&txFlags.scope, "scope", 1, "election chain scope")
	f.StringVar(&txFlags.name, "name", "", "candidate name")
	f.StringVar(&txFlags.authorization, "authorization", "", "authority signature, hex")
	f.StringVar(&txFlags.commitment, "commitment", "", "commitment hash")
	f.Int64Var(&txFlags.candidate, "candidate", -1, "revealed candidate id")
	f.StringVar(&txFlags.salt, "salt", "", "reveal salt")
	f.StringVar(&txFlags.ballotHash, "ballot-hash", "", "sealed ballot hash")
	rootCmd.AddCommand(txCmd)
}

func optionalHash(name, value string) (*common.Hash, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := hexutil.Decode(value)
	if err != nil || len(raw) != common.HashLength {
		return nil, errors.Errorf("%s must be 32 bytes of 0x-prefixed hex", name)
	}
	h := common.BytesToHash(raw)
	return &h, nil
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Build and sign a transaction, printed as JSON for POST /api/transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := encryption.LoadKey(txFlags.keyFile)
		if err != nil {
			return err
		}
		tx := models.Transaction{
			Kind:  models.TxKind(txFlags.kind),
			Scope: txFlags.scope,
			Name:  txFlags.name,
		}
		if txFlags.authorization != "" {
			if tx.Authorization, err = hexutil.Decode(txFlags.authorization); err != nil {
				return errors.Wrap(err, "authorization")
			}
		}
		if tx.Commitment, err = optionalHash("commitment", txFlags.commitment); err != nil {
			return err
		}
		if tx.Salt, err = optionalHash("salt", txFlags.salt); err != nil {
			return err
		}
		if tx.BallotHash, err = optionalHash("ballot-hash", txFlags.ballotHash); err != nil {
			return err
		}
		if txFlags.candidate >= 0 {
			id := uint64(txFlags.candidate)
			tx.CandidateID = &id
		}

		if err := tx.Sign(key); err != nil {
			return err
		}
		return printJSON(cmd, tx)
	},
}
