package main

import (
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"commit-reveal-voting/encryption"
)

var keygenOut string

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "write the key file here instead of printing it")
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenOut == "" {
			key, err := crypto.GenerateKey()
			if err != nil {
				return errors.WithStack(err)
			}
			return printJSON(cmd, encryption.NewKeyFile(key))
		}

		if _, err := os.Stat(keygenOut); err == nil {
			return errors.Errorf("%s already exists", keygenOut)
		}
		key, _, err := encryption.LoadOrGenerateKey(keygenOut)
		if err != nil {
			return err
		}
		kf := encryption.NewKeyFile(key)
		return printJSON(cmd, map[string]string{"address": kf.Address, "public_key": kf.PublicKey, "path": keygenOut})
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
