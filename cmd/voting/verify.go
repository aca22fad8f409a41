package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"commit-reveal-voting/auth"
	"commit-reveal-voting/service"
	"commit-reveal-voting/storage"
)

var verifyDataDir string

func init() {
	verifyCmd.Flags().StringVar(&verifyDataDir, "data-dir", "election_data", "directory holding the ledger")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a ledger offline: chain integrity, full replay and recount",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewJSONStore(verifyDataDir)
		if err != nil {
			return err
		}
		blocks, err := store.LoadChain()
		if err != nil {
			return err
		}
		v, err := service.Audit(blocks, auth.NewVerifier())
		if err != nil {
			return err
		}
		if err := printJSON(cmd, v); err != nil {
			return err
		}
		if !v.Match {
			return errors.New("ledger verification failed")
		}
		return nil
	},
}
