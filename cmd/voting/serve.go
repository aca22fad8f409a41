package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"commit-reveal-voting/api"
	"commit-reveal-voting/auth"
	"commit-reveal-voting/service"
	"commit-reveal-voting/storage"
)

var serveConfig Config

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveConfig.DataDir, "data-dir", "election_data", "directory holding the ledger and registry")
	f.StringVar(&serveConfig.APIEndpoint, "listen", "localhost:8080", "API listen address")
	f.DurationVar(&serveConfig.RequestTimeout, "request-timeout", 10*time.Second, "maximum time a submission may wait in the queue")
	f.IntVar(&serveConfig.QueueSize, "queue-size", 256, "maximum number of queued transactions")
	f.Uint8Var(&serveConfig.Difficulty, "difficulty", 0, "leading zero bytes required in block hashes (at most 3)")

	f.Uint64Var(&serveConfig.ChainScope, "chain-scope", 1, "chain scope bound into authorization signatures")
	f.StringVar(&serveConfig.Owner, "owner", "", "address allowed to add candidates")
	f.StringVar(&serveConfig.Authority, "authority", "", "registration authority address (defaults to the authority key's address)")
	f.Int64Var(&serveConfig.CommitStart, "commit-start", 0, "unix time the commit window opens")
	f.Int64Var(&serveConfig.CommitEnd, "commit-end", 0, "unix time the commit window closes and reveal opens")
	f.Int64Var(&serveConfig.RevealEnd, "reveal-end", 0, "unix time the reveal window closes")
	f.StringSliceVar(&serveConfig.Candidates, "candidate", nil, "initial candidate name, repeatable")

	f.StringVar(&serveConfig.AuthorityKeyFile, "authority-key", "", "authority key file, enables /api/authorize (overridden by "+authorizerKeyEnv+")")
	f.StringVar(&serveConfig.RegistryFile, "registry-file", "", "authorization registry file (default <data-dir>/authorizations.json)")

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the election API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := serveConfig.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, &serveConfig)
	},
}

func serve(ctx context.Context, cfg *Config) error {
	logger := newLogger()

	store, err := storage.NewJSONStore(cfg.DataDir)
	if err != nil {
		return err
	}
	vs, err := service.NewVotingService(store, cfg.Setup(),
		service.WithLogger(logger),
		service.WithDifficulty(cfg.Difficulty),
	)
	if err != nil {
		return err
	}

	seq := service.NewSequencer(vs, cfg.QueueSize)
	seq.Start()
	defer seq.Stop()

	opts := []api.Option{api.WithLogger(logger)}
	if cfg.authorityKey != nil {
		authority := auth.NewAuthority(cfg.authorityKey)
		if authority.Address() != vs.Setup().Authority {
			return errors.Wrap(errInvalidConfig, "authority key does not match the ledger's authority")
		}
		issuer, err := auth.NewIssuer(authority, auth.IssuerConfig{
			RegistryFilePath: cfg.registryPath(),
			AutoSave:         true,
			ChainScope:       vs.Setup().ChainScope,
		})
		if err != nil {
			return err
		}
		opts = append(opts, api.WithIssuer(issuer))
		logger.Info().Int("issued", issuer.Count()).Msg("authorization issuer enabled")
	}

	srv := api.NewServer(vs, seq, api.APIConfig{
		APIEndpoint:    cfg.APIEndpoint,
		RequestTimeout: cfg.RequestTimeout,
	}, opts...)
	return srv.Serve(ctx)
}
