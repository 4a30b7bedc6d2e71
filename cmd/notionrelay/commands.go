package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/notionrelay/internal/server"
	"github.com/njoerd114/notionrelay/internal/setup"
)

const shutdownGrace = 10 * time.Second

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and periodic discovery",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setupRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger

	// A syncing status left behind by a crash would block that database forever.
	if n, err := a.store.ResetInterrupted(ctx); err != nil {
		return fmt.Errorf("resetting interrupted backfills: %w", err)
	} else if n > 0 {
		logger.Warn("marked interrupted backfills as failed", "count", n)
	}

	logger.Info("pinging Supermemory…")
	if err := a.sink.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to Supermemory: %w\n\nCheck supermemory.api_key in your config file", err)
	}
	logger.Info("Supermemory reachable")

	if cred, err := a.store.GetActiveCredential(ctx); err != nil {
		return err
	} else if cred == nil {
		logger.Warn("no Notion workspace authorized yet, visit /auth/notion to connect one")
	} else if err := a.notion.WithToken(cred.AccessToken).Ping(ctx); err != nil {
		logger.Warn("Notion token check failed", "owner", cred.OwnerLabel(), "error", err)
	}

	oauth := server.NewOAuthConfig(a.cfg.Notion.ClientID, a.cfg.Notion.ClientSecret, a.cfg.Notion.RedirectURI, a.cfg.Notion.APIURL)
	if a.cfg.Notion.RedirectURI == "" {
		logger.Warn("notion.redirect_uri and public_url are unset, OAuth install flow disabled")
		oauth = nil
	}
	srv := server.New(server.Options{
		Engine:            a.engine,
		Store:             a.store,
		OAuth:             oauth,
		VerificationToken: a.cfg.Webhook.VerificationToken,
		Logger:            logger,
	})

	// Either side failing takes the other down with it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe(ctx, a.cfg.ListenAddr) }()
	go func() { errCh <- a.engine.Run(ctx) }()

	var runErr error
	for range 2 {
		err := <-errCh
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
	}

	logger.Info("waiting for background tasks")
	a.engine.Wait()
	logger.Info("shutdown complete")
	return runErr
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <database-id>",
		Short: "Backfill one database into Supermemory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setupRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			cmd.Printf("Synchronising database %s...\n", args[0])
			res, err := a.engine.RunBackfill(ctx, args[0])
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			cmd.Printf("✓ %d page(s) synced\n", res.PagesSynced)
			for _, e := range res.Errors {
				cmd.Printf("  ✗ %s: %s\n", e.ID, e.Error)
			}
			return nil
		},
	}
}

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Backfill databases newly shared with the integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setupRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			creds, err := a.store.ListCredentials(ctx)
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				return errors.New("no Notion workspace authorized yet, run 'notionrelay serve' and visit /auth/notion")
			}
			for _, cred := range creds {
				synced, err := a.engine.DiscoverAndSyncNew(ctx, cred)
				if err != nil {
					cmd.Printf("✗ %s: %v\n", cred.OwnerLabel(), err)
					continue
				}
				cmd.Printf("%s: %d new database(s)\n", cred.OwnerLabel(), len(synced))
				for _, s := range synced {
					cmd.Printf("  ✓ %s (%d pages)\n", s.Name, s.PagesSynced)
				}
			}
			return nil
		},
	}
}

func newSetupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			slog.SetDefault(logger)

			ctx, stop := signalContext()
			defer stop()

			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}
			wiz := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), flags.configPath, homeDir, logger)
			return wiz.Run(ctx)
		},
	}
}

func newUninstallCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the service and remove installed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}

			cmd.Println("Uninstalling NotionRelay...")
			step := func(ok string, err error) {
				if err != nil {
					cmd.Printf("  ⚠ %v\n", err)
					return
				}
				cmd.Printf("  ✓ %s\n", ok)
			}
			step("Service stopped", setup.DisableService(homeDir))
			step("Unit removed", setup.RemoveUnit(homeDir))
			step("Binary removed", setup.RemoveBinary(homeDir))

			if purge {
				step("Config, state DB and logs purged", setup.PurgeUserData(homeDir))
			} else {
				cmd.Println()
				cmd.Println("  Config and state DB preserved.")
				cmd.Println("  Run with --purge to also remove them:")
				cmd.Println("    notionrelay uninstall --purge")
			}

			cmd.Println()
			cmd.Println("✓ NotionRelay uninstalled.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove config, state DB, and logs")
	return cmd
}
