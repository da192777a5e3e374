// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kzhdev5/tbank-bridge/internal/botauth"
	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/notify"
	"github.com/kzhdev5/tbank-bridge/internal/observability"
	"github.com/kzhdev5/tbank-bridge/internal/scheduler"
	"github.com/kzhdev5/tbank-bridge/internal/server"
	"github.com/kzhdev5/tbank-bridge/internal/sheets"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the nightly import scheduler.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("Database schema is up to date.")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return err
	}

	driver := browser.NewChromeDriver(cfg.Browser, logger)
	storage := browser.NewStorageFile(cfg.Browser.ProfileDir, logger)
	mgr := browser.NewManager(driver, cfg.Browser, storage, logger)
	it := browser.NewInteractor(mgr, browser.MergeSelectors(cfg.Bank.Selectors), cfg.Browser.ElementTimeout, logger)
	classifier := browser.NewClassifier(it, browser.DefaultClassifyPolicy(), logger)
	flow := browser.NewRouter(mgr, it, classifier, logger)

	notifier := notify.New(cfg.Bot, st, logger)

	var sheetSyncer expenses.SheetSyncer
	if cfg.Sheets.Enabled {
		sy, err := sheets.New(ctx, cfg.Sheets, st, logger)
		if err != nil {
			return err
		}
		sheetSyncer = sy
	}

	importer, err := expenses.NewImporter(mgr, flow, classifier, it, st, cfg, notifier, sheetSyncer, logger)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Scheduler, importer, logger)
	if err != nil {
		return err
	}

	// A schedule changed through the API survives restarts; fall back to
	// the configured spec when none was ever persisted.
	switch spec, err := st.GetScheduleSpec(ctx); {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := sched.Update(spec); err != nil {
			logger.Warn("Ignoring invalid persisted schedule.", zap.String("spec", spec), zap.Error(err))
		}
	}

	auth := botauth.New(cfg.Server.JWTSecret, cfg.Bot.Token)
	srv := server.New(cfg.Server, cfg.Bank, mgr, it, flow, importer, st, auth, sched, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Run(gctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	err = g.Wait()

	// Best-effort cleanup of the shared browser once serving stops.
	if teardownErr := mgr.TeardownBrowser(context.Background()); teardownErr != nil {
		logger.Warn("Browser teardown on shutdown failed.", zap.Error(teardownErr))
	}
	return err
}
