// File: cmd/import.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/notify"
	"github.com/kzhdev5/tbank-bridge/internal/observability"
	"github.com/kzhdev5/tbank-bridge/internal/sheets"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// importCmd runs one unattended import cycle and exits. Useful for
// testing the nightly flow without waiting for the cron tick.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a single unattended expense import.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(ctx context.Context) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			return err
		}
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

	var sheetSyncer expenses.SheetSyncer
	if cfg.Sheets.Enabled {
		sy, err := sheets.New(ctx, cfg.Sheets, st, logger)
		if err != nil {
			return err
		}
		sheetSyncer = sy
	}

	importer, err := expenses.NewImporter(mgr, flow, classifier, it, st, cfg,
		notify.New(cfg.Bot, st, logger), sheetSyncer, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := mgr.TeardownBrowser(context.Background()); err != nil {
			logger.Warn("Browser teardown failed.", zap.Error(err))
		}
	}()
	return importer.AutoImport(ctx)
}
