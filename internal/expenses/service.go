package expenses

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/config"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// ErrLoginRequired means the import could not proceed because the session is
// not authenticated and no unattended recovery path applies.
var ErrLoginRequired = errors.New("authorization required")

// downloadWait bounds the wait for the export file to land on disk.
const downloadWait = 20 * time.Second

// Notifier delivers post-import mailings through the bot service.
type Notifier interface {
	// NotifyExpenses triggers the daily-spend mailing for the given cards.
	NotifyExpenses(ctx context.Context, cards []string) error
	// NotifyError triggers the failure mailing to the operators.
	NotifyError(ctx context.Context) error
}

// SheetSyncer pushes imported expenses to the spreadsheet.
type SheetSyncer interface {
	SyncPeriod(ctx context.Context, period string) error
}

// Importer drives the authenticated session to the export action, parses the
// downloaded statement and persists it.
type Importer struct {
	mgr        *browser.Manager
	router     *browser.Router
	classifier *browser.Classifier
	it         *browser.Interactor
	store      *store.Store
	bank       config.BankConfig
	downloads  string
	attempts   int
	notifier   Notifier
	sheets     SheetSyncer
	logger     *zap.Logger
	bankTZ     *time.Location
}

func NewImporter(
	mgr *browser.Manager,
	router *browser.Router,
	classifier *browser.Classifier,
	it *browser.Interactor,
	st *store.Store,
	cfg *config.Config,
	notifier Notifier,
	sheets SheetSyncer,
	logger *zap.Logger,
) (*Importer, error) {
	bankTZ, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return nil, fmt.Errorf("failed to load bank timezone: %w", err)
	}
	return &Importer{
		mgr:        mgr,
		router:     router,
		classifier: classifier,
		it:         it,
		store:      st,
		bank:       cfg.Bank,
		downloads:  cfg.Browser.DownloadDir,
		attempts:   cfg.Scheduler.Attempts,
		notifier:   notifier,
		sheets:     sheets,
		logger:     logger.Named("import"),
		bankTZ:     bankTZ,
	}, nil
}

// ensureExpensesPage verifies the session sits on the authenticated expenses
// page, navigating there once if it does not.
func (imp *Importer) ensureExpensesPage(ctx context.Context) error {
	if err := imp.mgr.EnsurePage(ctx); err != nil {
		return err
	}
	t, err := imp.classifier.Classify(ctx)
	if err != nil && !errors.Is(err, browser.ErrNotDetected) {
		return err
	}
	if t == browser.PageExpenses {
		return nil
	}
	if err := imp.it.Navigate(ctx, imp.bank.ExpensesURL); err != nil {
		return err
	}
	t, err = imp.classifier.Classify(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrNotDetected) {
			return ErrLoginRequired
		}
		return err
	}
	if t != browser.PageExpenses {
		return ErrLoginRequired
	}
	return nil
}

// feedURL builds the events-feed address pinned to the given range.
func (imp *Importer) feedURL(startMS, endMS int64) string {
	return fmt.Sprintf("%s?rangeStart=%d&rangeEnd=%d&preset=calendar", imp.bank.FeedURL, startMS, endMS)
}

// ImportRange exports the statement for [startMS, endMS], parses it and
// persists new rows. Returns the parse result and the count of rows that
// were actually new.
func (imp *Importer) ImportRange(ctx context.Context, startMS, endMS int64, loc *time.Location) (*ImportResult, int, error) {
	if err := imp.ensureExpensesPage(ctx); err != nil {
		return nil, 0, err
	}

	target := imp.feedURL(startMS, endMS)
	current, err := imp.it.Location(ctx)
	if err != nil {
		return nil, 0, err
	}
	if current != target {
		if err := imp.it.Navigate(ctx, target); err != nil {
			return nil, 0, fmt.Errorf("failed to open period feed: %w", err)
		}
	}

	before, err := browser.SnapshotDownloads(imp.downloads)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to snapshot downloads: %w", err)
	}
	if err := imp.it.Click(ctx, browser.SelExport); err != nil {
		return nil, 0, err
	}
	if err := imp.it.Click(ctx, browser.SelExportCSV); err != nil {
		return nil, 0, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, downloadWait)
	defer cancel()
	filePath, err := browser.WaitForNewDownload(waitCtx, imp.downloads, before)
	if err != nil {
		return nil, 0, fmt.Errorf("export file never arrived: %w", err)
	}
	defer func() {
		if err := os.Remove(filePath); err != nil {
			imp.logger.Warn("Could not remove processed export.", zap.String("path", filePath), zap.Error(err))
		}
	}()

	categories, err := imp.store.CategoriesWithKeywords(ctx)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	result, err := ParseCSV(f, loc, NewCategorizer(categories))
	if err != nil {
		return nil, 0, err
	}

	inserted, err := imp.store.SaveExpenses(ctx, result.StoreExpenses())
	if err != nil {
		return nil, 0, err
	}
	imp.logger.Info("Expenses imported.",
		zap.Int("parsed", len(result.Records)),
		zap.Int("inserted", inserted),
		zap.Float64("total", result.TotalExpense))
	return result, inserted, nil
}

// AutoImport is the unattended flow run by the scheduler: authenticate using
// the operator-supplied one-time code if the quick-login prompt appears,
// import the last week, then notify and sync. Bounded attempts with a full
// browser teardown between them; the final failure is persisted for the UI
// and mailed to operators.
func (imp *Importer) AutoImport(ctx context.Context) error {
	imp.logger.Info("Unattended expense import started.")

	var lastErr error
	for attempt := 1; attempt <= imp.attempts; attempt++ {
		err := imp.autoImportOnce(ctx)
		if err == nil {
			imp.logger.Info("Unattended expense import finished.", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		imp.logger.Warn("Unattended import attempt failed.",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if teardownErr := imp.mgr.TeardownBrowser(ctx); teardownErr != nil {
			imp.logger.Warn("Browser teardown between attempts failed.", zap.Error(teardownErr))
		}
		if errors.Is(err, store.ErrNoTemporaryCode) || errors.Is(err, store.ErrAmbiguousTemporaryCode) {
			// No code means no next attempt can do better.
			break
		}
	}

	imp.logger.Error("Unattended expense import gave up.", zap.Error(lastErr))
	if err := imp.store.SetLastError(ctx, lastErr.Error()); err != nil {
		imp.logger.Error("Could not persist last error.", zap.Error(err))
	}
	if imp.notifier != nil {
		if err := imp.notifier.NotifyError(ctx); err != nil {
			imp.logger.Warn("Error mailing failed.", zap.Error(err))
		}
	}
	return lastErr
}

func (imp *Importer) autoImportOnce(ctx context.Context) error {
	if err := imp.mgr.EnsurePage(ctx); err != nil {
		return err
	}
	if err := imp.it.Navigate(ctx, imp.bank.ExpensesURL); err != nil {
		return err
	}

	t, err := imp.classifier.Classify(ctx)
	if err != nil {
		return fmt.Errorf("could not resolve page during unattended import: %w", err)
	}

	switch t {
	case browser.PageExpenses:
		// Session is still authenticated.
	case browser.PageOTP:
		code, err := imp.store.GetTemporaryCode(ctx)
		if err != nil {
			return err
		}
		_, next, err := imp.router.SubmitStep(ctx, code)
		if err != nil {
			return fmt.Errorf("unattended quick-login failed: %w", err)
		}
		if next != browser.PageExpenses {
			return fmt.Errorf("unattended quick-login landed on %s: %w", next, ErrLoginRequired)
		}
	default:
		return fmt.Errorf("unattended import on page %s: %w", t, ErrLoginRequired)
	}

	startMS, endMS, err := PeriodRange(imp.bankTZ, "", "", PeriodWeek, time.Now())
	if err != nil {
		return err
	}
	if _, _, err := imp.ImportRange(ctx, startMS, endMS, imp.bankTZ); err != nil {
		return err
	}

	if err := imp.mgr.TeardownBrowser(ctx); err != nil {
		imp.logger.Warn("Browser teardown after import failed.", zap.Error(err))
	}

	if imp.notifier != nil {
		dayStart, dayEnd, err := PeriodRange(imp.bankTZ, "", "", PeriodDay, time.Now())
		if err == nil {
			cards, cardsErr := imp.store.UniqueCardsInRange(ctx, dayStart, dayEnd)
			if cardsErr != nil {
				imp.logger.Warn("Could not collect cards for the mailing.", zap.Error(cardsErr))
			} else if err := imp.notifier.NotifyExpenses(ctx, cards); err != nil {
				imp.logger.Warn("Expense mailing failed.", zap.Error(err))
			}
		}
	}
	if imp.sheets != nil {
		if err := imp.sheets.SyncPeriod(ctx, PeriodDay); err != nil {
			imp.logger.Warn("Spreadsheet sync failed.", zap.Error(err))
		}
	}
	return nil
}
