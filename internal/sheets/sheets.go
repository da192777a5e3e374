// Package sheets mirrors imported expenses into a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/kzhdev5/tbank-bridge/internal/config"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// expenseStore is the subset of the store the syncer reads.
type expenseStore interface {
	ExpensesByRange(ctx context.Context, startMS, endMS int64, card string, includeUncarded, ascending bool) ([]store.Expense, error)
	CategoriesWithKeywords(ctx context.Context) ([]store.CategoryKeywords, error)
}

// Syncer appends expenses for a period to the configured sheet.
type Syncer struct {
	cfg    config.SheetsConfig
	store  expenseStore
	svc    *sheetsapi.Service
	logger *zap.Logger
	tz     *time.Location
}

func New(ctx context.Context, cfg config.SheetsConfig, st expenseStore, logger *zap.Logger) (*Syncer, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	tz, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return nil, fmt.Errorf("failed to load sheet timezone: %w", err)
	}
	return &Syncer{cfg: cfg, store: st, svc: svc, logger: logger.Named("sheets"), tz: tz}, nil
}

// SyncPeriod appends the period's expenses as rows:
// date, card, amount, description, category.
func (s *Syncer) SyncPeriod(ctx context.Context, period string) error {
	startMS, endMS, err := expenses.PeriodRange(s.tz, "", "", period, time.Now())
	if err != nil {
		return err
	}

	rows, err := s.store.ExpensesByRange(ctx, startMS, endMS, "", false, true)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.logger.Debug("Nothing to sync for the period.", zap.String("period", period))
		return nil
	}

	categories, err := s.store.CategoriesWithKeywords(ctx)
	if err != nil {
		return err
	}
	categorizer := expenses.NewCategorizer(categories)

	values := make([][]interface{}, 0, len(rows))
	for _, e := range rows {
		category := categorizer.Categorize(e.Description)
		if category == "" {
			category = "Не указана"
		}
		values = append(values, []interface{}{
			time.UnixMilli(e.Timestamp).In(s.tz).Format("02.01.2006 15:04:05"),
			e.CardNumber,
			e.Amount,
			e.Description,
			category,
		})
	}

	_, err = s.svc.Spreadsheets.Values.
		Append(s.cfg.SpreadsheetID, s.cfg.SheetName+"!A:E", &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append rows to spreadsheet: %w", err)
	}

	s.logger.Info("Expenses synced to spreadsheet.",
		zap.String("period", period),
		zap.Int("rows", len(values)))
	return nil
}
