package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	// ErrNoTemporaryCode means no one-time code has been supplied by the
	// operator for the unattended login flow.
	ErrNoTemporaryCode = errors.New("temporary code not found")
	// ErrAmbiguousTemporaryCode means several codes were found; all of
	// them are discarded and a fresh one must be supplied.
	ErrAmbiguousTemporaryCode = errors.New("multiple temporary codes found, all removed")
	// ErrNotFound is the generic missing-row error.
	ErrNotFound = errors.New("not found")
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL persistence layer.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// SaveExpenses inserts transactions, silently skipping rows that already
// exist (same timestamp, card, amount and description). Returns the number
// of newly inserted rows.
func (s *Store) SaveExpenses(ctx context.Context, expenses []Expense) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	inserted := 0
	for _, e := range expenses {
		tag, err := tx.Exec(ctx,
			`INSERT INTO expenses (ts_ms, card_number, amount, description)
             VALUES ($1, $2, $3, $4)
             ON CONFLICT ON CONSTRAINT expenses_natural_key DO NOTHING`,
			e.Timestamp, e.CardNumber, e.Amount, e.Description)
		if err != nil {
			return 0, fmt.Errorf("failed to insert expense: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Expenses saved.", zap.Int("total", len(expenses)), zap.Int("inserted", inserted))
	return inserted, nil
}

// ExpensesByRange returns expenses within [startMS, endMS], newest first
// unless ascending is set. A non-empty card filters to that card;
// includeUncarded additionally admits rows without a card number (used for
// accounts that receive plain transfers).
func (s *Store) ExpensesByRange(ctx context.Context, startMS, endMS int64, card string, includeUncarded, ascending bool) ([]Expense, error) {
	query := `SELECT id, ts_ms, card_number, amount, description
              FROM expenses
              WHERE ts_ms >= $1 AND ts_ms <= $2`
	args := []interface{}{startMS, endMS}
	if card != "" {
		if includeUncarded {
			query += ` AND (card_number = $3 OR card_number = '')`
		} else {
			query += ` AND card_number = $3`
		}
		args = append(args, "*"+card)
	}
	if ascending {
		query += ` ORDER BY ts_ms ASC`
	} else {
		query += ` ORDER BY ts_ms DESC`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.CardNumber, &e.Amount, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UniqueCardsInRange returns the distinct card numbers (with the leading
// asterisk stripped) that have expenses within the range.
func (s *Store) UniqueCardsInRange(ctx context.Context, startMS, endMS int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ltrim(card_number, '*')
         FROM expenses
         WHERE ts_ms >= $1 AND ts_ms <= $2 AND card_number <> ''`,
		startMS, endMS)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// Categories returns all categories without keywords.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoriesWithKeywords returns every category joined with its keywords.
// Categories without keywords are included with an empty list.
func (s *Store) CategoriesWithKeywords(ctx context.Context) ([]CategoryKeywords, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.title, k.keyword
         FROM categories c
         LEFT JOIN category_keywords k ON k.category_id = c.id
         ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories with keywords: %w", err)
	}
	defer rows.Close()

	var out []CategoryKeywords
	index := map[int64]int{}
	for rows.Next() {
		var (
			id      int64
			title   string
			keyword *string
		)
		if err := rows.Scan(&id, &title, &keyword); err != nil {
			return nil, fmt.Errorf("failed to scan category keyword row: %w", err)
		}
		pos, ok := index[id]
		if !ok {
			out = append(out, CategoryKeywords{ID: id, Title: title})
			pos = len(out) - 1
			index[id] = pos
		}
		if keyword != nil {
			out[pos].Keywords = append(out[pos].Keywords, *keyword)
		}
	}
	return out, rows.Err()
}

// CreateCategory inserts a category and returns its id.
func (s *Store) CreateCategory(ctx context.Context, title string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (title) VALUES ($1) RETURNING id`, title).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create category %q: %w", title, err)
	}
	return id, nil
}

// DeleteCategory removes a category; its keywords cascade.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveKeyword binds a keyword to a category. A keyword already bound
// elsewhere is rebound to the new category.
func (s *Store) SaveKeyword(ctx context.Context, keyword string, categoryID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO category_keywords (keyword, category_id) VALUES ($1, $2)
         ON CONFLICT (keyword) DO UPDATE SET category_id = EXCLUDED.category_id`,
		keyword, categoryID)
	if err != nil {
		return fmt.Errorf("failed to save keyword %q: %w", keyword, err)
	}
	return nil
}

// RemoveKeyword deletes a keyword from whatever category holds it.
func (s *Store) RemoveKeyword(ctx context.Context, keyword string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM category_keywords WHERE keyword = $1`, keyword); err != nil {
		return fmt.Errorf("failed to remove keyword %q: %w", keyword, err)
	}
	return nil
}

// SetTemporaryCode stores the operator-supplied one-time code, replacing any
// previous one.
func (s *Store) SetTemporaryCode(ctx context.Context, code string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM temporary_code`); err != nil {
		return fmt.Errorf("failed to clear temporary code: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO temporary_code (code) VALUES ($1)`, code); err != nil {
		return fmt.Errorf("failed to store temporary code: %w", err)
	}
	return tx.Commit(ctx)
}

// GetTemporaryCode returns the stored one-time code. When several rows are
// found all of them are discarded and ErrAmbiguousTemporaryCode is returned:
// the operator must supply a fresh code.
func (s *Store) GetTemporaryCode(ctx context.Context) (string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM temporary_code`)
	if err != nil {
		return "", fmt.Errorf("failed to query temporary code: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return "", fmt.Errorf("failed to scan temporary code: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(codes) {
	case 0:
		return "", ErrNoTemporaryCode
	case 1:
		return codes[0], nil
	default:
		if _, err := s.pool.Exec(ctx, `DELETE FROM temporary_code`); err != nil {
			s.log.Error("Failed to clear ambiguous temporary codes", zap.Error(err))
		}
		return "", ErrAmbiguousTemporaryCode
	}
}

// SetLastError records an automation failure, replacing the previous record.
func (s *Store) SetLastError(ctx context.Context, text string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM last_error`); err != nil {
		return fmt.Errorf("failed to clear last error: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO last_error (error_text, error_time, is_received) VALUES ($1, now(), FALSE)`,
		text); err != nil {
		return fmt.Errorf("failed to store last error: %w", err)
	}
	return tx.Commit(ctx)
}

// GetLastUnreceivedError returns the newest undelivered failure and marks it
// delivered. Nil when there is nothing to report.
func (s *Store) GetLastUnreceivedError(ctx context.Context) (*ErrorRecord, error) {
	var rec ErrorRecord
	err := s.pool.QueryRow(ctx,
		`UPDATE last_error SET is_received = TRUE
         WHERE id = (
             SELECT id FROM last_error WHERE is_received = FALSE
             ORDER BY error_time DESC LIMIT 1
         )
         RETURNING id, error_text, error_time, is_received`).
		Scan(&rec.ID, &rec.Text, &rec.Time, &rec.IsReceived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch last error: %w", err)
	}
	return &rec, nil
}

// DeleteLastError clears the failure record.
func (s *Store) DeleteLastError(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM last_error`); err != nil {
		return fmt.Errorf("failed to delete last error: %w", err)
	}
	return nil
}

// UserByUsername returns the web account with the given username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password, role, COALESCE(tg, ''), COALESCE(card_number, '')
         FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.TG, &u.CardNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %q: %w", username, err)
	}
	return &u, nil
}

// BindTelegramChat links a chat id to the account owning the given Telegram
// nickname. It returns the user, or ErrNotFound when the nickname is not
// registered.
func (s *Store) BindTelegramChat(ctx context.Context, tgNickname string, chatID int64) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password, role, COALESCE(tg, ''), COALESCE(card_number, '')
         FROM users WHERE tg = $1`, tgNickname).
		Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.TG, &u.CardNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user by tg %q: %w", tgNickname, err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO tg_chats (user_id, chat_id) VALUES ($1, $2)
         ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id`,
		u.ID, chatID); err != nil {
		return nil, fmt.Errorf("failed to bind chat id: %w", err)
	}
	return &u, nil
}

// CardNumberByChatID resolves a Telegram chat back to its owner's card.
func (s *Store) CardNumberByChatID(ctx context.Context, chatID int64) (string, error) {
	var card string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(u.card_number, '')
         FROM tg_chats t JOIN users u ON u.id = t.user_id
         WHERE t.chat_id = $1`, chatID).Scan(&card)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to fetch card by chat id: %w", err)
	}
	return card, nil
}

// ChatIDsForCards returns the chat ids of users whose card number is in the
// given list. Used to target expense and error mailings.
func (s *Store) ChatIDsForCards(ctx context.Context, cards []string) ([]int64, error) {
	if len(cards) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT t.chat_id
         FROM tg_chats t JOIN users u ON u.id = t.user_id
         WHERE u.card_number = ANY($1)`, cards)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// autoImportJob keys the unattended import's row in export_schedule.
const autoImportJob = "auto_import"

// SaveScheduleSpec persists the cron spec of the unattended import so it
// survives restarts.
func (s *Store) SaveScheduleSpec(ctx context.Context, spec string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO export_schedule (job, spec) VALUES ($1, $2)
         ON CONFLICT (job) DO UPDATE SET spec = EXCLUDED.spec`,
		autoImportJob, spec); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// GetScheduleSpec returns the persisted cron spec, or ErrNotFound when the
// schedule was never changed from its configured default.
func (s *Store) GetScheduleSpec(ctx context.Context) (string, error) {
	var spec string
	err := s.pool.QueryRow(ctx,
		`SELECT spec FROM export_schedule WHERE job = $1`, autoImportJob).Scan(&spec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to fetch schedule: %w", err)
	}
	return spec, nil
}
