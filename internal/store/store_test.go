package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectPing()
	s, err := New(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func TestSaveExpenses(t *testing.T) {
	s, mock := newMockStore(t)

	expenses := []Expense{
		{Timestamp: 1700000000000, CardNumber: "*1234", Amount: 199.90, Description: "Пятёрочка"},
		{Timestamp: 1700000060000, CardNumber: "*1234", Amount: 50.00, Description: "Метро"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO expenses").
		WithArgs(expenses[0].Timestamp, expenses[0].CardNumber, expenses[0].Amount, expenses[0].Description).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// The second row already exists; the conflict clause swallows it.
	mock.ExpectExec("INSERT INTO expenses").
		WithArgs(expenses[1].Timestamp, expenses[1].CardNumber, expenses[1].Amount, expenses[1].Description).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	inserted, err := s.SaveExpenses(context.Background(), expenses)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExpensesEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	inserted, err := s.SaveExpenses(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpensesByRange(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "ts_ms", "card_number", "amount", "description"}).
		AddRow(int64(2), int64(1700000060000), "*1234", -50.0, "Метро").
		AddRow(int64(1), int64(1700000000000), "*1234", -199.9, "Пятёрочка")

	mock.ExpectQuery("SELECT id, ts_ms, card_number, amount, description").
		WithArgs(int64(1699990000000), int64(1700990000000), "*1234").
		WillReturnRows(rows)

	got, err := s.ExpensesByRange(context.Background(), 1699990000000, 1700990000000, "1234", false, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Метро", got[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoriesWithKeywords(t *testing.T) {
	s, mock := newMockStore(t)

	food := "еда"
	metro := "метро"
	rows := pgxmock.NewRows([]string{"id", "title", "keyword"}).
		AddRow(int64(1), "Продукты", &food).
		AddRow(int64(1), "Продукты", &metro).
		AddRow(int64(2), "Без ключей", (*string)(nil))

	mock.ExpectQuery("SELECT c.id, c.title, k.keyword").WillReturnRows(rows)

	got, err := s.CategoriesWithKeywords(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"еда", "метро"}, got[0].Keywords)
	assert.Empty(t, got[1].Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemporaryCode(t *testing.T) {
	t.Run("single code", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT code FROM temporary_code").
			WillReturnRows(pgxmock.NewRows([]string{"code"}).AddRow("1234"))

		code, err := s.GetTemporaryCode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "1234", code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no code", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT code FROM temporary_code").
			WillReturnRows(pgxmock.NewRows([]string{"code"}))

		_, err := s.GetTemporaryCode(context.Background())
		require.ErrorIs(t, err, ErrNoTemporaryCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ambiguous codes are discarded", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT code FROM temporary_code").
			WillReturnRows(pgxmock.NewRows([]string{"code"}).AddRow("1111").AddRow("2222"))
		mock.ExpectExec("DELETE FROM temporary_code").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))

		_, err := s.GetTemporaryCode(context.Background())
		require.ErrorIs(t, err, ErrAmbiguousTemporaryCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetTemporaryCode(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM temporary_code").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO temporary_code").WithArgs("9876").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, s.SetTemporaryCode(context.Background(), "9876"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastError(t *testing.T) {
	t.Run("set replaces previous", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM last_error").WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec("INSERT INTO last_error").WithArgs("авторизация не удалась").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback()

		require.NoError(t, s.SetLastError(context.Background(), "авторизация не удалась"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreceived error is delivered once", func(t *testing.T) {
		s, mock := newMockStore(t)
		now := time.Now()
		mock.ExpectQuery("UPDATE last_error SET is_received").
			WillReturnRows(pgxmock.NewRows([]string{"id", "error_text", "error_time", "is_received"}).
				AddRow(int64(1), "авторизация не удалась", now, true))

		rec, err := s.GetLastUnreceivedError(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "авторизация не удалась", rec.Text)
		assert.True(t, rec.IsReceived)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to deliver", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE last_error SET is_received").
			WillReturnRows(pgxmock.NewRows([]string{"id", "error_text", "error_time", "is_received"}))

		rec, err := s.GetLastUnreceivedError(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveKeywordRebinds(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO category_keywords").
		WithArgs("такси", int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveKeyword(context.Background(), "такси", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindTelegramChat(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, username, password, role").
		WithArgs("@ivan").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password", "role", "tg", "card_number"}).
			AddRow(int64(7), "ivan", "hash", "user", "@ivan", "1234"))
	mock.ExpectExec("INSERT INTO tg_chats").
		WithArgs(int64(7), int64(555000111)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u, err := s.BindTelegramChat(context.Background(), "@ivan", 555000111)
	require.NoError(t, err)
	assert.Equal(t, "1234", u.CardNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindTelegramChatUnknownNickname(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, username, password, role").
		WithArgs("@nobody").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password", "role", "tg", "card_number"}))

	_, err := s.BindTelegramChat(context.Background(), "@nobody", 1)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSpecRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO export_schedule").
		WithArgs(autoImportJob, "30 21 * * *").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveScheduleSpec(context.Background(), "30 21 * * *"))

	mock.ExpectQuery("SELECT spec FROM export_schedule").
		WithArgs(autoImportJob).
		WillReturnRows(pgxmock.NewRows([]string{"spec"}).AddRow("30 21 * * *"))
	spec, err := s.GetScheduleSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30 21 * * *", spec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScheduleSpecUnset(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT spec FROM export_schedule").
		WithArgs(autoImportJob).
		WillReturnError(pgx.ErrNoRows)
	_, err := s.GetScheduleSpec(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
