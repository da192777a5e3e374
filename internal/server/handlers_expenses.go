package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

const (
	noDataMessage   = "Данные за выбранный период отсутствуют."
	tempTokenCookie = "temp_token"
)

type expenseRow struct {
	Date        string  `json:"date"`
	CardNumber  string  `json:"card_number"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

type expensesResponse struct {
	Expenses     []expenseRow `json:"expenses"`
	TotalExpense float64      `json:"total_expense"`
	Cards        []string     `json:"cards"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// handleExpenses serves the period's expenses either from the database or
// freshly imported from the bank site (source=tinkoff). A fresh import
// that needs login answers 401 so the client walks the login flow first.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tzName := q.Get("time_zone")
	if tzName == "" {
		writeError(w, http.StatusBadRequest, "Не указан часовой пояс.")
		return
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Неизвестный часовой пояс.")
		return
	}

	startMS, endMS, err := expenses.PeriodRange(loc, q.Get("rangeStart"), q.Get("rangeEnd"), q.Get("period"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Некорректный период.")
		return
	}

	ctx := r.Context()
	if q.Get("source") == "tinkoff" {
		result, _, err := s.importer.ImportRange(ctx, startMS, endMS, loc)
		if errors.Is(err, expenses.ErrLoginRequired) {
			s.stashTempToken(w, q, tzName)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"message":      "Необходима авторизация",
				"redirect_url": "/tinkoff/",
			})
			return
		}
		if err != nil {
			s.logger.Error("Site import failed.", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Ошибка загрузки расходов. Попробуйте снова позже.")
			return
		}
		writeJSON(w, http.StatusOK, importedResponse(result, loc))
		return
	}

	rows, err := s.store.ExpensesByRange(ctx, startMS, endMS, "", true, false)
	if err != nil {
		s.logger.Error("Expense query failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Ошибка выгрузки расходов. Повторите попытку позже.")
		return
	}
	resp, err := s.storedResponse(ctx, rows, loc)
	if err != nil {
		s.logger.Error("Category query failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Ошибка выгрузки расходов. Повторите попытку позже.")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// stashTempToken drops a short-lived cookie holding the interrupted
// request's parameters so the flow can resume it after login. The period
// claim stays empty when an explicit range was given, mirroring how the
// range takes precedence on replay.
func (s *Server) stashTempToken(w http.ResponseWriter, q url.Values, tzName string) {
	period := q.Get("period")
	if q.Get("rangeStart") != "" && q.Get("rangeEnd") != "" {
		period = ""
	}
	token, err := s.auth.CreateTempToken(map[string]any{
		"period":     period,
		"rangeStart": q.Get("rangeStart"),
		"rangeEnd":   q.Get("rangeEnd"),
		"time_zone":  tzName,
		"source":     "tinkoff",
	})
	if err != nil {
		s.logger.Error("Failed to issue temp token.", zap.Error(err))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: tempTokenCookie, Value: token, Path: "/", HttpOnly: true})
}

// storedResponse categorizes database rows into the client payload.
func (s *Server) storedResponse(ctx context.Context, rows []store.Expense, loc *time.Location) (expensesResponse, error) {
	if len(rows) == 0 {
		return expensesResponse{Expenses: []expenseRow{}, Cards: []string{}, ErrorMessage: noDataMessage}, nil
	}

	categories, err := s.store.CategoriesWithKeywords(ctx)
	if err != nil {
		return expensesResponse{}, err
	}
	categorizer := expenses.NewCategorizer(categories)

	resp := expensesResponse{Expenses: make([]expenseRow, 0, len(rows))}
	seenCards := make(map[string]bool)
	for _, e := range rows {
		category := categorizer.Categorize(e.Description)
		if category == "" {
			category = "Не указана"
		}
		resp.Expenses = append(resp.Expenses, expenseRow{
			Date:        time.UnixMilli(e.Timestamp).In(loc).Format("02.01.2006 15:04:05"),
			CardNumber:  e.CardNumber,
			Amount:      e.Amount,
			Description: e.Description,
			Category:    category,
		})
		resp.TotalExpense += e.Amount
		if e.CardNumber != "" && !seenCards[e.CardNumber] {
			seenCards[e.CardNumber] = true
			resp.Cards = append(resp.Cards, e.CardNumber)
		}
	}
	return resp, nil
}

func importedResponse(result *expenses.ImportResult, loc *time.Location) expensesResponse {
	resp := expensesResponse{
		Expenses:     make([]expenseRow, 0, len(result.Records)),
		TotalExpense: result.TotalExpense,
		Cards:        result.Cards,
	}
	for _, rec := range result.Records {
		category := rec.Category
		if category == "" {
			category = "Не указана"
		}
		resp.Expenses = append(resp.Expenses, expenseRow{
			Date:        rec.Time.In(loc).Format("02.01.2006 15:04:05"),
			CardNumber:  rec.Card,
			Amount:      rec.Amount,
			Description: rec.Description,
			Category:    category,
		})
	}
	if len(resp.Expenses) == 0 {
		resp.ErrorMessage = noDataMessage
	}
	return resp
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.CategoriesWithKeywords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось получить категории.")
		return
	}
	if categories == nil {
		categories = []store.CategoryKeywords{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "Укажите название категории.")
		return
	}
	id, err := s.store.CreateCategory(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось создать категорию.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Некорректный идентификатор категории.")
		return
	}
	switch err := s.store.DeleteCategory(r.Context(), id); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Категория не найдена.")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Не удалось удалить категорию.")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// handleSaveKeywords binds keywords to categories by name. An empty
// category name unbinds the keyword.
func (s *Server) handleSaveKeywords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords []struct {
			Description  string `json:"description"`
			CategoryName string `json:"category_name"`
		} `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректный запрос.")
		return
	}

	ctx := r.Context()
	categories, err := s.store.Categories(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось получить категории.")
		return
	}
	byTitle := make(map[string]int64, len(categories))
	for _, c := range categories {
		byTitle[c.Title] = c.ID
	}

	for _, kw := range req.Keywords {
		if kw.CategoryName == "" {
			if err := s.store.RemoveKeyword(ctx, kw.Description); err != nil {
				writeError(w, http.StatusInternalServerError, "Не удалось сохранить ключевые слова.")
				return
			}
			continue
		}
		categoryID, ok := byTitle[kw.CategoryName]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "Категория "+kw.CategoryName+" не найдена")
			return
		}
		if err := s.store.SaveKeyword(ctx, kw.Description, categoryID); err != nil {
			writeError(w, http.StatusInternalServerError, "Не удалось сохранить ключевые слова.")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ключевые слова успешно сохранены"})
}

// handleSaveOTP stores the temporary quick-login code used by the
// unattended nightly import.
func (s *Server) handleSaveOTP(w http.ResponseWriter, r *http.Request) {
	otp := r.URL.Query().Get("otp")
	if len(otp) != 4 {
		writeError(w, http.StatusUnprocessableEntity, "Код должен состоять из 4 цифр.")
		return
	}
	for _, c := range otp {
		if c < '0' || c > '9' {
			writeError(w, http.StatusUnprocessableEntity, "Код должен состоять из 4 цифр.")
			return
		}
	}
	if err := s.store.SetTemporaryCode(r.Context(), otp); err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось сохранить код.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleLastError reports the last unattended import failure once, then
// marks it delivered.
func (s *Server) handleLastError(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetLastUnreceivedError(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось получить последнюю ошибку.")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"last_error": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"last_error": rec.Text})
}
