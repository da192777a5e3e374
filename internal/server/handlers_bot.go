package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/botauth"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// handleBotCheckAccess verifies a signed payload forwarded by the
// Telegram bot and binds the chat to the account owning the nickname.
func (s *Server) handleBotCheckAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Пустой токен.")
		return
	}

	fields, err := s.auth.VerifyBotPayload(req.Token)
	if err != nil {
		if errors.Is(err, botauth.ErrBadSignature) {
			writeError(w, http.StatusForbidden, "Подпись токена не совпадает.")
			return
		}
		writeError(w, http.StatusForbidden, "Неверный токен.")
		return
	}

	nickname := fields["username"]
	chatID, convErr := strconv.ParseInt(fields["chat_id"], 10, 64)
	if nickname == "" || convErr != nil {
		writeError(w, http.StatusBadRequest, "Неполные данные в токене.")
		return
	}

	user, err := s.store.BindTelegramChat(r.Context(), nickname, chatID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusForbidden, "Пользователь с таким Telegram не зарегистрирован.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Внутренняя ошибка. Повторите попытку позже.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Доступ подтвержден для " + user.Username})
}

// handleBotExpenses serves a chat's expenses to the Telegram bot. The
// signed token carries the chat id, which maps to the card bound to the
// chat's account, so each chat only sees its own card.
func (s *Server) handleBotExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields, err := s.auth.VerifyBotPayload(q.Get("token"))
	if err != nil {
		if errors.Is(err, botauth.ErrBadSignature) {
			writeError(w, http.StatusForbidden, "Подпись токена не совпадает.")
			return
		}
		writeError(w, http.StatusForbidden, "Неверный токен.")
		return
	}
	chatID, err := strconv.ParseInt(fields["chat_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Неполные данные в токене.")
		return
	}

	tzName := q.Get("time_zone")
	if tzName == "" {
		tzName = "Europe/Moscow"
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
	card, err := s.store.CardNumberByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusForbidden, "Чат не привязан к пользователю.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Внутренняя ошибка. Повторите попытку позже.")
		return
	}

	rows, err := s.store.ExpensesByRange(ctx, startMS, endMS, card, false, true)
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
