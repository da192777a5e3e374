package server

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/kzhdev5/tbank-bridge/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeStepError maps login flow failures onto HTTP statuses: a bank-side
// credential rejection carries the bank's literal message with a 400, a
// dead or unclassifiable session asks the client to log in again with a
// 401, and everything else is a 500.
func writeStepError(w http.ResponseWriter, err error) {
	if credErr, ok := browser.AsCredentialError(err); ok {
		writeError(w, http.StatusBadRequest, credErr.Message)
		return
	}
	if errors.Is(err, browser.ErrSessionExpired) {
		writeError(w, http.StatusUnauthorized, "Сессия истекла. Пожалуйста, войдите заново.")
		return
	}
	if errors.Is(err, browser.ErrPageNotResolvable) {
		writeError(w, http.StatusUnauthorized, "Ошибка входа в Т-Банк. Попробуйте войти снова.")
		return
	}
	writeError(w, http.StatusInternalServerError, "Внутренняя ошибка. Повторите попытку позже.")
}
