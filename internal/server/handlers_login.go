package server

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

type stepResponse struct {
	Status       string `json:"status"`
	CurrentPage  string `json:"current_page_type,omitempty"`
	NextPage     string `json:"next_page_type,omitempty"`
	Template     string `json:"template,omitempty"`
	GreetingName string `json:"greeting_name,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// handleLoginType opens (or reuses) the browser session, lands on the
// expenses URL and reports which login step the bank is showing.
func (s *Server) handleLoginType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.session.EnsurePage(ctx); err != nil {
		s.logger.Error("Failed to open browser session.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Не удалось открыть браузер. Повторите попытку позже.")
		return
	}
	if err := s.nav.Navigate(ctx, s.bank.ExpensesURL); err != nil {
		writeStepError(w, err)
		return
	}

	page, err := s.flow.CurrentPage(ctx)
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse(w, r, page))
}

// handleLoginStep forwards the user's input (phone, password, SMS code or
// OTP) to whichever step is currently on screen.
func (s *Server) handleLoginStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data == "" {
		writeError(w, http.StatusBadRequest, "Пустой ввод.")
		return
	}

	current, next, err := s.flow.SubmitStep(r.Context(), req.Data)
	if errors.Is(err, browser.ErrStepPending) {
		writeJSON(w, http.StatusAccepted, stepResponse{
			Status:      "pending",
			CurrentPage: current.String(),
			NextPage:    next.String(),
		})
		return
	}
	if err != nil {
		writeStepError(w, err)
		return
	}

	resp := s.pageResponse(w, r, next)
	resp.CurrentPage = current.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.flow.CurrentPage(r.Context())
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse(w, r, page))
}

// pageResponse expands a page type into the client payload, including the
// personalized greeting on the quick-login step. Landing on the expenses
// feed resumes any interrupted export stashed in the temp token cookie.
func (s *Server) pageResponse(w http.ResponseWriter, r *http.Request, page browser.PageType) stepResponse {
	resp := stepResponse{Status: "success", NextPage: page.String()}
	if id, ok := page.TemplateID(); ok {
		resp.Template = id
	}
	if page == browser.PageOTP {
		if name, err := s.flow.GreetingName(r.Context()); err == nil {
			resp.GreetingName = name
		}
	}
	if page == browser.PageExpenses {
		resp.RedirectURL = s.consumeTempToken(w, r)
	}
	return resp
}

// consumeTempToken reads the cookie left by an expenses request that ran
// into the login wall, expires it and rebuilds the original export URL.
func (s *Server) consumeTempToken(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(tempTokenCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: tempTokenCookie, Path: "/", MaxAge: -1, HttpOnly: true})

	claims, err := s.auth.Decode(c.Value)
	if err != nil {
		s.logger.Warn("Discarding stale temp token.", zap.Error(err))
		return ""
	}

	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	q := url.Values{}
	q.Set("time_zone", str("time_zone"))
	if src := str("source"); src != "" {
		q.Set("source", src)
	}
	if period := str("period"); period != "" {
		q.Set("period", period)
	} else {
		q.Set("rangeStart", str("rangeStart"))
		q.Set("rangeEnd", str("rangeEnd"))
	}
	return "/tinkoff/expenses/?" + q.Encode()
}

func (s *Server) handleSMSTimer(w http.ResponseWriter, r *http.Request) {
	left, err := s.flow.SMSTimer(r.Context())
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"time_left": left})
}

func (s *Server) handleResendSMS(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.ResendSMS(r.Context()); err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "СМС отправлено повторно."})
}

func (s *Server) handleCancelOTP(w http.ResponseWriter, r *http.Request) {
	page, err := s.flow.CancelOTP(r.Context())
	if err != nil {
		writeStepError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse(w, r, page))
}

// handleResetSession discards the browser profile and saved storage state.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		s.logger.Error("Session reset failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Не удалось сбросить сессию.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleDisconnect closes the page but keeps cookies for the next visit.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.TeardownContext(r.Context()); err != nil {
		s.logger.Error("Disconnect failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Не удалось завершить сессию.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleAuthLogin checks operator credentials against the users table and
// issues a session token.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "Укажите имя пользователя и пароль.")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Неверное имя пользователя или пароль.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Внутренняя ошибка. Повторите попытку позже.")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Неверное имя пользователя или пароль.")
		return
	}

	token, err := s.auth.CreateSessionToken(user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Внутренняя ошибка. Повторите попытку позже.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}
