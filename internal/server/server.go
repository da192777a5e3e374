// Package server exposes the login flow and the expense data over a
// small JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kzhdev5/tbank-bridge/internal/botauth"
	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/config"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// LoginFlow drives the bank's authentication step machine.
type LoginFlow interface {
	CurrentPage(ctx context.Context) (browser.PageType, error)
	SubmitStep(ctx context.Context, input string) (current, next browser.PageType, err error)
	GreetingName(ctx context.Context) (string, error)
	SMSTimer(ctx context.Context) (string, error)
	ResendSMS(ctx context.Context) error
	CancelOTP(ctx context.Context) (browser.PageType, error)
}

// Session controls the browser session lifecycle.
type Session interface {
	EnsurePage(ctx context.Context) error
	Reset(ctx context.Context) error
	TeardownContext(ctx context.Context) error
}

// Navigator opens URLs in the live page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// ExpenseImporter pulls fresh expenses from the bank site.
type ExpenseImporter interface {
	ImportRange(ctx context.Context, startMS, endMS int64, loc *time.Location) (*expenses.ImportResult, int, error)
}

// DataStore is the subset of the store the API reads and writes.
type DataStore interface {
	ExpensesByRange(ctx context.Context, startMS, endMS int64, card string, includeUncarded, ascending bool) ([]store.Expense, error)
	UniqueCardsInRange(ctx context.Context, startMS, endMS int64) ([]string, error)
	Categories(ctx context.Context) ([]store.Category, error)
	CategoriesWithKeywords(ctx context.Context) ([]store.CategoryKeywords, error)
	CreateCategory(ctx context.Context, title string) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error
	SaveKeyword(ctx context.Context, keyword string, categoryID int64) error
	RemoveKeyword(ctx context.Context, keyword string) error
	SetTemporaryCode(ctx context.Context, code string) error
	GetLastUnreceivedError(ctx context.Context) (*store.ErrorRecord, error)
	UserByUsername(ctx context.Context, username string) (*store.User, error)
	BindTelegramChat(ctx context.Context, tgNickname string, chatID int64) (*store.User, error)
	CardNumberByChatID(ctx context.Context, chatID int64) (string, error)
	SaveScheduleSpec(ctx context.Context, spec string) error
}

// ScheduleUpdater re-arms the unattended import schedule at runtime.
type ScheduleUpdater interface {
	Update(spec string) error
}

type Server struct {
	cfg      config.ServerConfig
	bank     config.BankConfig
	session  Session
	nav      Navigator
	flow     LoginFlow
	importer ExpenseImporter
	store    DataStore
	auth     *botauth.Authenticator
	sched    ScheduleUpdater
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func New(
	cfg config.ServerConfig,
	bank config.BankConfig,
	session Session,
	nav Navigator,
	flow LoginFlow,
	importer ExpenseImporter,
	st DataStore,
	auth *botauth.Authenticator,
	sched ScheduleUpdater,
	logger *zap.Logger,
) *Server {
	perMin := cfg.LoginRatePerMin
	if perMin <= 0 {
		perMin = 10
	}
	return &Server{
		cfg:      cfg,
		bank:     bank,
		session:  session,
		nav:      nav,
		flow:     flow,
		importer: importer,
		store:    st,
		auth:     auth,
		sched:    sched,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		logger:   logger.Named("server"),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/health"))
	r.Use(s.requestLogger)

	r.Post("/auth/login/", s.handleAuthLogin)
	r.Post("/bot/check_access/", s.handleBotCheckAccess)
	r.Get("/bot/expenses/", s.handleBotExpenses)

	r.Route("/tinkoff", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/", s.handleLoginType)
		r.With(s.loginRateLimit).Post("/login/", s.handleLoginStep)
		r.Get("/next/", s.handleNextPage)
		r.Get("/get_sms_timer/", s.handleSMSTimer)
		r.Post("/resend_sms/", s.handleResendSMS)
		r.Post("/cancel_otp/", s.handleCancelOTP)
		r.Post("/reset_session/", s.handleResetSession)
		r.Post("/disconnect/", s.handleDisconnect)
		r.Post("/save_otp/", s.handleSaveOTP)
		r.Put("/scheduler/", s.handleUpdateSchedule)

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleExpenses)
			r.Get("/last_error/", s.handleLastError)
			r.Get("/categories/", s.handleGetCategories)
			r.Post("/categories/", s.handleCreateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)
			r.Post("/keywords/", s.handleSaveKeywords)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then drains with the configured
// shutdown grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// requireAuth gates the operator API behind a session token issued by
// /auth/login/. The token travels as a bearer header or the "token"
// cookie set by the web client.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Требуется авторизация.")
			return
		}
		if _, err := s.auth.Decode(token); err != nil {
			writeError(w, http.StatusUnauthorized, "Сессия истекла. Пожалуйста, войдите заново.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loginRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Слишком много попыток входа. Попробуйте позже.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
