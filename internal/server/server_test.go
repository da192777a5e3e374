package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/kzhdev5/tbank-bridge/internal/botauth"
	"github.com/kzhdev5/tbank-bridge/internal/browser"
	"github.com/kzhdev5/tbank-bridge/internal/config"
	"github.com/kzhdev5/tbank-bridge/internal/expenses"
	"github.com/kzhdev5/tbank-bridge/internal/store"
)

type fakeFlow struct {
	page       browser.PageType
	current    browser.PageType
	next       browser.PageType
	submitErr  error
	currentErr error
	greeting   string
	timer      string
	resendErr  error
	cancelPage browser.PageType
	submitted  []string
}

func (f *fakeFlow) CurrentPage(ctx context.Context) (browser.PageType, error) {
	return f.page, f.currentErr
}

func (f *fakeFlow) SubmitStep(ctx context.Context, input string) (browser.PageType, browser.PageType, error) {
	f.submitted = append(f.submitted, input)
	return f.current, f.next, f.submitErr
}

func (f *fakeFlow) GreetingName(ctx context.Context) (string, error) { return f.greeting, nil }
func (f *fakeFlow) SMSTimer(ctx context.Context) (string, error)     { return f.timer, nil }
func (f *fakeFlow) ResendSMS(ctx context.Context) error              { return f.resendErr }
func (f *fakeFlow) CancelOTP(ctx context.Context) (browser.PageType, error) {
	return f.cancelPage, nil
}

type fakeSession struct {
	ensureErr error
	resets    int
	teardowns int
}

func (f *fakeSession) EnsurePage(ctx context.Context) error { return f.ensureErr }
func (f *fakeSession) State() browser.SessionState          { return browser.StateLive }
func (f *fakeSession) Reset(ctx context.Context) error {
	f.resets++
	return nil
}
func (f *fakeSession) TeardownContext(ctx context.Context) error {
	f.teardowns++
	return nil
}

type fakeNav struct {
	visited []string
}

func (f *fakeNav) Navigate(ctx context.Context, url string) error {
	f.visited = append(f.visited, url)
	return nil
}

type fakeImporter struct {
	result *expenses.ImportResult
	err    error
}

func (f *fakeImporter) ImportRange(ctx context.Context, startMS, endMS int64, loc *time.Location) (*expenses.ImportResult, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.result, len(f.result.Records), nil
}

type fakeStore struct {
	expenses   []store.Expense
	categories []store.CategoryKeywords
	users      map[string]*store.User
	savedOTP   string
	lastError  *store.ErrorRecord
	keywords   map[string]int64
	boundChat  int64
	chatCards  map[int64]string
	savedSpec  string
	queryCards []string
}

func (f *fakeStore) ExpensesByRange(ctx context.Context, startMS, endMS int64, card string, includeUncarded, ascending bool) ([]store.Expense, error) {
	f.queryCards = append(f.queryCards, card)
	return f.expenses, nil
}
func (f *fakeStore) UniqueCardsInRange(ctx context.Context, startMS, endMS int64) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) Categories(ctx context.Context) ([]store.Category, error) {
	out := make([]store.Category, 0, len(f.categories))
	for _, c := range f.categories {
		out = append(out, store.Category{ID: c.ID, Title: c.Title})
	}
	return out, nil
}
func (f *fakeStore) CategoriesWithKeywords(ctx context.Context) ([]store.CategoryKeywords, error) {
	return f.categories, nil
}
func (f *fakeStore) CreateCategory(ctx context.Context, title string) (int64, error) { return 7, nil }
func (f *fakeStore) DeleteCategory(ctx context.Context, id int64) error {
	if id == 404 {
		return store.ErrNotFound
	}
	return nil
}
func (f *fakeStore) SaveKeyword(ctx context.Context, keyword string, categoryID int64) error {
	if f.keywords == nil {
		f.keywords = map[string]int64{}
	}
	f.keywords[keyword] = categoryID
	return nil
}
func (f *fakeStore) RemoveKeyword(ctx context.Context, keyword string) error {
	delete(f.keywords, keyword)
	return nil
}
func (f *fakeStore) SetTemporaryCode(ctx context.Context, code string) error {
	f.savedOTP = code
	return nil
}
func (f *fakeStore) GetLastUnreceivedError(ctx context.Context) (*store.ErrorRecord, error) {
	return f.lastError, nil
}
func (f *fakeStore) UserByUsername(ctx context.Context, username string) (*store.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}
func (f *fakeStore) BindTelegramChat(ctx context.Context, tgNickname string, chatID int64) (*store.User, error) {
	for _, u := range f.users {
		if u.TG == tgNickname {
			f.boundChat = chatID
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}
func (f *fakeStore) CardNumberByChatID(ctx context.Context, chatID int64) (string, error) {
	card, ok := f.chatCards[chatID]
	if !ok {
		return "", store.ErrNotFound
	}
	return card, nil
}
func (f *fakeStore) SaveScheduleSpec(ctx context.Context, spec string) error {
	f.savedSpec = spec
	return nil
}

type fakeSched struct {
	specs []string
	err   error
}

func (f *fakeSched) Update(spec string) error {
	if f.err != nil {
		return f.err
	}
	f.specs = append(f.specs, spec)
	return nil
}

type harness struct {
	flow     *fakeFlow
	session  *fakeSession
	nav      *fakeNav
	importer *fakeImporter
	store    *fakeStore
	sched    *fakeSched
	auth     *botauth.Authenticator
	token    string
	srv      *httptest.Server
}

const testBotToken = "999:test-bot"

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		flow:     &fakeFlow{page: browser.PagePhone},
		session:  &fakeSession{},
		nav:      &fakeNav{},
		importer: &fakeImporter{result: &expenses.ImportResult{}},
		store:    &fakeStore{users: map[string]*store.User{}},
		sched:    &fakeSched{},
	}
	cfg := config.ServerConfig{Addr: ":0", LoginRatePerMin: 120, ShutdownTimeout: time.Second}
	bank := config.BankConfig{ExpensesURL: "https://bank.example/events/feed"}
	h.auth = botauth.New("test-jwt-secret", testBotToken)
	token, err := h.auth.CreateSessionToken("operator")
	require.NoError(t, err)
	h.token = token
	s := New(cfg, bank, h.session, h.nav, h.flow, h.importer, h.store, h.auth, h.sched, zaptest.NewLogger(t))
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return h.doRequest(t, req)
}

func (h *harness) doRequest(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp, payload
}

func TestLoginTypeOpensSessionAndReportsPage(t *testing.T) {
	h := newHarness(t)
	h.flow.page = browser.PagePhone

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "LOGIN_PHONE", payload["next_page_type"])
	assert.Equal(t, "tinkoff/login_phone", payload["template"])
	assert.Equal(t, []string{"https://bank.example/events/feed"}, h.nav.visited)
}

func TestLoginStepSuccess(t *testing.T) {
	h := newHarness(t)
	h.flow.current = browser.PagePhone
	h.flow.next = browser.PageSMSCode

	resp, payload := h.do(t, http.MethodPost, "/tinkoff/login/", `{"data":"+79001234567"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "LOGIN_SMS_CODE", payload["next_page_type"])
	assert.Equal(t, "LOGIN_PHONE", payload["current_page_type"])
	assert.Equal(t, []string{"+79001234567"}, h.flow.submitted)
}

func TestLoginStepCredentialRejection(t *testing.T) {
	h := newHarness(t)
	h.flow.submitErr = &browser.CredentialError{Message: "Неверный номер телефона"}

	resp, payload := h.do(t, http.MethodPost, "/tinkoff/login/", `{"data":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Неверный номер телефона", payload["detail"])
}

func TestLoginStepPending(t *testing.T) {
	h := newHarness(t)
	h.flow.current = browser.PageSMSCode
	h.flow.next = browser.PageSMSCode
	h.flow.submitErr = browser.ErrStepPending

	resp, payload := h.do(t, http.MethodPost, "/tinkoff/login/", `{"data":"1234"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", payload["status"])
}

func TestLoginStepSessionExpired(t *testing.T) {
	h := newHarness(t)
	h.flow.submitErr = browser.ErrSessionExpired

	resp, payload := h.do(t, http.MethodPost, "/tinkoff/login/", `{"data":"1234"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, payload["detail"], "Сессия истекла")
}

func TestLoginRateLimit(t *testing.T) {
	h := newHarness(t)
	cfg := config.ServerConfig{Addr: ":0", LoginRatePerMin: 2}
	s := New(cfg, config.BankConfig{}, h.session, h.nav, h.flow, h.importer, h.store,
		h.auth, h.sched, zaptest.NewLogger(t))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	var last int
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/tinkoff/login/", strings.NewReader(`{"data":"x"}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+h.token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestTinkoffRoutesRejectMissingToken(t *testing.T) {
	h := newHarness(t)
	h.token = ""

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Требуется авторизация.", payload["detail"])
	assert.Empty(t, h.nav.visited)
}

func TestTinkoffRoutesRejectForgedToken(t *testing.T) {
	h := newHarness(t)
	forged, err := botauth.New("other-secret", testBotToken).CreateSessionToken("operator")
	require.NoError(t, err)
	h.token = forged

	resp, _ := h.do(t, http.MethodGet, "/tinkoff/expenses/?period=month&time_zone=UTC", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTinkoffRoutesAcceptCookieToken(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/tinkoff/next/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "token", Value: h.token})

	resp, payload := h.doRequest(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", payload["status"])
}

func TestOTPGreetingIncluded(t *testing.T) {
	h := newHarness(t)
	h.flow.page = browser.PageOTP
	h.flow.greeting = "Иван"

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/next/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Иван", payload["greeting_name"])
}

func TestResetAndDisconnect(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodPost, "/tinkoff/reset_session/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.session.resets)

	resp, _ = h.do(t, http.MethodPost, "/tinkoff/disconnect/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.session.teardowns)
}

func TestExpensesFromDB(t *testing.T) {
	h := newHarness(t)
	h.store.expenses = []store.Expense{
		{Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), CardNumber: "*1234", Amount: 100.50, Description: "Пятерочка"},
		{Timestamp: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC).UnixMilli(), CardNumber: "*5678", Amount: 49.50, Description: "Аптека"},
	}
	h.store.categories = []store.CategoryKeywords{
		{ID: 1, Title: "Продукты", Keywords: []string{"пятерочка"}},
	}

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/expenses/?period=month&time_zone=UTC", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 150.0, payload["total_expense"], 0.01)

	rows := payload["expenses"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "Продукты", first["category"])
	second := rows[1].(map[string]interface{})
	assert.Equal(t, "Не указана", second["category"])
}

func TestExpensesRequireTimezone(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/tinkoff/expenses/?period=month", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExpensesFromSiteNeedsLogin(t *testing.T) {
	h := newHarness(t)
	h.importer.err = expenses.ErrLoginRequired

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/expenses/?period=week&time_zone=UTC&source=tinkoff", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Необходима авторизация", payload["message"])
	assert.Equal(t, "/tinkoff/", payload["redirect_url"])
}

func tempTokenFromResponse(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "temp_token" {
			require.True(t, c.HttpOnly)
			return c.Value
		}
	}
	t.Fatal("no temp_token cookie in response")
	return ""
}

func TestExpensesLoginWallStashesRequest(t *testing.T) {
	h := newHarness(t)
	h.importer.err = expenses.ErrLoginRequired

	resp, _ := h.do(t, http.MethodGet, "/tinkoff/expenses/?period=week&time_zone=UTC&source=tinkoff", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	claims, err := h.auth.Decode(tempTokenFromResponse(t, resp))
	require.NoError(t, err)
	assert.Equal(t, "week", claims["period"])
	assert.Equal(t, "UTC", claims["time_zone"])
	assert.Equal(t, "tinkoff", claims["source"])
}

func TestExpensesLoginWallPrefersExplicitRange(t *testing.T) {
	h := newHarness(t)
	h.importer.err = expenses.ErrLoginRequired

	resp, _ := h.do(t, http.MethodGet,
		"/tinkoff/expenses/?period=week&rangeStart=2025-03-01&rangeEnd=2025-03-07&time_zone=UTC&source=tinkoff", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	claims, err := h.auth.Decode(tempTokenFromResponse(t, resp))
	require.NoError(t, err)
	assert.Equal(t, "", claims["period"])
	assert.Equal(t, "2025-03-01", claims["rangeStart"])
	assert.Equal(t, "2025-03-07", claims["rangeEnd"])
}

func TestExpensesLandingResumesStashedRequest(t *testing.T) {
	h := newHarness(t)
	h.flow.page = browser.PageExpenses

	temp, err := h.auth.CreateTempToken(map[string]any{
		"period": "week", "rangeStart": "", "rangeEnd": "",
		"time_zone": "UTC", "source": "tinkoff",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/tinkoff/next/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.AddCookie(&http.Cookie{Name: "temp_token", Value: temp})

	resp, payload := h.doRequest(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/tinkoff/expenses/?period=week&source=tinkoff&time_zone=UTC", payload["redirect_url"])

	// The stash is one-shot: the cookie comes back expired.
	expired := false
	for _, c := range resp.Cookies() {
		if c.Name == "temp_token" && c.MaxAge < 0 {
			expired = true
		}
	}
	assert.True(t, expired)
}

func TestUpdateSchedule(t *testing.T) {
	h := newHarness(t)

	resp, payload := h.do(t, http.MethodPut, "/tinkoff/scheduler/", `{"time":"21:30"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Расписание успешно обновлено", payload["message"])
	assert.Equal(t, "30 21 * * *", h.store.savedSpec)
	assert.Equal(t, []string{"30 21 * * *"}, h.sched.specs)
}

func TestUpdateScheduleRejectsBadClock(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{`{"time":"25:00"}`, `{"time":"21:60"}`, `{"time":"nonsense"}`} {
		resp, _ := h.do(t, http.MethodPut, "/tinkoff/scheduler/", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	}
	assert.Empty(t, h.sched.specs)
	assert.Empty(t, h.store.savedSpec)
}

func TestSaveKeywordsUnknownCategory(t *testing.T) {
	h := newHarness(t)
	h.store.categories = []store.CategoryKeywords{{ID: 1, Title: "Продукты"}}

	body := `{"keywords":[{"description":"кофейня","category_name":"Кафе"}]}`
	resp, payload := h.do(t, http.MethodPost, "/tinkoff/expenses/keywords/", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, payload["detail"], "Кафе")
}

func TestSaveKeywordsBindsAndUnbinds(t *testing.T) {
	h := newHarness(t)
	h.store.categories = []store.CategoryKeywords{{ID: 3, Title: "Продукты"}}
	h.store.keywords = map[string]int64{"старое": 3}

	body := `{"keywords":[{"description":"пятерочка","category_name":"Продукты"},{"description":"старое","category_name":""}]}`
	resp, _ := h.do(t, http.MethodPost, "/tinkoff/expenses/keywords/", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), h.store.keywords["пятерочка"])
	assert.NotContains(t, h.store.keywords, "старое")
}

func TestSaveOTPValidation(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodPost, "/tinkoff/save_otp/?otp=12ab", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/tinkoff/save_otp/?otp=1234", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1234", h.store.savedOTP)
}

func TestLastError(t *testing.T) {
	h := newHarness(t)

	resp, payload := h.do(t, http.MethodGet, "/tinkoff/expenses/last_error/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, payload["last_error"])

	h.store.lastError = &store.ErrorRecord{Text: "Не удалось войти"}
	resp, payload = h.do(t, http.MethodGet, "/tinkoff/expenses/last_error/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Не удалось войти", payload["last_error"])
}

func TestBotCheckAccess(t *testing.T) {
	h := newHarness(t)
	h.store.users["ivan"] = &store.User{ID: 1, Username: "ivan", TG: "ivan_tg"}

	mac := hmac.New(sha256.New, []byte(testBotToken))
	mac.Write([]byte("chat_id=777&username=ivan_tg"))
	signed := "chat_id=777&username=ivan_tg&hash=" + hex.EncodeToString(mac.Sum(nil))
	token := base64.URLEncoding.EncodeToString([]byte(signed))

	resp, payload := h.do(t, http.MethodPost, "/bot/check_access/", `{"token":"`+token+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, payload["detail"], "ivan")
	assert.Equal(t, int64(777), h.store.boundChat)
}

func TestBotCheckAccessBadSignature(t *testing.T) {
	h := newHarness(t)
	token := base64.URLEncoding.EncodeToString([]byte("chat_id=777&username=x&hash=deadbeef"))

	resp, _ := h.do(t, http.MethodPost, "/bot/check_access/", `{"token":"`+token+`"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBotExpensesScopedToChatCard(t *testing.T) {
	h := newHarness(t)
	h.store.chatCards = map[int64]string{777: "*1234"}
	h.store.expenses = []store.Expense{
		{Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), CardNumber: "*1234", Amount: 250, Description: "Метро"},
	}

	mac := hmac.New(sha256.New, []byte(testBotToken))
	mac.Write([]byte("chat_id=777"))
	signed := "chat_id=777&hash=" + hex.EncodeToString(mac.Sum(nil))
	token := base64.URLEncoding.EncodeToString([]byte(signed))

	resp, payload := h.do(t, http.MethodGet, "/bot/expenses/?period=month&time_zone=UTC&token="+token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 250.0, payload["total_expense"], 0.01)
	assert.Equal(t, []string{"*1234"}, h.store.queryCards)
}

func TestBotExpensesUnboundChat(t *testing.T) {
	h := newHarness(t)

	mac := hmac.New(sha256.New, []byte(testBotToken))
	mac.Write([]byte("chat_id=42"))
	signed := "chat_id=42&hash=" + hex.EncodeToString(mac.Sum(nil))
	token := base64.URLEncoding.EncodeToString([]byte(signed))

	resp, _ := h.do(t, http.MethodGet, "/bot/expenses/?period=month&time_zone=UTC&token="+token, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAuthLogin(t *testing.T) {
	h := newHarness(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	h.store.users["ivan"] = &store.User{ID: 1, Username: "ivan", Password: string(hash)}

	resp, payload := h.do(t, http.MethodPost, "/auth/login/", `{"username":"ivan","password":"secret123"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, payload["access_token"])

	resp, _ = h.do(t, http.MethodPost, "/auth/login/", `{"username":"ivan","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/auth/login/", `{"username":"ghost","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
