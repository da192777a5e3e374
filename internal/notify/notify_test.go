package notify

import (
	"context"
	stdjson "encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/config"
)

type fakeChatStore struct {
	byCard map[string]int64
}

func (f *fakeChatStore) ChatIDsForCards(ctx context.Context, cards []string) ([]int64, error) {
	var out []int64
	for _, c := range cards {
		if id, ok := f.byCard[c]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestNotifyExpenses(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.BotConfig{
		APIURL:                    srv.URL,
		RequestTimeout:            5 * time.Second,
		TransferNotificationCards: []string{"9999"},
	}
	st := &fakeChatStore{byCard: map[string]int64{"1234": 111, "9999": 222}}
	n := New(cfg, st, zap.NewNop())

	require.NoError(t, n.NotifyExpenses(context.Background(), []string{"1234"}))
	assert.Equal(t, "/auto_save_mailing", gotPath)

	var payload struct {
		ChatIDs []string `json:"chat_ids"`
	}
	require.NoError(t, stdjson.Unmarshal(gotBody, &payload))
	assert.ElementsMatch(t, []string{"111", "222"}, payload.ChatIDs)
}

func TestNotifyExpensesNoRecipients(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cfg := config.BotConfig{APIURL: srv.URL, RequestTimeout: time.Second}
	n := New(cfg, &fakeChatStore{}, zap.NewNop())

	require.NoError(t, n.NotifyExpenses(context.Background(), []string{"unknown"}))
	assert.False(t, called, "no request may be sent without recipients")
}

func TestNotifyErrorPropagatesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.BotConfig{
		APIURL:                 srv.URL,
		RequestTimeout:         time.Second,
		ErrorNotificationCards: []string{"9999"},
	}
	n := New(cfg, &fakeChatStore{byCard: map[string]int64{"9999": 222}}, zap.NewNop())

	err := n.NotifyError(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
