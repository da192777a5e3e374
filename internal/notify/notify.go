// Package notify triggers bot-server mailings after unattended imports.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Mailing endpoint paths on the bot server.
const (
	expenseMailingPath = "/auto_save_mailing"
	errorMailingPath   = "/auto_save_error_mailing"
)

// chatStore is the subset of the store the notifier needs.
type chatStore interface {
	ChatIDsForCards(ctx context.Context, cards []string) ([]int64, error)
}

// Notifier resolves card numbers to Telegram chat ids and asks the bot
// server to deliver the mailings.
type Notifier struct {
	cfg    config.BotConfig
	store  chatStore
	client *http.Client
	logger *zap.Logger
}

func New(cfg config.BotConfig, st chatStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.Named("notify"),
	}
}

// mailingRequest is the bot server's expected payload.
type mailingRequest struct {
	ChatIDs []string `json:"chat_ids"`
}

// NotifyExpenses triggers the daily-spend mailing: users whose card spent
// today, plus the always-notified transfer recipients.
func (n *Notifier) NotifyExpenses(ctx context.Context, cards []string) error {
	ids, err := n.store.ChatIDsForCards(ctx, cards)
	if err != nil {
		return fmt.Errorf("failed to resolve expense chat ids: %w", err)
	}
	transferIDs, err := n.store.ChatIDsForCards(ctx, n.cfg.TransferNotificationCards)
	if err != nil {
		return fmt.Errorf("failed to resolve transfer chat ids: %w", err)
	}

	chatIDs := dedupe(append(ids, transferIDs...))
	if len(chatIDs) == 0 {
		n.logger.Debug("No recipients for the expense mailing.")
		return nil
	}
	return n.post(ctx, expenseMailingPath, chatIDs)
}

// NotifyError triggers the failure mailing to the configured operators.
func (n *Notifier) NotifyError(ctx context.Context) error {
	ids, err := n.store.ChatIDsForCards(ctx, n.cfg.ErrorNotificationCards)
	if err != nil {
		return fmt.Errorf("failed to resolve error chat ids: %w", err)
	}
	if len(ids) == 0 {
		n.logger.Debug("No recipients for the error mailing.")
		return nil
	}
	return n.post(ctx, errorMailingPath, ids)
}

func (n *Notifier) post(ctx context.Context, path string, chatIDs []int64) error {
	payload := mailingRequest{ChatIDs: make([]string, 0, len(chatIDs))}
	for _, id := range chatIDs {
		payload.ChatIDs = append(payload.ChatIDs, strconv.FormatInt(id, 10))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mailing payload: %w", err)
	}

	url := n.cfg.MailingURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mailing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailing request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailing request to %s returned %s", url, resp.Status)
	}
	n.logger.Info("Mailing dispatched.", zap.String("path", path), zap.Int("recipients", len(chatIDs)))
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
