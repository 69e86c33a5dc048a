package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotifyFailed wraps every failed delivery. Callers must not persist state after it.
var ErrNotifyFailed = errors.New("notification failed")

// Notification 封装告警上下文。
type Notification struct {
	Direction Direction
	Text      string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramOptions parameterise the Telegram notifier.
type TelegramOptions struct {
	BotToken           string
	ChatID             string
	BaseURL            string
	Timeout            time.Duration
	DisableLinkPreview bool
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	opts    TelegramOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.opts.ChatID,
		Text:                  note.Text,
		DisableWebPagePreview: n.opts.DisableLinkPreview,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal telegram payload: %v", ErrNotifyFailed, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.opts.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create telegram request: %v", ErrNotifyFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// the url carries the bot token; keep it out of logs and errors
		return fmt.Errorf("%w: send telegram request: %v", ErrNotifyFailed, redactToken(err, n.opts.BotToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: telegram 响应码异常: %d %s", ErrNotifyFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("%w: telegram 返回 ok=false: %s", ErrNotifyFailed, result.Description)
		}
	}

	n.logger.Info().Str("direction", string(note.Direction)).Msg("告警已发送 (Telegram)")
	return nil
}

func redactToken(err error, token string) string {
	msg := err.Error()
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "<redacted>")
}

var _ Notifier = (*TelegramNotifier)(nil)
