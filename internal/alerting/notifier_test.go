package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestNotifier(url string) *TelegramNotifier {
	return NewTelegramNotifier(TelegramOptions{
		BotToken:           "token",
		ChatID:             "chat",
		BaseURL:            url,
		Timeout:            time.Second,
		DisableLinkPreview: true,
	}, testLogger())
}

func TestTelegramNotifierSuccess(t *testing.T) {
	var received sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Fatalf("路径应为 /bottoken/sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	note := Notification{Direction: DirectionAbove, Text: "hello"}
	if err := newTestNotifier(srv.URL).Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received.ChatID != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received.Text != "hello" {
		t.Fatalf("text 不正确: %#v", received)
	}
	if !received.DisableWebPagePreview {
		t.Fatal("disable_web_page_preview 应为 true")
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), Notification{Text: "x"})
	if !errors.Is(err, ErrNotifyFailed) {
		t.Fatalf("ok=false 应返回 ErrNotifyFailed, 实际 %v", err)
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), Notification{Text: "x"})
	if !errors.Is(err, ErrNotifyFailed) {
		t.Fatalf("HTTP 401 应返回 ErrNotifyFailed, 实际 %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("错误信息应包含状态码: %v", err)
	}
}

func TestTelegramNotifierNetworkErrorRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := NewTelegramNotifier(TelegramOptions{BotToken: "secret-token", ChatID: "chat", BaseURL: url, Timeout: time.Second}, testLogger())
	err := n.Notify(context.Background(), Notification{Text: "x"})
	if !errors.Is(err, ErrNotifyFailed) {
		t.Fatalf("网络错误应返回 ErrNotifyFailed, 实际 %v", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("错误信息不应包含 bot token: %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
