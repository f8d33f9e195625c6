package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/diegodella1/slackalerts/internal/storage"
)

func testPayload() Payload {
	return Payload{
		Text:      "BTC Alert: price above $60,000.00",
		Price:     dec("65000"),
		Variation: decPtr("1.56"),
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatchGenericSuccess(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(time.Second, zerolog.Nop())
	outcome := d.Dispatch(context.Background(), storage.Webhook{URL: srv.URL, Type: storage.WebhookTypeGeneric}, testPayload())

	if !outcome.Attempted || !outcome.Sent {
		t.Fatalf("期望投递成功, 实际 %+v", outcome)
	}
	if received["text"] == "" {
		t.Fatal("text 应非空")
	}
	if _, ok := received["price"]; !ok {
		t.Fatal("generic payload 应包含 price")
	}
	if _, ok := received["variation"]; !ok {
		t.Fatal("generic payload 应包含 variation")
	}
}

func TestDispatchSlackBlocks(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(time.Second, zerolog.Nop())
	outcome := d.Dispatch(context.Background(), storage.Webhook{URL: srv.URL, Type: storage.WebhookTypeSlack}, testPayload())

	if !outcome.Sent {
		t.Fatalf("期望投递成功, 实际 %+v", outcome)
	}
	blocks, ok := received["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		t.Fatalf("slack payload 应包含 blocks, 实际 %#v", received)
	}
}

func TestDispatchDiscordContent(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(time.Second, zerolog.Nop())
	d.Dispatch(context.Background(), storage.Webhook{URL: srv.URL, Type: storage.WebhookTypeDiscord}, testPayload())

	if received["content"] != testPayload().Text {
		t.Fatalf("discord payload 应使用 content 字段, 实际 %#v", received)
	}
}

func TestDispatchRemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(time.Second, zerolog.Nop())
	outcome := d.Dispatch(context.Background(), storage.Webhook{URL: srv.URL, Type: storage.WebhookTypeGeneric}, testPayload())

	if outcome.Sent {
		t.Fatal("HTTP 500 不应视为投递成功")
	}
	if !outcome.Attempted {
		t.Fatal("远端拒绝仍计为一次尝试")
	}
	if !strings.Contains(outcome.Response, "500") {
		t.Fatalf("响应描述应包含状态码, 实际 %q", outcome.Response)
	}
}

func TestDispatchTransportError(t *testing.T) {
	d := NewWebhookDispatcher(100*time.Millisecond, zerolog.Nop())
	outcome := d.Dispatch(context.Background(), storage.Webhook{URL: "http://127.0.0.1:1", Type: storage.WebhookTypeGeneric}, testPayload())

	if outcome.Sent {
		t.Fatal("连接失败不应视为投递成功")
	}
	if outcome.Response == "" {
		t.Fatal("失败原因应被记录")
	}
}
