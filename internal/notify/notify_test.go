package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"quorum/internal/logging"
)

func TestFuncAdapter(t *testing.T) {
	var got string
	n := Func(func(_ context.Context, message string) error {
		got = message
		return nil
	})
	if err := n.Notify(context.Background(), "task blocked"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got != "task blocked" {
		t.Errorf("message = %q", got)
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logging.NopLogger())
	if err := n.Notify(context.Background(), "escalation"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Notify(context.Background(), "worker failed"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if received.Message != "worker failed" || received.Timestamp.IsZero() {
		t.Errorf("payload = %+v", received)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 500")
	}
}
