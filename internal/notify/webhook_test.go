package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zapgastos/internal/alert"
)

func TestWebhook_Notify(t *testing.T) {
	t.Run("posts event", func(t *testing.T) {
		var got Event
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected json content type, got %q", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		wh := NewWebhook(srv.URL, time.Second)
		err := wh.Notify(context.Background(), &alert.Descriptor{Kind: alert.KindWarning, PeriodID: "p-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Event != EventBudgetAlert {
			t.Errorf("expected event %q, got %q", EventBudgetAlert, got.Event)
		}
		if got.Alert == nil || got.Alert.PeriodID != "p-1" {
			t.Errorf("alert not delivered: %+v", got.Alert)
		}
	})

	t.Run("non 2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), &alert.Descriptor{})
		if err == nil {
			t.Fatal("expected error for 502 response")
		}
	})

	t.Run("empty url disables", func(t *testing.T) {
		if wh := NewWebhook("", time.Second); wh != nil {
			t.Fatal("expected nil notifier for empty url")
		}
	})
}
