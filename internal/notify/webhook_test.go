package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmeshcher/housing-queue/internal/model"
)

func testNotification() model.Notification {
	return model.Notification{
		ID:                "6f2a1d9e-0000-4000-8000-000000000001",
		ApplicationID:     1,
		ApplicationNumber: "APP000001",
		ApplicantID:       7,
		Kind:              model.NotificationStatusChange,
		Title:             "Application Status Updated",
		Message:           "Your application status has changed to In Queue.",
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestWebhookNotify_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q, want application/json", ct)
		}

		var got model.Notification
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ApplicationNumber != "APP000001" || got.Kind != model.NotificationStatusChange {
			t.Fatalf("unexpected notification: %+v", got)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	notifier := NewWebhookNotifier(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := notifier.Notify(ctx, testNotification()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
}

func TestWebhookNotify_RetriesAfterTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	notifier := NewWebhookNotifier(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := notifier.Notify(ctx, testNotification()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestWebhookNotify_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	notifier := NewWebhookNotifier(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := notifier.Notify(ctx, testNotification()); err == nil {
		t.Fatalf("expected error for 400")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestWebhookNotify_ContextCanceledDuringBackoff(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	notifier := NewWebhookNotifier(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, testNotification()); err == nil {
		t.Fatalf("expected error when context expires")
	}
}
