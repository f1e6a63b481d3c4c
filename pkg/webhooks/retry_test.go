package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts to be 5, got %d", config.MaxAttempts)
	}
	if config.InitialDelay != 1*time.Second {
		t.Errorf("Expected InitialDelay to be 1s, got %v", config.InitialDelay)
	}
	if config.MaxDelay != 5*time.Minute {
		t.Errorf("Expected MaxDelay to be 5m, got %v", config.MaxDelay)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("Expected BackoffMultiplier to be 2.0, got %v", config.BackoffMultiplier)
	}
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: -1, BackoffMultiplier: 0.5})

	if policy.config.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts to default to 5, got %d", policy.config.MaxAttempts)
	}
	if policy.config.InitialDelay != time.Second {
		t.Errorf("Expected InitialDelay to default to 1s, got %v", policy.config.InitialDelay)
	}
	if policy.config.BackoffMultiplier != 2.0 {
		t.Errorf("Expected BackoffMultiplier to default to 2.0, got %v", policy.config.BackoffMultiplier)
	}

	custom := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffMultiplier: 1.5})
	if custom.config.MaxAttempts != 3 || custom.config.InitialDelay != 2*time.Second {
		t.Errorf("Expected custom config to be kept, got %+v", custom.config)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())
	someErr := errors.New("boom")

	tests := []struct {
		attempts int
		err      error
		want     bool
	}{
		{1, someErr, true},
		{4, someErr, true},
		{5, someErr, false},
		{6, someErr, false},
		{1, nil, false},
	}
	for _, tt := range tests {
		if got := policy.ShouldRetry(tt.attempts, tt.err); got != tt.want {
			t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempts, tt.err, got, tt.want)
		}
	}
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{10, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := policy.NextRetryDelay(tt.attempts); got != tt.want {
			t.Errorf("NextRetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}

	if got := policy.NextRetryTime(testNow, 3); !got.Equal(testNow.Add(4 * time.Second)) {
		t.Errorf("NextRetryTime = %v, want %v", got, testNow.Add(4*time.Second))
	}
}

func retrying(store *memStore, hookID int64, attempts int) *Delivery {
	due := testNow.Add(-time.Second)
	d := &Delivery{
		WebhookID: hookID,
		EventID:   "evt-1",
		EventType: EventContractSent,
		Payload:   []byte(`{"id":"evt-1","type":"contract.sent","data":{}}`),
		Status:    DeliveryStatusRetrying,
		Attempts:  attempts,
	}
	store.CreateDelivery(context.Background(), d)
	d.NextRetryAt = &due
	store.UpdateDelivery(context.Background(), d)
	return d
}

func TestRetryWorker_ProcessRetries(t *testing.T) {
	srv, got := newReceiver(t, http.StatusOK)
	store := newMemStore()
	m := newTestManager(store)
	hook, _ := m.Register(context.Background(), 5, &CreateWebhookRequest{URL: srv.URL, Events: []EventType{EventContractSent}})
	d := retrying(store, hook.ID, 2)

	n, err := NewRetryWorker(m).ProcessRetries(context.Background())
	if err != nil {
		t.Fatalf("ProcessRetries failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 processed delivery, got %d", n)
	}
	if len(*got) != 1 {
		t.Errorf("Expected 1 request, got %d", len(*got))
	}

	after := store.deliveries[d.ID]
	if after.Status != DeliveryStatusSuccess || after.Attempts != 3 {
		t.Errorf("Expected success on the third attempt, got %s after %d", after.Status, after.Attempts)
	}
}

func TestRetryWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	srv, _ := newReceiver(t, http.StatusInternalServerError)
	store := newMemStore()
	m := newTestManager(store)
	hook, _ := m.Register(context.Background(), 5, &CreateWebhookRequest{URL: srv.URL, Events: []EventType{EventContractSent}})
	d := retrying(store, hook.ID, 4)

	if _, err := NewRetryWorker(m).ProcessRetries(context.Background()); err != nil {
		t.Fatalf("ProcessRetries failed: %v", err)
	}

	after := store.deliveries[d.ID]
	if after.Status != DeliveryStatusFailed {
		t.Errorf("Expected failed after 5 attempts, got %s", after.Status)
	}
	if after.NextRetryAt != nil || after.CompletedAt == nil {
		t.Error("Expected a completed delivery with no retry scheduled")
	}
}

func TestRetryWorker_AbandonsMissingOrInactive(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store)
	hook, _ := m.Register(context.Background(), 5, &CreateWebhookRequest{URL: "https://example.com", Events: []EventType{EventContractSent}})
	inactive := false
	m.Update(context.Background(), 5, hook.ID, &UpdateWebhookRequest{Active: &inactive})

	orphan := retrying(store, 999, 1)
	paused := retrying(store, hook.ID, 1)

	if _, err := NewRetryWorker(m).ProcessRetries(context.Background()); err != nil {
		t.Fatalf("ProcessRetries failed: %v", err)
	}

	if got := store.deliveries[orphan.ID]; got.Status != DeliveryStatusFailed || got.ErrorMessage != "webhook not found" {
		t.Errorf("Unexpected orphan delivery %+v", got)
	}
	if got := store.deliveries[paused.ID]; got.Status != DeliveryStatusFailed || got.ErrorMessage != "webhook is inactive" {
		t.Errorf("Unexpected paused delivery %+v", got)
	}
}

func TestRetryWorker_StartStop(t *testing.T) {
	m := newTestManager(newMemStore())
	w := NewRetryWorker(m)

	w.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	// a second Stop must not panic
	w.Stop()
}
