package webhooks

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy, filling unset values from the defaults
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry determines if a delivery should be retried after attempts tries
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	return err != nil && attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the delay before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * multiplier^(attempts-1)
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime calculates when the next retry should occur
func (p *RetryPolicy) NextRetryTime(now time.Time, attempts int) time.Time {
	return now.Add(p.NextRetryDelay(attempts))
}

// RetryWorker re-attempts deliveries whose retry time has come
type RetryWorker struct {
	manager  *Manager
	store    Store
	lease    time.Duration
	batch    int
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRetryWorker creates a retry worker for the manager's deliveries
func NewRetryWorker(manager *Manager) *RetryWorker {
	return &RetryWorker{
		manager: manager,
		store:   manager.store,
		lease:   time.Minute,
		batch:   50,
		stopCh:  make(chan struct{}),
	}
}

// Start polls for due retries every checkInterval until ctx is done or Stop is called
func (w *RetryWorker) Start(ctx context.Context, checkInterval time.Duration) {
	ticker := time.NewTicker(checkInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		defer observability.RecoverPanic(w.manager.logger, "webhook retry worker")

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				if n, err := w.ProcessRetries(ctx); err != nil {
					w.manager.logger.WithError(err).Error("Failed to process webhook retries")
				} else if n > 0 {
					w.manager.logger.WithField("count", n).Debug("Retried webhook deliveries")
				}
			}
		}
	}()
}

// Stop stops the worker and waits for the current batch to finish
func (w *RetryWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// ProcessRetries claims due deliveries and attempts each once. It returns how many
// were processed.
func (w *RetryWorker) ProcessRetries(ctx context.Context) (int, error) {
	now := w.manager.now()
	deliveries, err := w.store.ClaimRetries(ctx, now, w.lease, w.batch)
	if err != nil {
		return 0, err
	}

	for _, d := range deliveries {
		hook, err := w.store.GetByID(ctx, d.WebhookID)
		switch {
		case errors.Is(err, ErrNotFound):
			w.abandon(ctx, d, "webhook not found")
			continue
		case err != nil:
			return 0, err
		case !hook.Active:
			w.abandon(ctx, d, "webhook is inactive")
			continue
		}
		w.manager.attempt(ctx, hook, d)
	}
	return len(deliveries), nil
}

func (w *RetryWorker) abandon(ctx context.Context, d *Delivery, reason string) {
	now := w.manager.now()
	d.Status = DeliveryStatusFailed
	d.ErrorMessage = reason
	d.NextRetryAt = nil
	d.CompletedAt = &now
	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		w.manager.logger.WithError(err).WithField("delivery_id", d.ID).Error("Failed to record webhook delivery")
	}
}
