package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	mu      sync.Mutex
	due     []int64
	dueErr  error
	pending map[int64]int
	fail    map[int64]error
}

func (f *fakeCloser) DueForRenewal(ctx context.Context, at time.Time) ([]int64, error) {
	return f.due, f.dueErr
}

func (f *fakeCloser) CloseCycle(ctx context.Context, teamID int64, at time.Time) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[teamID]; ok {
		return nil, err
	}
	if f.pending[teamID] == 0 {
		return nil, ErrCycleNotFinished
	}
	f.pending[teamID]--
	return &Invoice{TeamID: teamID, Number: InvoiceNumber(teamID, at)}, nil
}

func TestRunner_Run(t *testing.T) {
	closer := &fakeCloser{
		due:     []int64{1, 2, 3, 4},
		pending: map[int64]int{1: 2, 4: 1},
		fail: map[int64]error{
			2: errors.New("connection reset"),
			3: ErrCanceled,
		},
	}

	var mu sync.Mutex
	var notified []int64
	runner := NewRunner(closer, 2, func(ctx context.Context, inv *Invoice) {
		mu.Lock()
		notified = append(notified, inv.TeamID)
		mu.Unlock()
	})

	res, err := runner.Run(context.Background(), utc(2024, 5, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Teams)
	assert.Len(t, res.Invoices, 3)
	assert.ElementsMatch(t, []int64{1, 1, 4}, notified)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[2].Error(), "connection reset")
}

func TestRunner_DueError(t *testing.T) {
	runner := NewRunner(&fakeCloser{dueErr: errors.New("boom")}, 0, nil)
	_, err := runner.Run(context.Background(), utc(2024, 5, 1, 0))
	assert.Error(t, err)
}

func TestRunner_CanceledContext(t *testing.T) {
	closer := &fakeCloser{due: []int64{1}, pending: map[int64]int{1: 5}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(closer, 1, nil).Run(ctx, utc(2024, 5, 1, 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Invoices)
}

func TestRunner_OnInvoicePanicIsolated(t *testing.T) {
	closer := &fakeCloser{due: []int64{1, 2}, pending: map[int64]int{1: 1, 2: 1}}
	onInvoice := func(ctx context.Context, inv *Invoice) {
		if inv.TeamID == 1 {
			panic("notifier exploded")
		}
	}

	res, err := NewRunner(closer, 2, onInvoice).Run(context.Background(), utc(2024, 5, 1, 0))
	require.NoError(t, err)
	require.Contains(t, res.Failed, int64(1))
	assert.EqualError(t, res.Failed[1], "panic: notifier exploded")
	assert.NotContains(t, res.Failed, int64(2))
}
