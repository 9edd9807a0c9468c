package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
)

type recorder struct {
	mu       sync.Mutex
	outcomes map[bool]int
}

func (r *recorder) RecordEventDelivery(_ string, delivered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[bool]int{}
	}
	r.outcomes[delivered]++
}

func (r *recorder) count(delivered bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[delivered]
}

func event(id string) models.Event {
	return models.NewEvent(models.EventGradeAssigned, id, time.Now().UTC(), nil)
}

func TestDispatcherDeliversPublishedEvents(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	d := NewDispatcher(func(_ context.Context, e models.Event) error {
		mu.Lock()
		seen[e.AggregateID] = true
		mu.Unlock()
		return nil
	}, Config{Workers: 2})
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Publish(context.Background(), event("g1"), event("g2"), event("g3")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	attempts := 0
	d := NewDispatcher(func(context.Context, models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	}, Config{MaxRetries: 3, RetryDelay: time.Millisecond, Recorder: rec})
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Publish(context.Background(), event("g1")))

	assert.Eventually(t, func() bool { return rec.count(true) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.count(false))
}

func TestDispatcherGivesUpAfterMaxRetries(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(func(context.Context, models.Event) error {
		return errors.New("rejected")
	}, Config{MaxRetries: 1, RetryDelay: time.Millisecond, Recorder: rec})
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Publish(context.Background(), event("g1")))

	assert.Eventually(t, func() bool { return rec.count(false) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.count(false))
}

func TestDispatcherRejectsPublishWhenStopped(t *testing.T) {
	d := NewDispatcher(LogHandler(nil), Config{})

	err := d.Publish(context.Background(), event("g1"))
	assert.ErrorIs(t, err, ErrNotRunning)

	d.Start(context.Background())
	d.Stop()
	assert.ErrorIs(t, d.Publish(context.Background(), event("g1")), ErrNotRunning)
}

func TestDispatcherStopWhileDeliveriesFail(t *testing.T) {
	for i := 0; i < 50; i++ {
		release := make(chan struct{})
		d := NewDispatcher(func(context.Context, models.Event) error {
			<-release
			return errors.New("broker unavailable")
		}, Config{Workers: 4, MaxRetries: 3, RetryDelay: time.Millisecond})
		d.Start(context.Background())

		require.NoError(t, d.Publish(context.Background(), event("g1"), event("g2"), event("g3"), event("g4")))

		done := make(chan struct{})
		go func() {
			d.Stop()
			close(done)
		}()
		close(release)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stop did not return")
		}
	}
}
