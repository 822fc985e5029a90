package subscriptions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateConcurrentCallbacks(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	res, err := l.Subscribe(ctx, SubscribeRequest{DoctorID: "doc-1", PlanType: "basic", Phone: "0700"})
	require.NoError(t, err)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := l.Activate(ctx, res.TrackingID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				applied++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, applied)

	sub, err := l.GetByTrackingID(ctx, res.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	require.NotNil(t, sub.EndsAt)
}

func TestActivateRacesFailure(t *testing.T) {
	for i := 0; i < 25; i++ {
		l, _ := newTestLedger(t)
		ctx := context.Background()
		res, err := l.Subscribe(ctx, SubscribeRequest{DoctorID: "doc-1", PlanType: "basic", Phone: "0700"})
		require.NoError(t, err)

		var (
			wg                   sync.WaitGroup
			activated, failed    bool
			activateErr, failErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, activated, activateErr = l.Activate(ctx, res.TrackingID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, failed, failErr = l.Fail(ctx, res.TrackingID)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, activateErr)
		require.NoError(t, failErr)
		assert.True(t, activated != failed, "exactly one outcome must apply")

		sub, err := l.GetByTrackingID(ctx, res.TrackingID)
		require.NoError(t, err)
		if activated {
			assert.Equal(t, StatusActive, sub.Status)
		} else {
			assert.Equal(t, StatusFailed, sub.Status)
			assert.Nil(t, sub.EndsAt)
		}
	}
}
