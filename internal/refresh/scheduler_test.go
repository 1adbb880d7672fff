package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcal/internal/availability"
)

type countingSyncer struct {
	calls  atomic.Int32
	forced atomic.Bool
	err    error
}

func (s *countingSyncer) GetBookedDays(ctx context.Context, force bool) (availability.Result, error) {
	s.calls.Add(1)
	s.forced.Store(force)
	if _, ok := ctx.Deadline(); !ok {
		return availability.Result{}, errors.New("refresh run without deadline")
	}
	return availability.Result{}, s.err
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", &countingSyncer{}, time.Second)
	assert.ErrorContains(t, err, "refresh schedule")
}

func TestRunOnceForcesSync(t *testing.T) {
	syncer := &countingSyncer{}
	s, err := New("*/5 * * * *", syncer, time.Second)
	require.NoError(t, err)

	s.RunOnce(context.Background())

	assert.EqualValues(t, 1, syncer.calls.Load())
	assert.True(t, syncer.forced.Load())
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("upstream down")}
	s, err := New("@hourly", syncer, time.Second)
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.RunOnce(context.Background()) })
	assert.EqualValues(t, 1, syncer.calls.Load())
}

func TestSchedulerTicks(t *testing.T) {
	syncer := &countingSyncer{}
	s, err := New("@every 1s", syncer, time.Second)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	after := syncer.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, syncer.calls.Load())
}
