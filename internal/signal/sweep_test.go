package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/signal"
	"github.com/roach88/storehaus/internal/testutil"
)

func TestSweepRemovesNeverExecuted(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := signal.DefaultConfig()
	cfg.CallbackTimeout = 200 * time.Millisecond
	cfg.InactiveCallbackThreshold = time.Hour
	bus := signal.New(cfg, signal.WithClock(clock.Now))

	executed := testutil.NewEventRecorder()
	_, err := bus.Subscribe(executed.Handle)
	require.NoError(t, err)
	bus.Emit(context.Background(), signal.NewEvent(signal.Create, "t"))
	_, err = bus.Subscribe(func(context.Context, signal.Event) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 0, bus.Sweep())

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 0, bus.Sweep(), "younger than the threshold")

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, bus.Sweep())
	assert.Equal(t, 1, bus.Len(), "executed callback survives")
	assert.Len(t, executed.Events(), 1)
}
