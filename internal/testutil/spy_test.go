package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/signal"
)

func TestSpyCache_RecordsCalls(t *testing.T) {
	spy := NewSpyCache(nil)
	ctx := context.Background()

	_, ok, err := spy.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, spy.SetWithTTL(ctx, "a", []byte("1"), time.Minute))
	_, ok, err = spy.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = spy.Delete(ctx, "a")
	require.NoError(t, err)
	_, err = spy.DeleteByPattern(ctx, "x:*")
	require.NoError(t, err)

	assert.Equal(t, 1, spy.Misses())
	assert.Equal(t, 1, spy.Hits())
	assert.Equal(t, []string{"a", "a"}, spy.Gets())
	assert.Equal(t, []string{"a"}, spy.Sets())
	assert.Equal(t, []string{"a"}, spy.Deletes())
	assert.Equal(t, []string{"x:*"}, spy.Patterns())

	spy.Reset()
	assert.Empty(t, spy.Gets())
	assert.Zero(t, spy.Hits())
}

func TestSpyCache_InjectedErrors(t *testing.T) {
	spy := NewSpyCache(nil)
	boom := errors.New("boom")
	spy.GetErr = boom
	spy.SetErr = boom

	_, _, err := spy.Get(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, spy.SetWithTTL(context.Background(), "a", nil, 0), boom)
	assert.Zero(t, spy.Misses())
}

func TestEventRecorder(t *testing.T) {
	rec := NewEventRecorder()
	bus := signal.New(signal.DefaultConfig())
	_, err := bus.Subscribe(rec.Handle)
	require.NoError(t, err)

	bus.Emit(context.Background(), signal.NewEvent(signal.Create, "t"))
	bus.Emit(context.Background(), signal.NewEvent(signal.Delete, "t"))

	assert.True(t, rec.WaitFor(2, time.Second))
	assert.Len(t, rec.OfType(signal.Create), 1)
	assert.Len(t, rec.OfType(signal.Delete), 1)
	assert.False(t, rec.WaitFor(3, 10*time.Millisecond))

	rec.Reset()
	assert.Zero(t, rec.Len())
}
