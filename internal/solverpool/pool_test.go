package solverpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDoPassesSolveID(t *testing.T) {
	p := New(1, 0, nil)
	var got string
	err := p.Do(context.Background(), func(ctx context.Context, id string) error {
		got = id
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 36)
}

func TestDoTimeout(t *testing.T) {
	p := New(1, 20*time.Millisecond, nil)
	err := p.Do(context.Background(), func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrDeadline)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoCallerCancelIsNotDeadline(t *testing.T) {
	p := New(1, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(ctx context.Context, _ string) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeadline)
}

func TestMapBoundsConcurrency(t *testing.T) {
	p := New(3, 0, nil)
	var running, peak atomic.Int32
	out, err := Map(context.Background(), p, 12, func(ctx context.Context, i int, _ string) (int, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return i * i, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMapFirstErrorWins(t *testing.T) {
	p := New(2, 0, nil)
	boom := errors.New("boom")
	_, err := Map(context.Background(), p, 6, func(ctx context.Context, i int, _ string) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0, 0, nil).Workers())
}
