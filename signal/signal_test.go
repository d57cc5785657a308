package signal

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/phsa/memorder"
	"github.com/stretchr/testify/require"
)

func TestSignalLoadStore(t *testing.T) {
	s := New(1)
	require.EqualValues(t, 1, s.Load(memorder.Acquire))
	s.Store(5, memorder.Release)
	require.EqualValues(t, 5, s.Load(memorder.Acquire))
}

func TestSignalRMW(t *testing.T) {
	s := New(10)
	require.EqualValues(t, 10, s.Add(5, memorder.SeqCst))
	require.EqualValues(t, 15, s.Load(memorder.Relaxed))
	require.EqualValues(t, 15, s.Sub(5, memorder.SeqCst))
	require.EqualValues(t, 10, s.Load(memorder.Relaxed))
}

func TestSignalCompareExchange(t *testing.T) {
	s := New(1)
	old, ok := s.CompareExchange(1, 0, memorder.AcqRel)
	require.True(t, ok)
	require.EqualValues(t, 1, old)
	require.EqualValues(t, 0, s.Load(memorder.Acquire))
}

func TestSignalWaitSatisfiedImmediately(t *testing.T) {
	s := New(0)
	v := s.Wait(context.Background(), func(v int64) bool { return v == 0 }, NoTimeout, memorder.Acquire)
	require.EqualValues(t, 0, v)
}

func TestSignalWaitReleasedConcurrently(t *testing.T) {
	s := New(1)
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Store(0, memorder.Release)
	}()
	v := s.Wait(context.Background(), func(v int64) bool { return v == 0 }, NoTimeout, memorder.Acquire)
	require.EqualValues(t, 0, v)
}

func TestSignalWaitTimesOut(t *testing.T) {
	s := New(1)
	start := time.Now()
	v := s.Wait(context.Background(), func(v int64) bool { return v == 0 }, uint64(10*time.Millisecond), memorder.Acquire)
	require.EqualValues(t, 1, v)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSignalWaitContextCancelled(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	v := s.Wait(ctx, func(v int64) bool { return v == 0 }, NoTimeout, memorder.Acquire)
	require.EqualValues(t, 1, v)
}

func TestSignalDestroy(t *testing.T) {
	s := New(0)
	require.False(t, s.Destroyed())
	s.Destroy()
	require.True(t, s.Destroyed())
}
