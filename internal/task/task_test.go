package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-apt/logger"
	"github.com/stretchr/testify/require"
)

func TestManager_StartStopWait(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.NewRecordingLogger())

	var iterations atomic.Int32
	err := mgr.Start("loop", func() bool {
		iterations.Add(1)
		time.Sleep(time.Millisecond)
		return true
	})
	require.NoError(err)

	require.Eventually(func() bool { return iterations.Load() > 3 }, time.Second, time.Millisecond)
	require.Equal(1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()
	require.Equal(0, mgr.TaskCount())

	stopped := iterations.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(stopped, iterations.Load())

	// the manager is reusable after Wait
	require.NoError(mgr.Context().Err())
	done := make(chan struct{})
	require.NoError(mgr.Start("once", func() bool {
		close(done)
		return false
	}))
	<-done
	mgr.Wait()
}

func TestManager_TaskEndsItself(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.NewRecordingLogger())

	var calls atomic.Int32
	require.NoError(mgr.Start("three", func() bool {
		return calls.Add(1) < 3
	}))

	mgr.Wait()
	require.Equal(int32(3), calls.Load())
}

func TestManager_PanicEndsTask(t *testing.T) {
	require := require.New(t)

	l := logger.NewRecordingLogger()
	mgr := NewManager(context.Background(), l)

	require.NoError(mgr.Start("panic", func() bool {
		panic("boom")
	}))

	mgr.Wait()
	require.Equal(0, mgr.TaskCount())
	require.Equal([]string{"task: panic"}, l.Messages("Error"))
}

func TestManager_StartAfterParentDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr := NewManager(ctx, logger.NewRecordingLogger())
	err := mgr.Start("late", func() bool { return false })
	require.ErrorIs(t, err, ErrStopped)
}

func TestStartConsumer(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.NewRecordingLogger())

	in := make(chan int)
	got := make(chan int, 3)
	require.NoError(StartConsumer(mgr, "consumer", in, func(v int) bool {
		got <- v
		return true
	}))

	in <- 1
	in <- 2
	require.Equal(1, <-got)
	require.Equal(2, <-got)

	close(in)
	mgr.Wait()
	require.Equal(0, mgr.TaskCount())

	require.Error(StartConsumer[int](mgr, "nil", nil, func(int) bool { return true }))
}
