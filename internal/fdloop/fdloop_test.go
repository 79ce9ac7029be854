package fdloop

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadinessDispatch(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fired := make(chan struct{}, 1)
	h := &Handle{
		Fd: int(r.Fd()),
		Read: func() {
			var buf [1]byte
			_, _ = r.Read(buf[:])
			fired <- struct{}{}
		},
	}
	require.NoError(t, l.Add(h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	_, err = w.Write([]byte{1})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("read handler never fired")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never stopped after context cancellation")
	}
}

func TestTimerFiresAndRearms(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fires := make(chan struct{}, 10)
	var n int
	l.AddTimer(time.Now().Add(10*time.Millisecond), 10*time.Millisecond, func() bool {
		n++
		fires <- struct{}{}
		return n < 3
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-fires:
		case <-time.After(2 * time.Second):
			t.Fatalf("timer did not fire %d times", i+1)
		}
	}

	l.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never stopped")
	}
	assert.Equal(t, 3, n, "timer must not rearm once handler returns false")
}

func TestDispatchRunsOnLoopGoroutine(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	result := make(chan int, 1)
	go func() {
		l.Dispatch(func() { result <- 42 })
	}()

	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched function never ran")
	}

	l.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never stopped")
	}
}

func TestCancelTimerFromWithinHandler(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var other *Timer
	ran := make(chan struct{}, 1)
	other = l.AddTimer(time.Now().Add(20*time.Millisecond), 0, func() bool {
		ran <- struct{}{}
		return false
	})
	l.AddTimer(time.Now().Add(5*time.Millisecond), 0, func() bool {
		l.CancelTimer(other)
		return false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-ran:
		t.Fatal("canceled timer must not run")
	case <-time.After(100 * time.Millisecond):
	}

	l.Stop()
	<-done
}
