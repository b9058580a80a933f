package soundcloud

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureResolvesOnce(t *testing.T) {
	t.Parallel()

	f := newFuture[int]()
	if f.Ready() {
		t.Fatal("new future should be pending")
	}

	f.resolve(1, nil)
	f.resolve(2, errors.New("late"))

	v, err := f.Get(context.Background())
	if v != 1 || err != nil {
		t.Errorf("Get = %d, %v, want 1, nil", v, err)
	}
	if !f.Ready() {
		t.Error("resolved future should be ready")
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestFutureWaitTimeout(t *testing.T) {
	t.Parallel()

	f := newFuture[string]()
	if _, err := f.Wait(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait error = %v, want ErrTimeout", err)
	}
	if ErrTimeout.Error() != "HTTP request timeout" {
		t.Errorf("ErrTimeout message = %q", ErrTimeout.Error())
	}
}

func TestFutureGetContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newFuture[int]().Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Get error = %v, want context.Canceled", err)
	}
}

func TestGetOrThrow(t *testing.T) {
	t.Parallel()

	v, err := GetOrThrow(Resolved("done"), time.Second)
	if v != "done" || err != nil {
		t.Errorf("GetOrThrow(resolved) = %q, %v", v, err)
	}

	boom := errors.New("boom")
	if _, err := GetOrThrow(Failed[int](boom), 0); !errors.Is(err, boom) {
		t.Errorf("GetOrThrow(failed) error = %v", err)
	}

	f := newFuture[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.resolve(7, nil)
	}()
	if v, err := GetOrThrow(f, time.Second); v != 7 || err != nil {
		t.Errorf("GetOrThrow(pending) = %d, %v", v, err)
	}
}
