package fault

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return New(KindTransport, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustedPropagatesFinalError(t *testing.T) {
	attempts := 0
	final := New(KindTimeout, "always slow")
	err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return final
	})
	if attempts != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, final) {
		t.Fatalf("final error must propagate unchanged, got %v", err)
	}
}

func TestRetryNonRecoverableFailsFirstAttempt(t *testing.T) {
	for _, kind := range []Kind{KindNotFound, KindUnsupported, KindInvalidInput, KindResourceExhaustion} {
		attempts := 0
		err := Retry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
			attempts++
			return New(kind, "nope")
		})
		if attempts != 1 {
			t.Fatalf("%s: expected 1 attempt, got %d", kind, attempts)
		}
		if KindOf(err) != kind {
			t.Fatalf("%s: wrong kind %v", kind, err)
		}
	}
}

func TestRetryUnclassifiedNotRetried(t *testing.T) {
	attempts := 0
	boom := errors.New("plain")
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return boom
	})
	if attempts != 1 || !errors.Is(err, boom) {
		t.Fatalf("unclassified errors must not retry: attempts=%d err=%v", attempts, err)
	}
}

func TestRetryValueReturnsSuccessValue(t *testing.T) {
	attempts := 0
	v, err := RetryValue(context.Background(), 3, time.Millisecond, func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 2 {
			return 0, New(KindLoadFailure, "warming up")
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %d %v", v, err)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, 10, 50*time.Millisecond, func(ctx context.Context) error {
		attempts++
		return New(KindTransport, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestWrapPreservesKind(t *testing.T) {
	inner := New(KindResourceExhaustion, "over budget").WithBudget(100, 50)
	outer := Wrap(KindLoadFailure, inner, "loading model")
	if KindOf(outer) != KindResourceExhaustion {
		t.Fatalf("wrap must preserve inner kind, got %v", KindOf(outer))
	}
	if !IsResourceExhaustion(outer) {
		t.Fatalf("predicate must see through wrapping")
	}
}

func TestErrorFields(t *testing.T) {
	err := New(KindNotFound, "no llm models loaded").WithModel("m1").WithOp("generate")
	if err.ModelID != "m1" || err.Op != "generate" {
		t.Fatalf("fields not attached: %+v", err)
	}
	if got := err.Error(); got == "" || KindOf(err) != KindNotFound {
		t.Fatalf("unexpected rendering: %q", got)
	}
}
