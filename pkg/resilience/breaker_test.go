package resilience_test

import (
	"errors"
	"testing"
	"time"

	. "leaderbus/pkg/resilience"
)

var errPublish = errors.New("publish failed")

func fail() error    { return errPublish }
func succeed() error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := NewBreaker("test", DefaultBreakerConfig())

	if b.State() != StateClosed {
		t.Errorf("expected initial state closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Second})

	for i := 0; i < 3; i++ {
		_ = b.Execute(fail)
	}

	if b.State() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", b.State())
	}
	if err := b.Execute(succeed); err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Second})

	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)

	if b.State() != StateClosed {
		t.Errorf("non-consecutive failures should not open, got %v", b.State())
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, OpenTimeout: 30 * time.Millisecond, HalfOpenProbes: 1})

	_ = b.Execute(fail)
	time.Sleep(40 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %v", b.State())
	}
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("probe should be admitted, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, OpenTimeout: 30 * time.Millisecond})

	_ = b.Execute(fail)
	time.Sleep(40 * time.Millisecond)
	_ = b.Execute(fail)

	if b.State() != StateOpen {
		t.Errorf("expected open after failed probe, got %v", b.State())
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	var transitions []string
	b.OnStateChange(func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	})

	_ = b.Execute(fail)
	b.Reset()

	want := []string{"redis:closed->open", "redis:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}
