package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evangelionleo/labelU/config"
)

func TestInferenceGate(t *testing.T) {
	gate := NewInferenceGate(&config.InferenceConfig{MaxConcurrent: 2, QueueTimeout: 20 * time.Millisecond})

	r1, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	r2, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if gate.InFlight() != 2 {
		t.Fatalf("in flight = %d, want 2", gate.InFlight())
	}

	if _, err := gate.Acquire(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}

	r1()
	r3, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	r2()
	r3()

	if gate.InFlight() != 0 {
		t.Fatalf("in flight = %d, want 0", gate.InFlight())
	}
}

func TestInferenceGateCanceledContext(t *testing.T) {
	gate := NewInferenceGate(&config.InferenceConfig{MaxConcurrent: 1})
	release, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gate.Acquire(ctx); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}
