package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func blockingRunner() Runner {
	return RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

func TestRunFailsFastOnDependency(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Name:   "booking-worker",
		Logger: testLogger(),
		Dependencies: map[string]PingFunc{
			"bus":   func(context.Context) error { return errors.New("connection refused") },
			"redis": func(context.Context) error { return nil },
		},
		Runners: map[string]Runner{"consumer": RunnerFunc(func(ctx context.Context) error {
			started = true
			return nil
		})},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bus ping failed") {
		t.Fatalf("expected bus ping failure, got %v", err)
	}
	if started {
		t.Fatalf("runners must not start when a dependency is down")
	}
}

func TestRunStopsWhenRunnerFails(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Name:   "partner-worker",
		Logger: testLogger(),
		Runners: map[string]Runner{
			"healthy": blockingRunner(),
			"broken":  RunnerFunc(func(context.Context) error { return errors.New("channel closed") }),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "broken") {
			t.Fatalf("expected broken runner error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after runner failure")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Name:    "gateway",
		Logger:  testLogger(),
		Runners: map[string]Runner{"bridge": blockingRunner()},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Name: "x", Logger: testLogger()}); err == nil {
		t.Fatal("expected error without runners")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Runners: map[string]Runner{"a": blockingRunner()}}); err == nil {
		t.Fatal("expected error without name")
	}
}
