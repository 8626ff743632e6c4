package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
)

type fakeLock struct {
	mu       sync.Mutex
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = false
	return nil
}

type testJob struct {
	mu       sync.Mutex
	name     string
	interval time.Duration
	err      error
	runs     int
}

func (t *testJob) Name() string            { return t.name }
func (t *testJob) Interval() time.Duration { return t.interval }

func (t *testJob) Run(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	return t.err
}

func (t *testJob) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunsEachJobOnItsOwnCadence(t *testing.T) {
	fast := &testJob{name: "fast", interval: 10 * time.Millisecond}
	slow := &testJob{name: "slow", interval: time.Hour, err: errors.New("boom")}
	locks := map[string]*fakeLock{}
	var mu sync.Mutex
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(fast, slow),
		Locks: func(job string, _ time.Duration) (Lock, error) {
			mu.Lock()
			defer mu.Unlock()
			locks[job] = &fakeLock{}
			return locks[job], nil
		},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if fast.count() < 3 {
		t.Fatalf("expected fast job to run repeatedly, ran %d", fast.count())
	}
	if slow.count() != 1 {
		t.Fatalf("expected slow job to run once at startup, ran %d", slow.count())
	}
	if len(locks) != 2 {
		t.Fatalf("expected one lock per job, got %d", len(locks))
	}
}

func TestServiceSkipsJobHeldElsewhere(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "held", interval: time.Hour}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Locks:    func(string, time.Duration) (Lock, error) { return &fakeLock{}, nil },
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	held := &fakeLock{acquired: true}
	service.runLocked(context.Background(), job, held)
	if job.count() != 0 {
		t.Fatalf("job must not run while another worker holds the lock")
	}

	free := &fakeLock{}
	service.runLocked(context.Background(), job, free)
	if job.count() != 1 {
		t.Fatalf("expected one run, got %d", job.count())
	}
	if free.acquired {
		t.Fatalf("lock should be released after the run")
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected cron metrics to be recorded")
	}
}

func TestServiceRecordsFailures(t *testing.T) {
	job := &testJob{name: "fail", interval: time.Hour, err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Locks:  func(string, time.Duration) (Lock, error) { return &fakeLock{}, nil },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.runLocked(context.Background(), job, &fakeLock{})
	if job.count() != 1 {
		t.Fatalf("expected failing job to run once, ran %d", job.count())
	}
}

func TestNewServiceRequiresLocks(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without lock factory")
	}
}
