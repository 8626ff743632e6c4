package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

// PingFunc checks one dependency.
type PingFunc func(context.Context) error

// Runner is a long-lived loop such as a bus consumer. Run blocks until ctx is
// cancelled or the loop fails.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type ServiceParams struct {
	Name         string
	Logger       *logger.Logger
	Dependencies map[string]PingFunc
	Runners      map[string]Runner
}

// Service pings every dependency once and then supervises its runners. The
// first runner to fail stops the process.
type Service struct {
	name    string
	logg    *logger.Logger
	deps    map[string]PingFunc
	runners map[string]Runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Name == "" {
		return nil, errors.New("service name is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Runners) == 0 {
		return nil, errors.New("at least one runner is required")
	}
	for name, r := range params.Runners {
		if r == nil {
			return nil, fmt.Errorf("runner %s is nil", name)
		}
	}
	return &Service{
		name:    params.Name,
		logg:    params.Logger,
		deps:    params.Dependencies,
		runners: params.Runners,
	}, nil
}

// EnsureReadiness pings dependencies in name order and returns the first failure.
func (s *Service) EnsureReadiness(ctx context.Context) error {
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := pingDependency(ctx, s.logg, name, s.deps[name]); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, fmt.Sprintf("all %s dependencies are ready", s.name))
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn PingFunc) error {
	if fn == nil {
		return fmt.Errorf("%s ping not configured", name)
	}
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.EnsureReadiness(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(s.runners))
	for name, r := range s.runners {
		go func(name string, r Runner) {
			results <- result{name: name, err: r.Run(ctx)}
		}(name, r)
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, s.name+" context canceled")
		return ctx.Err()
	case res := <-results:
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			s.logg.Error(s.logg.WithField(ctx, "runner", res.name), "runner stopped unexpectedly", res.err)
			return fmt.Errorf("%s: %w", res.name, res.err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: runner exited", res.name)
	}
}
