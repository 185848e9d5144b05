package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDispatchInterval = 30 * time.Second
	DefaultInitialDelay     = 2 * time.Second
)

// Dispatcher polls the service on a fixed interval and hands every fired
// job to a handler. Ticks that arrive while a previous run is still going
// are skipped, so runs never overlap.
type Dispatcher struct {
	service      *Service
	handler      func(context.Context, Job)
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	runner  *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterval sets the polling interval. robfig/cron rounds it to whole
// seconds with a one second minimum.
func WithInterval(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.interval = d
		}
	}
}

// WithInitialDelay sets the delay before the first poll.
func WithInitialDelay(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d >= 0 {
			dp.initialDelay = d
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(dp *Dispatcher) {
		if logger != nil {
			dp.logger = logger
		}
	}
}

func NewDispatcher(service *Service, handler func(context.Context, Job), opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		service:      service,
		handler:      handler,
		interval:     DefaultDispatchInterval,
		initialDelay: DefaultInitialDelay,
		logger:       slog.Default().With("component", "cron_dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce dispatches every due job now and returns how many fired.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	count, err := d.service.RunDue(func(job Job) {
		d.handler(ctx, job)
	})
	if err != nil {
		d.logger.Warn("cron dispatch failed", "error", err)
	}
	if count > 0 {
		d.logger.Debug("cron jobs dispatched", "count", count)
	}
	return count
}

// Start begins polling until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	ctx, d.cancel = context.WithCancel(ctx)

	d.runner = cron.New(cron.WithChain(
		cron.Recover(slogCronLogger{d.logger}),
		cron.SkipIfStillRunning(slogCronLogger{d.logger}),
	))
	d.runner.Schedule(cron.Every(d.interval), cron.FuncJob(func() { d.RunOnce(ctx) }))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(d.initialDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		d.RunOnce(ctx)
		d.runner.Start()
		<-ctx.Done()
		<-d.runner.Stop().Done()
	}()
}

// Stop cancels polling and waits for an in-flight run to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// slogCronLogger adapts slog to robfig/cron's logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Warn(msg, append([]any{"error", err}, keysAndValues...)...)
}
