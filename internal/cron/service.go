package cron

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInterval = errors.New("everySeconds must be > 0")
	ErrInvalidDelay    = errors.New("inSeconds must be > 0")
)

// Service owns the job list. Every operation loads, mutates and saves under
// one lock.
type Service struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger configures the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "cron"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) nowMs() int64 {
	return s.now().UnixMilli()
}

// AddEvery adds an interval job first due everySeconds from now.
func (s *Service) AddEvery(name string, everySeconds int, message string) (Job, error) {
	if everySeconds <= 0 {
		return Job{}, ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(Job{
		Name:             name,
		Message:          message,
		EverySeconds:     everySeconds,
		NextRunAtEpochMs: s.nowMs() + int64(everySeconds)*1000,
	})
}

// AddIn adds a one-shot job due inSeconds from now.
func (s *Service) AddIn(name string, inSeconds int, message string) (Job, error) {
	if inSeconds <= 0 {
		return Job{}, ErrInvalidDelay
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAt(name, s.nowMs()+int64(inSeconds)*1000, message)
}

// AddAt adds a one-shot job. Times in the past, or less than a second
// away, are pushed to now+1s.
func (s *Service) AddAt(name string, runAtEpochMs int64, message string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAt(name, runAtEpochMs, message)
}

func (s *Service) addAt(name string, runAtEpochMs int64, message string) (Job, error) {
	return s.add(Job{
		Name:             name,
		Message:          message,
		DeleteAfterRun:   true,
		NextRunAtEpochMs: max(s.nowMs()+1000, runAtEpochMs),
	})
}

// AddSchedule adds an interval job from a descriptor or cron expression.
// The interval is the gap between the next two occurrences, and the first
// run is the next occurrence.
func (s *Service) AddSchedule(name, expr, message string) (Job, error) {
	now := s.now()
	first, every, err := ScheduleInterval(expr, now)
	if err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(Job{
		Name:             name,
		Message:          message,
		EverySeconds:     every,
		NextRunAtEpochMs: max(s.nowMs()+1000, first.UnixMilli()),
	})
}

func (s *Service) add(job Job) (Job, error) {
	jobs, err := s.store.Load()
	if err != nil {
		return Job{}, err
	}
	job.ID = uuid.NewString()
	job.Enabled = true
	jobs = append(jobs, job)
	if err := s.store.Save(jobs); err != nil {
		return Job{}, err
	}
	s.logger.Debug("cron job added", "id", job.ID, "name", job.Name, "every_seconds", job.EverySeconds)
	return job, nil
}

// List returns a snapshot of all jobs.
func (s *Service) List() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, nil
}

// Remove deletes the job with id and reports whether it existed.
func (s *Service) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.store.Load()
	if err != nil {
		return false, err
	}
	kept := jobs[:0]
	for _, job := range jobs {
		if job.ID != id {
			kept = append(kept, job)
		}
	}
	if len(kept) == len(jobs) {
		return false, nil
	}
	return true, s.store.Save(kept)
}

// EnsureJob adds an interval job unless one with the same name exists.
func (s *Service) EnsureJob(name string, everySeconds int, message string) (Job, bool, error) {
	jobs, err := s.List()
	if err != nil {
		return Job{}, false, err
	}
	for _, job := range jobs {
		if job.Name == name {
			return job, false, nil
		}
	}
	job, err := s.AddEvery(name, everySeconds, message)
	return job, err == nil, err
}

// RunDue invokes fn for every enabled job whose time has come. Interval
// jobs are rescheduled from now, one-shot jobs are dropped. The list is
// saved only when something ran.
func (s *Service) RunDue(fn func(Job)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.store.Load()
	if err != nil {
		return 0, err
	}
	now := s.nowMs()
	count := 0
	updated := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if !job.Enabled || now < job.NextRunAtEpochMs {
			updated = append(updated, job)
			continue
		}
		s.invoke(fn, job)
		count++
		if job.DeleteAfterRun {
			continue
		}
		job.NextRunAtEpochMs = now + int64(job.EverySeconds)*1000
		job.LastRunAtEpochMs = now
		updated = append(updated, job)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.store.Save(updated); err != nil {
		return count, err
	}
	return count, nil
}

func (s *Service) invoke(fn func(Job), job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("cron callback panicked", "id", job.ID, "name", job.Name, "panic", fmt.Sprint(r))
		}
	}()
	fn(job)
}
