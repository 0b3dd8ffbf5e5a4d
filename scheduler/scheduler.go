package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops.
type TaskFn func(ctx context.Context) error

// ErrUnknownTask is returned by RunNow for names that are not registered.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// Locker grants a short-lived exclusive lease; cache.Cache satisfies it.
// With a Locker set, a periodic run is skipped when another instance holds
// the lease for that task.
type Locker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// TaskInfo is a point-in-time view of one periodic task.
type TaskInfo struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type task struct {
	fn     TaskFn
	ticker *time.Ticker
	stopCh chan struct{}
	runMu  sync.Mutex
	info   TaskInfo
}

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	timers map[string]*time.Timer
	logger *zap.Logger

	locker Locker
	owner  string

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		timers: make(map[string]*time.Timer),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetLocker enables lease-guarded periodic runs. owner is stored as the
// lease value.
func (s *Scheduler) SetLocker(l Locker, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locker = l
	s.owner = owner
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		close(old.stopCh)
		delete(s.tasks, name)
	}

	t := &task{
		fn:     fn,
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		info:   TaskInfo{Name: name, Interval: interval},
	}
	s.tasks[name] = t

	go func() {
		for {
			select {
			case <-t.ticker.C:
				if !s.acquire(name, interval) {
					s.mu.Lock()
					t.info.Skipped++
					s.mu.Unlock()
					continue
				}
				s.run(name, t)
			case <-t.stopCh:
				t.ticker.Stop()
				return
			case <-s.ctx.Done():
				t.ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("delay task panicked",
					zap.String("task", name), zap.Any("recover", r))
			}
			s.mu.Lock()
			delete(s.timers, name)
			s.mu.Unlock()
		}()
		if err := fn(s.ctx); err != nil {
			s.logger.Warn("delay task failed", zap.String("task", name), zap.Error(err))
		}
	})
}

// RunNow runs a registered periodic task synchronously, ignoring the lease.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(name, t)
}

func (s *Scheduler) run(name string, t *task) (err error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
			err = fmt.Errorf("scheduler: task %s panicked: %v", name, r)
		}
		s.mu.Lock()
		t.info.Runs++
		t.info.LastRun = start
		t.info.LastDuration = time.Since(start)
		t.info.LastError = ""
		if err != nil {
			t.info.Failures++
			t.info.LastError = err.Error()
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("scheduler task failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return t.fn(s.ctx)
}

func (s *Scheduler) acquire(name string, interval time.Duration) bool {
	s.mu.Lock()
	l, owner := s.locker, s.owner
	s.mu.Unlock()
	if l == nil {
		return true
	}
	ttl := interval * 9 / 10
	if ttl <= 0 {
		ttl = interval
	}
	ok, err := l.SetNX(s.ctx, "scheduler:"+name, owner, ttl)
	if err != nil {
		s.logger.Warn("scheduler lease failed", zap.String("task", name), zap.Error(err))
		return false
	}
	return ok
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		close(t.stopCh)
		delete(s.tasks, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop stops all tasks.
func (s *Scheduler) Stop() {
	s.once.Do(s.cancel)
}

// ListTickers returns the names of all registered ticker tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns the run statistics of every periodic task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
