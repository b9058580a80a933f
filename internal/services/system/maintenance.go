// Package system provides system-level services for monitoring and maintenance.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/utils"
)

// MaintenanceTask represents a maintenance task to be executed.
type MaintenanceTask struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	Fn       func(context.Context) error
}

// MaintenanceService runs registered housekeeping tasks on their own intervals.
type MaintenanceService struct {
	config config.MaintenanceConfig
	logger *utils.Logger
	tasks  []*MaintenanceTask
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaintenanceService creates a new maintenance service. Tasks are added with RegisterTask.
func NewMaintenanceService(cfg config.MaintenanceConfig, logger *utils.Logger) *MaintenanceService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 3
	}

	return &MaintenanceService{
		config: cfg,
		logger: logger.Named("maintenance"),
		stopCh: make(chan struct{}),
	}
}

// RegisterTask registers a new maintenance task. It is due immediately.
func (s *MaintenanceService) RegisterTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, &MaintenanceTask{
		Name:     name,
		Interval: interval,
		LastRun:  time.Now().Add(-interval),
		Fn:       fn,
	})
	s.logger.Info("Registered maintenance task", "name", name, "interval", interval)
}

// Tasks returns the names of the registered tasks.
func (s *MaintenanceService) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Start starts the maintenance loop.
func (s *MaintenanceService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("Maintenance service is disabled")
		return
	}

	s.logger.Info("Starting maintenance service", "interval", s.config.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic in maintenance service", fmt.Errorf("%v", r))
			}
		}()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runDueTasks(ctx)
			case <-s.stopCh:
				s.logger.Info("Stopping maintenance service")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the maintenance loop and waits for it to exit.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// RunAllTasks runs every registered task immediately, regardless of its interval.
func (s *MaintenanceService) RunAllTasks(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]*MaintenanceTask(nil), s.tasks...)
	s.mu.Unlock()

	return s.run(ctx, tasks)
}

// runDueTasks runs all maintenance tasks that are due.
func (s *MaintenanceService) runDueTasks(ctx context.Context) {
	s.mu.Lock()
	var dueTasks []*MaintenanceTask
	now := time.Now()
	for _, task := range s.tasks {
		if now.Sub(task.LastRun) >= task.Interval {
			dueTasks = append(dueTasks, task)
		}
	}
	s.mu.Unlock()

	if len(dueTasks) == 0 {
		return
	}

	if err := s.run(ctx, dueTasks); err != nil {
		s.logger.Error("Some maintenance tasks failed", err)
	}
}

// run executes tasks on a bounded worker pool and joins their errors.
func (s *MaintenanceService) run(ctx context.Context, tasks []*MaintenanceTask) error {
	taskCh := make(chan *MaintenanceTask)
	errCh := make(chan error, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < s.config.MaxConcurrentTasks; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range taskCh {
				if err := s.runTask(ctx, workerID, task); err != nil {
					errCh <- err
				}
			}
		}(i)
	}

	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
		}
	}
	close(taskCh)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	s.logger.Debug("Maintenance run completed", "tasks", len(tasks), "failed", len(errs))
	return errors.Join(errs...)
}

func (s *MaintenanceService) runTask(ctx context.Context, workerID int, task *MaintenanceTask) (err error) {
	taskCtx, cancel := context.WithTimeout(ctx, s.config.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s (worker %d): %v", task.Name, workerID, r)
			s.logger.Error("Task panic recovered", err, "name", task.Name, "worker", workerID)
		}
	}()

	start := time.Now()
	if err := task.Fn(taskCtx); err != nil {
		s.logger.Error("Task failed", err, "name", task.Name, "worker", workerID)
		return fmt.Errorf("task %s failed: %w", task.Name, err)
	}

	s.mu.Lock()
	task.LastRun = time.Now()
	s.mu.Unlock()

	s.logger.Debug("Task completed", "name", task.Name, "duration", time.Since(start))
	return nil
}

// ActivityPruner deletes activity records older than a cutoff.
type ActivityPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityRetentionTask returns a task deleting activity records older than maxAge.
func ActivityRetentionTask(pruner ActivityPruner, maxAge time.Duration, logger *utils.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		deleted, err := pruner.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info("Pruned activity log", "deleted", deleted, "maxAge", maxAge)
		}
		return nil
	}
}

// CachePurgeTask returns a task dropping expired entries from an in-process cache.
func CachePurgeTask(cache interface{ Purge() int }, logger *utils.Logger) func(context.Context) error {
	return func(context.Context) error {
		if purged := cache.Purge(); purged > 0 {
			logger.Debug("Purged expired cache entries", "count", purged)
		}
		return nil
	}
}

// LimiterCleanupTask returns a task forgetting idle rate limiter keys.
func LimiterCleanupTask(limiter interface{ Cleanup() int }, logger *utils.Logger) func(context.Context) error {
	return func(context.Context) error {
		if dropped := limiter.Cleanup(); dropped > 0 {
			logger.Debug("Dropped idle rate limit keys", "count", dropped)
		}
		return nil
	}
}
