package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/mention-comb/app/monitor"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	configCache *monitor.ConfigCache
	deps        Deps
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	mu      sync.Mutex
	pending map[string]bool // monitors with a poll queued or running
}

func NewScheduler(configCache *monitor.ConfigCache, deps Deps, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configCache: configCache,
		deps:        deps,
		interval:    interval,
		workerCount: max(workerCount, 1),
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		pending:     make(map[string]bool),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// TriggerPoll queues an immediate poll of an enabled monitor.
func (s *Scheduler) TriggerPoll(monitorName string) error {
	config, err := s.configCache.GetConfig(monitorName)
	if err != nil {
		return err
	}
	if !config.Settings.Enabled {
		return fmt.Errorf("monitor '%s' is disabled", monitorName)
	}
	return s.enqueuePoll(config)
}

func (s *Scheduler) enqueuePoll(config *monitor.Config) error {
	s.mu.Lock()
	if s.pending[config.Name] {
		s.mu.Unlock()
		slog.Debug("Poll already pending", "monitor", config.Name)
		return nil
	}
	s.pending[config.Name] = true
	s.mu.Unlock()

	if err := s.EnqueueTask(NewPollMonitorTask(config, s.deps)); err != nil {
		s.release(config.Name)
		return err
	}
	return nil
}

func (s *Scheduler) release(monitorName string) {
	s.mu.Lock()
	delete(s.pending, monitorName)
	s.mu.Unlock()
}

func (s *Scheduler) enqueueStartupTasks() {
	configs := s.configCache.GetConfigs()
	if len(configs) == 0 {
		slog.Debug("No monitor configurations found")
		return
	}

	slog.Debug("Processing monitor configurations", "count", len(configs))

	for _, config := range configs {
		// Run synchronously so the monitor row exists before its first poll.
		if err := NewSyncMonitorConfigTask(config, s.deps.MonitorRepo).Execute(s.ctx); err != nil {
			slog.Warn("Failed to sync monitor config", "monitor", config.Name, "error", err)
		}
	}

	s.enqueueTasks()
}

func (s *Scheduler) enqueueTasks() {
	configs := s.configCache.GetEnabledConfigs()
	if len(configs) == 0 {
		slog.Debug("No enabled monitor configurations found")
		return
	}

	now := time.Now().UTC()
	for _, config := range configs {
		m, err := s.deps.MonitorRepo.GetMonitor(config.Name)
		if err != nil {
			slog.Warn("Failed to get monitor from database, skipping", "monitor", config.Name, "error", err)
			continue
		}
		if m == nil {
			slog.Warn("Monitor not found in database, skipping", "monitor", config.Name)
			continue
		}

		if m.NextPollAt != nil && m.NextPollAt.After(now) {
			slog.Debug("Monitor not due for poll yet", "monitor", config.Name, "next_poll_at", m.NextPollAt)
			continue
		}

		if err := s.enqueuePoll(config); err != nil {
			slog.Warn("Failed to enqueue PollMonitorTask", "monitor", config.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.done(task)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.done(task)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "monitor", task.GetMonitorName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.done(task)
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				s.done(task)
			}
		}
	}()
}

func (s *Scheduler) done(task TaskInterface) {
	if task.GetType() == TaskTypePollMonitor {
		s.release(task.GetMonitorName())
	}
}
