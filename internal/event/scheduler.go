package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/Gigsy/internal/logging"
)

// Scheduler periodically advances event lifecycles
type Scheduler struct {
	service    *Service
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	lastRun    time.Time
	lastResult *LifecycleResult
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// Interval between lifecycle passes (default: 1 minute)
	Interval time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{Interval: time.Minute}
}

// NewScheduler creates a new lifecycle scheduler
func NewScheduler(service *Service, config *SchedulerConfig) *Scheduler {
	if config == nil || config.Interval <= 0 {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		service:  service,
		interval: config.Interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic processing
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	logger := logging.NewLogger("event-scheduler")
	logger.Info().Dur("interval", s.interval).Msg("Event scheduler started")
	return nil
}

// Stop stops periodic processing and waits for the current pass
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	logger := logging.NewLogger("event-scheduler")
	logger.Info().Msg("Event scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	logger := logging.NewLogger("event-scheduler")
	result, err := s.RunNow(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Event lifecycle pass failed")
		return
	}
	if result.Started+result.Completed+result.Failed > 0 {
		logger.Info().
			Int("started", result.Started).
			Int("completed", result.Completed).
			Int("failed", result.Failed).
			Msg("Event lifecycle pass finished")
	}
}

// RunNow runs one lifecycle pass immediately
func (s *Scheduler) RunNow(ctx context.Context) (*LifecycleResult, error) {
	result, err := s.service.AdvanceLifecycle(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastRun = result.RanAt
	s.lastResult = result
	s.mu.Unlock()
	return result, nil
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	Running    bool             `json:"running"`
	Interval   string           `json:"interval"`
	LastRun    *time.Time       `json:"last_run,omitempty"`
	LastResult *LifecycleResult `json:"last_result,omitempty"`
}

// GetStatus returns the current status of the scheduler
func (s *Scheduler) GetStatus() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:    s.running,
		Interval:   s.interval.String(),
		LastResult: s.lastResult,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		status.LastRun = &last
	}
	return status
}
