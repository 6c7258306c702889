package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-render/types"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

const (
	CacheContent  = "content"
	CacheTemplate = "template"
	// CacheAll targets every render cache.
	CacheAll = ""
)

// Flusher is a cache that can be dropped by tag or as a whole.
type Flusher interface {
	Invalidate(ctx context.Context, tags []string) ([]string, error)
	InvalidateAll(ctx context.Context) error
}

type JobEntry struct {
	ID       cron.EntryID
	Name     string
	Schedule string
	Cache    string
	Tags     []string
	AddedAt  time.Time
	LastRun  time.Time
	NextRun  time.Time
	RunCount int64
	Error    error
}

// Scheduler runs cache flushes on cron schedules.
type Scheduler struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	caches          map[string]Flusher
	jobs            map[string]*JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	running         sync.WaitGroup
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

func NewScheduler(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, caches map[string]Flusher) (*Scheduler, error) {
	schedulerConfig := config.GetConfig().Scheduler
	if schedulerConfig == nil {
		schedulerConfig = &types.SchedulerConfig{}
	}

	timezone := time.UTC
	if schedulerConfig.Timezone != "" {
		location, err := time.LoadLocation(schedulerConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown scheduler timezone, using UTC",
				zap.String("timezone", schedulerConfig.Timezone),
				zap.Error(err))
		} else {
			timezone = location
		}
	}

	cronL := cronLogger{logger: logger}

	schedulerCtx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		ctx:     schedulerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		caches:          caches,
		jobs:            make(map[string]*JobEntry),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      5 * time.Minute,
	}

	s.state.Store(StateStopped)

	for _, job := range schedulerConfig.Jobs {
		if err := s.Add(job); err != nil {
			cancel()
			return nil, err
		}
	}

	return s, nil
}

// Add schedules a flush of job.Cache restricted to job.Tags.
func (s *Scheduler) Add(job types.ScheduledJob) error {
	if job.Name == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job.Schedule == "" {
		return types.Errorf(types.ErrCronExpressionInvalid, "job %s has no schedule", job.Name)
	}

	if _, err := s.flusher(job.Cache); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return types.Errorf(types.ErrCronJobExists, "job %s", job.Name)
	}

	entry := &JobEntry{
		Name:     job.Name,
		Schedule: job.Schedule,
		Cache:    job.Cache,
		Tags:     append([]string(nil), job.Tags...),
		AddedAt:  time.Now(),
	}

	entryID, err := s.cron.AddFunc(job.Schedule, func() { s.Run(job.Name) })
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "job %s: %v", job.Name, err)
	}

	entry.ID = entryID
	if cronEntry := s.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	s.jobs[job.Name] = entry

	s.logger.Info("Cache flush job added",
		zap.String("job_name", job.Name),
		zap.String("schedule", job.Schedule),
		zap.String("cache", job.Cache),
		zap.Strings("tags", job.Tags))

	return nil
}

// Run executes the named job immediately.
func (s *Scheduler) Run(jobName string) error {
	s.mu.RLock()
	entry, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobIsNil, "job %s", jobName)
	}

	if s.getState() == StateStopping {
		s.logger.Info("Job skipped due to shutdown", zap.String("job_name", jobName))
		return types.ErrCronSchedulerStopped
	}

	s.running.Add(1)
	defer s.running.Done()

	startTime := time.Now()
	s.logger.Debug("Cache flush job started", zap.String("job_name", jobName))

	jobCtx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	err := s.flush(jobCtx, entry)

	duration := time.Since(startTime)
	s.finish(jobName, startTime, err)

	result := "success"
	if err != nil {
		result = "error"
	}

	if s.metrics != nil {
		s.metrics.Counter("cron_job_executions_total", map[string]string{
			"job_name": jobName,
			"result":   result,
		}).Inc()
		s.metrics.Histogram("cron_job_duration_seconds",
			[]float64{0.01, 0.1, 1.0, 10.0, 60.0},
			map[string]string{"job_name": jobName},
		).Observe(duration.Seconds())
	}

	if err != nil {
		s.logger.Error("Cache flush job failed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	s.logger.Info("Cache flush job completed",
		zap.String("job_name", jobName),
		zap.Duration("duration", duration))

	return nil
}

func (s *Scheduler) flush(ctx context.Context, entry *JobEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
		}
	}()

	flusher, err := s.flusher(entry.Cache)
	if err != nil {
		return err
	}

	if len(entry.Tags) == 0 {
		return flusher.InvalidateAll(ctx)
	}

	_, err = flusher.Invalidate(ctx, entry.Tags)
	return err
}

func (s *Scheduler) flusher(cache string) (Flusher, error) {
	flusher, ok := s.caches[cache]
	if !ok || flusher == nil {
		return nil, types.Errorf(types.ErrCronCacheUnknown, "cache %q", cache)
	}
	return flusher, nil
}

func (s *Scheduler) finish(jobName string, startTime time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[jobName]
	if !exists {
		return
	}

	entry.LastRun = startTime
	entry.RunCount++
	entry.Error = err

	if cronEntry := s.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

// Jobs returns a snapshot of the scheduled jobs.
func (s *Scheduler) Jobs() []JobEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]JobEntry, 0, len(s.jobs))
	for _, entry := range s.jobs {
		jobs = append(jobs, *entry)
	}
	return jobs
}

func (s *Scheduler) Start() error {
	if !s.transitionState(StateStopped, StateRunning) {
		return types.ErrCronIsRunning
	}

	s.cron.Start()
	s.setSchedulerStatus(1)
	s.logger.Info("Cache flush scheduler started", zap.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-s.cron.Stop().Done():
			return nil
		case <-gCtx.Done():
			return types.ErrCronJobTimeout
		}
	})

	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			s.running.Wait()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-gCtx.Done():
			return types.ErrCronJobTimeout
		}
	})

	s.setSchedulerStatus(0)

	if err := g.Wait(); err != nil {
		s.logger.Warn("Scheduler stop timeout, some jobs may not have finished", zap.Error(err))
		return err
	}

	s.logger.Info("Cache flush scheduler stopped gracefully")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Scheduler) getState() State {
	return s.state.Load().(State)
}

func (s *Scheduler) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Scheduler) setSchedulerStatus(value float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	result := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		result = append(result, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return result
}
