package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eternisai/group-notifier/internal/logger"
)

// Runner is a unit of scheduled work.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// Scheduler triggers a Runner on a cron schedule, once at startup and never
// concurrently with itself.
type Scheduler struct {
	cron    *cron.Cron
	job     cron.Job
	spec    string
	timeout time.Duration
	logger  *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	startup sync.WaitGroup
}

// NewScheduler parses a standard five-field cron spec. timeout bounds one run;
// zero means no limit.
func NewScheduler(spec string, runner Runner, timeout time.Duration, logger *logger.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	log := logger.WithComponent("sweep-scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		spec:    spec,
		timeout: timeout,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}

	cronLog := cronLogger{logger: log}
	s.cron = cron.New(cron.WithLogger(cronLog))

	// One wrapped job shared by the startup run and the schedule so that
	// SkipIfStillRunning covers both.
	s.job = cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(func() { s.runOnce(runner) }))
	s.cron.Schedule(schedule, s.job)

	return s, nil
}

// Start runs the job immediately in the background and starts the schedule.
func (s *Scheduler) Start() {
	s.logger.Info("cron job started: remove old tokens", slog.String("schedule", s.spec))
	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		s.job.Run()
	}()
	s.cron.Start()
}

// Stop halts the schedule, cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.startup.Wait()
	s.logger.Info("cron job stopped: remove old tokens")
}

func (s *Scheduler) runOnce(runner Runner) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, _ = runner.Run(ctx)
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
