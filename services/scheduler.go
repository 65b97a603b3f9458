package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/robotlab/labhub/utils"
	"go.uber.org/zap"
)

const (
	leaseMaterialize = "labhub:lease:materialize"
	leaseTick        = "labhub:lease:tick"
)

// SchedulerConfig holds the cron specs and the per-job budget.
type SchedulerConfig struct {
	Location        *time.Location
	MaterializeSpec string
	TickSpec        string
	JobTimeout      time.Duration
}

// Scheduler drives the materializer daily and the dispatcher plus penalty engine every tick.
type Scheduler struct {
	cron         *cron.Cron
	cfg          SchedulerConfig
	materializer *Materializer
	dispatcher   *Dispatcher
	penalties    *PenaltyEngine
	lease        *utils.Lease
	logger       *zap.Logger
}

func NewScheduler(cfg SchedulerConfig, m *Materializer, d *Dispatcher, p *PenaltyEngine, lease *utils.Lease, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 50 * time.Second
	}
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{
		cron:         c,
		cfg:          cfg,
		materializer: m,
		dispatcher:   d,
		penalties:    p,
		lease:        lease,
		logger:       logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.MaterializeSpec, func() { s.RunMaterialize(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.TickSpec, func() { s.RunTick(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("attendance scheduler started",
		zap.String("materialize", s.cfg.MaterializeSpec),
		zap.String("tick", s.cfg.TickSpec),
		zap.String("location", s.cfg.Location.String()))
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("attendance scheduler stopped")
}

// RunMaterialize runs the daily trigger materializer once.
func (s *Scheduler) RunMaterialize(parent context.Context) {
	s.guarded(parent, leaseMaterialize, func(ctx context.Context) {
		n, err := s.materializer.Run(ctx)
		if err != nil {
			s.logger.Error("materialize run failed", zap.Error(err))
			return
		}
		s.logger.Info("materialize run finished", zap.Int("created", n))
	})
}

// RunTick runs the dispatcher then the penalty engine once.
func (s *Scheduler) RunTick(parent context.Context) {
	s.guarded(parent, leaseTick, func(ctx context.Context) {
		s.RunNotify(ctx)
		s.RunComplete(ctx)
	})
}

// RunNotify runs only the dispatcher.
func (s *Scheduler) RunNotify(ctx context.Context) {
	if n, err := s.dispatcher.Run(ctx); err != nil {
		s.logger.Error("dispatch run failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("dispatch run finished", zap.Int("notified", n))
	}
}

// RunComplete runs only the penalty engine.
func (s *Scheduler) RunComplete(ctx context.Context) {
	if n, err := s.penalties.Run(ctx); err != nil {
		s.logger.Error("completion run failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("completion run finished", zap.Int("completed", n))
	}
}

func (s *Scheduler) guarded(parent context.Context, key string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ok, release := s.lease.Acquire(ctx, key, s.cfg.JobTimeout)
	defer release()
	if !ok {
		s.logger.Debug("job skipped, lease held elsewhere", zap.String("lease", key))
		return
	}
	fn(ctx)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
