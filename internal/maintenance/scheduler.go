package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

const (
	JobIntegrity  = "integrity"
	JobCachePurge = "cache_purge"
	JobOptimize   = "optimize"

	jobTimeout = 10 * time.Minute
)

// Store is the part of the database the scheduled jobs work on.
type Store interface {
	CheckIntegrity(ctx context.Context) domain.IntegrityReport
	ResetToBundled(ctx context.Context) error
	Optimize(ctx context.Context) error
	HasBundle() bool
}

type Config struct {
	IntegritySchedule  string
	CachePurgeSchedule string
	OptimizeSchedule   string
	AutoRecover        bool
}

// Scheduler runs database housekeeping on cron schedules. An empty schedule
// disables the job.
type Scheduler struct {
	log    zerolog.Logger
	cfg    Config
	store  Store
	cache  domain.AICacheRepo
	notify domain.NotificationService

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	busy    map[string]bool
	clock   func() time.Time
}

func NewScheduler(log zerolog.Logger, cfg Config, store Store, cache domain.AICacheRepo, notify domain.NotificationService) *Scheduler {
	return &Scheduler{
		log:    log.With().Str("module", "maintenance").Logger(),
		cfg:    cfg,
		store:  store,
		cache:  cache,
		notify: notify,
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		busy:   make(map[string]bool),
		clock:  time.Now,
	}
}

// Start registers the configured jobs and starts the cron loop. It stops when
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{JobIntegrity, s.cfg.IntegritySchedule, s.RunIntegrityCheck},
		{JobCachePurge, s.cfg.CachePurgeSchedule, s.PurgeCache},
		{JobOptimize, s.cfg.OptimizeSchedule, s.store.Optimize},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			s.log.Debug().Str("job", job.name).Msg("job disabled")
			continue
		}

		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.schedule, func() { s.runJob(name, run) }); err != nil {
			return errors.Wrapf(err, "failed to schedule %s job with %q", name, job.schedule)
		}
		s.log.Info().Str("job", name).Str("schedule", job.schedule).Msg("job scheduled")
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs and halts the cron loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false

	s.log.Info().Msg("maintenance scheduler stopped")
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	s.mu.Lock()
	if s.busy[name] {
		s.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("skipped, previous run still in progress")
		return
	}
	s.busy[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	metrics.ObserveJob(name, time.Since(start), err)

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("maintenance job failed")
		if nerr := s.notify.SendError(ctx, errors.Wrapf(err, "%s job", name)); nerr != nil {
			s.log.Error().Err(nerr).Msg("failed to send error notification")
		}
		return
	}

	s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("maintenance job finished")
}

// RunIntegrityCheck checks the database and reports problems. With
// AutoRecover set, a failed database is reset to the bundled dataset.
func (s *Scheduler) RunIntegrityCheck(ctx context.Context) error {
	report := s.store.CheckIntegrity(ctx)
	if report.OK() {
		metrics.IntegrityChecksTotal.WithLabelValues(metrics.Ok).Inc()
		s.log.Debug().Int("verses", report.VerseCount).Msg("integrity check passed")
		return nil
	}
	metrics.IntegrityChecksTotal.WithLabelValues(metrics.Fail).Inc()

	s.log.Error().Strs("problems", report.Problems).Msg("integrity check failed")
	if err := s.notify.SendIntegrityReport(ctx, report); err != nil {
		s.log.Error().Err(err).Msg("failed to send integrity report")
	}

	if !s.cfg.AutoRecover {
		return nil
	}

	// a reset without a bundle only wipes user content
	if !s.store.HasBundle() {
		return errors.New("automatic recovery needs a bundled dataset, leaving database untouched")
	}

	if err := s.store.ResetToBundled(ctx); err != nil {
		return errors.Wrap(err, "reset to bundled")
	}

	after := s.store.CheckIntegrity(ctx)
	if err := s.notify.SendRecovery(ctx, after); err != nil {
		s.log.Error().Err(err).Msg("failed to send recovery notification")
	}
	if !after.OK() {
		return errors.Errorf("database still failing after reset: %v", after.Problems)
	}

	s.log.Warn().Int("verses", after.VerseCount).Msg("database reset to bundled state")
	return nil
}

// PurgeCache removes expired AI cache entries.
func (s *Scheduler) PurgeCache(ctx context.Context) error {
	n, err := s.cache.PurgeExpired(ctx, s.clock())
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info().Int64("entries", n).Msg("purged expired AI cache entries")
	}
	return nil
}
