package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/varoOP/biblestore/internal/config"
	"github.com/varoOP/biblestore/internal/database"
	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/logger"
	"github.com/varoOP/biblestore/internal/maintenance"
	"github.com/varoOP/biblestore/internal/metrics"
	"github.com/varoOP/biblestore/internal/notification"
	"github.com/varoOP/biblestore/internal/preferences"
	"github.com/varoOP/biblestore/internal/repository"
)

// Repos groups the typed repositories built on the shared database.
type Repos struct {
	Verses      domain.VerseRepo
	Highlights  domain.HighlightRepo
	Notes       domain.NoteRepo
	Prayers     domain.PrayerRepo
	Bookmarks   domain.BookmarkRepo
	Sermons     domain.SermonRepo
	Sync        domain.SyncRepo
	AICache     domain.AICacheRepo
	DataSources domain.DataSourceRepo
	Study       domain.StudyRepo
}

// App represents the main application with all dependencies initialized
type App struct {
	log                 zerolog.Logger
	config              *domain.Config
	fs                  afero.Fs
	prefs               *preferences.Store
	migrator            *database.Migrator
	bootstrap           *database.Bootstrapper
	db                  *database.DB
	files               *repository.FileRepository
	notificationService domain.NotificationService
	registry            *prometheus.Registry

	Repos Repos
}

// NewApp loads configuration from viper and creates the application.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return New(log, cfg, afero.NewOsFs())
}

// New wires the application from an already validated config.
func New(log zerolog.Logger, cfg *domain.Config, fs afero.Fs) (*App, error) {
	return build(log, cfg, fs, database.Migrations())
}

func build(log zerolog.Logger, cfg *domain.Config, fs afero.Fs, migrations []database.Migration) (*App, error) {
	if err := fs.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	prefs, err := preferences.Open(fs, cfg.PreferencesPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	var bootstrap *database.Bootstrapper
	if cfg.HasBundle() {
		bundle := database.NewDirBundle(cfg.BundleDir, cfg.BundleName, cfg.BundleVersion)
		bootstrap = database.NewBootstrapper(log, bundle, prefs)
	}

	migrator := database.NewMigrator(log, migrations...)
	db := database.NewDB(log, database.Config{
		Path:         cfg.DatabasePath(),
		Migrator:     migrator,
		Bootstrapper: bootstrap,
	})

	registry, err := metrics.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}

	return &App{
		log:                 log.With().Str("module", "app").Logger(),
		config:              cfg,
		fs:                  fs,
		prefs:               prefs,
		migrator:            migrator,
		bootstrap:           bootstrap,
		db:                  db,
		files:               repository.NewFileRepository(log, fs),
		notificationService: notification.NewService(log, cfg.DiscordWebhookURL),
		registry:            registry,
		Repos: Repos{
			Verses:      database.NewVerseRepo(log, db),
			Highlights:  database.NewHighlightRepo(log, db),
			Notes:       database.NewNoteRepo(log, db),
			Prayers:     database.NewPrayerRepo(log, db),
			Bookmarks:   database.NewBookmarkRepo(log, db),
			Sermons:     database.NewSermonRepo(log, db),
			Sync:        database.NewSyncRepo(log, db),
			AICache:     database.NewAICacheRepo(log, db),
			DataSources: database.NewDataSourceRepo(log, db),
			Study:       database.NewStudyRepo(log, db),
		},
	}, nil
}

// DB returns the shared database gateway.
func (a *App) DB() *database.DB {
	return a.db
}

// Start runs database startup. In debug mode a failure is returned; in
// production it is logged and reported, and the app keeps running on
// whatever state exists: a database whose schema upgrade stopped part way
// stays usable in degraded mode.
func (a *App) Start(ctx context.Context) error {
	err := a.db.Open(ctx)
	if err == nil {
		a.log.Info().Str("path", a.db.Path()).Str("mode", string(a.config.Mode)).Msg("Database ready")
		return nil
	}

	if a.config.Mode == domain.ModeDebug {
		return fmt.Errorf("database startup failed: %w", err)
	}

	a.log.Error().Err(err).Str("path", a.db.Path()).Msg("Database startup failed, continuing")
	if degradedErr := a.db.MarkDegraded(); degradedErr != nil {
		a.log.Error().Err(degradedErr).Msg("No database handle, reads and writes will fail")
	}
	if notifyErr := a.notificationService.SendError(ctx, err); notifyErr != nil {
		a.log.Warn().Err(notifyErr).Msg("Failed to send error notification")
	}
	return nil
}

// Close closes the database and flushes metrics to the textfile, if configured.
func (a *App) Close() error {
	err := a.db.Close()

	if a.config.MetricsTextfile != "" {
		if merr := metrics.WriteTextfile(a.config.MetricsTextfile, a.registry); merr != nil {
			a.log.Warn().Err(merr).Msg("Failed to write metrics textfile")
		}
	}

	return err
}

// MigrationStatus lists applied and pending migration identifiers.
func (a *App) MigrationStatus(ctx context.Context) (applied, pending []string, err error) {
	applied, err = a.migrator.Applied(ctx, a.db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}

	pending, err = a.migrator.Pending(ctx, a.db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending migrations: %w", err)
	}

	return applied, pending, nil
}

// Verify checks the database and notifies on failure.
func (a *App) Verify(ctx context.Context) domain.IntegrityReport {
	report := a.db.CheckIntegrity(ctx)
	if report.OK() {
		metrics.IntegrityChecksTotal.WithLabelValues(metrics.Ok).Inc()
		return report
	}

	metrics.IntegrityChecksTotal.WithLabelValues(metrics.Fail).Inc()
	if err := a.notificationService.SendIntegrityReport(ctx, report); err != nil {
		a.log.Warn().Err(err).Msg("Failed to send integrity report")
	}
	return report
}

// Reset discards the working database and reinstalls the bundled dataset.
func (a *App) Reset(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			if notifyErr := a.notificationService.SendError(ctx, err); notifyErr != nil {
				a.log.Warn().Err(notifyErr).Msg("Failed to send error notification")
			}
		}
	}()

	if err := a.db.ResetToBundled(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	report := a.db.CheckIntegrity(ctx)
	if err := a.notificationService.SendRecovery(ctx, report); err != nil {
		a.log.Warn().Err(err).Msg("Failed to send recovery notification")
	}
	return nil
}

// BuildBundle builds a bundled dataset at dest from the manifest at manifestPath.
func (a *App) BuildBundle(ctx context.Context, manifestPath, dest string) error {
	manifest, err := a.files.GetManifest(ctx, manifestPath)
	if err != nil {
		return err
	}

	if err := database.BuildBundle(ctx, a.log, dest, *manifest); err != nil {
		return fmt.Errorf("failed to build bundle: %w", err)
	}

	return nil
}

// VerifyBundle checks that a bundle's recorded migrations match the bundled step list.
func (a *App) VerifyBundle(ctx context.Context, path string) error {
	return database.CheckBundleDrift(ctx, path)
}

// ExportPending writes every row awaiting sync to path and returns the row count.
func (a *App) ExportPending(ctx context.Context, path string) (int, error) {
	var rows []domain.PendingRow
	for _, table := range a.Repos.Sync.Tables() {
		pending, err := a.Repos.Sync.Pending(ctx, table)
		if err != nil {
			return 0, fmt.Errorf("failed to list pending rows of %s: %w", table, err)
		}
		rows = append(rows, pending...)
	}

	if err := a.files.StorePending(ctx, path, rows); err != nil {
		return 0, err
	}

	return len(rows), nil
}

// Serve starts the database and runs maintenance jobs until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	scheduler := maintenance.NewScheduler(a.log, maintenance.Config{
		IntegritySchedule:  a.config.IntegritySchedule,
		CachePurgeSchedule: a.config.CachePurgeSchedule,
		OptimizeSchedule:   a.config.OptimizeSchedule,
		AutoRecover:        a.config.AutoRecover,
	}, a.db, a.Repos.AICache, a.notificationService)

	if err := scheduler.Start(ctx); err != nil {
		a.Close()
		return fmt.Errorf("failed to start maintenance: %w", err)
	}

	a.log.Info().Msg("Serving, press Ctrl+C to stop")
	<-ctx.Done()
	scheduler.Stop()

	return a.Close()
}
