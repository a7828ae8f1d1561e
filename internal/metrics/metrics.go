package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Gateway operation label values.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// Keys for biblestore metrics.
const (
	GatewayOperationsTotalKey = "biblestore_gateway_operations_total"
	GatewayDurationSecondsKey = "biblestore_gateway_duration_seconds"
	MigrationsAppliedTotalKey = "biblestore_migrations_applied_total"
	MigrationFailuresTotalKey = "biblestore_migration_failures_total"
	IntegrityChecksTotalKey   = "biblestore_integrity_checks_total"
	BundleInstallsTotalKey    = "biblestore_bundle_installs_total"
	RecoveriesTotalKey        = "biblestore_recoveries_total"
	AICachePurgedEntriesKey   = "biblestore_ai_cache_purged_entries_total"
	MaintenanceJobDurationKey = "biblestore_maintenance_job_duration_seconds"
)

// Collectors for biblestore metrics.
var (
	GatewayOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: GatewayOperationsTotalKey,
		Help: "Cumulative number of gateway read and write blocks.",
	}, []string{"op", "status"})
	GatewayDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    GatewayDurationSecondsKey,
		Help:    "Time spent inside gateway read and write blocks, lock wait excluded.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"op"})
	MigrationsAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: MigrationsAppliedTotalKey,
		Help: "Cumulative number of migration steps applied.",
	})
	MigrationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: MigrationFailuresTotalKey,
		Help: "Cumulative number of migration steps rolled back.",
	})
	IntegrityChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: IntegrityChecksTotalKey,
		Help: "Cumulative number of integrity checks by outcome.",
	}, []string{"status"})
	BundleInstallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BundleInstallsTotalKey,
		Help: "Cumulative number of bundled dataset installs by outcome.",
	}, []string{"status"})
	RecoveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RecoveriesTotalKey,
		Help: "Cumulative number of resets to the bundled dataset.",
	})
	AICachePurgedEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: AICachePurgedEntriesKey,
		Help: "Cumulative number of expired AI cache entries removed.",
	})
	MaintenanceJobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: MaintenanceJobDurationKey,
		Help: "Duration of scheduled maintenance jobs.",
	}, []string{"job", "status"})
)

// Collectors returns every biblestore collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		GatewayOperationsTotal,
		GatewayDurationSeconds,
		MigrationsAppliedTotal,
		MigrationFailuresTotal,
		IntegrityChecksTotal,
		BundleInstallsTotal,
		RecoveriesTotal,
		AICachePurgedEntries,
		MaintenanceJobDuration,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "failed to register collector")
		}
	}
	return nil
}

// NewRegistry returns a registry holding the biblestore collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// WriteTextfile writes the current values of g in the node exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, g), "failed to write metrics textfile")
}

// Status maps an error to a status label value.
func Status(err error) string {
	if err != nil {
		return Fail
	}
	return Ok
}

// ObserveGateway records one gateway block.
func ObserveGateway(op string, d time.Duration, err error) {
	GatewayOperationsTotal.WithLabelValues(op, Status(err)).Inc()
	GatewayDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveJob records one maintenance job run.
func ObserveJob(job string, d time.Duration, err error) {
	MaintenanceJobDuration.WithLabelValues(job, Status(err)).Observe(d.Seconds())
}
