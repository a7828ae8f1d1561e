package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

type fakeStore struct {
	reports  []domain.IntegrityReport
	checks   int
	resets   int
	resetErr error
	optimize error
	noBundle bool
}

func (f *fakeStore) CheckIntegrity(ctx context.Context) domain.IntegrityReport {
	r := f.reports[min(f.checks, len(f.reports)-1)]
	f.checks++
	return r
}

func (f *fakeStore) ResetToBundled(ctx context.Context) error {
	f.resets++
	return f.resetErr
}

func (f *fakeStore) Optimize(ctx context.Context) error {
	return f.optimize
}

func (f *fakeStore) HasBundle() bool {
	return !f.noBundle
}

type fakeCache struct {
	purgedAt time.Time
	n        int64
}

func (f *fakeCache) Get(ctx context.Context, key string) (*domain.AICacheEntry, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeCache) Put(ctx context.Context, e *domain.AICacheEntry) error { return nil }

func (f *fakeCache) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.purgedAt = now
	return f.n, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	reports    []domain.IntegrityReport
	recoveries []domain.IntegrityReport
	errs       []error
}

func (f *fakeNotifier) SendIntegrityReport(ctx context.Context, r domain.IntegrityReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeNotifier) SendRecovery(ctx context.Context, r domain.IntegrityReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoveries = append(f.recoveries, r)
	return nil
}

func (f *fakeNotifier) SendError(ctx context.Context, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	return nil
}

var (
	healthy = domain.IntegrityReport{VerseCount: 31102}
	broken  = domain.IntegrityReport{Problems: []string{"verses table is empty"}}
)

func TestRunIntegrityCheck_Healthy(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{healthy}}
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{AutoRecover: true}, store, &fakeCache{}, notify)

	require.NoError(t, s.RunIntegrityCheck(context.Background()))

	assert.Zero(t, store.resets)
	assert.Empty(t, notify.reports)
	assert.Empty(t, notify.recoveries)
}

func TestRunIntegrityCheck_ReportsWithoutRecover(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{broken}}
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{}, store, &fakeCache{}, notify)

	require.NoError(t, s.RunIntegrityCheck(context.Background()))

	assert.Zero(t, store.resets)
	require.Len(t, notify.reports, 1)
	assert.Equal(t, broken.Problems, notify.reports[0].Problems)
}

func TestRunIntegrityCheck_AutoRecover(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{broken, healthy}}
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{AutoRecover: true}, store, &fakeCache{}, notify)

	require.NoError(t, s.RunIntegrityCheck(context.Background()))

	assert.Equal(t, 1, store.resets)
	assert.Len(t, notify.reports, 1)
	require.Len(t, notify.recoveries, 1)
	assert.Equal(t, 31102, notify.recoveries[0].VerseCount)
}

func TestRunIntegrityCheck_StillBrokenAfterReset(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{broken, broken}}
	s := NewScheduler(zerolog.Nop(), Config{AutoRecover: true}, store, &fakeCache{}, &fakeNotifier{})

	assert.Error(t, s.RunIntegrityCheck(context.Background()))
}

func TestRunIntegrityCheck_ResetFails(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{broken}, resetErr: errors.New("read-only filesystem")}
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{AutoRecover: true}, store, &fakeCache{}, notify)

	err := s.RunIntegrityCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only filesystem")
	assert.Empty(t, notify.recoveries)
}

func TestRunIntegrityCheck_NoBundleNeverResets(t *testing.T) {
	store := &fakeStore{reports: []domain.IntegrityReport{broken}, noBundle: true}
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{AutoRecover: true}, store, &fakeCache{}, notify)

	err := s.RunIntegrityCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundled dataset")

	assert.Zero(t, store.resets)
	assert.Len(t, notify.reports, 1)
	assert.Empty(t, notify.recoveries)
}

func TestPurgeCache_UsesClock(t *testing.T) {
	cache := &fakeCache{n: 3}
	s := NewScheduler(zerolog.Nop(), Config{}, &fakeStore{}, cache, &fakeNotifier{})

	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	require.NoError(t, s.PurgeCache(context.Background()))
	assert.Equal(t, fixed, cache.purgedAt)
}

func TestRunJob_FailureNotifies(t *testing.T) {
	notify := &fakeNotifier{}
	s := NewScheduler(zerolog.Nop(), Config{}, &fakeStore{}, &fakeCache{}, notify)

	s.runJob(JobOptimize, func(ctx context.Context) error { return errors.New("database is locked") })

	require.Len(t, notify.errs, 1)
	assert.Contains(t, notify.errs[0].Error(), "optimize job")
}

func TestStart_SchedulesConfiguredJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		IntegritySchedule:  "0 4 * * *",
		CachePurgeSchedule: "@hourly",
	}
	s := NewScheduler(zerolog.Nop(), cfg, &fakeStore{}, &fakeCache{}, &fakeNotifier{})

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Equal(t, 2, s.Entries())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), Config{OptimizeSchedule: "whenever"}, &fakeStore{}, &fakeCache{}, &fakeNotifier{})

	assert.Error(t, s.Start(context.Background()))
}
