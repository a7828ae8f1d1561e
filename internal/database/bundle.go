package database

import (
	"context"
	"database/sql"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

// BundleVersionKey is the preferences key holding the installed bundle version.
const BundleVersionKey = "bundle.version"

// Preferences is the key-value store the bundle version lives in.
type Preferences interface {
	Int(key string) (int, bool)
	SetInt(key string, value int) error
	Delete(key string) error
}

// Bundle is a pre-built read-only database shipped with the application.
type Bundle struct {
	FS      fs.FS
	Name    string
	Version int
}

// NewDirBundle returns the bundle file name inside dir.
func NewDirBundle(dir, name string, version int) *Bundle {
	return &Bundle{FS: os.DirFS(dir), Name: name, Version: version}
}

// Bootstrapper decides whether the working database must be replaced by the
// bundle and performs the replacement.
type Bootstrapper struct {
	log    zerolog.Logger
	bundle *Bundle
	prefs  Preferences
}

// NewBootstrapper creates a bootstrapper. A nil bundle means this build ships
// no bundled dataset and ShouldInstall is always false.
func NewBootstrapper(log zerolog.Logger, bundle *Bundle, prefs Preferences) *Bootstrapper {
	return &Bootstrapper{
		log:    log.With().Str("module", "bundle").Logger(),
		bundle: bundle,
		prefs:  prefs,
	}
}

// TargetVersion is the compiled in bundle version, zero without a bundle.
func (b *Bootstrapper) TargetVersion() int {
	if b.bundle == nil {
		return 0
	}
	return b.bundle.Version
}

// InstalledVersion is the version recorded by the last install, zero if none.
func (b *Bootstrapper) InstalledVersion() int {
	v, _ := b.prefs.Int(BundleVersionKey)
	return v
}

// ShouldInstall reports whether dest must be replaced by the bundle: a bundle
// is declared and either dest does not exist or the recorded version is older
// than the target.
func (b *Bootstrapper) ShouldInstall(dest string) bool {
	if b.bundle == nil {
		return false
	}

	if _, err := os.Stat(dest); err != nil {
		b.log.Debug().Str("path", dest).Msg("database file missing, bundle install required")
		return true
	}

	stored := b.InstalledVersion()
	if stored < b.bundle.Version {
		b.log.Info().Int("stored", stored).Int("target", b.bundle.Version).Msg("bundle version outdated, reinstall required")
		return true
	}
	return false
}

// Install copies the bundle to dest, records the bundled migrations in the
// copy and finally stores the bundle version. dest and its -wal and -shm
// siblings are replaced; the caller must have closed any connection to them.
// Every failure wraps domain.ErrImportFailed.
func (b *Bootstrapper) Install(ctx context.Context, dest string) (err error) {
	defer func() {
		metrics.BundleInstallsTotal.WithLabelValues(metrics.Status(err)).Inc()
	}()

	if b.bundle == nil {
		return errors.Wrap(domain.ErrImportFailed, "no bundle declared")
	}

	src, err := b.bundle.FS.Open(b.bundle.Name)
	if err != nil {
		return errors.Wrapf(domain.ErrImportFailed, "open bundle %s: %v", b.bundle.Name, err)
	}
	defer src.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := copyFile(src, dest); err != nil {
		return errors.Wrapf(domain.ErrImportFailed, "copy bundle: %v", err)
	}

	if err := markBundled(ctx, dest); err != nil {
		return errors.Wrapf(domain.ErrImportFailed, "mark bundled migrations: %v", err)
	}

	if err := b.prefs.SetInt(BundleVersionKey, b.bundle.Version); err != nil {
		return errors.Wrapf(domain.ErrImportFailed, "store bundle version: %v", err)
	}

	b.log.Info().Str("path", dest).Int("version", b.bundle.Version).Msg("Installed bundled dataset")
	return nil
}

// ClearVersion forgets the installed bundle version so the next startup
// reinstalls.
func (b *Bootstrapper) ClearVersion() error {
	return errors.Wrap(b.prefs.Delete(BundleVersionKey), "failed to clear bundle version")
}

// copyFile writes src to a temporary file next to dest and renames it into
// place after removing dest and its journal siblings.
func copyFile(src io.Reader, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := removeDatabaseFiles(dest); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// removeDatabaseFiles deletes path and its WAL and SHM files if present.
func removeDatabaseFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "failed to remove %s", p)
		}
	}
	return nil
}

// markBundled records BundledMigrations directly in the file at path.
func markBundled(ctx context.Context, path string) error {
	handler, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return err
	}
	defer handler.Close()

	return markApplied(ctx, handler, BundledMigrations)
}
