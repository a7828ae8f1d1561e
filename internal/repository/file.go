package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/varoOP/biblestore/internal/domain"
)

// FileRepository reads bundle manifests and writes sync exports.
type FileRepository struct {
	log zerolog.Logger
	fs  afero.Fs
}

// NewFileRepository creates a new file-based repository
func NewFileRepository(log zerolog.Logger, fs afero.Fs) *FileRepository {
	return &FileRepository{
		log: log.With().Str("module", "repository").Logger(),
		fs:  fs,
	}
}

// GetManifest reads a bundle manifest. Relative source paths are resolved
// against the manifest's directory.
func (r *FileRepository) GetManifest(ctx context.Context, path string) (*domain.BundleManifest, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	m := &domain.BundleManifest{}
	if err := yaml.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	if err := validateManifest(m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Verses {
		m.Verses[i].Path = resolve(base, m.Verses[i].Path)
	}
	for i := range m.CrossReferences {
		m.CrossReferences[i].Path = resolve(base, m.CrossReferences[i].Path)
	}
	for i := range m.Morphology {
		m.Morphology[i].Path = resolve(base, m.Morphology[i].Path)
	}
	for i := range m.DataSources {
		if m.DataSources[i].ChecksumOf != "" {
			m.DataSources[i].ChecksumOf = resolve(base, m.DataSources[i].ChecksumOf)
		}
	}

	r.log.Debug().
		Str("path", path).
		Int("translations", len(m.Translations)).
		Int("sources", len(m.Verses)+len(m.CrossReferences)+len(m.Morphology)).
		Msg("loaded bundle manifest")
	return m, nil
}

func validateManifest(m *domain.BundleManifest) error {
	known := make(map[string]struct{}, len(m.Translations))
	for _, t := range m.Translations {
		if t.ID == "" {
			return fmt.Errorf("translation without id")
		}
		if _, dup := known[t.ID]; dup {
			return fmt.Errorf("duplicate translation %q", t.ID)
		}
		known[t.ID] = struct{}{}
	}

	for _, src := range m.Verses {
		if _, ok := known[src.Translation]; !ok {
			return fmt.Errorf("verse source %s references unknown translation %q", src.Path, src.Translation)
		}
		if src.Path == "" {
			return fmt.Errorf("verse source for %q has no path", src.Translation)
		}
	}

	for _, src := range m.CrossReferences {
		if src.Path == "" {
			return fmt.Errorf("cross reference source has no path")
		}
	}

	for _, src := range m.Morphology {
		if src.Path == "" {
			return fmt.Errorf("morphology source for %q has no path", src.Language)
		}
		if src.Language == "" {
			return fmt.Errorf("morphology source %s has no language", src.Path)
		}
	}

	for _, ds := range m.DataSources {
		if ds.ID == "" {
			return fmt.Errorf("data source without id")
		}
	}

	return nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// StoreManifest writes a manifest as YAML.
func (r *FileRepository) StoreManifest(ctx context.Context, path string, m *domain.BundleManifest) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}

	if err := r.write(path, b); err != nil {
		return err
	}

	r.log.Debug().Str("path", path).Msg("stored bundle manifest")
	return nil
}

// StorePending writes rows awaiting sync as indented JSON.
func (r *FileRepository) StorePending(ctx context.Context, path string, rows []domain.PendingRow) error {
	if rows == nil {
		rows = []domain.PendingRow{}
	}

	j, err := json.MarshalIndent(rows, "", "   ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending rows: %w", err)
	}

	if err := r.write(path, j); err != nil {
		return err
	}

	r.log.Debug().Str("path", path).Int("count", len(rows)).Msg("stored pending rows")
	return nil
}

// GetPending reads rows written by StorePending.
func (r *FileRepository) GetPending(ctx context.Context, path string) ([]domain.PendingRow, error) {
	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var rows []domain.PendingRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal json from %s: %w", path, err)
	}

	return rows, nil
}

func (r *FileRepository) write(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := afero.WriteFile(r.fs, path, b, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
