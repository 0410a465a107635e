package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/mapper"
)

// FileRepository implements domain.CatalogRepository on top of an afero filesystem
type FileRepository struct {
	log zerolog.Logger
	fs  afero.Fs
}

// NewFileRepository creates a new file-based repository
func NewFileRepository(log zerolog.Logger, fs afero.Fs) *FileRepository {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &FileRepository{
		log: log.With().Str("module", "repository").Logger(),
		fs:  fs,
	}
}

var _ domain.CatalogRepository = (*FileRepository)(nil)

func isYAML(path domain.CatalogPath) bool {
	ext := strings.ToLower(filepath.Ext(string(path)))
	return ext == ".yaml" || ext == ".yml"
}

// Get reads a catalog file
func (r *FileRepository) Get(ctx context.Context, path domain.CatalogPath) ([]domain.Anime, error) {
	info, err := r.fs.Stat(string(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file does not exist: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	body, err := afero.ReadFile(r.fs, string(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	if isYAML(path) {
		a := []domain.Anime{}
		if err := yaml.Unmarshal(body, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
		}
		return a, nil
	}

	a, err := mapper.UnmarshalCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json from %s: %w", path, err)
	}

	return a, nil
}

// Store writes a catalog file, replacing what was there
func (r *FileRepository) Store(ctx context.Context, path domain.CatalogPath, anime []domain.Anime) error {
	var (
		b   []byte
		err error
	)
	if isYAML(path) {
		b, err = yaml.Marshal(anime)
	} else {
		b, err = mapper.MarshalCatalog(anime)
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal catalog")
	}

	// Ensure directory exists
	dir := filepath.Dir(string(path))
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := afero.WriteFile(r.fs, string(path), b, 0644); err != nil {
		return fmt.Errorf("failed to write to file %s: %w", path, err)
	}

	r.log.Debug().Str("path", string(path)).Int("count", len(anime)).Msg("stored catalog")
	return nil
}

// Merge overlays anime onto the catalog at path, one entry per name, and
// stores the result. A missing file starts an empty catalog.
func (r *FileRepository) Merge(ctx context.Context, path domain.CatalogPath, anime []domain.Anime) ([]domain.Anime, error) {
	existing := []domain.Anime{}

	ok, err := afero.Exists(r.fs, string(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check %s", path)
	}
	if ok {
		existing, err = r.Get(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	merged := mapper.MergeCatalog(existing, anime)
	if err := r.Store(ctx, path, merged); err != nil {
		return nil, err
	}

	r.log.Info().Str("path", string(path)).Int("added", len(merged)-len(existing)).Int("total", len(merged)).Msg("merged catalog")
	return merged, nil
}
