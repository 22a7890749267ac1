package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/splax/statichost/internal/domain"
	"github.com/splax/statichost/internal/repository"
)

// Store implements repository.DeploymentRepository on a directory of JSON
// files, one per deployment id. The directory layout and record shape are an
// external contract shared with the proxy host tooling.
type Store struct {
	dir string
}

// New constructs a Store rooted at dir. The directory is created lazily on
// first Put so listing an unused base dir stays read-only.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("record directory cannot be empty")
	}
	return &Store{dir: dir}, nil
}

var _ repository.DeploymentRepository = (*Store)(nil)

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Put serializes the record to <dir>/<id>.json, overwriting any prior file.
func (s *Store) Put(_ context.Context, record *domain.Deployment) error {
	if record == nil || record.ProjectID == "" {
		return fmt.Errorf("record must have a project id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.ProjectID, err)
	}
	if err := os.WriteFile(s.path(record.ProjectID), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", record.ProjectID, err)
	}
	return nil
}

// Get loads one record, returning repository.ErrNotFound when absent.
func (s *Store) Get(_ context.Context, id string) (*domain.Deployment, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	var record domain.Deployment
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &record, nil
}

// ListIDs returns the id of every record file, ordered by filename, which
// ReadDir guarantees. Records are not decoded, so a corrupt file still
// shows up here and its failure surfaces on Get instead. An absent record
// directory yields an empty slice, not an error.
func (s *Store) ListIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// List returns all records ordered by filename.
func (s *Store) List(ctx context.Context) ([]domain.Deployment, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	var records []domain.Deployment
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Delete removes the record file. Missing records surface as
// repository.ErrNotFound so callers see when cleanup did not finish.
func (s *Store) Delete(_ context.Context, id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}
