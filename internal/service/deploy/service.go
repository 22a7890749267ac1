package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/splax/statichost/internal/config"
	"github.com/splax/statichost/internal/domain"
	"github.com/splax/statichost/internal/netutil"
	"github.com/splax/statichost/internal/ports"
	"github.com/splax/statichost/internal/repository"
	"github.com/splax/statichost/internal/service/ingress"
	"github.com/splax/statichost/internal/stage"
)

// ProxyReloader brings the shared proxy in sync with the vhost files on
// disk. Satisfied by *ingress.Reloader.
type ProxyReloader interface {
	Ensure(ctx context.Context) error
}

// Service orchestrates the deploy and cleanup lifecycle. Invocations are not
// safe to run concurrently against the same base directory; callers
// serialize them.
type Service struct {
	cfg      config.Config
	records  repository.DeploymentRepository
	stager   *stage.Manager
	reloader ProxyReloader
	logger   *slog.Logger
}

// New returns a deployment lifecycle service.
func New(cfg config.Config, records repository.DeploymentRepository, stager *stage.Manager, reloader ProxyReloader, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		records:  records,
		stager:   stager,
		reloader: reloader,
		logger:   logger,
	}
}

// Deploy stages sourceDir behind the shared proxy and persists the
// deployment record. Side-effecting steps push their inverse onto an undo
// stack; a later failure unwinds the stack before propagating, so a partial
// deploy leaves neither staged assets, a vhost file, nor a record behind.
func (s *Service) Deploy(ctx context.Context, sourceDir string) (*domain.Deployment, error) {
	source, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", stage.ErrSourceNotFound, sourceDir)
	}
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", stage.ErrSourceNotFound, source)
	}

	id, err := s.generateID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate deployment id: %w", err)
	}

	port, err := ports.Allocate(s.cfg.PortStart, s.cfg.PortAttempts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("starting deployment", "project_id", id, "port", port, "source_dir", source)

	var undo []func()
	reloaded := false
	unwind := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		if reloaded {
			// Drop the removed vhost from the proxy as well.
			if err := s.reloader.Ensure(ctx); err != nil {
				s.logger.Warn("reload after unwind failed", "project_id", id, "error", err)
			}
		}
	}

	htmlDir, err := s.stager.Stage(source, id)
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() {
		if err := s.stager.Remove(htmlDir); err != nil {
			s.logger.Warn("unwind of staged assets failed", "project_id", id, "error", err)
		}
	})

	confFile, err := ingress.WriteSiteConf(s.cfg.ConfDir(), s.cfg.ServeRoot, id, port)
	if err != nil {
		unwind()
		return nil, err
	}
	undo = append(undo, func() {
		if err := ingress.RemoveSiteConf(confFile); err != nil {
			s.logger.Warn("unwind of vhost file failed", "project_id", id, "error", err)
		}
	})

	if err := s.reloader.Ensure(ctx); err != nil {
		unwind()
		return nil, err
	}
	reloaded = true

	record := &domain.Deployment{
		ProjectID:  id,
		Port:       port,
		URL:        fmt.Sprintf("http://%s:%d", netutil.OutboundIP(), port),
		HTMLDir:    htmlDir,
		ConfFile:   confFile,
		SourceDir:  source,
		DeployedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := s.records.Put(ctx, record); err != nil {
		unwind()
		return nil, err
	}

	s.logger.Info("deployment complete", "project_id", id, "url", record.URL)
	return record, nil
}

// Cleanup removes everything a deployment owns and deletes its record.
// repository.ErrNotFound propagates untouched when the id has no record; in
// that case nothing on disk is mutated.
func (s *Service) Cleanup(ctx context.Context, id string) error {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := os.Stat(record.HTMLDir); err == nil {
		s.logger.Info("removing staged assets", "project_id", id, "html_dir", record.HTMLDir)
		if err := s.stager.Remove(record.HTMLDir); err != nil {
			return err
		}
	}
	if err := ingress.RemoveSiteConf(record.ConfFile); err != nil {
		return err
	}
	if err := s.reloader.Ensure(ctx); err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("cleanup complete", "project_id", id)
	return nil
}

// Result reports the outcome of one id within a bulk cleanup.
type Result struct {
	ProjectID string
	Err       error
}

// CleanupAll applies Cleanup to every current record independently,
// continuing past individual failures so one bad record does not block the
// rest of the batch. Ids come from record filenames, not decoded records:
// an undecodable record fails its own cleanup without hiding the others.
func (s *Service) CleanupAll(ctx context.Context) ([]Result, error) {
	ids, err := s.records.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		err := s.Cleanup(ctx, id)
		if err != nil {
			s.logger.Warn("cleanup failed", "project_id", id, "error", err)
		}
		results = append(results, Result{ProjectID: id, Err: err})
	}
	return results, nil
}

// List returns all active deployment records.
func (s *Service) List(ctx context.Context) ([]domain.Deployment, error) {
	return s.records.List(ctx)
}

// generateID mints a time-derived identifier, stepping past ids whose record
// or staged directory still exists so an id is never reused while a
// deployment owns it. A store fault while probing is terminal rather than
// treated as a taken id, so a persistent I/O error cannot spin this loop.
func (s *Service) generateID(ctx context.Context) (string, error) {
	ts := time.Now().Unix()
	for {
		id := fmt.Sprintf("project-%d", ts)
		taken, err := s.taken(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
		ts++
	}
}

func (s *Service) taken(ctx context.Context, id string) (bool, error) {
	if _, err := s.records.Get(ctx, id); err == nil {
		return true, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if _, err := os.Stat(s.stager.Dir(id)); err == nil {
		return true, nil
	}
	return false, nil
}
