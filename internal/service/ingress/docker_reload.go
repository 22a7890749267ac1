package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Reloader brings the shared proxy to a state where it serves the vhost
// files currently on disk. It keeps no state of its own: the proxy's
// condition is derived fresh on every call, so the controller stays correct
// across restarts of this process.
type Reloader struct {
	client      *client.Client
	container   string
	composeFile string
	logger      *slog.Logger
}

// NewReloader constructs a Reloader for the named proxy container, started
// from the given compose file when not already running.
func NewReloader(container, composeFile string, logger *slog.Logger) (*Reloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, fmt.Errorf("container name required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Reloader{client: cli, container: container, composeFile: composeFile, logger: logger}, nil
}

// Ensure signals a running proxy to re-read its configuration, or brings the
// topology up from its compose definition when no instance is active. nginx
// treats SIGHUP as a graceful reload, so connections to unrelated sites are
// not dropped.
func (r *Reloader) Ensure(ctx context.Context) error {
	inspect, err := r.client.ContainerInspect(ctx, r.container)
	switch {
	case errdefs.IsNotFound(err):
		return r.start(ctx)
	case err != nil:
		return fmt.Errorf("%w: inspect %s: %v", ErrReloadFailed, r.container, err)
	case inspect.State == nil || !inspect.State.Running:
		return r.start(ctx)
	}

	r.logger.Info("reloading proxy configuration", "container", r.container)
	if err := r.client.ContainerKill(ctx, r.container, "HUP"); err != nil {
		return fmt.Errorf("%w: signal %s: %v", ErrReloadFailed, r.container, err)
	}
	return nil
}

func (r *Reloader) start(ctx context.Context) error {
	if _, err := os.Stat(r.composeFile); err != nil {
		return fmt.Errorf("%w: %s", ErrComposeFileMissing, r.composeFile)
	}
	r.logger.Info("proxy not running, starting topology", "compose_file", r.composeFile)
	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d")
	cmd.Dir = filepath.Dir(r.composeFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: compose up: %v: %s", ErrReloadFailed, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Close releases the underlying Docker client.
func (r *Reloader) Close() error {
	return r.client.Close()
}
