package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Rsync copies a local directory into a destination with the system rsync,
// preserving attributes. Content already at the destination is left alone, so
// sibling trees on a shared target survive a sync. Host is optional; when
// empty the destination is a local path, which rsync handles the same way.
type Rsync struct {
	logger *slog.Logger
	Host   string
	Path   string
}

// NewRsync creates a publisher targeting path on host (or a local path when
// host is empty).
func NewRsync(host, path string) *Rsync {
	return &Rsync{
		logger: slog.With("component", "rsync"),
		Host:   host,
		Path:   path,
	}
}

// Destination returns the rsync target spec.
func (r *Rsync) Destination() string {
	if r.Host == "" {
		return r.Path
	}
	return r.Host + ":" + r.Path
}

// Args returns the rsync argument list for copying src into the destination.
// The trailing slash on src copies contents, not the directory itself.
func (r *Rsync) Args(src string) []string {
	return []string{"-a", strings.TrimSuffix(src, "/") + "/", r.Destination()}
}

// Sync copies src into the destination.
func (r *Rsync) Sync(ctx context.Context, src string) error {
	args := r.Args(src)
	r.logger.Info("syncing", "src", src, "dest", r.Destination())

	cmd := exec.CommandContext(ctx, "rsync", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rsync to %s: %w: %s", r.Destination(), err, strings.TrimSpace(string(output)))
	}
	return nil
}
