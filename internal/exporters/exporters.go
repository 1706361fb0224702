// Package exporters turns the record snapshot into the published site: one
// exporter per output concern, fanned out over a worker pool, each writing
// locally on export and uploading to the object store on publish.
package exporters

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/antarctica/lantern/internal/config"
	"github.com/antarctica/lantern/internal/iso"
	"github.com/antarctica/lantern/internal/items"
	"github.com/antarctica/lantern/internal/publish"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/records/admin"
	"github.com/antarctica/lantern/internal/store"
)

// Exporter is one output concern: export writes to the local site directory,
// publish uploads to the object store.
type Exporter interface {
	Name() string
	Export(ctx context.Context) error
	Publish(ctx context.Context) error
}

// Deps are the shared singletons every exporter draws on. The store must be
// frozen so all workers observe one snapshot.
type Deps struct {
	ExportPath string
	BaseURL    string
	Store      *store.Store
	Uploader   *publish.Uploader
	Codec      iso.Codec
	Keys       admin.Keys
	Templates  config.TemplatesConfig
}

// Builder returns an item view builder resolving related records through the
// snapshot store.
func (d *Deps) Builder() *items.Builder {
	return items.NewBuilder(d.BaseURL, d.Keys, func(ctx context.Context, id string) (*records.RecordRevision, error) {
		revision, err := d.Store.SelectOne(ctx, id)
		if err != nil {
			return nil, err
		}
		return &revision, nil
	})
}

func (d *Deps) writeFile(relPath string, body []byte) error {
	path := filepath.Join(d.ExportPath, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}

// resourceMeta is the object metadata attached to per-record uploads.
func resourceMeta(revision *records.RecordRevision) map[string]string {
	return map[string]string{
		"file_identifier": revision.FileIdentifier,
		"file_revision":   revision.FileRevision,
	}
}

// ResourceExporters returns the per-record exporters for one revision.
func ResourceExporters(deps *Deps, revision *records.RecordRevision) []Exporter {
	return []Exporter{
		&ISOXMLExporter{deps: deps, revision: revision},
		&ISOXMLHTMLExporter{deps: deps, revision: revision},
		&JSONExporter{deps: deps, revision: revision},
		&ItemHTMLExporter{deps: deps, revision: revision},
		&AliasExporter{deps: deps, revision: revision},
	}
}

// SiteExporters returns the site-level exporters over the whole snapshot.
func SiteExporters(deps *Deps, revisions []records.RecordRevision) []Exporter {
	return []Exporter{
		&StaticResourcesExporter{deps: deps},
		&SitePagesExporter{deps: deps},
		&SiteIndexExporter{deps: deps, revisions: revisions},
	}
}

// Mode selects what the coordinator runs on each job.
type Mode string

const (
	ModeExport  Mode = "export"
	ModePublish Mode = "publish"
)

// Coordinator fans exporter jobs out over a fixed worker pool.
type Coordinator struct {
	logger   *slog.Logger
	parallel int
}

// NewCoordinator creates a coordinator with the given pool size; 1 disables
// parallelism.
func NewCoordinator(parallel int) *Coordinator {
	if parallel < 1 {
		parallel = 1
	}
	return &Coordinator{
		logger:   slog.With("component", "exporter"),
		parallel: parallel,
	}
}

// Run executes mode on every exporter. Jobs are independent and may run in
// any order; the first error is returned after all workers drain.
func (c *Coordinator) Run(ctx context.Context, mode Mode, jobs []Exporter) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, c.parallel)
	var wg sync.WaitGroup

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(job Exporter) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			switch mode {
			case ModePublish:
				err = job.Publish(ctx)
			default:
				err = job.Export(ctx)
			}
			if err != nil {
				c.logger.Error("exporter failed", "exporter", job.Name(), "mode", mode, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s %s: %w", mode, job.Name(), err)
				}
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()
	return firstErr
}

// Jobs collects resource exporters for every revision plus the site-level
// exporters into one run list.
func Jobs(deps *Deps, revisions []records.RecordRevision) []Exporter {
	var jobs []Exporter
	for i := range revisions {
		jobs = append(jobs, ResourceExporters(deps, &revisions[i])...)
	}
	jobs = append(jobs, SiteExporters(deps, revisions)...)
	return jobs
}
