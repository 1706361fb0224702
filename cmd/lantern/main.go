package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/antarctica/lantern/internal/cache"
	"github.com/antarctica/lantern/internal/config"
	"github.com/antarctica/lantern/internal/exporters"
	"github.com/antarctica/lantern/internal/gitlab"
	"github.com/antarctica/lantern/internal/iso"
	"github.com/antarctica/lantern/internal/observability"
	"github.com/antarctica/lantern/internal/publish"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/records/admin"
	"github.com/antarctica/lantern/internal/store"
	"github.com/antarctica/lantern/internal/verify"
)

var CLI struct {
	Build struct {
		Select []string `short:"s" help:"File identifiers to build (default: all)"`
	} `cmd:"" help:"Export the site to the local export directory"`

	Publish struct {
		Select      []string `short:"s" help:"File identifiers to publish (default: all)"`
		EmptyBucket bool     `help:"Delete every object in the bucket first"`
		SyncSearch  bool     `help:"Sync in-scope items to the public website search index" default:"true" negatable:""`
	} `cmd:"" help:"Upload the site to the object store"`

	Verify struct {
		Select []string `short:"s" help:"File identifiers to verify (default: all)"`
	} `cmd:"" help:"Probe the deployed site and write a verification report"`

	Records struct {
		Pull struct {
			Output string   `short:"o" help:"Directory to write record files to" default:"./records"`
			Select []string `short:"s" help:"File identifiers to pull (default: all)"`
		} `cmd:"" help:"Download records from the store as canonical JSON files"`

		Push struct {
			Paths []string `arg:"" help:"Record files or directories to push"`
		} `cmd:"" help:"Commit local record files to the store"`
	} `cmd:"" help:"Work with records directly"`
}

func main() {
	parsed := kong.Parse(&CLI,
		kong.Name("lantern"),
		kong.Description("BAS Data Catalogue publishing pipeline."),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flush, err := observability.Setup(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, parsed.Command(), cfg); err != nil {
		var invalidErr *records.RecordInvalidError
		if errors.As(err, &invalidErr) {
			slog.Error("record validation failed", "file_identifier", invalidErr.FileIdentifier, "error", err)
		} else {
			slog.Error("command failed", "error", err)
		}
		observability.CaptureError(err)
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	switch command {
	case "build":
		return runBuild(ctx, cfg, CLI.Build.Select)
	case "publish":
		return runPublish(ctx, cfg, CLI.Publish.Select)
	case "verify":
		return runVerify(ctx, cfg, CLI.Verify.Select)
	case "records pull":
		return runPull(ctx, cfg, CLI.Records.Pull.Output, CLI.Records.Pull.Select)
	case "records push <paths>":
		return runPush(ctx, cfg, CLI.Records.Push.Paths)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func source(cfg *config.Config) gitlab.Source {
	return gitlab.Source{
		Endpoint:  cfg.Store.Endpoint,
		ProjectID: cfg.Store.ProjectID,
		Ref:       cfg.Store.Branch,
	}
}

func newStore(cfg *config.Config, opts ...cache.Option) *store.Store {
	client := gitlab.NewClient(cfg.Store.Endpoint, cfg.Store.Token, cfg.Store.ProjectID)
	c := cache.New(client, cfg.Store.CachePath, source(cfg),
		append([]cache.Option{cache.WithParallelJobs(cfg.ParallelJobs)}, opts...)...)
	return store.New(client, c, source(cfg))
}

// snapshot refreshes the cache through a normal store, then returns a frozen
// store over it plus the selected revisions. Exporter workers share the
// frozen instance so every job observes the same state.
func snapshot(ctx context.Context, cfg *config.Config, ids []string) (*store.Store, []records.RecordRevision, error) {
	warm := newStore(cfg)
	if _, err := warm.Select(ctx, nil); err != nil {
		return nil, nil, err
	}

	client := gitlab.NewClient(cfg.Store.Endpoint, cfg.Store.Token, cfg.Store.ProjectID)
	frozen := store.New(client,
		cache.New(client, cfg.Store.CachePath, source(cfg), cache.Frozen()),
		source(cfg), store.Frozen())

	var selector []string
	if len(ids) > 0 {
		selector = ids
	}
	revisions, err := frozen.Select(ctx, selector)
	if err != nil {
		return nil, nil, err
	}
	return frozen, revisions, nil
}

func loadKeys(cfg *config.Config) (admin.Keys, error) {
	var keys admin.Keys
	var err error

	if cfg.AdminKeys.EncryptionPrivate != "" {
		if keys.EncryptionPrivate, err = admin.ParseKey(cfg.AdminKeys.EncryptionPrivate); err != nil {
			return keys, err
		}
	}
	if cfg.AdminKeys.EncryptionPublic != "" {
		if keys.EncryptionPublic, err = admin.ParseKey(cfg.AdminKeys.EncryptionPublic); err != nil {
			return keys, err
		}
	}
	if cfg.AdminKeys.SigningPublic != "" {
		if keys.SigningPublic, err = admin.ParseKey(cfg.AdminKeys.SigningPublic); err != nil {
			return keys, err
		}
	}
	if cfg.AdminKeys.SigningPrivate != "" {
		if keys.SigningPrivate, err = admin.ParseKey(cfg.AdminKeys.SigningPrivate); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func newDeps(ctx context.Context, cfg *config.Config, ids []string, withUploader bool) (*exporters.Deps, []records.RecordRevision, error) {
	frozen, revisions, err := snapshot(ctx, cfg, ids)
	if err != nil {
		return nil, nil, err
	}
	keys, err := loadKeys(cfg)
	if err != nil {
		return nil, nil, err
	}

	deps := &exporters.Deps{
		ExportPath: cfg.ExportPath,
		BaseURL:    cfg.BaseURL,
		Store:      frozen,
		Codec:      iso.NewEncoder(),
		Keys:       keys,
		Templates:  cfg.Templates,
	}
	if withUploader {
		client, err := publish.NewS3Client(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		deps.Uploader = publish.NewUploader(client, cfg.AWS.S3Bucket)
	}
	return deps, revisions, nil
}

func runBuild(ctx context.Context, cfg *config.Config, ids []string) error {
	deps, revisions, err := newDeps(ctx, cfg, ids, false)
	if err != nil {
		return err
	}
	slog.Info("building site", "records", len(revisions), "export_path", cfg.ExportPath)

	coordinator := exporters.NewCoordinator(cfg.ParallelJobs)
	return coordinator.Run(ctx, exporters.ModeExport, exporters.Jobs(deps, revisions))
}

func runPublish(ctx context.Context, cfg *config.Config, ids []string) error {
	deps, revisions, err := newDeps(ctx, cfg, ids, true)
	if err != nil {
		return err
	}
	slog.Info("publishing site", "records", len(revisions), "bucket", cfg.AWS.S3Bucket)

	if CLI.Publish.EmptyBucket {
		if err := deps.Uploader.EmptyBucket(ctx); err != nil {
			return err
		}
	}

	jobs := exporters.Jobs(deps, revisions)
	coordinator := exporters.NewCoordinator(cfg.ParallelJobs)
	if err := coordinator.Run(ctx, exporters.ModePublish, jobs); err != nil {
		return err
	}

	if cfg.Trusted.Host != "" {
		rsync := publish.NewRsync(cfg.Trusted.Host, cfg.Trusted.Path)
		if err := exporters.PublishTrusted(ctx, deps, revisions, rsync, cfg.Trusted.Environment); err != nil {
			return err
		}
	}

	if CLI.Publish.SyncSearch && cfg.Search.Endpoint != "" {
		sync := exporters.NewSearchSync(deps, cfg.Search, revisions)
		if err := sync.Publish(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runVerify(ctx context.Context, cfg *config.Config, ids []string) error {
	_, revisions, err := newDeps(ctx, cfg, ids, false)
	if err != nil {
		return err
	}

	plan := verify.Plan(verify.PlanConfig{
		BaseURL:         cfg.BaseURL,
		SharePointProxy: cfg.Verify.SharePointProxyEndpoint,
		SANProxy:        cfg.Verify.SANProxyEndpoint,
	}, revisions)
	slog.Info("verifying site", "base_url", cfg.BaseURL, "jobs", len(plan))

	verify.NewRunner(cfg.ParallelJobs).Run(ctx, plan)

	report := verify.NewReport(cfg.BaseURL, plan)
	if err := report.Write(cfg.ExportPath); err != nil {
		return err
	}
	slog.Info("verification complete", "overall", report.Overall, "totals", report.Totals)
	if report.Overall != verify.ResultPass {
		return errors.New("verification failed")
	}
	return nil
}

func runPull(ctx context.Context, cfg *config.Config, output string, ids []string) error {
	warm := newStore(cfg)
	var selector []string
	if len(ids) > 0 {
		selector = ids
	}
	revisions, err := warm.Select(ctx, selector)
	if err != nil {
		return err
	}

	for i := range revisions {
		revision := &revisions[i]
		body, err := revision.DumpsJSON(true)
		if err != nil {
			return err
		}
		path := filepath.Join(output, revision.FileIdentifier+".json")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	slog.Info("pulled records", "count", len(revisions), "output", output)
	return nil
}

func runPush(ctx context.Context, cfg *config.Config, paths []string) error {
	var recs []records.Record
	for _, path := range paths {
		if err := collectRecords(path, &recs); err != nil {
			return err
		}
	}
	if len(recs) == 0 {
		return errors.New("no record files found")
	}

	result, err := newStore(cfg).Push(ctx, recs)
	if err != nil {
		return err
	}
	if result.Commit == "" {
		slog.Info("no changes to push", "skipped", len(result.Skipped))
		return nil
	}
	slog.Info("pushed records",
		"commit", result.Commit,
		"new", len(result.Created), "updated", len(result.Updated), "skipped", len(result.Skipped),
		"merge_request", result.MergeRequest.WebURL)
	return nil
}

func collectRecords(path string, recs *[]records.Record) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := collectRecords(filepath.Join(path, entry.Name()), recs); err != nil {
				return err
			}
		}
		return nil
	}
	if filepath.Ext(path) != ".json" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	record, err := records.Structure(data)
	if err != nil {
		return &records.RecordInvalidError{FileIdentifier: path, Cause: err}
	}
	*recs = append(*recs, *record)
	return nil
}
