package exporters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antarctica/lantern/internal/htmlutil"
	"github.com/antarctica/lantern/internal/publish"
	"github.com/antarctica/lantern/internal/records"
)

// ItemHTMLExporter renders the item page for one record.
type ItemHTMLExporter struct {
	deps     *Deps
	revision *records.RecordRevision
}

func (e *ItemHTMLExporter) Name() string { return "item_html" }

func (e *ItemHTMLExporter) key() string {
	return "items/" + e.revision.FileIdentifier + "/index.html"
}

func (e *ItemHTMLExporter) body(ctx context.Context) ([]byte, error) {
	view, err := e.deps.Builder().Build(ctx, e.revision)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = siteTemplates.ExecuteTemplate(&buf, "item", map[string]any{
		"View":            view,
		"PlausibleDomain": e.deps.Templates.PlausibleDomain,
		"ContactEndpoint": e.deps.Templates.ItemContactEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("render item page for %s: %w", e.revision.FileIdentifier, err)
	}
	return htmlutil.Prettify(buf.Bytes())
}

func (e *ItemHTMLExporter) Export(ctx context.Context) error {
	body, err := e.body(ctx)
	if err != nil {
		return err
	}
	return e.deps.writeFile(e.key(), body)
}

func (e *ItemHTMLExporter) Publish(ctx context.Context) error {
	body, err := e.body(ctx)
	if err != nil {
		return err
	}
	return e.deps.Uploader.UploadContent(ctx, e.key(), body,
		publish.WithMetadata(resourceMeta(e.revision)),
	)
}

// Syncer copies a staged tree onto the trusted host.
type Syncer interface {
	Sync(ctx context.Context, src string) error
}

// PublishTrusted renders every item page into one staging tree with
// group-readable modes and copies it onto the trusted host in a single sync.
// env selects the live or testing tree; content already on the share outside
// this batch is left alone.
func PublishTrusted(ctx context.Context, deps *Deps, revisions []records.RecordRevision, sync Syncer, env string) error {
	staging, err := os.MkdirTemp("", "lantern-trusted-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	for i := range revisions {
		exporter := &ItemHTMLExporter{deps: deps, revision: &revisions[i]}
		body, err := exporter.body(ctx)
		if err != nil {
			return err
		}

		itemDir := filepath.Join(staging, env, "items", revisions[i].FileIdentifier)
		if err := os.MkdirAll(itemDir, 0o770); err != nil {
			return fmt.Errorf("create staging tree: %w", err)
		}
		if err := os.WriteFile(filepath.Join(itemDir, "index.html"), body, 0o660); err != nil {
			return fmt.Errorf("write staged item page: %w", err)
		}
		// MkdirTemp applies a restrictive default; the share needs group
		// access.
		for dir := itemDir; dir != staging; dir = filepath.Dir(dir) {
			if err := os.Chmod(dir, 0o770); err != nil {
				return fmt.Errorf("set staging mode: %w", err)
			}
		}
	}

	return sync.Sync(ctx, staging)
}
