package exporters

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/antarctica/lantern/internal/htmlutil"
	"github.com/antarctica/lantern/internal/records"
)

// StaticResourcesExporter copies embedded site assets (CSS, text files, the
// ISO XSLT) into place. Published keys live under static/ and are only
// uploaded when absent, since asset content never changes for a given path.
type StaticResourcesExporter struct {
	deps *Deps
}

func (e *StaticResourcesExporter) Name() string { return "static_resources" }

func (e *StaticResourcesExporter) Export(context.Context) error {
	return fs.WalkDir(staticFS, "static", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		body, err := staticFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded asset %s: %w", path, err)
		}
		return e.deps.writeFile(path, body)
	})
}

func (e *StaticResourcesExporter) Publish(ctx context.Context) error {
	staging, err := os.MkdirTemp("", "lantern-static-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	err = fs.WalkDir(staticFS, "static", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		body, err := staticFS.ReadFile(path)
		if err != nil {
			return err
		}
		target := filepath.Join(staging, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, body, 0o644)
	})
	if err != nil {
		return fmt.Errorf("stage static assets: %w", err)
	}
	return e.deps.Uploader.UploadDirectoryIfMissing(ctx, filepath.Join(staging, "static"), "static")
}

// sitePages are the static legal pages, the formatting reference and the
// not-found page.
var sitePages = []struct {
	path  string
	title string
	body  string
}{
	{"legal/accessibility/index.html", "Accessibility statement", "<p>This statement applies to the BAS Data Catalogue.</p>"},
	{"legal/cookies/index.html", "Cookies policy", "<p>This site uses a minimal set of cookies.</p>"},
	{"legal/copyright/index.html", "Copyright", "<p>Content is subject to UK Research and Innovation copyright.</p>"},
	{"legal/privacy/index.html", "Privacy policy", "<p>How we handle personal information.</p>"},
	{"-/formatting/index.html", "Supported formatting", "<p>Abstracts and lineage statements support Markdown: <em>emphasis</em>, <strong>strong emphasis</strong>, lists and links.</p>"},
	{"404.html", "Page not found", "<p>The page you requested does not exist. <a href=\"/\">Return to the catalogue</a>.</p>"},
}

// SitePagesExporter renders the legal and 404 pages.
type SitePagesExporter struct {
	deps *Deps
}

func (e *SitePagesExporter) Name() string { return "site_pages" }

func (e *SitePagesExporter) render(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	err := siteTemplates.ExecuteTemplate(&buf, "page", map[string]any{
		"Title": title,
		"Body":  body,
	})
	if err != nil {
		return nil, fmt.Errorf("render page %s: %w", title, err)
	}
	return htmlutil.Prettify(buf.Bytes())
}

func (e *SitePagesExporter) Export(context.Context) error {
	for _, page := range sitePages {
		body, err := e.render(page.title, page.body)
		if err != nil {
			return err
		}
		if err := e.deps.writeFile(page.path, body); err != nil {
			return err
		}
	}
	return nil
}

func (e *SitePagesExporter) Publish(ctx context.Context) error {
	for _, page := range sitePages {
		body, err := e.render(page.title, page.body)
		if err != nil {
			return err
		}
		if err := e.deps.Uploader.UploadContent(ctx, page.path, body); err != nil {
			return err
		}
	}
	return nil
}

// indexEntry is one row of the site index listing.
type indexEntry struct {
	ID             string
	Title          string
	HierarchyLevel records.HierarchyLevel
	Aliases        records.Identifiers
}

// SiteIndexExporter writes a plain listing of every record and its aliases,
// used for smoke checks rather than navigation.
type SiteIndexExporter struct {
	deps      *Deps
	revisions []records.RecordRevision
}

func (e *SiteIndexExporter) Name() string { return "site_index" }

// IndexPath is where the listing is served, under the reserved site prefix.
const IndexPath = "-/index/index.html"

func (e *SiteIndexExporter) body() ([]byte, error) {
	entries := make([]indexEntry, 0, len(e.revisions))
	for i := range e.revisions {
		revision := &e.revisions[i]
		entries = append(entries, indexEntry{
			ID:             revision.FileIdentifier,
			Title:          revision.Identification.Title,
			HierarchyLevel: revision.HierarchyLevel,
			Aliases:        revision.Aliases(),
		})
	}

	var buf bytes.Buffer
	if err := siteTemplates.ExecuteTemplate(&buf, "index", map[string]any{"Entries": entries}); err != nil {
		return nil, fmt.Errorf("render site index: %w", err)
	}
	return htmlutil.Prettify(buf.Bytes())
}

func (e *SiteIndexExporter) Export(context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.writeFile(IndexPath, body)
}

func (e *SiteIndexExporter) Publish(ctx context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.Uploader.UploadContent(ctx, IndexPath, body)
}
