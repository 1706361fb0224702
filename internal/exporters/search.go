package exporters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antarctica/lantern/internal/config"
	"github.com/antarctica/lantern/internal/items"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/records/admin"
)

// ErrNoExport reports an exporter with no local output.
var ErrNoExport = errors.New("exporter has no export output")

// searchPost is one remote website post.
type searchPost struct {
	ID   int `json:"id"`
	Meta struct {
		FileIdentifier string `json:"file_identifier"`
		FileRevision   string `json:"file_revision"`
	} `json:"meta"`
}

// searchFields is the upsert payload for one item.
type searchFields struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	FileIdentifier  string `json:"file_identifier"`
	FileRevision    string `json:"file_revision"`
	Href            string `json:"href"`
	HierarchyLevel  string `json:"hierarchy_level"`
	PublicationDate string `json:"publication_date,omitempty"`
	Source          string `json:"source"`
	Edition         string `json:"edition,omitempty"`
	HrefThumbnail   string `json:"href_thumbnail,omitempty"`
	Status          string `json:"status"`
}

// SearchSyncExporter mirrors in-scope items into the public website's search
// index: public records that are not superseded by another record. It diffs
// against the remote posts by file revision and upserts or deletes as needed.
// It has no export output.
type SearchSyncExporter struct {
	logger    *slog.Logger
	deps      *Deps
	cfg       config.SearchConfig
	client    *http.Client
	revisions []records.RecordRevision
}

// NewSearchSync creates the sync exporter over the whole snapshot.
func NewSearchSync(deps *Deps, cfg config.SearchConfig, revisions []records.RecordRevision) *SearchSyncExporter {
	return &SearchSyncExporter{
		logger:    slog.With("component", "search_sync"),
		deps:      deps,
		cfg:       cfg,
		client:    &http.Client{Timeout: 10 * time.Second},
		revisions: revisions,
	}
}

func (e *SearchSyncExporter) Name() string { return "website_search" }

func (e *SearchSyncExporter) Export(context.Context) error {
	return fmt.Errorf("%w: %s", ErrNoExport, e.Name())
}

// InScope returns the revisions eligible for the public search index.
func (e *SearchSyncExporter) InScope() ([]records.RecordRevision, error) {
	superseded := map[string]bool{}
	for i := range e.revisions {
		revisionsOf := e.revisions[i].Identification.Aggregations.Filter(records.AggregationFilter{
			Associations: []records.AssociationCode{records.AssociationRevisionOf},
		})
		for _, aggregation := range revisionsOf {
			superseded[aggregation.Identifier.Identifier] = true
		}
	}

	var out []records.RecordRevision
	for i := range e.revisions {
		revision := e.revisions[i]
		if superseded[revision.FileIdentifier] {
			continue
		}
		administration, err := admin.Load(e.deps.Keys, &revision.Record)
		if err != nil {
			return nil, err
		}
		if items.LevelFor(administration) != items.AccessPublic {
			continue
		}
		out = append(out, revision)
	}
	return out, nil
}

func (e *SearchSyncExporter) Publish(ctx context.Context) error {
	inScope, err := e.InScope()
	if err != nil {
		return err
	}

	remote, err := e.fetchPosts(ctx)
	if err != nil {
		return err
	}
	byIdentifier := map[string]searchPost{}
	for _, post := range remote {
		byIdentifier[post.Meta.FileIdentifier] = post
	}

	wanted := map[string]bool{}
	for i := range inScope {
		revision := &inScope[i]
		wanted[revision.FileIdentifier] = true

		existing, known := byIdentifier[revision.FileIdentifier]
		if known && existing.Meta.FileRevision == revision.FileRevision {
			continue
		}
		if err := e.upsert(ctx, revision, existing.ID, known); err != nil {
			return err
		}
	}

	for _, post := range remote {
		if !wanted[post.Meta.FileIdentifier] {
			if err := e.delete(ctx, post.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *SearchSyncExporter) endpoint(suffix string) string {
	return strings.TrimSuffix(e.cfg.Endpoint, "/") + "/" + e.cfg.PostType + suffix
}

func (e *SearchSyncExporter) fetchPosts(ctx context.Context) ([]searchPost, error) {
	var all []searchPost
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s?page=%d&per_page=100&orderby=id&order=asc", e.endpoint(""), page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return nil, err
		}
		e.authorise(req)

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list website posts: %w", err)
		}
		if resp.StatusCode >= 400 {
			limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("list website posts: %s: %s", resp.Status, limited)
		}
		var posts []searchPost
		err = json.NewDecoder(resp.Body).Decode(&posts)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode website posts: %w", err)
		}
		all = append(all, posts...)
		if len(posts) < 100 {
			return all, nil
		}
	}
}

func (e *SearchSyncExporter) upsert(ctx context.Context, revision *records.RecordRevision, postID int, update bool) error {
	fields := searchFields{
		Title:          revision.Identification.Title,
		Content:        revision.Identification.Abstract,
		FileIdentifier: revision.FileIdentifier,
		FileRevision:   revision.FileRevision,
		Href:           records.ItemHref(e.deps.BaseURL, revision.FileIdentifier),
		HierarchyLevel: string(revision.HierarchyLevel),
		Source:         "catalogue",
		Edition:        revision.Identification.Edition,
		Status:         "publish",
	}
	if published, ok := revision.Identification.Dates[records.DateRolePublication]; ok {
		fields.PublicationDate = published.String()
	}
	if overviews := revision.Identification.GraphicOverviews.Filter("overview"); len(overviews) > 0 {
		fields.HrefThumbnail = overviews[0].Href
	}

	url := e.endpoint("")
	if update {
		url = fmt.Sprintf("%s/%d?context=edit", e.endpoint(""), postID)
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorise(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert website post for %s: %w", revision.FileIdentifier, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upsert website post for %s: %s: %s", revision.FileIdentifier, resp.Status, limited)
	}

	e.logger.Info("synced item", "file_identifier", revision.FileIdentifier, "update", update)
	return nil
}

func (e *SearchSyncExporter) delete(ctx context.Context, postID int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", e.endpoint(""), postID), http.NoBody)
	if err != nil {
		return err
	}
	e.authorise(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete website post %d: %w", postID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("delete website post %d: %s", postID, resp.Status)
	}

	e.logger.Info("deleted orphaned post", "post", postID)
	return nil
}

func (e *SearchSyncExporter) authorise(req *http.Request) {
	if e.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
	}
}
