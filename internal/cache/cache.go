// Package cache mirrors the remote record store into a local SQLite database
// with a per-process in-memory flash layer. It refreshes incrementally
// against the remote, falls back to full recreation when the commit range is
// too wide or the history is unsafe to replay, and supports frozen and
// offline operation.
package cache

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/antarctica/lantern/internal/gitlab"
	"github.com/antarctica/lantern/internal/records"
)

// RecordsPrefix is the directory in the remote repository holding record files.
const RecordsPrefix = "records"

// maxRefreshCommits bounds incremental refresh; wider ranges recreate the
// cache instead, which is faster than replaying many diffs.
const maxRefreshCommits = 50

var (
	// ErrNotInitialised reports an operation needing a cache that does not
	// exist yet.
	ErrNotInitialised = errors.New("cache not initialised")
	// ErrIntegrity reports remote history the incremental refresh cannot
	// replay safely (renames or deletions of record files).
	ErrIntegrity = errors.New("cache integrity")
	// ErrTooOutdated reports a commit range too wide for incremental refresh.
	ErrTooOutdated = errors.New("cache too outdated")
	// ErrFrozen reports an operation that would contact the remote or mutate
	// state while the cache is frozen.
	ErrFrozen = errors.New("cache frozen")
)

// RemoteClient is the read-path remote API surface the cache depends on.
type RemoteClient interface {
	ListFiles(ctx context.Context, path, ref string) ([]gitlab.TreeEntry, error)
	FetchFile(ctx context.Context, path, ref string) (*gitlab.File, error)
	HeadCommit(ctx context.Context, ref string) (string, error)
	CommitRange(ctx context.Context, from, to string) ([]gitlab.Commit, error)
	CommitDiff(ctx context.Context, sha string) ([]gitlab.Diff, error)
}

// Cache is a durable local mirror of the records on one remote source.
// The cache exclusively owns its directory.
type Cache struct {
	logger   *slog.Logger
	client   RemoteClient
	path     string
	source   gitlab.Source
	frozen   bool
	parallel int

	mu    sync.Mutex
	db    *sql.DB
	flash map[string]records.RecordRevision
}

// Option configures a Cache.
type Option func(*Cache)

// Frozen puts the cache in read-only mode: no remote contact, no mutation.
func Frozen() Option {
	return func(c *Cache) { c.frozen = true }
}

// WithParallelJobs sets the fetch worker pool size; 1 disables parallelism.
func WithParallelJobs(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.parallel = n
		}
	}
}

// New creates a cache over path for the given source.
func New(client RemoteClient, path string, source gitlab.Source, opts ...Option) *Cache {
	c := &Cache{
		logger:   slog.With("component", "cache"),
		client:   client,
		path:     path,
		source:   source,
		parallel: 1,
		flash:    map[string]records.RecordRevision{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) dbPath() string {
	return filepath.Join(c.path, "records.sqlite3")
}

// Exists reports whether the cache database exists on disk.
func (c *Cache) Exists() bool {
	_, err := os.Stat(c.dbPath())
	return err == nil
}

func (c *Cache) open() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := sql.Open("sqlite", c.dbPath())
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialise cache schema: %w", err)
	}
	c.db = db
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS record (
	record_pickled BLOB NOT NULL,
	record_jsonb BLOB NOT NULL,
	sha1 TEXT PRIMARY KEY,
	file_identifier TEXT GENERATED ALWAYS AS (json_extract(record_jsonb, '$.file_identifier')) STORED UNIQUE,
	file_revision TEXT GENERATED ALWAYS AS (json_extract(record_jsonb, '$.file_revision')) STORED
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// CachedHeadCommit returns the head commit the cache was last synced to.
func (c *Cache) CachedHeadCommit() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metaValue("head_commit")
}

// CachedSource returns the source the cache was created from.
func (c *Cache) CachedSource() (gitlab.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedSourceLocked()
}

func (c *Cache) cachedSourceLocked() (gitlab.Source, error) {
	endpoint, err := c.metaValue("source_endpoint")
	if err != nil {
		return gitlab.Source{}, err
	}
	project, err := c.metaValue("source_project")
	if err != nil {
		return gitlab.Source{}, err
	}
	ref, err := c.metaValue("source_ref")
	if err != nil {
		return gitlab.Source{}, err
	}
	return gitlab.Source{Endpoint: endpoint, ProjectID: project, Ref: ref}, nil
}

func (c *Cache) metaValue(key string) (string, error) {
	if !c.Exists() {
		return "", ErrNotInitialised
	}
	db, err := c.open()
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: missing meta key %s", ErrNotInitialised, key)
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// Get returns the cached revisions for the given identifiers, or every
// cached revision when ids is nil. Unknown identifiers are silently omitted;
// all-or-nothing semantics belong to the store layer.
func (c *Cache) Get(ctx context.Context, ids []string) ([]records.RecordRevision, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ids == nil {
		return c.getAllLocked(ctx)
	}

	out := make([]records.RecordRevision, 0, len(ids))
	for _, id := range ids {
		if revision, ok := c.flash[id]; ok {
			out = append(out, revision)
			continue
		}
		revision, found, err := c.getOneLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		c.flash[id] = revision
		out = append(out, revision)
	}
	return out, nil
}

func (c *Cache) getAllLocked(ctx context.Context) ([]records.RecordRevision, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT record_pickled FROM record ORDER BY file_identifier")
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.RecordRevision
	for rows.Next() {
		var pickled []byte
		if err := rows.Scan(&pickled); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		revision, err := unpickle(pickled)
		if err != nil {
			return nil, err
		}
		c.flash[revision.FileIdentifier] = revision
		out = append(out, revision)
	}
	return out, rows.Err()
}

func (c *Cache) getOneLocked(ctx context.Context, id string) (records.RecordRevision, bool, error) {
	db, err := c.open()
	if err != nil {
		return records.RecordRevision{}, false, err
	}
	var pickled []byte
	err = db.QueryRowContext(ctx, "SELECT record_pickled FROM record WHERE file_identifier = ?", id).Scan(&pickled)
	if errors.Is(err, sql.ErrNoRows) {
		return records.RecordRevision{}, false, nil
	}
	if err != nil {
		return records.RecordRevision{}, false, fmt.Errorf("query record %s: %w", id, err)
	}
	revision, err := unpickle(pickled)
	if err != nil {
		return records.RecordRevision{}, false, err
	}
	return revision, true, nil
}

// GetHashes returns the cached content hash for each given identifier.
// Identifiers absent from the cache are omitted from the result.
func (c *Cache) GetHashes(ctx context.Context, ids []string) (map[string]string, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.open()
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(ids))
	for _, id := range ids {
		var sha string
		err := db.QueryRowContext(ctx, "SELECT sha1 FROM record WHERE file_identifier = ?", id).Scan(&sha)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query hash for %s: %w", id, err)
		}
		hashes[id] = sha
	}
	return hashes, nil
}

// Purge deletes the cache directory.
func (c *Cache) Purge() error {
	if c.frozen {
		return fmt.Errorf("%w: purge", ErrFrozen)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

func (c *Cache) purgeLocked() error {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	c.flash = map[string]records.RecordRevision{}
	if err := os.RemoveAll(c.path); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

// ensure makes the cache usable: applicable to the configured source and, in
// normal mode, no staler than the remote head.
func (c *Cache) ensure(ctx context.Context) error {
	if c.frozen {
		if !c.Exists() {
			return fmt.Errorf("%w: cache does not exist", ErrFrozen)
		}
		cached, err := c.CachedSource()
		if err != nil {
			return err
		}
		if cached != c.source {
			return fmt.Errorf("%w: cached source %s does not match %s", ErrFrozen, cached, c.source)
		}
		return nil
	}

	head, err := c.client.HeadCommit(ctx, c.source.Ref)
	if errors.Is(err, gitlab.ErrRemoteUnavailable) {
		return c.ensureOffline(err)
	}
	if err != nil {
		return err
	}

	if !c.Exists() {
		return c.create(ctx, head)
	}
	cached, err := c.CachedSource()
	if errors.Is(err, ErrNotInitialised) {
		return c.create(ctx, head)
	}
	if err != nil {
		return err
	}
	if cached != c.source {
		c.logger.Info("cached source mismatch, recreating", "cached", cached.String(), "configured", c.source.String())
		return c.create(ctx, head)
	}

	cachedHead, err := c.CachedHeadCommit()
	if err != nil {
		return err
	}
	if cachedHead == head {
		return nil
	}

	err = c.refresh(ctx, cachedHead, head)
	if errors.Is(err, ErrIntegrity) || errors.Is(err, ErrTooOutdated) {
		c.logger.Warn("incremental refresh not possible, recreating", "reason", err)
		return c.create(ctx, head)
	}
	return err
}

func (c *Cache) ensureOffline(cause error) error {
	if !c.Exists() {
		return fmt.Errorf("remote unreachable and no usable cache: %w", cause)
	}
	cached, err := c.CachedSource()
	if err != nil {
		return err
	}
	if cached != c.source {
		return fmt.Errorf("remote unreachable and cached source %s does not match %s: %w", cached, c.source, cause)
	}
	c.logger.Warn("remote unreachable, using possibly stale cache", "source", c.source.String())
	return nil
}

// create rebuilds the cache from scratch at the given remote head.
func (c *Cache) create(ctx context.Context, head string) error {
	c.logger.Info("creating cache", "source", c.source.String(), "head", head)

	entries, err := c.client.ListFiles(ctx, RecordsPrefix, c.source.Ref)
	if err != nil {
		return err
	}
	var paths []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Path, ".json") {
			paths = append(paths, entry.Path)
		}
	}

	rows, err := c.fetchAndProcess(ctx, paths)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.purgeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	db, err := c.open()
	if err != nil {
		return err
	}

	return c.writeRows(ctx, db, rows, head)
}

// refresh replays the commit range cachedHead..head against the cache.
func (c *Cache) refresh(ctx context.Context, cachedHead, head string) error {
	commits, err := c.client.CommitRange(ctx, cachedHead, head)
	if err != nil {
		return err
	}
	if len(commits) > maxRefreshCommits {
		return fmt.Errorf("%w: %d commits behind (limit %d)", ErrTooOutdated, len(commits), maxRefreshCommits)
	}
	c.logger.Info("refreshing cache", "commits", len(commits), "from", cachedHead, "to", head)

	changed := map[string]bool{}
	for _, commit := range commits {
		diffs, err := c.client.CommitDiff(ctx, commit.ID)
		if err != nil {
			return err
		}
		for _, diff := range diffs {
			if !strings.HasPrefix(diff.NewPath, RecordsPrefix+"/") || !strings.HasSuffix(diff.NewPath, ".json") {
				continue
			}
			if diff.RenamedFile || diff.DeletedFile {
				return fmt.Errorf("%w: %s renamed or deleted in %s", ErrIntegrity, diff.NewPath, commit.ID)
			}
			changed[diff.NewPath] = true
		}
	}

	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}

	rows, err := c.fetchAndProcess(ctx, paths)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.open()
	if err != nil {
		return err
	}
	return c.writeRows(ctx, db, rows, head)
}

// row is one processed record ready to upsert.
type row struct {
	pickled []byte
	jsonb   []byte
	sha1    string
	id      string
}

// fetchAndProcess fetches the given record files and parses, validates,
// hashes and serialises each over the worker pool. Invalid records are
// skipped with a warning so one malformed record does not abort a build.
func (c *Cache) fetchAndProcess(ctx context.Context, paths []string) ([]row, error) {
	var (
		mu       sync.Mutex
		rows     []row
		firstErr error
	)
	sem := make(chan struct{}, c.parallel)
	var wg sync.WaitGroup

	for _, path := range paths {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			processed, err := c.processFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var invalidErr *records.RecordInvalidError
				if errors.As(err, &invalidErr) {
					c.logger.Warn("skipping invalid record", "path", path, "error", err)
					return
				}
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			rows = append(rows, *processed)
		}(path)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return rows, nil
}

func (c *Cache) processFile(ctx context.Context, path string) (*row, error) {
	file, err := c.client.FetchFile(ctx, path, c.source.Ref)
	if err != nil {
		return nil, err
	}

	record, err := records.Structure(file.Content)
	if err != nil {
		return nil, &records.RecordInvalidError{FileIdentifier: path, Cause: err}
	}
	if err := record.Validate(records.ValidateOptions{UseProfiles: true}); err != nil {
		return nil, err
	}

	revision := records.RecordRevision{Record: *record, FileRevision: file.LastCommitID}

	sha, err := record.SHA1()
	if err != nil {
		return nil, err
	}
	pickled, err := pickle(revision)
	if err != nil {
		return nil, err
	}
	jsonb, err := revisionJSON(revision)
	if err != nil {
		return nil, err
	}

	return &row{pickled: pickled, jsonb: jsonb, sha1: sha, id: record.FileIdentifier}, nil
}

// writeRows upserts all rows and the source meta keys in one transaction.
func (c *Cache) writeRows(ctx context.Context, db *sql.DB, rows []row, head string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		// An updated record changes its hash, so clear any previous row for
		// the same identifier before inserting under the new primary key.
		if _, err := tx.ExecContext(ctx, "DELETE FROM record WHERE file_identifier = ?", r.id); err != nil {
			return fmt.Errorf("clear stale row for %s: %w", r.id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO record (record_pickled, record_jsonb, sha1) VALUES (?, ?, ?)",
			r.pickled, r.jsonb, r.sha1,
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.id, err)
		}
	}

	meta := map[string]string{
		"source_endpoint": c.source.Endpoint,
		"source_project":  c.source.ProjectID,
		"source_ref":      c.source.Ref,
		"head_commit":     head,
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value,
		); err != nil {
			return fmt.Errorf("upsert meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache transaction: %w", err)
	}

	c.flash = map[string]records.RecordRevision{}
	return nil
}

func pickle(revision records.RecordRevision) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(revision); err != nil {
		return nil, fmt.Errorf("serialise record %s: %w", revision.FileIdentifier, err)
	}
	return buf.Bytes(), nil
}

func unpickle(data []byte) (records.RecordRevision, error) {
	var revision records.RecordRevision
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&revision); err != nil {
		return records.RecordRevision{}, fmt.Errorf("deserialise record: %w", err)
	}
	return revision, nil
}

// revisionJSON is the canonical record form plus file_revision, the source
// for the table's generated columns.
func revisionJSON(revision records.RecordRevision) ([]byte, error) {
	raw, err := revision.Unstructure()
	if err != nil {
		return nil, err
	}
	raw["file_revision"] = revision.FileRevision
	return json.Marshal(raw)
}
