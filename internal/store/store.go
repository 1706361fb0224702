// Package store is the authoritative view over catalogue records: reads come
// from the local cache, writes go to the remote project as commits on a
// publishing branch tied together by a merge request.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/antarctica/lantern/internal/cache"
	"github.com/antarctica/lantern/internal/gitlab"
	"github.com/antarctica/lantern/internal/records"
)

// PushBranch is the branch automated publishing commits land on, forked from
// the configured ref when first needed.
const PushBranch = "publishing"

// ErrFrozen reports a write attempted on a frozen store.
var ErrFrozen = errors.New("store frozen")

// RecordsNotFoundError reports a selection naming records the store does not
// hold. Selections are all or nothing.
type RecordsNotFoundError struct {
	FileIdentifiers []string
}

func (e *RecordsNotFoundError) Error() string {
	return fmt.Sprintf("records not found: %s", strings.Join(e.FileIdentifiers, ", "))
}

// Store combines the cache read path with the remote write path.
type Store struct {
	logger *slog.Logger
	client *gitlab.Client
	cache  *cache.Cache
	source gitlab.Source
	frozen bool
}

// Option configures a Store.
type Option func(*Store)

// Frozen makes the store read-only over an existing cache.
func Frozen() Option {
	return func(s *Store) { s.frozen = true }
}

// New creates a store over the given remote source and cache.
func New(client *gitlab.Client, c *cache.Cache, source gitlab.Source, opts ...Option) *Store {
	s := &Store{
		logger: slog.With("component", "store"),
		client: client,
		cache:  c,
		source: source,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source returns the remote source the store is bound to.
func (s *Store) Source() gitlab.Source { return s.source }

// RecordPath returns a record's path within the remote project, sharded by
// the first two identifier byte pairs.
func RecordPath(fileIdentifier string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json",
		cache.RecordsPrefix, fileIdentifier[:2], fileIdentifier[2:4], fileIdentifier)
}

// Select returns the revisions for the given identifiers, or every revision
// when ids is nil. If any named identifier is unknown the whole selection
// fails with a RecordsNotFoundError.
func (s *Store) Select(ctx context.Context, ids []string) ([]records.RecordRevision, error) {
	revisions, err := s.cache.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		return revisions, nil
	}

	found := make(map[string]bool, len(revisions))
	for _, revision := range revisions {
		found[revision.FileIdentifier] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &RecordsNotFoundError{FileIdentifiers: missing}
	}
	return revisions, nil
}

// SelectOne returns a single revision by identifier.
func (s *Store) SelectOne(ctx context.Context, id string) (records.RecordRevision, error) {
	revisions, err := s.Select(ctx, []string{id})
	if err != nil {
		return records.RecordRevision{}, err
	}
	return revisions[0], nil
}

// PushResult summarises a push: which records were committed as new, which
// as updates, and which were skipped as unchanged. Commit is empty when
// nothing needed committing.
type PushResult struct {
	Commit       string
	MergeRequest *gitlab.MergeRequest
	Created      []string
	Updated      []string
	Skipped      []string
}

// Push commits the given records to the publishing branch. Records whose
// content hash matches the cached copy are skipped; the rest are created or
// updated in a single commit, with a merge request opened against the
// configured ref if one is not already open. The cache is refreshed
// afterwards so subsequent reads see pre-push state no longer.
func (s *Store) Push(ctx context.Context, recs []records.Record) (*PushResult, error) {
	if s.frozen {
		return nil, fmt.Errorf("%w: push", ErrFrozen)
	}

	for i := range recs {
		if err := recs[i].Validate(records.ValidateOptions{UseProfiles: true}); err != nil {
			return nil, err
		}
	}

	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].FileIdentifier
	}
	hashes, err := s.cache.GetHashes(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &PushResult{}
	var actions []gitlab.CommitAction
	for i := range recs {
		record := &recs[i]
		sha, err := record.SHA1()
		if err != nil {
			return nil, err
		}

		cached, known := hashes[record.FileIdentifier]
		if known && cached == sha {
			result.Skipped = append(result.Skipped, record.FileIdentifier)
			continue
		}

		content, err := record.DumpsJSON(true)
		if err != nil {
			return nil, err
		}
		action := gitlab.CommitAction{
			Action:   "update",
			FilePath: RecordPath(record.FileIdentifier),
			Content:  string(content),
		}
		if !known {
			action.Action = "create"
			result.Created = append(result.Created, record.FileIdentifier)
		} else {
			result.Updated = append(result.Updated, record.FileIdentifier)
		}
		actions = append(actions, action)
	}

	if len(actions) == 0 {
		s.logger.Info("push found no changes", "skipped", len(result.Skipped))
		return result, nil
	}

	if err := s.ensurePushBranch(ctx); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Committing %d records (%d new, %d updated)",
		len(actions), len(result.Created), len(result.Updated))
	commit, err := s.client.CreateCommit(ctx, PushBranch, message, actions)
	if err != nil {
		return nil, err
	}
	result.Commit = commit

	title := gitlab.MergeRequestTitlePrefix + time.Now().UTC().Format("2006-01-02")
	mr, err := s.client.EnsureMergeRequest(ctx, PushBranch, s.source.Ref, title)
	if err != nil {
		return nil, err
	}
	result.MergeRequest = mr

	s.logger.Info("pushed records",
		"commit", commit, "new", len(result.Created), "updated", len(result.Updated), "skipped", len(result.Skipped))

	// Reads after a push should not serve pre-push state.
	if _, err := s.cache.Get(ctx, nil); err != nil {
		s.logger.Warn("cache refresh after push failed", "error", err)
	}
	return result, nil
}

func (s *Store) ensurePushBranch(ctx context.Context) error {
	exists, err := s.client.BranchExists(ctx, PushBranch)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.CreateBranch(ctx, PushBranch, s.source.Ref)
}
