// Package gitlab is a facade over the GitLab HTTP API for the project holding
// record files: tree listing, file fetches with last-commit ids, commit
// ranges and diffs on the read path; branches, commits and merge requests on
// the write path.
package gitlab

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRemoteUnavailable reports the remote API being unreachable.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// ErrNotFound reports a missing remote resource.
var ErrNotFound = errors.New("not found")

// Source identifies a remote record store: an API endpoint, a project and a
// branch within it.
type Source struct {
	Endpoint  string `json:"endpoint"`
	ProjectID string `json:"project"`
	Ref       string `json:"ref"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s!%s@%s", s.ProjectID, s.Ref, s.Endpoint)
}

// Client talks to one GitLab project.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	projectID  string
}

// NewClient creates a client for the project at source. The endpoint is the
// API base, e.g. https://gitlab.example.com/api/v4.
func NewClient(endpoint, token, projectID string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		token:      token,
		projectID:  projectID,
	}
}

func (c *Client) projectPath(suffix string) string {
	return fmt.Sprintf("/projects/%s%s", url.PathEscape(c.projectID), suffix)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "lantern/1.0")
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode >= 400 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gitlab API error %s: %s", resp.Status, strings.ReplaceAll(string(limited), "\n", " "))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// paginated fetches every page of a list endpoint. The endpoint must not
// already carry pagination parameters.
func paginated[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	const perPage = 100
	var all []T
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}

	for page := 1; ; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		paged := fmt.Sprintf("%s%sper_page=%d&page=%d", endpoint, sep, perPage, page)
		req, err := c.newRequest(ctx, http.MethodGet, paged, nil)
		if err != nil {
			return nil, err
		}

		var items []T
		if err := c.doRequest(req, &items); err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < perPage {
			return all, nil
		}
	}
}

// TreeEntry is one node in a repository tree listing.
type TreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// ListFiles enumerates blobs under path on ref, recursively.
func (c *Client) ListFiles(ctx context.Context, path, ref string) ([]TreeEntry, error) {
	endpoint := c.projectPath(fmt.Sprintf("/repository/tree?path=%s&ref=%s&recursive=true",
		url.QueryEscape(path), url.QueryEscape(ref)))
	entries, err := paginated[TreeEntry](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list files under %s: %w", path, err)
	}
	blobs := entries[:0]
	for _, e := range entries {
		if e.Type == "blob" {
			blobs = append(blobs, e)
		}
	}
	return blobs, nil
}

// File is a repository file's contents plus the id of the last commit that
// touched it.
type File struct {
	Content      []byte
	LastCommitID string
}

type fileResponse struct {
	Content      string `json:"content"`
	Encoding     string `json:"encoding"`
	LastCommitID string `json:"last_commit_id"`
}

// FetchFile returns the file at path on ref.
func (c *Client) FetchFile(ctx context.Context, path, ref string) (*File, error) {
	endpoint := c.projectPath(fmt.Sprintf("/repository/files/%s?ref=%s",
		url.PathEscape(path), url.QueryEscape(ref)))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp fileResponse
	if err := c.doRequest(req, &resp); err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", path, err)
	}

	content, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("decode file %s: %w", path, err)
	}
	return &File{Content: content, LastCommitID: resp.LastCommitID}, nil
}

// Commit is a repository commit.
type Commit struct {
	ID      string `json:"id"`
	ShortID string `json:"short_id"`
	Title   string `json:"title"`
}

// HeadCommit returns the id of the most recent commit on ref.
func (c *Client) HeadCommit(ctx context.Context, ref string) (string, error) {
	endpoint := c.projectPath(fmt.Sprintf("/repository/commits?ref_name=%s&per_page=1", url.QueryEscape(ref)))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	var commits []Commit
	if err := c.doRequest(req, &commits); err != nil {
		return "", fmt.Errorf("head commit of %s: %w", ref, err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("%w: ref %s has no commits", ErrNotFound, ref)
	}
	return commits[0].ID, nil
}

// CommitRange lists the commits in from..to, oldest last (API order).
func (c *Client) CommitRange(ctx context.Context, from, to string) ([]Commit, error) {
	refName := url.QueryEscape(from + ".." + to)
	endpoint := c.projectPath(fmt.Sprintf("/repository/commits?ref_name=%s&all=true", refName))
	commits, err := paginated[Commit](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("commit range %s..%s: %w", from, to, err)
	}
	return commits, nil
}

// Diff is one changed file within a commit.
type Diff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// CommitDiff lists the files changed by a commit.
func (c *Client) CommitDiff(ctx context.Context, sha string) ([]Diff, error) {
	endpoint := c.projectPath(fmt.Sprintf("/repository/commits/%s/diff", url.PathEscape(sha)))
	diffs, err := paginated[Diff](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("diff of %s: %w", sha, err)
	}
	return diffs, nil
}

// BranchExists reports whether branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	endpoint := c.projectPath("/repository/branches/" + url.PathEscape(branch))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	err = c.doRequest(req, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateBranch creates branch from ref.
func (c *Client) CreateBranch(ctx context.Context, branch, from string) error {
	endpoint := c.projectPath(fmt.Sprintf("/repository/branches?branch=%s&ref=%s",
		url.QueryEscape(branch), url.QueryEscape(from)))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("create branch %s from %s: %w", branch, from, err)
	}
	return nil
}

// CommitAction is one file operation within a commit.
type CommitAction struct {
	Action   string `json:"action"` // "create" or "update"
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type commitRequest struct {
	Branch        string         `json:"branch"`
	CommitMessage string         `json:"commit_message"`
	AuthorName    string         `json:"author_name,omitempty"`
	AuthorEmail   string         `json:"author_email,omitempty"`
	Actions       []CommitAction `json:"actions"`
}

// CreateCommit lands the given actions atomically on branch and returns the
// new commit id.
func (c *Client) CreateCommit(ctx context.Context, branch, message string, actions []CommitAction) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath("/repository/commits"), commitRequest{
		Branch:        branch,
		CommitMessage: message,
		AuthorName:    "Lantern",
		AuthorEmail:   "magic@bas.ac.uk",
		Actions:       actions,
	})
	if err != nil {
		return "", err
	}

	var commit Commit
	if err := c.doRequest(req, &commit); err != nil {
		return "", fmt.Errorf("create commit on %s: %w", branch, err)
	}
	return commit.ID, nil
}

// MergeRequest is a changeset tying publishing commits together.
type MergeRequest struct {
	IID    int    `json:"iid"`
	Title  string `json:"title"`
	State  string `json:"state"`
	WebURL string `json:"web_url"`
}

// MergeRequestTitlePrefix marks automated publishing changesets.
const MergeRequestTitlePrefix = "Automated publishing changeset: "

// EnsureMergeRequest opens a merge request from source to target unless an
// open one with the same title already exists.
func (c *Client) EnsureMergeRequest(ctx context.Context, source, target, title string) (*MergeRequest, error) {
	endpoint := c.projectPath(fmt.Sprintf("/merge_requests?state=opened&source_branch=%s&target_branch=%s",
		url.QueryEscape(source), url.QueryEscape(target)))
	existing, err := paginated[MergeRequest](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list merge requests: %w", err)
	}
	for i := range existing {
		if existing[i].Title == title {
			return &existing[i], nil
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath("/merge_requests"), map[string]string{
		"source_branch": source,
		"target_branch": target,
		"title":         title,
	})
	if err != nil {
		return nil, err
	}
	var mr MergeRequest
	if err := c.doRequest(req, &mr); err != nil {
		return nil, fmt.Errorf("open merge request: %w", err)
	}
	return &mr, nil
}
