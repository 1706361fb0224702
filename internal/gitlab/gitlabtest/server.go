// Package gitlabtest provides an in-memory fake of the GitLab API surface the
// pipeline uses, for cache and store tests.
package gitlabtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FileState is one repository file at the current head.
type FileState struct {
	Content      string
	LastCommitID string
}

// DiffEntry mirrors the API diff shape.
type DiffEntry struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// Project is a fake GitLab project with a single tracked ref plus any
// branches created through the API.
type Project struct {
	mu       sync.Mutex
	ID       string
	Ref      string
	Files    map[string]FileState
	Commits  []string            // oldest first; last is head
	Diffs    map[string][]DiffEntry
	Branches map[string]bool
	// CommitRequests records write-path commit bodies for assertions.
	CommitRequests []CommitRequest
	// FileFetches counts per-path file fetches.
	FileFetches map[string]int
	// MergeRequests records opened changesets.
	MergeRequests []map[string]string
}

// CommitRequest is a recorded write-path commit.
type CommitRequest struct {
	Branch        string         `json:"branch"`
	CommitMessage string         `json:"commit_message"`
	Actions       []CommitAction `json:"actions"`
}

// CommitAction mirrors the API action shape.
type CommitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// NewProject creates an empty fake project on ref "main".
func NewProject(id string) *Project {
	return &Project{
		ID:          id,
		Ref:         "main",
		Files:       map[string]FileState{},
		Diffs:       map[string][]DiffEntry{},
		Branches:    map[string]bool{"main": true},
		FileFetches: map[string]int{},
	}
}

// SetFile sets a file's head state and appends a commit with its diff.
func (p *Project) SetFile(path, content, commitID string, isNew bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Files[path] = FileState{Content: content, LastCommitID: commitID}
	p.appendCommit(commitID, DiffEntry{OldPath: path, NewPath: path, NewFile: isNew})
}

// AppendCommit records a commit with arbitrary diff entries.
func (p *Project) AppendCommit(commitID string, diffs ...DiffEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendCommit(commitID, diffs...)
}

func (p *Project) appendCommit(commitID string, diffs ...DiffEntry) {
	for _, existing := range p.Commits {
		if existing == commitID {
			p.Diffs[commitID] = append(p.Diffs[commitID], diffs...)
			return
		}
	}
	p.Commits = append(p.Commits, commitID)
	p.Diffs[commitID] = append(p.Diffs[commitID], diffs...)
}

// Head returns the current head commit id.
func (p *Project) Head() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Commits) == 0 {
		return ""
	}
	return p.Commits[len(p.Commits)-1]
}

// Server wraps a Project in an httptest server speaking the API subset.
func Server(p *Project) *httptest.Server {
	mux := http.NewServeMux()
	prefix := "/projects/" + url.PathEscape(p.ID)

	mux.HandleFunc(prefix+"/repository/tree", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		base := r.URL.Query().Get("path")
		var entries []map[string]string
		paths := make([]string, 0, len(p.Files))
		for path := range p.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			if base != "" && !strings.HasPrefix(path, base+"/") {
				continue
			}
			entries = append(entries, map[string]string{
				"id":   "blob-" + path,
				"name": path[strings.LastIndex(path, "/")+1:],
				"type": "blob",
				"path": path,
			})
		}
		writePage(w, r, entries)
	})

	mux.HandleFunc(prefix+"/repository/files/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		encoded := strings.TrimPrefix(r.URL.Path, prefix+"/repository/files/")
		path, err := url.PathUnescape(encoded)
		if err != nil {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		state, ok := p.Files[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		p.FileFetches[path]++
		writeJSON(w, map[string]string{
			"content":        base64.StdEncoding.EncodeToString([]byte(state.Content)),
			"encoding":       "base64",
			"last_commit_id": state.LastCommitID,
		})
	})

	mux.HandleFunc(prefix+"/repository/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			p.handleCreateCommit(w, r)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		refName := r.URL.Query().Get("ref_name")
		if from, to, ok := strings.Cut(refName, ".."); ok {
			writePage(w, r, p.commitRange(from, to))
			return
		}
		// Most recent first, like the API.
		var commits []map[string]string
		for i := len(p.Commits) - 1; i >= 0; i-- {
			commits = append(commits, map[string]string{"id": p.Commits[i]})
		}
		writePage(w, r, commits)
	})

	mux.HandleFunc(prefix+"/repository/commits/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/repository/commits/")
		sha := strings.TrimSuffix(rest, "/diff")
		diffs, ok := p.Diffs[sha]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writePage(w, r, diffs)
	})

	mux.HandleFunc(prefix+"/repository/branches", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		branch := r.URL.Query().Get("branch")
		p.Branches[branch] = true
		writeJSON(w, map[string]string{"name": branch})
	})

	mux.HandleFunc(prefix+"/repository/branches/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		branch, _ := url.PathUnescape(strings.TrimPrefix(r.URL.Path, prefix+"/repository/branches/"))
		if !p.Branches[branch] {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"name": branch})
	})

	mux.HandleFunc(prefix+"/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if r.Method == http.MethodPost {
			var mr map[string]string
			_ = json.NewDecoder(r.Body).Decode(&mr)
			p.MergeRequests = append(p.MergeRequests, mr)
			writeJSON(w, map[string]any{"iid": len(p.MergeRequests), "title": mr["title"], "state": "opened"})
			return
		}
		var open []map[string]any
		for i, mr := range p.MergeRequests {
			open = append(open, map[string]any{"iid": i + 1, "title": mr["title"], "state": "opened"})
		}
		writePage(w, r, open)
	})

	return httptest.NewServer(mux)
}

func (p *Project) commitRange(from, to string) []map[string]string {
	start, end := -1, -1
	for i, sha := range p.Commits {
		if sha == from {
			start = i
		}
		if sha == to {
			end = i
		}
	}
	var out []map[string]string
	if start < 0 || end < 0 {
		return out
	}
	// Exclusive of from, inclusive of to; most recent first.
	for i := end; i > start; i-- {
		out = append(out, map[string]string{"id": p.Commits[i]})
	}
	return out
}

func (p *Project) handleCreateCommit(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	p.CommitRequests = append(p.CommitRequests, req)
	commitID := fmt.Sprintf("commit-%d", len(p.Commits)+1)
	for _, action := range req.Actions {
		p.Files[action.FilePath] = FileState{Content: action.Content, LastCommitID: commitID}
		p.appendCommit(commitID, DiffEntry{
			OldPath: action.FilePath,
			NewPath: action.FilePath,
			NewFile: action.Action == "create",
		})
	}
	if len(req.Actions) == 0 {
		p.appendCommit(commitID)
	}
	writeJSON(w, map[string]string{"id": commitID})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writePage applies per_page/page slicing the way list endpoints do.
func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = 20
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start > len(items) {
		start = len(items)
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, items[start:end])
}
