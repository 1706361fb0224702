package cache_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antarctica/lantern/internal/cache"
	"github.com/antarctica/lantern/internal/gitlab"
	"github.com/antarctica/lantern/internal/gitlab/gitlabtest"
	"github.com/antarctica/lantern/internal/records"
)

const (
	idA = "0be10dfc-7b4a-4df9-8f62-66a2d2b9c14f"
	idB = "9a3b5c6d-1e2f-4a5b-8c9d-0e1f2a3b4c5d"
	idC = "c1d2e3f4-a5b6-47c8-9d0e-1f2a3b4c5d6e"
)

func recordJSON(id, title string) string {
	return fmt.Sprintf(`{
		"file_identifier": %q,
		"hierarchy_level": "product",
		"metadata": {
			"character_set": "utf8",
			"language": "eng",
			"metadata_standard": {"name": %q, "version": %q}
		},
		"identification": {
			"title": %q,
			"abstract": "x",
			"dates": {"creation": "2014-06-30"},
			"identifiers": [
				{
					"identifier": %q,
					"href": "https://data.bas.ac.uk/items/%s",
					"namespace": "data.bas.ac.uk"
				}
			],
			"contacts": [
				{
					"organisation": {"name": "Mapping and Geographic Information Centre, British Antarctic Survey"},
					"email": "magic@bas.ac.uk",
					"role": ["pointOfContact"]
				}
			]
		}
	}`, id, records.DefaultMetadataStandard.Name, records.DefaultMetadataStandard.Version, title, id, id)
}

func recordPath(id string) string {
	return fmt.Sprintf("records/%s/%s/%s.json", id[:2], id[2:4], id)
}

type fixture struct {
	project *gitlabtest.Project
	client  *gitlab.Client
	source  gitlab.Source
	path    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	project := gitlabtest.NewProject("1234")
	server := gitlabtest.Server(project)
	t.Cleanup(server.Close)
	return &fixture{
		project: project,
		client:  gitlab.NewClient(server.URL, "glpat-test", "1234"),
		source:  gitlab.Source{Endpoint: server.URL, ProjectID: "1234", Ref: "main"},
		path:    t.TempDir(),
	}
}

func (f *fixture) cache(opts ...cache.Option) *cache.Cache {
	return cache.New(f.client, f.path, f.source, opts...)
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	f.project.SetFile(recordPath(idB), recordJSON(idB, "Record B"), "c1", true)

	c := f.cache()
	revisions, err := c.Get(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, idA, revisions[0].FileIdentifier)
	assert.Equal(t, "c1", revisions[0].FileRevision)

	assert.True(t, c.Exists())
	head, err := c.CachedHeadCommit()
	require.NoError(t, err)
	assert.Equal(t, "c1", head)

	source, err := c.CachedSource()
	require.NoError(t, err)
	assert.Equal(t, f.source, source)
}

func TestGetOmitsUnknownIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)

	revisions, err := f.cache().Get(t.Context(), []string{idA, idC})
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, idA, revisions[0].FileIdentifier)
}

func TestGetHashes(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)

	record, err := records.Structure([]byte(recordJSON(idA, "Record A")))
	require.NoError(t, err)
	want, err := record.SHA1()
	require.NoError(t, err)

	hashes, err := f.cache().GetHashes(t.Context(), []string{idA, idC})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{idA: want}, hashes)
}

func TestRefreshFetchesOnlyChangedFiles(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	f.project.SetFile(recordPath(idB), recordJSON(idB, "Record B"), "c1", true)

	c := f.cache()
	_, err := c.Get(t.Context(), nil)
	require.NoError(t, err)

	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A v2"), "c2", false)
	f.project.SetFile(recordPath(idC), recordJSON(idC, "Record C"), "c3", true)

	revisions, err := c.Get(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, revisions, 3)

	assert.Equal(t, 2, f.project.FileFetches[recordPath(idA)])
	assert.Equal(t, 1, f.project.FileFetches[recordPath(idB)], "unchanged record not refetched")
	assert.Equal(t, 1, f.project.FileFetches[recordPath(idC)])

	updated, err := c.Get(t.Context(), []string{idA})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Record A v2", updated[0].Identification.Title)
	assert.Equal(t, "c2", updated[0].FileRevision)
}

func TestRefreshTooOutdatedRecreates(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	f.project.SetFile(recordPath(idB), recordJSON(idB, "Record B"), "c1", true)

	c := f.cache()
	_, err := c.Get(t.Context(), nil)
	require.NoError(t, err)

	for i := 1; i <= 51; i++ {
		f.project.AppendCommit(fmt.Sprintf("r%d", i), gitlabtest.DiffEntry{
			OldPath: recordPath(idA), NewPath: recordPath(idA),
		})
	}

	_, err = c.Get(t.Context(), nil)
	require.NoError(t, err)

	head, err := c.CachedHeadCommit()
	require.NoError(t, err)
	assert.Equal(t, "r51", head)
	assert.Equal(t, 2, f.project.FileFetches[recordPath(idB)], "recreation refetches everything")
}

func TestRefreshRenameRecreates(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)

	c := f.cache()
	_, err := c.Get(t.Context(), nil)
	require.NoError(t, err)

	f.project.AppendCommit("c9", gitlabtest.DiffEntry{
		OldPath: "records/old.json", NewPath: recordPath(idA), RenamedFile: true,
	})

	_, err = c.Get(t.Context(), nil)
	require.NoError(t, err)

	head, err := c.CachedHeadCommit()
	require.NoError(t, err)
	assert.Equal(t, "c9", head)
}

func TestInvalidRecordSkipped(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	f.project.SetFile("records/no/pe/nope.json", `{"file_identifier": "not-a-uuid"}`, "c1", true)

	revisions, err := f.cache().Get(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, idA, revisions[0].FileIdentifier)
}

func TestFrozenRequiresExistingCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.cache(cache.Frozen()).Get(t.Context(), nil)
	assert.ErrorIs(t, err, cache.ErrFrozen)
}

func TestFrozenServesWithoutRemote(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	_, err := f.cache().Get(t.Context(), nil)
	require.NoError(t, err)

	dead := gitlab.NewClient("http://127.0.0.1:1", "t", "1234")
	frozen := cache.New(dead, f.path, f.source, cache.Frozen())

	revisions, err := frozen.Get(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, revisions, 1)

	assert.ErrorIs(t, frozen.Purge(), cache.ErrFrozen)
}

func TestOfflineFallsBackToStaleCache(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)
	_, err := f.cache().Get(t.Context(), nil)
	require.NoError(t, err)

	dead := gitlab.NewClient("http://127.0.0.1:1", "t", "1234")
	offline := cache.New(dead, f.path, f.source)

	revisions, err := offline.Get(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, revisions, 1)
}

func TestOfflineWithoutCacheFails(t *testing.T) {
	dead := gitlab.NewClient("http://127.0.0.1:1", "t", "1234")
	c := cache.New(dead, t.TempDir(), gitlab.Source{Endpoint: "http://127.0.0.1:1", ProjectID: "1234", Ref: "main"})

	_, err := c.Get(t.Context(), nil)
	assert.ErrorIs(t, err, gitlab.ErrRemoteUnavailable)
}

func TestPurge(t *testing.T) {
	f := newFixture(t)
	f.project.SetFile(recordPath(idA), recordJSON(idA, "Record A"), "c1", true)

	c := f.cache()
	_, err := c.Get(t.Context(), nil)
	require.NoError(t, err)
	require.True(t, c.Exists())

	require.NoError(t, c.Purge())
	assert.False(t, c.Exists())
}
