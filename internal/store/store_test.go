package store_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antarctica/lantern/internal/cache"
	"github.com/antarctica/lantern/internal/gitlab"
	"github.com/antarctica/lantern/internal/gitlab/gitlabtest"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/store"
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

func structured(t *testing.T, id, title string) records.Record {
	t.Helper()
	record, err := records.Structure([]byte(recordJSON(id, title)))
	require.NoError(t, err)
	return *record
}

type fixture struct {
	project *gitlabtest.Project
	store   *store.Store
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	project := gitlabtest.NewProject("1234")
	server := gitlabtest.Server(project)
	t.Cleanup(server.Close)

	client := gitlab.NewClient(server.URL, "glpat-test", "1234")
	source := gitlab.Source{Endpoint: server.URL, ProjectID: "1234", Ref: "main"}
	c := cache.New(client, t.TempDir(), source)
	return &fixture{project: project, store: store.New(client, c, source, opts...)}
}

func (f *fixture) seed(id, title, commit string) {
	f.project.SetFile(store.RecordPath(id), recordJSON(id, title), commit, true)
}

func TestRecordPath(t *testing.T) {
	assert.Equal(t, "records/0b/e1/"+idA+".json", store.RecordPath(idA))
}

func TestSelectAll(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")
	f.seed(idB, "Record B", "c1")

	revisions, err := f.store.Select(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, revisions, 2)
}

func TestSelectAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")

	_, err := f.store.Select(t.Context(), []string{idA, idC})
	var notFound *store.RecordsNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{idC}, notFound.FileIdentifiers)
}

func TestSelectOne(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")

	revision, err := f.store.SelectOne(t.Context(), idA)
	require.NoError(t, err)
	assert.Equal(t, "Record A", revision.Identification.Title)
	assert.Equal(t, "c1", revision.FileRevision)
}

func TestPushClassifiesRecords(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")
	f.seed(idB, "Record B", "c1")

	result, err := f.store.Push(t.Context(), []records.Record{
		structured(t, idA, "Record A"),
		structured(t, idB, "Record B v2"),
		structured(t, idC, "Record C"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{idA}, result.Skipped)
	assert.Equal(t, []string{idB}, result.Updated)
	assert.Equal(t, []string{idC}, result.Created)
	assert.NotEmpty(t, result.Commit)

	require.Len(t, f.project.CommitRequests, 1)
	req := f.project.CommitRequests[0]
	assert.Equal(t, store.PushBranch, req.Branch)
	require.Len(t, req.Actions, 2)
	assert.Equal(t, "update", req.Actions[0].Action)
	assert.Equal(t, store.RecordPath(idB), req.Actions[0].FilePath)
	assert.Equal(t, "create", req.Actions[1].Action)
	assert.Equal(t, store.RecordPath(idC), req.Actions[1].FilePath)

	require.Len(t, f.project.MergeRequests, 1)
	assert.Contains(t, f.project.MergeRequests[0]["title"], gitlab.MergeRequestTitlePrefix)
}

func TestPushUnchangedIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")

	result, err := f.store.Push(t.Context(), []records.Record{structured(t, idA, "Record A")})
	require.NoError(t, err)

	assert.Empty(t, result.Commit)
	assert.Equal(t, []string{idA}, result.Skipped)
	assert.Empty(t, f.project.CommitRequests)
	assert.Empty(t, f.project.MergeRequests)
}

func TestPushSeenByLaterReads(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")

	_, err := f.store.Push(t.Context(), []records.Record{structured(t, idB, "Record B")})
	require.NoError(t, err)

	revision, err := f.store.SelectOne(t.Context(), idB)
	require.NoError(t, err)
	assert.Equal(t, "Record B", revision.Identification.Title)
}

func TestPushInvalidRecordRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(idA, "Record A", "c1")

	invalid := structured(t, idB, "Record B")
	invalid.Identification.Contacts = nil

	_, err := f.store.Push(t.Context(), []records.Record{invalid})
	var invalidErr *records.RecordInvalidError
	assert.ErrorAs(t, err, &invalidErr)
	assert.Empty(t, f.project.CommitRequests)
}

func TestPushFrozen(t *testing.T) {
	f := newFixture(t, store.Frozen())
	_, err := f.store.Push(t.Context(), []records.Record{structured(t, idA, "Record A")})
	assert.ErrorIs(t, err, store.ErrFrozen)
}
