package verify_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antarctica/lantern/internal/items"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/verify"
)

const testID = "5d5b4e21-fd32-409c-be83-ca1c339903e5"

func planRevision() records.RecordRevision {
	return records.RecordRevision{
		Record: records.Record{
			FileIdentifier: testID,
			HierarchyLevel: records.HierarchyDataset,
			Identification: records.Identification{
				Title:    "x",
				Abstract: "x",
				Identifiers: records.Identifiers{
					{Identifier: testID, Href: "https://data.bas.ac.uk/items/" + testID, Namespace: records.CatalogueNamespace},
					{Identifier: "datasets/foo", Href: "https://data.bas.ac.uk/datasets/foo", Namespace: records.AliasNamespace},
					{Identifier: "10.x/y", Href: "https://doi.org/10.x/y", Namespace: "doi"},
				},
			},
			Distribution: []records.Distribution{{
				Format: &records.Format{Format: "GeoPackage", Href: items.MediaTypeGeoPackage},
				TransferOption: records.TransferOption{
					Online: records.OnlineResource{Href: "https://example.com/data.gpkg"},
					Size:   &records.Size{Unit: "bytes", Magnitude: 1024},
				},
			}},
		},
		FileRevision: "c1",
	}
}

func jobsByType(jobs []*verify.Job, jobType verify.JobType) []*verify.Job {
	var out []*verify.Job
	for _, job := range jobs {
		if job.Type == jobType {
			out = append(out, job)
		}
	}
	return out
}

func TestPlan(t *testing.T) {
	cfg := verify.PlanConfig{BaseURL: "https://data.bas.ac.uk"}
	jobs := verify.Plan(cfg, []records.RecordRevision{planRevision()})

	site := jobsByType(jobs, verify.TypeSitePage)
	assert.Len(t, site, 8, "seven pages plus 404")

	var probed []string
	for _, job := range site {
		probed = append(probed, job.URL)
	}
	assert.Contains(t, probed, "https://data.bas.ac.uk/-/formatting/")

	assert.Len(t, jobsByType(jobs, verify.TypeRecordJSON), 1)
	assert.Len(t, jobsByType(jobs, verify.TypeRecordXML), 1)
	assert.Len(t, jobsByType(jobs, verify.TypeRecordHTML), 1)
	assert.Len(t, jobsByType(jobs, verify.TypeItemPage), 1)

	aliases := jobsByType(jobs, verify.TypeAliasRedirect)
	require.Len(t, aliases, 1)
	assert.Equal(t, "https://data.bas.ac.uk/datasets/foo", aliases[0].URL)
	assert.Equal(t, "/items/"+testID+"/index.html", aliases[0].Context.Target)
	assert.Equal(t, verify.ResultPending, aliases[0].Result)

	dois := jobsByType(jobs, verify.TypeDOIRedirect)
	require.Len(t, dois, 1)
	assert.Equal(t, "https://doi.org/10.x/y", dois[0].URL)
	assert.Equal(t, "https://data.bas.ac.uk/items/"+testID, dois[0].Context.Target)

	downloads := jobsByType(jobs, verify.TypeDownload)
	require.Len(t, downloads, 1)
	assert.Equal(t, int64(1024), downloads[0].Context.ExpectedLength)

	memberships := jobsByType(jobs, verify.TypeItemDownload)
	require.Len(t, memberships, 1)
	assert.Equal(t, "https://example.com/data.gpkg", memberships[0].URL)
	assert.Equal(t, "https://data.bas.ac.uk/items/"+testID+"/", memberships[0].Context.URL)
}

func TestPlanLocalhostSkips(t *testing.T) {
	cfg := verify.PlanConfig{BaseURL: "http://localhost:8080"}
	jobs := verify.Plan(cfg, []records.RecordRevision{planRevision()})

	site := jobsByType(jobs, verify.TypeSitePage)
	assert.Equal(t, verify.ResultSkip, site[len(site)-1].Result, "404 skipped off the bucket")

	aliases := jobsByType(jobs, verify.TypeAliasRedirect)
	require.Len(t, aliases, 1)
	assert.Equal(t, verify.ResultSkip, aliases[0].Result)

	dois := jobsByType(jobs, verify.TypeDOIRedirect)
	require.Len(t, dois, 1)
	assert.Equal(t, verify.ResultSkip, dois[0].Result, "DOIs only resolve against production")
}

func TestPlanNORARange(t *testing.T) {
	revision := planRevision()
	revision.Distribution = []records.Distribution{{
		Format: &records.Format{Format: "PDF", Href: items.MediaTypePDF},
		TransferOption: records.TransferOption{
			Online: records.OnlineResource{Href: "https://nora.nerc.ac.uk/id/eprint/1/map.pdf"},
		},
	}}

	jobs := verify.Plan(verify.PlanConfig{BaseURL: "https://data.bas.ac.uk"}, []records.RecordRevision{revision})
	downloads := jobsByType(jobs, verify.TypeDownload)
	require.Len(t, downloads, 1)
	assert.Equal(t, http.StatusPartialContent, downloads[0].Context.ExpectedStatus)
	assert.Equal(t, "bytes=0-253", downloads[0].Context.Headers["Range"])
}

func TestPlanArcGISRewrite(t *testing.T) {
	revision := planRevision()
	revision.Distribution = []records.Distribution{
		{
			Format: &records.Format{Href: items.MediaTypeArcGISFeatureLayer},
			TransferOption: records.TransferOption{
				Online: records.OnlineResource{Href: "https://bas.maps.arcgis.com/home/item.html?id=abc123"},
			},
		},
		{
			Format: &records.Format{Href: items.MediaTypeArcGISFeatureService},
			TransferOption: records.TransferOption{
				Online: records.OnlineResource{Href: "https://services.arcgis.com/x/FeatureServer"},
			},
		},
	}

	jobs := verify.Plan(verify.PlanConfig{BaseURL: "https://data.bas.ac.uk"}, []records.RecordRevision{revision})
	arcgis := jobsByType(jobs, verify.TypeArcGISLayer)
	require.Len(t, arcgis, 2)
	assert.Equal(t, "https://www.arcgis.com/sharing/rest/content/items/abc123?f=json", arcgis[0].URL)
	assert.Equal(t, "https://services.arcgis.com/x/FeatureServer?f=json", arcgis[1].URL)
}

func TestRunnerResolvesEveryJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	jobs := []*verify.Job{
		verify.NewJob(verify.TypeSitePage, server.URL+"/a", verify.CheckURL, verify.Context{}),
		verify.Skipped(verify.TypeSitePage, server.URL+"/b"),
	}
	verify.NewRunner(2).Run(t.Context(), jobs)

	assert.Equal(t, verify.ResultPass, jobs[0].Result)
	duration, ok := jobs[0].Data["duration_us"].(int64)
	require.True(t, ok)
	assert.Greater(t, duration, int64(0))

	assert.Equal(t, verify.ResultSkip, jobs[1].Result)
	_, probed := jobs[1].Data["duration_us"]
	assert.False(t, probed, "skipped jobs are never probed")
}

func TestCheckURLLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
	}))
	t.Cleanup(server.Close)

	pass := verify.NewJob(verify.TypeDownload, server.URL, verify.CheckURL, verify.Context{ExpectedLength: 1024})
	fail := verify.NewJob(verify.TypeDownload, server.URL, verify.CheckURL, verify.Context{ExpectedLength: 2048})
	verify.NewRunner(1).Run(t.Context(), []*verify.Job{pass, fail})

	assert.Equal(t, verify.ResultPass, pass.Result)
	assert.Equal(t, verify.ResultFail, fail.Result)
}

func TestCheckURLRedirectWrongLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/items/wrong/index.html")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	t.Cleanup(server.Close)

	job := verify.NewJob(verify.TypeAliasRedirect, server.URL+"/datasets/foo", verify.CheckURLRedirect, verify.Context{
		Target: "/items/" + testID + "/index.html",
	})
	verify.NewRunner(1).Run(t.Context(), []*verify.Job{job})

	assert.Equal(t, verify.ResultFail, job.Result)
	assert.Equal(t, http.StatusMovedPermanently, job.Data["status_code"])

	report := verify.NewReport("https://data.bas.ac.uk", []*verify.Job{job})
	assert.Equal(t, verify.ResultFail, report.Overall)
}

func TestCheckURLArcGIS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 498}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "abc"})
	}))
	t.Cleanup(server.Close)

	good := verify.NewJob(verify.TypeArcGISLayer, server.URL+"/good", verify.CheckURLArcGIS, verify.Context{})
	bad := verify.NewJob(verify.TypeArcGISLayer, server.URL+"/bad", verify.CheckURLArcGIS, verify.Context{})
	verify.NewRunner(1).Run(t.Context(), []*verify.Job{good, bad})

	assert.Equal(t, verify.ResultPass, good.Result)
	assert.Equal(t, verify.ResultFail, bad.Result)
}

func TestCheckItemDownload(t *testing.T) {
	downloadURL := "https://example.com/data.gpkg?a=1&b=2"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="https://example.com/data.gpkg?a=1&amp;b=2">GeoPackage</a>`))
	}))
	t.Cleanup(server.Close)

	job := verify.NewJob(verify.TypeItemDownload, downloadURL, verify.CheckItemDownload, verify.Context{
		URL: server.URL + "/items/x/",
	})
	verify.NewRunner(1).Run(t.Context(), []*verify.Job{job})
	assert.Equal(t, verify.ResultPass, job.Result)
}

func TestReportWrite(t *testing.T) {
	jobs := verify.Plan(verify.PlanConfig{BaseURL: "http://localhost:8080"}, nil)
	for _, job := range jobs {
		if job.Result == verify.ResultPending {
			job.Result = verify.ResultPass
			job.Data["duration_us"] = int64(10)
		}
	}

	report := verify.NewReport("http://localhost:8080", jobs)
	assert.Equal(t, verify.ResultPass, report.Overall)
	assert.Equal(t, int64(70), report.DurationUS)

	dir := t.TempDir()
	require.NoError(t, report.Write(dir))
	for _, name := range []string{"data.json", "index.html"} {
		_, err := os.Stat(filepath.Join(dir, "-", "verification", name))
		assert.NoError(t, err, name)
	}
}
