package verify

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/antarctica/lantern/internal/items"
	"github.com/antarctica/lantern/internal/records"
)

// ProductionHost is the public catalogue origin; DOI redirects only resolve
// against it.
const ProductionHost = "data.bas.ac.uk"

// PlanConfig parametrises plan generation.
type PlanConfig struct {
	BaseURL         string
	SharePointProxy string
	SANProxy        string
}

func (c PlanConfig) host() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func (c PlanConfig) localhost() bool {
	host := c.host()
	return host == "localhost" || host == "127.0.0.1"
}

// sitePagePaths are the always-on static page probes.
var sitePagePaths = []string{
	"/legal/accessibility/",
	"/legal/cookies/",
	"/legal/copyright/",
	"/legal/privacy/",
	"/-/formatting/",
	"/-/index/",
	"/static/txt/heartbeat.txt",
}

// Plan derives the full probe list for a snapshot: the static site pages
// plus per-record resource jobs.
func Plan(cfg PlanConfig, revisions []records.RecordRevision) []*Job {
	var jobs []*Job

	for _, path := range sitePagePaths {
		jobs = append(jobs, NewJob(TypeSitePage, cfg.BaseURL+path, CheckURL, Context{}))
	}
	// The bucket serves a real 404 page; local servers generally do not.
	if cfg.localhost() {
		jobs = append(jobs, Skipped(TypeSitePage, cfg.BaseURL+"/404.html"))
	} else {
		jobs = append(jobs, NewJob(TypeSitePage, cfg.BaseURL+"/404.html", CheckURL, Context{
			ExpectedStatus: http.StatusNotFound,
		}))
	}

	for i := range revisions {
		jobs = append(jobs, planRecord(cfg, &revisions[i])...)
	}
	return jobs
}

func planRecord(cfg PlanConfig, revision *records.RecordRevision) []*Job {
	id := revision.FileIdentifier
	itemPage := cfg.BaseURL + "/items/" + id + "/"

	jobs := []*Job{
		NewJob(TypeRecordJSON, cfg.BaseURL+"/records/"+id+".json", CheckURL, Context{}),
		NewJob(TypeRecordXML, cfg.BaseURL+"/records/"+id+".xml", CheckURL, Context{}),
		NewJob(TypeRecordHTML, cfg.BaseURL+"/records/"+id+".html", CheckURL, Context{}),
		NewJob(TypeItemPage, itemPage, CheckURL, Context{}),
	}

	for _, alias := range revision.Aliases() {
		aliasURL := cfg.BaseURL + "/" + alias.Identifier
		if cfg.localhost() {
			jobs = append(jobs, Skipped(TypeAliasRedirect, aliasURL))
			continue
		}
		jobs = append(jobs, NewJob(TypeAliasRedirect, aliasURL, CheckURLRedirect, Context{
			Target: "/items/" + id + "/index.html",
		}))
	}

	for _, doi := range revision.DOIs() {
		doiURL := "https://doi.org/" + doi.Identifier
		if cfg.host() != ProductionHost {
			jobs = append(jobs, Skipped(TypeDOIRedirect, doiURL))
			continue
		}
		jobs = append(jobs, NewJob(TypeDOIRedirect, doiURL, CheckURLRedirect, Context{
			Target: records.ItemHref("https://"+ProductionHost, id),
		}))
	}

	for _, distribution := range revision.Distribution {
		jobs = append(jobs, planDistribution(cfg, distribution, itemPage)...)
	}

	for i := range jobs {
		jobs[i].FileIdentifier = id
	}
	return jobs
}

func planDistribution(cfg PlanConfig, distribution records.Distribution, itemPage string) []*Job {
	href := distribution.TransferOption.Online.Href
	jobs := []*Job{NewJob(TypeItemDownload, href, CheckItemDownload, Context{URL: itemPage})}

	switch {
	case strings.HasPrefix(href, "sftp://san"):
		jobs = append(jobs, NewJob(TypeDownload, cfg.SANProxy, CheckURL, Context{
			Method:   http.MethodPost,
			JSONBody: map[string]string{"path": strings.TrimPrefix(href, "sftp://")},
		}))
	case hostContains(href, "nora.nerc.ac.uk"):
		jobs = append(jobs, NewJob(TypeDownload, href, CheckURL, Context{
			Method:         http.MethodGet,
			Headers:        map[string]string{"Range": "bytes=0-253"},
			ExpectedStatus: http.StatusPartialContent,
		}))
	case hostContains(href, "sharepoint.com"):
		_, path, _ := strings.Cut(href, "/Documents")
		jobs = append(jobs, NewJob(TypeDownload, cfg.SharePointProxy, CheckURL, Context{
			Method:   http.MethodPost,
			JSONBody: map[string]string{"path": path},
		}))
	case isArcGIS(distribution):
		if rewritten := arcGISCheckURL(distribution); rewritten != "" {
			jobs = append(jobs, NewJob(TypeArcGISLayer, rewritten, CheckURLArcGIS, Context{}))
		}
	default:
		jobs = append(jobs, NewJob(TypeDownload, href, CheckURL, Context{
			ExpectedLength: items.SizeBytes(distribution),
		}))
	}
	return jobs
}

func hostContains(href, fragment string) bool {
	parsed, err := url.Parse(href)
	if err != nil {
		return false
	}
	return strings.Contains(parsed.Hostname(), fragment)
}

func isArcGIS(distribution records.Distribution) bool {
	if distribution.Format == nil {
		return false
	}
	return strings.Contains(distribution.Format.Href, "/x-service/arcgis+")
}

// arcGISCheckURL rewrites an ArcGIS URL to its JSON status endpoint: layer
// items go through the portal item API, service endpoints take f=json
// directly.
func arcGISCheckURL(distribution records.Distribution) string {
	href := distribution.TransferOption.Online.Href
	if strings.Contains(distribution.Format.Href, "+layer") {
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		itemID := parsed.Query().Get("id")
		if itemID == "" {
			return ""
		}
		return "https://www.arcgis.com/sharing/rest/content/items/" + itemID + "?f=json"
	}
	return href + "?f=json"
}
