// Package verify probes a deployed catalogue site: a planner derives check
// jobs from the record snapshot, a worker pool runs them against the live
// site, and a report summarises the outcome.
package verify

import (
	"context"
	"net/http"
)

// Result is a job's lifecycle state.
type Result string

const (
	ResultPending Result = "pending"
	ResultPass    Result = "pass"
	ResultFail    Result = "fail"
	ResultSkip    Result = "skip"
)

// JobType classifies what a job checks.
type JobType string

const (
	TypeSitePage      JobType = "site-page"
	TypeRecordJSON    JobType = "record-json"
	TypeRecordXML     JobType = "record-xml"
	TypeRecordHTML    JobType = "record-html"
	TypeItemPage      JobType = "item-page"
	TypeAliasRedirect JobType = "alias-redirect"
	TypeDOIRedirect   JobType = "doi-redirect"
	TypeDownload      JobType = "download"
	TypeItemDownload  JobType = "item-download"
	TypeArcGISLayer   JobType = "arcgis-layer"
)

// CheckFunc performs one probe and returns the outcome. Probes never return
// errors; failures are results.
type CheckFunc func(ctx context.Context, client *http.Client, job *Job) Result

// Context carries per-job probe parameters and overrides.
type Context struct {
	// Method overrides the probe method (default HEAD for plain URL checks).
	Method string
	// URL overrides the fetched URL, e.g. the item page for membership
	// checks where Job.URL is the needle.
	URL string
	// Headers are added to the probe request.
	Headers map[string]string
	// JSONBody is sent as a JSON request body when set.
	JSONBody any
	// ExpectedStatus defaults to 200.
	ExpectedStatus int
	// ExpectedLength, when non-zero, must equal the response content length
	// unless the response is a partial (206).
	ExpectedLength int64
	// Target is the expected redirect location for redirect checks.
	Target string
}

// Job is one verification probe.
type Job struct {
	Type JobType `json:"type"`
	URL  string  `json:"url"`
	// FileIdentifier scopes resource jobs to a record; empty for site jobs.
	FileIdentifier string         `json:"file_identifier,omitempty"`
	Context        Context        `json:"-"`
	Data           map[string]any `json:"data,omitempty"`
	Result         Result         `json:"result"`

	check CheckFunc
}

// NewJob creates a pending job with the given check.
func NewJob(jobType JobType, url string, check CheckFunc, jobContext Context) *Job {
	return &Job{
		Type:    jobType,
		URL:     url,
		Context: jobContext,
		Data:    map[string]any{},
		Result:  ResultPending,
		check:   check,
	}
}

// Skipped creates a job recorded as skipped without ever running.
func Skipped(jobType JobType, url string) *Job {
	return &Job{
		Type:   jobType,
		URL:    url,
		Data:   map[string]any{},
		Result: ResultSkip,
	}
}

func (j *Job) expectedStatus() int {
	if j.Context.ExpectedStatus != 0 {
		return j.Context.ExpectedStatus
	}
	return http.StatusOK
}
