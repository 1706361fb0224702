package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

func (j *Job) request(ctx context.Context, method, url string) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if j.Context.JSONBody != nil {
		payload, err := json.Marshal(j.Context.JSONBody)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if j.Context.JSONBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range j.Context.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// CheckURL probes the job URL (HEAD unless overridden) and compares status
// and, when expected, content length. Partial responses skip the length
// comparison since they report the range size.
func CheckURL(ctx context.Context, client *http.Client, job *Job) Result {
	method := job.Context.Method
	if method == "" {
		method = http.MethodHead
	}
	req, err := job.request(ctx, method, job.URL)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}

	resp, err := client.Do(req)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	defer func() { _ = resp.Body.Close() }()
	job.Data["status_code"] = resp.StatusCode

	if resp.StatusCode != job.expectedStatus() {
		return ResultFail
	}
	if job.Context.ExpectedLength > 0 && resp.StatusCode != http.StatusPartialContent {
		if resp.ContentLength != job.Context.ExpectedLength {
			job.Data["content_length"] = resp.ContentLength
			return ResultFail
		}
	}
	return ResultPass
}

// noRedirects stops the client from following a redirect so its status and
// location can be inspected.
func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// CheckURLRedirect expects a 301 to exactly the target, then follows the
// target and expects a 200.
func CheckURLRedirect(ctx context.Context, client *http.Client, job *Job) Result {
	bare := &http.Client{Timeout: client.Timeout, Transport: client.Transport, CheckRedirect: noRedirects}

	req, err := job.request(ctx, http.MethodGet, job.URL)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	resp, err := bare.Do(req)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	_ = resp.Body.Close()
	job.Data["status_code"] = resp.StatusCode

	if resp.StatusCode != http.StatusMovedPermanently {
		return ResultFail
	}
	location := resp.Header.Get("Location")
	job.Data["location"] = location
	if location != job.Context.Target {
		return ResultFail
	}

	followReq, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Context.Target, http.NoBody)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	followResp, err := client.Do(followReq)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	_ = followResp.Body.Close()
	if followResp.StatusCode != http.StatusOK {
		job.Data["target_status_code"] = followResp.StatusCode
		return ResultFail
	}
	return ResultPass
}

// CheckURLArcGIS fetches the rewritten ArcGIS endpoint; ArcGIS reports
// failures inside a 200 body, so the pass condition is a JSON document with
// no top-level error key.
func CheckURLArcGIS(ctx context.Context, client *http.Client, job *Job) Result {
	req, err := job.request(ctx, http.MethodGet, job.URL)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	resp, err := client.Do(req)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	defer func() { _ = resp.Body.Close() }()
	job.Data["status_code"] = resp.StatusCode

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	if _, failed := doc["error"]; failed {
		return ResultFail
	}
	return ResultPass
}

// CheckItemDownload fetches the item page named by the context URL and
// passes iff the job URL appears in the page body, entity-escaped the way
// the templates emit it.
func CheckItemDownload(ctx context.Context, client *http.Client, job *Job) Result {
	req, err := job.request(ctx, http.MethodGet, job.Context.URL)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	resp, err := client.Do(req)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	defer func() { _ = resp.Body.Close() }()
	job.Data["status_code"] = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		job.Data["error"] = err.Error()
		return ResultFail
	}
	needle := strings.ReplaceAll(job.URL, "&", "&amp;")
	if !strings.Contains(string(body), needle) {
		return ResultFail
	}
	return ResultPass
}
