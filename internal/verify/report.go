package verify

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

//go:embed templates/report.html.tmpl
var reportFS embed.FS

var reportTemplate = template.Must(template.ParseFS(reportFS, "templates/report.html.tmpl"))

// ReportPath is the site-relative directory verification output is written
// to.
const ReportPath = "-/verification"

// Report aggregates a verification run.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	BaseURL     string            `json:"base_url"`
	Overall     Result            `json:"overall"`
	Totals      map[Result]int    `json:"totals"`
	DurationUS  int64             `json:"duration_us"`
	SiteJobs    []*Job            `json:"site_jobs"`
	Resources   map[string][]*Job `json:"resources"`
}

// NewReport compiles run results. The run fails iff any job failed; skipped
// jobs do not count against it.
func NewReport(baseURL string, jobs []*Job) *Report {
	report := &Report{
		GeneratedAt: time.Now().UTC(),
		BaseURL:     baseURL,
		Overall:     ResultPass,
		Totals:      map[Result]int{},
		Resources:   map[string][]*Job{},
	}

	for _, job := range jobs {
		report.Totals[job.Result]++
		if job.Result == ResultFail {
			report.Overall = ResultFail
		}
		if duration, ok := job.Data["duration_us"].(int64); ok {
			report.DurationUS += duration
		}
		if job.FileIdentifier == "" {
			report.SiteJobs = append(report.SiteJobs, job)
		} else {
			report.Resources[job.FileIdentifier] = append(report.Resources[job.FileIdentifier], job)
		}
	}
	return report
}

// JSON serialises the report.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialise report: %w", err)
	}
	return append(data, '\n'), nil
}

// HTML renders the report page.
func (r *Report) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.ExecuteTemplate(&buf, "report", r); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores the JSON and HTML report under the export directory.
func (r *Report) Write(exportPath string) error {
	dir := filepath.Join(exportPath, filepath.FromSlash(ReportPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	jsonBody, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "data.json"), jsonBody, 0o644); err != nil {
		return fmt.Errorf("write report data: %w", err)
	}

	htmlBody, err := r.HTML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), htmlBody, 0o644); err != nil {
		return fmt.Errorf("write report page: %w", err)
	}
	return nil
}
