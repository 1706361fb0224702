package verify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Runner executes verification jobs over a worker pool.
type Runner struct {
	logger   *slog.Logger
	client   *http.Client
	parallel int
}

// NewRunner creates a runner with the given pool size; 1 disables
// parallelism. File probes can be slow, so the shared client allows 30s.
func NewRunner(parallel int) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{
		logger:   slog.With("component", "verify"),
		client:   &http.Client{Timeout: 30 * time.Second},
		parallel: parallel,
	}
}

// Run executes every pending job, mutating results in place. Cancellation is
// cooperative: once ctx is done, remaining jobs are recorded as skipped
// rather than probed.
func (r *Runner) Run(ctx context.Context, jobs []*Job) {
	sem := make(chan struct{}, r.parallel)
	var wg sync.WaitGroup

	for _, job := range jobs {
		if ctx.Err() != nil {
			if job.Result == ResultPending {
				job.Result = ResultSkip
			}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			defer func() { <-sem }()
			r.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	if job.Result != ResultPending {
		return
	}
	if ctx.Err() != nil {
		job.Result = ResultSkip
		return
	}

	start := time.Now()
	job.Result = job.check(ctx, r.client, job)
	duration := time.Since(start)
	job.Data["duration_us"] = duration.Microseconds()

	if job.Result == ResultFail {
		r.logger.Warn("check failed", "type", job.Type, "url", job.URL, "data", job.Data)
	} else {
		r.logger.Debug("check done", "type", job.Type, "url", job.URL, "result", job.Result)
	}
}
