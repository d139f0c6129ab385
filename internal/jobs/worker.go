package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/dispatch"
	"github.com/podhaven/crawler/internal/metrics"
	"github.com/podhaven/crawler/internal/store"
)

// Clock abstracts time.Now so tests can pin retry schedules.
type Clock interface {
	Now() time.Time
}

const sqlSelectDueJobs = `
SELECT id, name, args, try_at, live, num_errors
FROM job
WHERE live AND try_at <= $1
ORDER BY try_at
LIMIT $2`

// SelectDueJobs returns live jobs whose try_at has passed, oldest first.
func SelectDueJobs(ctx context.Context, q store.Querier, now time.Time, limit int) ([]store.Job, error) {
	rows, err := q.Query(ctx, sqlSelectDueJobs, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []store.Job
	for rows.Next() {
		var j store.Job
		if err := rows.Scan(&j.ID, &j.Name, &j.Args, &j.TryAt, &j.Live, &j.NumErrors); err != nil {
			return nil, err
		}
		due = append(due, j)
	}
	return due, rows.Err()
}

const sqlDeleteJobs = `DELETE FROM job WHERE id = ANY($1)`

const sqlBackoffJob = `
UPDATE job
SET num_errors = num_errors + 1, try_at = $2
WHERE id = $1`

const sqlParkJob = `UPDATE job SET live = false WHERE id = $1`

type jobResult struct {
	job store.Job
	err error
}

// Worker drains the job queue through the shared dispatcher. In continuous
// mode it keeps polling at the configured interval. Job handlers carry their
// own dependencies, so workers do not pin database connections; only the
// select and report phases touch DB.
type Worker struct {
	DB       store.Querier
	Registry *Registry
	Clock    Clock
	Cfg      dispatch.Config
	Log      *zap.Logger
}

// Run works due jobs until the queue drains (one-shot) or the context is
// canceled (continuous). It returns the number of jobs worked.
func (w *Worker) Run(ctx context.Context) (int64, error) {
	hooks := dispatch.Hooks[store.Job, jobResult]{
		Source: func(ctx context.Context) ([]store.Job, error) {
			return SelectDueJobs(ctx, w.DB, w.Clock.Now(), w.Cfg.BatchSize)
		},
		Start: func(ctx context.Context, _ int) (dispatch.WorkFunc[store.Job, jobResult], func(), error) {
			fn := func(ctx context.Context, job store.Job) jobResult {
				return jobResult{job: job, err: w.work(ctx, job)}
			}
			return fn, func() {}, nil
		},
		Failed: func(job store.Job, err error) jobResult {
			return jobResult{job: job, err: err}
		},
		Report: func(ctx context.Context, results []jobResult) error {
			return w.report(ctx, w.DB, results)
		},
	}

	d, err := dispatch.New(w.Cfg, hooks, w.Log.Named("jobs"))
	if err != nil {
		return 0, err
	}
	return d.Run(ctx)
}

func (w *Worker) work(ctx context.Context, job store.Job) error {
	handler, err := w.Registry.Lookup(job.Name)
	if err != nil {
		return err
	}
	return handler(ctx, job.Args)
}

// report settles one batch: completed jobs are deleted, failed jobs get their
// error count bumped and a new try_at, and jobs with no handler are parked
// dead so they stop being selected.
func (w *Worker) report(ctx context.Context, q store.Querier, results []jobResult) error {
	var succeeded []int64
	for _, r := range results {
		switch {
		case r.err == nil:
			succeeded = append(succeeded, r.job.ID)
			metrics.JobWorked("succeeded")

		case errors.Is(r.err, ErrUnknownJob):
			if _, err := q.Exec(ctx, sqlParkJob, r.job.ID); err != nil {
				return err
			}
			metrics.JobWorked("dead")
			w.Log.Error("parking job with no handler",
				zap.Int64("job_id", r.job.ID),
				zap.String("job_name", r.job.Name))

		default:
			tryAt := w.Clock.Now().Add(NextRetry(r.job.NumErrors + 1))
			if _, err := q.Exec(ctx, sqlBackoffJob, r.job.ID, tryAt); err != nil {
				return err
			}
			metrics.JobWorked("errored")
			w.Log.Error("job failed, scheduling retry",
				zap.Int64("job_id", r.job.ID),
				zap.String("job_name", r.job.Name),
				zap.Time("try_at", tryAt),
				zap.Error(r.err))
		}
	}

	if len(succeeded) > 0 {
		if _, err := q.Exec(ctx, sqlDeleteJobs, succeeded); err != nil {
			return err
		}
	}
	return nil
}
