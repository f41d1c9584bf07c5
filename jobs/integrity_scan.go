package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/sheetgate/sheetgate/internal/jobs"
)

// IntegrityScanJob verifies the store's referential invariants: every sheet
// owned by an existing role and every non-null user assignment pointing at an
// existing role. The store's transactions are the enforcement mechanism; the
// scan only observes and reports, it never mutates.
type IntegrityScanJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob constructs the job.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{pool: pool, logger: logger, metrics: metrics}
}

// Handler adapts the job to an Asynq handler.
func (j *IntegrityScanJob) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return j.Run(ctx)
	}
}

type integrityCheck struct {
	name  string
	query string
}

var integrityChecks = []integrityCheck{
	{
		name: "dangling_sheets",
		query: `SELECT count(*) FROM sheets s
			LEFT JOIN roles r ON r.id = s.role_id
			WHERE r.id IS NULL`,
	},
	{
		name: "dangling_assignments",
		query: `SELECT count(*) FROM users u
			LEFT JOIN roles r ON r.id = u.role_id
			WHERE u.role_id IS NOT NULL AND r.id IS NULL`,
	},
}

// Run executes all integrity checks and reports the violation counts.
func (j *IntegrityScanJob) Run(ctx context.Context) error {
	tracker := j.metrics.Track("integrity_scan")
	err := j.run(ctx)
	return tracker.End(err)
}

func (j *IntegrityScanJob) run(ctx context.Context) error {
	for _, check := range integrityChecks {
		var count int64
		if err := j.pool.QueryRow(ctx, check.query).Scan(&count); err != nil {
			return err
		}
		j.metrics.SetViolations(check.name, count)
		if count > 0 {
			if j.logger != nil {
				j.logger.Error("integrity violation detected",
					slog.String("check", check.name),
					slog.Int64("count", count))
			}
			continue
		}
		if j.logger != nil {
			j.logger.Info("integrity check clean", slog.String("check", check.name))
		}
	}
	return nil
}
