package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	JobPayslipPDF = "payslip_pdf"
	JobRunExport  = "payrun_export"
)

// Service is a bounded in-process queue for deferred work such as payslip PDF
// rendering. Every run leaves a row in job_runs so operators can see what
// happened after the fact.
type Service struct {
	DB    *pgxpool.Pool
	queue chan job
}

type job struct {
	Type      string
	CompanyID string
	Run       func(context.Context) (any, error)
}

func New(db *pgxpool.Pool) *Service {
	return &Service{
		DB:    db,
		queue: make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

func (s *Service) Enqueue(jobType, companyID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, CompanyID: companyID, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "companyId", companyID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, companyID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, CompanyID: companyID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "companyId", j.CompanyID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (company_id, job_type, status)
    VALUES (NULLIF($1,'')::uuid, $2, $3)
    RETURNING id
  `, j.CompanyID, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}
