package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/lib/pq"
)

const jobTracer = "job-repository"

const jobColumns = `id, client_id, title, description, category, budget, location, status, amount_paid,
	submission_file_url, submission_file_name, submitted_at, version, created_at, updated_at`

type PostgresJobRepository struct {
	db DBTX
}

func NewPostgresJobRepository(db DBTX) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job      models.Job
		fileURL  sql.NullString
		fileName sql.NullString
		subAt    sql.NullTime
	)
	err := row.Scan(&job.ID, &job.ClientID, &job.Title, &job.Description, &job.Category, &job.Budget,
		&job.Location, &job.Status, &job.AmountPaid, &fileURL, &fileName, &subAt, &job.Version,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if fileURL.Valid {
		job.WorkSubmission = &models.WorkSubmission{
			FileURL:     fileURL.String,
			FileName:    fileName.String,
			SubmittedAt: subAt.Time,
		}
	}
	return &job, nil
}

func submissionArgs(ws *models.WorkSubmission) (sql.NullString, sql.NullString, sql.NullTime) {
	if ws == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: ws.FileURL, Valid: true},
		sql.NullString{String: ws.FileName, Valid: ws.FileName != ""},
		sql.NullTime{Time: ws.SubmittedAt, Valid: !ws.SubmittedAt.IsZero()}
}

func (r *PostgresJobRepository) Create(ctx context.Context, job *models.Job) (err error) {
	ctx, done := observe(ctx, jobTracer, "CreateJob")
	defer func() { done(err) }()

	if job == nil {
		err = pkgerrors.ErrNilJob
		return err
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusOpen
	}

	query := `
	INSERT INTO jobs (id, client_id, title, description, category, budget, location, status, amount_paid)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING version, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, job.ID, job.ClientID, job.Title, job.Description, job.Category,
		job.Budget, job.Location, job.Status, job.AmountPaid).Scan(&job.Version, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		slog.Error("failed to create job", "method", "Create", "client_id", job.ClientID, "error", err)
		return fmt.Errorf("failed to create job: %w", err)
	}

	slog.Info("job created", "method", "Create", "job_id", job.ID, "client_id", job.ClientID, "budget", job.Budget)
	return nil
}

func (r *PostgresJobRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.Job, err error) {
	ctx, done := observe(ctx, jobTracer, "GetJobByID")
	defer func() { done(err) }()

	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrJobNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get job by id", "method", "GetByID", "job_id", id, "error", err)
		return nil, fmt.Errorf("failed to get job by id: %w", err)
	}
	return job, nil
}

func (r *PostgresJobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (_ *models.Job, err error) {
	ctx, done := observe(ctx, jobTracer, "GetJobForUpdate")
	defer func() { done(err) }()

	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrJobNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to lock job", "method", "GetForUpdate", "job_id", id, "error", err)
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobRepository) Update(ctx context.Context, job *models.Job) (err error) {
	ctx, done := observe(ctx, jobTracer, "UpdateJob")
	defer func() { done(err) }()

	if job == nil {
		err = pkgerrors.ErrNilJob
		return err
	}

	fileURL, fileName, subAt := submissionArgs(job.WorkSubmission)
	query := `
	UPDATE jobs
	SET status = $1, amount_paid = $2, submission_file_url = $3, submission_file_name = $4, submitted_at = $5,
		version = version + 1, updated_at = now()
	WHERE id = $6 AND version = $7
	RETURNING version, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, job.Status, job.AmountPaid, fileURL, fileName, subAt, job.ID, job.Version).
		Scan(&job.Version, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrStaleJob
		slog.Warn("job version mismatch", "method", "Update", "job_id", job.ID, "version", job.Version)
		return err
	}
	if err != nil {
		slog.Error("failed to update job", "method", "Update", "job_id", job.ID, "error", err)
		return fmt.Errorf("failed to update job: %w", err)
	}

	slog.Info("job updated", "method", "Update", "job_id", job.ID, "status", job.Status, "amount_paid", job.AmountPaid, "version", job.Version)
	return nil
}

func (r *PostgresJobRepository) List(ctx context.Context, filter repository.JobFilter) (_ []models.Job, err error) {
	ctx, done := observe(ctx, jobTracer, "ListJobs")
	defer func() { done(err) }()

	var (
		conds []string
		args  []any
	)
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list jobs", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan job: %w", scanErr)
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}
