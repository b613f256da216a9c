package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	postgres "github.com/honeynil/JobEscrowService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{
	"id", "client_id", "title", "description", "category", "budget", "location", "status", "amount_paid",
	"submission_file_url", "submission_file_name", "submitted_at", "version", "created_at", "updated_at",
}

func TestPostgresJobRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresJobRepository(db)
	ctx := context.Background()

	t.Run("NilJob", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilJob)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		job := &models.Job{
			ClientID:    uuid.New(),
			Title:       "Contract review",
			Description: "Review a supplier agreement",
			Category:    models.CategoryLegal,
			Budget:      decimal.NewFromInt(500),
			Location:    models.DefaultLocation,
		}
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs (id, client_id, title, description, category, budget, location, status, amount_paid)`)).
			WithArgs(sqlmock.AnyArg(), job.ClientID, job.Title, job.Description, job.Category, job.Budget,
				job.Location, models.JobStatusOpen, job.AmountPaid).
			WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(int64(1), now, now))

		err := repo.Create(ctx, job)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, models.JobStatusOpen, job.Status)
		assert.Equal(t, int64(1), job.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresJobRepository_GetForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresJobRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("WithSubmission", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1 FOR UPDATE`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
				id.String(), uuid.NewString(), "Audit", "Quarterly audit", "Financial", "100.01", "Remote",
				"Reviewing", "0.00", "https://files.example/report.pdf", "report.pdf", now, int64(3), now, now))

		job, err := repo.GetForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusReviewing, job.Status)
		assert.Equal(t, "100.01", job.Budget.StringFixed(2))
		require.NotNil(t, job.WorkSubmission)
		assert.Equal(t, "report.pdf", job.WorkSubmission.FileName)
		assert.Equal(t, int64(3), job.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithoutSubmission", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
				id.String(), uuid.NewString(), "Audit", "Quarterly audit", "Financial", "100.00", "Remote",
				"Open", "0.00", nil, nil, nil, int64(1), now, now))

		job, err := repo.GetForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, job.WorkSubmission)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		job, err := repo.GetForUpdate(ctx, id)
		assert.Nil(t, job)
		assert.ErrorIs(t, err, pkgerrors.ErrJobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresJobRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresJobRepository(db)
	ctx := context.Background()

	job := &models.Job{
		ID:         uuid.New(),
		Status:     models.JobStatusInProgress,
		AmountPaid: decimal.NewFromInt(50),
		Version:    2,
	}

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $6 AND version = $7`)).
			WithArgs(job.Status, job.AmountPaid, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(3), now))

		err := repo.Update(ctx, job)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), job.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StaleVersion", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE jobs`)).
			WithArgs(job.Status, job.AmountPaid, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, int64(3)).
			WillReturnError(sql.ErrNoRows)

		err := repo.Update(ctx, job)
		assert.ErrorIs(t, err, pkgerrors.ErrStaleJob)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NilJob", func(t *testing.T) {
		assert.ErrorIs(t, repo.Update(ctx, nil), pkgerrors.ErrNilJob)
	})
}

func TestPostgresJobRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresJobRepository(db)
	ctx := context.Background()

	t.Run("NoFilter", func(t *testing.T) {
		mock.ExpectQuery(`FROM jobs ORDER BY created_at DESC`).
			WillReturnRows(sqlmock.NewRows(jobRowColumns))

		jobs, err := repo.List(ctx, repository.JobFilter{})
		assert.NoError(t, err)
		assert.Empty(t, jobs)
		assert.NotNil(t, jobs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AllFilters", func(t *testing.T) {
		clientID := uuid.New()
		now := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE client_id = $1 AND status = ANY($2) AND category = $3 ORDER BY created_at DESC`)).
			WithArgs(clientID, sqlmock.AnyArg(), models.CategoryTechnology).
			WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
				uuid.NewString(), clientID.String(), "API", "Build an API", "Technology", "900.00", "Remote",
				"Open", "0.00", nil, nil, nil, int64(1), now, now))

		jobs, err := repo.List(ctx, repository.JobFilter{
			ClientID: &clientID,
			Statuses: []models.JobStatus{models.JobStatusOpen, models.JobStatusContracted},
			Category: models.CategoryTechnology,
		})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, clientID, jobs[0].ClientID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CategoryOnly", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE category = $1 ORDER BY`)).
			WithArgs(models.CategoryLegal).
			WillReturnRows(sqlmock.NewRows(jobRowColumns))

		_, err := repo.List(ctx, repository.JobFilter{Category: models.CategoryLegal})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
