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
	postgres "github.com/honeynil/JobEscrowService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUserRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()

	t.Run("NilUser", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilUser)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidRole", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Name: "eve", Role: "Root"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidRole)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NegativeBalance", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Name: "eve", Role: models.RoleClient, WalletBalance: decimal.NewFromInt(-1)})
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		user := &models.User{ID: uuid.New(), Name: "alice", Role: models.RoleClient}
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (id, name, role, wallet_balance)`)).
			WithArgs(user.ID, user.Name, user.Role, user.WalletBalance).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		err := repo.Create(ctx, user)
		assert.NoError(t, err)
		assert.Equal(t, createdAt, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GeneratesID", func(t *testing.T) {
		user := &models.User{Name: "bob", Role: models.RoleProvider}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(sqlmock.AnyArg(), user.Name, user.Role, user.WalletBalance).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		err := repo.Create(ctx, user)
		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateID", func(t *testing.T) {
		user := &models.User{ID: uuid.New(), Name: "alice", Role: models.RoleClient}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(user.ID, user.Name, user.Role, user.WalletBalance).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateUser)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		user := &models.User{ID: uuid.New(), Name: "carol", Role: models.RoleAdmin}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
			WillReturnError(sql.ErrConnDone)

		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), "failed to create user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, role, wallet_balance, created_at FROM users WHERE id = $1`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "role", "wallet_balance", "created_at"}).
				AddRow(id.String(), "alice", "Client", "250.50", createdAt))

		user, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, models.RoleClient, user.Role)
		assert.True(t, decimal.RequireFromString("250.50").Equal(user.WalletBalance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		user, err := repo.GetByID(ctx, id)
		assert.Nil(t, user)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_ChangeBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Credit", func(t *testing.T) {
		delta := decimal.NewFromInt(100)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
			WithArgs(delta, id).
			WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow("150.00"))

		balance, err := repo.ChangeBalance(ctx, id, delta)
		assert.NoError(t, err)
		assert.Equal(t, "150.00", balance.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		delta := decimal.NewFromInt(-500)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
			WithArgs(delta, id).
			WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT wallet_balance FROM users WHERE id = $1`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow("100.00"))

		_, err := repo.ChangeBalance(ctx, id, delta)
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

		var insufficient *pkgerrors.InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, "500.00", insufficient.Required.StringFixed(2))
		assert.Equal(t, "100.00", insufficient.Current.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownUser", func(t *testing.T) {
		delta := decimal.NewFromInt(-1)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
			WithArgs(delta, id).
			WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT wallet_balance FROM users`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.ChangeBalance(ctx, id, delta)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		delta := decimal.NewFromInt(10)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
			WithArgs(delta, id).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.ChangeBalance(ctx, id, delta)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NotErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresUserRepository(db)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT wallet_balance FROM users WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow("42.10"))

	balance, err := repo.GetBalance(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, "42.10", balance.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
