package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/types"
)

func newMockRepo(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSetDeployStatus_ConditionalUpdateOnlyAppliesFromExpectedStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer func() { _ = repo.Close() }()

	mock.ExpectExec(`UPDATE deployment SET deploy_status`).
		WithArgs(types.DeployStatusSuccess, "ok", int64(1), types.DeployStatusDeploying).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.SetDeployStatus(context.Background(), 1, types.DeployStatusSuccess, "ok", types.DeployStatusDeploying)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDeployStatus_NoRowsAffectedWhenAlreadyTerminal(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer func() { _ = repo.Close() }()

	mock.ExpectExec(`UPDATE deployment SET deploy_status`).
		WithArgs(types.DeployStatusFailed, "disk full", int64(1), types.DeployStatusDeploying).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.SetDeployStatus(context.Background(), 1, types.DeployStatusFailed, "disk full", types.DeployStatusDeploying)
	require.NoError(t, err)
	assert.False(t, changed, "a deployment already past Deploying must not be clobbered")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeployment_NotFoundMapsToApierrKind(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer func() { _ = repo.Close() }()

	mock.ExpectQuery(`SELECT id, owner_id`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.GetDeployment(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestCreateToken_UniqueViolationMapsToConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer func() { _ = repo.Close() }()

	tok := &types.Token{UserID: 1, Name: "ci", Value: "x", Usage: types.TokenUsageCmdline, Status: types.TokenStatusActive, ExpiresAt: time.Now().Add(time.Hour)}

	mock.ExpectQuery(`INSERT INTO user_token`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateToken(context.Background(), tok)
	require.Error(t, err)
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))
}
