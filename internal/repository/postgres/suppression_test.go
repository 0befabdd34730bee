package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/suppression"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var suppressionCols = []string{"id", "workspace_id", "email", "reason", "suppressed_at", "campaign_id", "lead_id", "metadata"}

func TestSuppressionRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM suppression_entries\s+WHERE workspace_id = \$1 AND email = \$2`).
		WithArgs("w1", "a@x.com").
		WillReturnRows(sqlmock.NewRows(suppressionCols).
			AddRow("s1", "w1", "a@x.com", "hard_bounce", at, "c1", "", []byte(`{"bounce_code":"550"}`)))

	s, err := repo.Get(context.Background(), "w1", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonHardBounce, s.Reason)
	assert.Equal(t, "c1", s.CampaignID)
	assert.Equal(t, "550", s.Metadata["bounce_code"])
	assert.True(t, at.Equal(s.SuppressedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery(`FROM suppression_entries`).
		WithArgs("w1", "none@x.com").
		WillReturnRows(sqlmock.NewRows(suppressionCols))

	_, err := repo.Get(context.Background(), "w1", "none@x.com")
	assert.ErrorIs(t, err, suppression.ErrNotFound)
}

func TestSuppressionRepo_GetMany(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)
	at := time.Now().UTC()

	mock.ExpectQuery(`WHERE workspace_id = \$1 AND email = ANY\(\$2\)`).
		WillReturnRows(sqlmock.NewRows(suppressionCols).
			AddRow("s1", "w1", "b@x.com", "unsubscribe", at, "", "", []byte(`{}`)))

	got, err := repo.GetMany(context.Background(), "w1", []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ReasonUnsubscribe, got["b@x.com"].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_GetManyEmptyInput(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	got, err := repo.GetMany(context.Background(), "w1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_UpsertKeepsExistingID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery(`INSERT INTO suppression_entries[\s\S]+ON CONFLICT \(workspace_id, email\) DO UPDATE[\s\S]+RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-id"))

	s := &domain.Suppression{WorkspaceID: "w1", Email: "a@x.com", Reason: domain.ReasonComplaint, SuppressedAt: time.Now()}
	require.NoError(t, repo.Upsert(context.Background(), s))
	assert.Equal(t, "existing-id", s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_Remove(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectExec(`DELETE FROM suppression_entries`).
		WithArgs("w1", "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM suppression_entries`).
		WithArgs("w1", "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Remove(context.Background(), "w1", "a@x.com"))
	assert.ErrorIs(t, repo.Remove(context.Background(), "w1", "a@x.com"), suppression.ErrNotFound)
}

func TestSuppressionRepo_ListWithReason(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)
	at := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM suppression_entries WHERE workspace_id = \$1 AND reason = \$2`).
		WithArgs("w1", domain.ReasonManual).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY suppressed_at DESC, email LIMIT \$3 OFFSET \$4`).
		WithArgs("w1", domain.ReasonManual, 2, 0).
		WillReturnRows(sqlmock.NewRows(suppressionCols).
			AddRow("s1", "w1", "a@x.com", "manual", at, "", "", []byte(`{}`)).
			AddRow("s2", "w1", "b@x.com", "manual", at.Add(-time.Hour), "", "", []byte(`{}`)))

	got, total, err := repo.List(context.Background(), "w1", suppression.ListFilter{Reason: domain.ReasonManual, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_CountByReason(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery(`GROUP BY reason`).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"reason", "count"}).
			AddRow("unsubscribe", 4).
			AddRow("hard_bounce", 1))

	got, err := repo.CountByReason(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 4, got[domain.ReasonUnsubscribe])
	assert.Equal(t, 1, got[domain.ReasonHardBounce])
}

func TestSuppressionRepo_QueryError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery(`SELECT email FROM suppression_entries`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.AllEmails(context.Background(), "w1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all suppressed emails")
}
