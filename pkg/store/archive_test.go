package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-xyz/watchy/pkg/report"
)

func archivedReport() *report.Report {
	rep := report.New(7, 8453, "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		"ipfs://bafytest", "", time.Unix(1_750_000_000, 0))
	rep.Scores = report.Scores{Metadata: 90, Onchain: 100, EndpointAvailability: 100,
		EndpointPerformance: 80, Security: 70, Consistency: 85, Content: 75}
	rep.FinalizeScores()
	return rep
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)",
		rebindDollar("INSERT INTO t (a, b) VALUES (?, ?)"))
	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
}

func TestChainIDFromRegistry(t *testing.T) {
	assert.Equal(t, uint64(8453), chainIDFromRegistry("eip155:8453:0xabc"))
	assert.Equal(t, uint64(0), chainIDFromRegistry("eip155:8453"))
	assert.Equal(t, uint64(0), chainIDFromRegistry("eip155:not-a-number:0xabc"))
}

func TestSQLArchiveSaveReport(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	a := NewPostgresArchive(db)
	a.now = func() time.Time { return time.Unix(1_750_000_000, 0) }
	rep := archivedReport()
	raw, err := json.Marshal(rep)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO audit_reports`).
		WithArgs("aud_1", rep.AgentID, uint64(8453), rep.Scores.Overall,
			string(raw), int64(1_750_000_000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.SaveReport(context.Background(), "aud_1", rep))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLArchiveLatestReport(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		rep := archivedReport()
		raw, err := json.Marshal(rep)
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT report FROM audit_reports`).
			WithArgs(uint64(7), uint64(8453)).
			WillReturnRows(sqlmock.NewRows([]string{"report"}).AddRow(string(raw)))

		a := NewPostgresArchive(db)
		got, err := a.LatestReport(context.Background(), 7, 8453)
		require.NoError(t, err)
		assert.Equal(t, rep, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT report FROM audit_reports`).
			WithArgs(uint64(7), uint64(8453)).
			WillReturnRows(sqlmock.NewRows([]string{"report"}))

		a := NewPostgresArchive(db)
		_, err = a.LatestReport(context.Background(), 7, 8453)
		assert.ErrorIs(t, err, ErrReportNotFound)
	})
}

func TestSQLArchiveHistory(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, overall, created_at FROM audit_reports`).
		WithArgs(uint64(7), uint64(8453), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "overall", "created_at"}).
			AddRow("aud_2", 90, int64(200)).
			AddRow("aud_1", 85, int64(100)))

	a := NewSQLiteArchive(db)
	history, err := a.History(context.Background(), 7, 8453, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "aud_2", history[0].JobID)
	assert.Equal(t, 90, history[0].Overall)
	assert.Equal(t, int64(100), history[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
