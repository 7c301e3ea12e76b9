package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderpulse/insights/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSaveAnomalies_UpsertOnRepeatRun(t *testing.T) {
	s, mock := newMockStore(t)
	runAt := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC)
	a := domain.Anomaly{
		Tenant:    "t1",
		KPIName:   "mrr",
		Timestamp: runAt.Add(-24 * time.Hour),
		Value:     38000,
		Expected:  42000,
		Direction: domain.DirectionDown,
		Severity:  domain.SeverityHigh,
	}
	payload, err := json.Marshal(a)
	require.NoError(t, err)

	// The same (tenant, kpi, run_at, ts) key twice must upsert, not fail.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`(?s)INSERT INTO anomalies.*ON CONFLICT \(tenant, kpi_name, run_at, ts\) DO UPDATE`).
			WithArgs("t1", "mrr", runAt, a.Timestamp, string(domain.SeverityHigh), payload).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, s.SaveAnomalies(context.Background(), "t1", runAt, []domain.Anomaly{a}))
	require.NoError(t, s.SaveAnomalies(context.Background(), "t1", runAt, []domain.Anomaly{a}))
}

func TestUpdateRecommendationStatus_PendingOnly(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`(?s)UPDATE recommendations.*WHERE id = \$1 AND status = 'pending'`).
		WithArgs("rec-1", string(domain.StatusAccepted)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateRecommendationStatus(context.Background(), "rec-1", domain.StatusAccepted))

	// Zero affected rows means the row is gone or already transitioned.
	mock.ExpectExec(`(?s)UPDATE recommendations.*WHERE id = \$1 AND status = 'pending'`).
		WithArgs("rec-2", string(domain.StatusDismissed)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdateRecommendationStatus(context.Background(), "rec-2", domain.StatusDismissed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or not pending")
}

func TestSaveBriefing_ConflictIsIgnored(t *testing.T) {
	s, mock := newMockStore(t)
	b := domain.Briefing{
		ID:          "br-1",
		Tenant:      "t1",
		Type:        domain.BriefingMorning,
		GeneratedAt: time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(b)
	require.NoError(t, err)

	mock.ExpectExec(`(?s)INSERT INTO briefings.*ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(b.ID, b.Tenant, b.GeneratedAt, payload).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.SaveBriefing(context.Background(), b))
}

func TestLatestBriefing_RoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	b := domain.Briefing{
		ID:              "br-7",
		Tenant:          "t1",
		Type:            domain.BriefingEvening,
		GeneratedAt:     time.Date(2026, 8, 3, 18, 0, 0, 0, time.UTC),
		DataQualityNote: "1 of 4 KPIs lacked history for anomaly detection",
	}
	payload, err := json.Marshal(b)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM briefings`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.LatestBriefing(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, b.Type, got.Type)
	assert.Equal(t, b.DataQualityNote, got.DataQualityNote)
	assert.True(t, b.GeneratedAt.Equal(got.GeneratedAt))
}

func TestLatestBriefing_NoneIsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT payload FROM briefings`).
		WithArgs("t9").
		WillReturnError(sql.ErrNoRows)

	got, err := s.LatestBriefing(context.Background(), "t9")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFeedback_DecodesInOrder(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fb1 := domain.Feedback{Tenant: "t1", TargetID: "rec-1", Action: domain.FeedbackAccepted, At: since.Add(2 * time.Hour)}
	fb2 := domain.Feedback{Tenant: "t1", TargetID: "rec-2", Action: domain.FeedbackDismissed, At: since.Add(5 * time.Hour)}
	p1, err := json.Marshal(fb1)
	require.NoError(t, err)
	p2, err := json.Marshal(fb2)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM feedback`).
		WithArgs("t1", since).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(p1).AddRow(p2))

	got, err := s.ListFeedback(context.Background(), "t1", since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rec-1", got[0].TargetID)
	assert.Equal(t, domain.FeedbackDismissed, got[1].Action)
}
