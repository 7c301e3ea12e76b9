// Package postgres implements the persistence contracts on PostgreSQL
// via sqlx. Derived entities serialize their variable parts as JSONB so
// schema churn stays confined to the envelope columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/persistence"
)

const defaultTimeout = 5 * time.Second

// Store implements RunRepo and FeedbackRepo.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects and returns a Store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db, timeout: defaultTimeout}, nil
}

// NewStore wraps an existing connection, mainly for tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: defaultTimeout}
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Schema is applied at startup; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS anomalies (
	tenant      TEXT NOT NULL,
	kpi_name    TEXT NOT NULL,
	run_at      TIMESTAMPTZ NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	severity    TEXT NOT NULL,
	payload     JSONB NOT NULL,
	PRIMARY KEY (tenant, kpi_name, run_at, ts)
);
CREATE TABLE IF NOT EXISTS trends (
	tenant      TEXT NOT NULL,
	kpi_name    TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	run_at      TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	PRIMARY KEY (tenant, kpi_name, timeframe, run_at)
);
CREATE TABLE IF NOT EXISTS correlation_edges (
	tenant      TEXT NOT NULL,
	source_kpi  TEXT NOT NULL,
	target_kpi  TEXT NOT NULL,
	run_at      TIMESTAMPTZ NOT NULL,
	lag_days    INT NOT NULL CHECK (lag_days >= 0),
	payload     JSONB NOT NULL,
	PRIMARY KEY (tenant, source_kpi, target_kpi, run_at)
);
CREATE TABLE IF NOT EXISTS recommendations (
	id          TEXT PRIMARY KEY,
	tenant      TEXT NOT NULL,
	rule_id     TEXT,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS briefings (
	id           TEXT PRIMARY KEY,
	tenant       TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS briefings_tenant_time ON briefings (tenant, generated_at DESC);
CREATE TABLE IF NOT EXISTS feedback (
	tenant      TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	PRIMARY KEY (tenant, target_id, at)
);
`

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) SaveAnomalies(ctx context.Context, tenant string, runAt time.Time, anomalies []domain.Anomaly) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, a := range anomalies {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal anomaly %s/%s: %w", tenant, a.KPIName, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO anomalies (tenant, kpi_name, run_at, ts, severity, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant, kpi_name, run_at, ts) DO UPDATE SET
				severity = EXCLUDED.severity, payload = EXCLUDED.payload`,
			tenant, a.KPIName, runAt, a.Timestamp, a.Severity, payload)
		if err != nil {
			return fmt.Errorf("save anomaly %s/%s: %w", tenant, a.KPIName, err)
		}
	}
	return nil
}

func (s *Store) SaveTrends(ctx context.Context, tenant string, runAt time.Time, trends []domain.Trend) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, t := range trends {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal trend %s/%s: %w", tenant, t.KPIName, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO trends (tenant, kpi_name, timeframe, run_at, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant, kpi_name, timeframe, run_at) DO UPDATE SET payload = EXCLUDED.payload`,
			tenant, t.KPIName, t.Timeframe, runAt, payload)
		if err != nil {
			return fmt.Errorf("save trend %s/%s: %w", tenant, t.KPIName, err)
		}
	}
	return nil
}

func (s *Store) SaveEdges(ctx context.Context, tenant string, runAt time.Time, edges []domain.CorrelationEdge) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, e := range edges {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal edge %s->%s: %w", e.SourceKPI, e.TargetKPI, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO correlation_edges (tenant, source_kpi, target_kpi, run_at, lag_days, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant, source_kpi, target_kpi, run_at) DO UPDATE SET
				lag_days = EXCLUDED.lag_days, payload = EXCLUDED.payload`,
			tenant, e.SourceKPI, e.TargetKPI, runAt, e.LagDays, payload)
		if err != nil {
			return fmt.Errorf("save edge %s->%s: %w", e.SourceKPI, e.TargetKPI, err)
		}
	}
	return nil
}

func (s *Store) SaveRecommendations(ctx context.Context, recs []domain.Recommendation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, r := range recs {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal recommendation %s: %w", r.ID, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO recommendations (id, tenant, rule_id, status, created_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`,
			r.ID, r.Tenant, r.RuleID, r.Status, r.CreatedAt, payload)
		if err != nil {
			return fmt.Errorf("save recommendation %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Store) UpdateRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET status = $2, payload = jsonb_set(payload, '{status}', to_jsonb($2::text))
		WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return fmt.Errorf("update recommendation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recommendation %s not found or not pending", id)
	}
	return nil
}

func (s *Store) SaveBriefing(ctx context.Context, b domain.Briefing) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal briefing %s: %w", b.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO briefings (id, tenant, generated_at, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.Tenant, b.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("save briefing %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) LatestBriefing(ctx context.Context, tenant string) (*domain.Briefing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payload []byte
	err := s.db.GetContext(ctx, &payload, `
		SELECT payload FROM briefings
		WHERE tenant = $1 ORDER BY generated_at DESC LIMIT 1`, tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest briefing for %s: %w", tenant, err)
	}

	var b domain.Briefing
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("unmarshal briefing: %w", err)
	}
	return &b, nil
}

func (s *Store) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (tenant, target_id, action, at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, target_id, at) DO NOTHING`,
		fb.Tenant, fb.TargetID, fb.Action, fb.At, payload)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *Store) ListFeedback(ctx context.Context, tenant string, since time.Time) ([]domain.Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payloads [][]byte
	err := s.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM feedback
		WHERE tenant = $1 AND at >= $2 ORDER BY at ASC`, tenant, since)
	if err != nil {
		return nil, fmt.Errorf("list feedback for %s: %w", tenant, err)
	}

	out := make([]domain.Feedback, 0, len(payloads))
	for _, p := range payloads {
		var fb domain.Feedback
		if err := json.Unmarshal(p, &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, nil
}

var (
	_ persistence.RunRepo      = (*Store)(nil)
	_ persistence.FeedbackRepo = (*Store)(nil)
)
