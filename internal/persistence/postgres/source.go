package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/pipeline"
)

// SourceSchema holds the ingested inputs: KPI observations, founder
// profiles, and the synced productivity feeds. Ingestion writes these
// tables; the pipeline only reads them.
const SourceSchema = `
CREATE TABLE IF NOT EXISTS kpi_points (
	tenant   TEXT NOT NULL,
	kpi_name TEXT NOT NULL,
	ts       TIMESTAMPTZ NOT NULL,
	value    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (tenant, kpi_name, ts)
);
CREATE TABLE IF NOT EXISTS founder_profiles (
	tenant  TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS feed_items (
	tenant  TEXT NOT NULL,
	kind    TEXT NOT NULL CHECK (kind IN ('task', 'meeting', 'message')),
	id      TEXT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (tenant, kind, id)
);
`

// Source implements pipeline.Source over the ingested tables.
type Source struct {
	store *Store
}

// NewSource reads pipeline inputs through an open Store.
func NewSource(store *Store) *Source { return &Source{store: store} }

// Migrate applies the input-side schema.
func (s *Source) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.store.db.ExecContext(ctx, SourceSchema); err != nil {
		return fmt.Errorf("apply source schema: %w", err)
	}
	return nil
}

// Tenants lists every tenant with at least one KPI observation.
func (s *Source) Tenants(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()

	var tenants []string
	err := s.store.db.SelectContext(ctx, &tenants, `
		SELECT DISTINCT tenant FROM kpi_points ORDER BY tenant`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Profile loads the founder profile, balanced defaults when absent.
func (s *Source) Profile(ctx context.Context, tenant string) (domain.FounderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()

	var payload []byte
	err := s.store.db.GetContext(ctx, &payload, `
		SELECT payload FROM founder_profiles WHERE tenant = $1`, tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FounderProfile{Tenant: tenant, Sensitivity: domain.SensitivityBalanced}, nil
	}
	if err != nil {
		return domain.FounderProfile{}, fmt.Errorf("load profile %s: %w", tenant, err)
	}

	var p domain.FounderProfile
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.FounderProfile{}, fmt.Errorf("unmarshal profile %s: %w", tenant, err)
	}
	return p, nil
}

// Series loads every KPI series for the tenant, points in time order.
func (s *Source) Series(ctx context.Context, tenant string) (map[string]domain.KPISeries, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()

	rows, err := s.store.db.QueryxContext(ctx, `
		SELECT kpi_name, ts, value FROM kpi_points
		WHERE tenant = $1 ORDER BY kpi_name, ts`, tenant)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", tenant, err)
	}
	defer rows.Close()

	out := make(map[string]domain.KPISeries)
	for rows.Next() {
		var (
			name string
			ts   time.Time
			val  float64
		)
		if err := rows.Scan(&name, &ts, &val); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		series, ok := out[name]
		if !ok {
			series = domain.KPISeries{Tenant: tenant, KPIName: name, Frequency: domain.FrequencyDaily}
		}
		series.Points = append(series.Points, domain.Point{Timestamp: ts, Value: val})
		out[name] = series
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series %s: %w", tenant, err)
	}
	return out, nil
}

// Feeds loads the synced task, calendar, and message items.
func (s *Source) Feeds(ctx context.Context, tenant string) (pipeline.Feeds, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()

	rows, err := s.store.db.QueryxContext(ctx, `
		SELECT kind, payload FROM feed_items WHERE tenant = $1 ORDER BY kind, id`, tenant)
	if err != nil {
		return pipeline.Feeds{}, fmt.Errorf("load feeds %s: %w", tenant, err)
	}
	defer rows.Close()

	var feeds pipeline.Feeds
	for rows.Next() {
		var (
			kind    string
			payload []byte
		)
		if err := rows.Scan(&kind, &payload); err != nil {
			return pipeline.Feeds{}, fmt.Errorf("scan feed item: %w", err)
		}
		switch kind {
		case "task":
			var t domain.Task
			if err := json.Unmarshal(payload, &t); err != nil {
				return pipeline.Feeds{}, fmt.Errorf("unmarshal task: %w", err)
			}
			feeds.Tasks = append(feeds.Tasks, t)
		case "meeting":
			var m domain.Meeting
			if err := json.Unmarshal(payload, &m); err != nil {
				return pipeline.Feeds{}, fmt.Errorf("unmarshal meeting: %w", err)
			}
			feeds.Meetings = append(feeds.Meetings, m)
		case "message":
			var m domain.Message
			if err := json.Unmarshal(payload, &m); err != nil {
				return pipeline.Feeds{}, fmt.Errorf("unmarshal message: %w", err)
			}
			feeds.Messages = append(feeds.Messages, m)
		}
	}
	if err := rows.Err(); err != nil {
		return pipeline.Feeds{}, fmt.Errorf("iterate feeds %s: %w", tenant, err)
	}
	return feeds, nil
}

var _ pipeline.Source = (*Source)(nil)
