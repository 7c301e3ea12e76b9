// Package persistence defines the storage contracts for derived run
// artifacts and feedback. Postgres backs the durable records; Redis
// backs the hot per-(tenant, KPI) model and threshold state.
package persistence

import (
	"context"
	"time"

	"github.com/founderpulse/insights/internal/domain"
)

// RunRepo persists the derived entities of one tenant run.
type RunRepo interface {
	SaveAnomalies(ctx context.Context, tenant string, runAt time.Time, anomalies []domain.Anomaly) error
	SaveTrends(ctx context.Context, tenant string, runAt time.Time, trends []domain.Trend) error
	SaveEdges(ctx context.Context, tenant string, runAt time.Time, edges []domain.CorrelationEdge) error
	SaveRecommendations(ctx context.Context, recs []domain.Recommendation) error
	UpdateRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus) error
	SaveBriefing(ctx context.Context, b domain.Briefing) error
	LatestBriefing(ctx context.Context, tenant string) (*domain.Briefing, error)
}

// FeedbackRepo records founder actions for the adaptive subsystems.
type FeedbackRepo interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback) error
	ListFeedback(ctx context.Context, tenant string, since time.Time) ([]domain.Feedback, error)
}
