package briefing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

func baseInputs(btype domain.BriefingType) Inputs {
	return Inputs{
		Tenant:  "t1",
		Type:    btype,
		Now:     testNow,
		Profile: domain.FounderProfile{Tenant: "t1", FocusAreas: []string{"metrics"}, Sensitivity: domain.SensitivityBalanced},
	}
}

func TestScore_TaskUrgencyBuckets(t *testing.T) {
	s := NewScorer(config.Default().Briefing, nil)

	in := baseInputs(domain.BriefingMorning)
	in.Tasks = []domain.Task{
		{ID: "overdue", Title: "Close the books", DueAt: testNow.Add(-24 * time.Hour), Priority: 3},
		{ID: "soon", Title: "Investor update", DueAt: testNow.Add(6 * time.Hour), Priority: 3},
		{ID: "later", Title: "Plan offsite", DueAt: testNow.Add(14 * 24 * time.Hour), Priority: 3},
		{ID: "done", Title: "Shipped", DueAt: testNow, Completed: true},
	}

	items := s.Score(in)
	require.Len(t, items, 3, "completed tasks are excluded")

	byRef := indexByRef(items)
	assert.Greater(t, byRef["overdue"].Urgency, byRef["soon"].Urgency)
	assert.Greater(t, byRef["soon"].Urgency, byRef["later"].Urgency)
	assert.Greater(t, byRef["overdue"].Score, byRef["later"].Score)
}

func TestScore_AnomalySeverityAndAcceleration(t *testing.T) {
	s := NewScorer(config.Default().Briefing, nil)

	in := baseInputs(domain.BriefingMorning)
	in.Anomalies = []domain.Anomaly{
		{KPIName: "mrr", Severity: domain.SeverityCritical, Direction: domain.DirectionDown, Magnitude: 0.4, Timestamp: testNow},
		{KPIName: "dau", Severity: domain.SeverityLow, Direction: domain.DirectionUp, Magnitude: 0.1, Timestamp: testNow},
	}
	in.Trends = map[string]domain.Trend{
		"dau": {Acceleration: domain.Accelerating},
	}

	items := s.Score(in)
	byRef := indexByRef(items)
	assert.Greater(t, byRef["mrr"].Score, byRef["dau"].Score)
	assert.InDelta(t, 0.5, byRef["dau"].Urgency, 1e-9, "low severity plus acceleration boost")
}

func TestScore_MeetingBoosts(t *testing.T) {
	s := NewScorer(config.Default().Briefing, nil)

	in := baseInputs(domain.BriefingMorning)
	in.Meetings = []domain.Meeting{
		{ID: "board", Title: "Board prep", StartAt: testNow.Add(2 * time.Hour), AttendeeRoles: []string{"board"}, Keywords: []string{"fundraise"}},
		{ID: "sync", Title: "Weekly sync", StartAt: testNow.Add(48 * time.Hour), AttendeeRoles: []string{"team"}},
		{ID: "past", Title: "Yesterday standup", StartAt: testNow.Add(-2 * time.Hour)},
	}

	items := s.Score(in)
	require.Len(t, items, 2, "past meetings are excluded")
	byRef := indexByRef(items)
	assert.Greater(t, byRef["board"].Score, byRef["sync"].Score)
	assert.InDelta(t, 0.95, byRef["board"].Impact, 1e-9, "board attendee drives impact")
}

func TestScore_MessageSenderImportance(t *testing.T) {
	s := NewScorer(config.Default().Briefing, nil)

	in := baseInputs(domain.BriefingMorning)
	in.Messages = []domain.Message{
		{ID: "inv", Subject: "Term sheet question", SenderRole: "investor", Keywords: []string{"term sheet"}, Unread: true, ReceivedAt: testNow.Add(-time.Hour)},
		{ID: "misc", Subject: "Newsletter", SenderRole: "vendor", ReceivedAt: testNow.Add(-6 * 24 * time.Hour)},
	}

	items := s.Score(in)
	byRef := indexByRef(items)
	assert.Greater(t, byRef["inv"].Urgency, byRef["misc"].Urgency)
	assert.Greater(t, byRef["inv"].Freshness, byRef["misc"].Freshness)
}

func TestScore_BriefingTypeMultiplier(t *testing.T) {
	cfg := config.Default().Briefing
	s := NewScorer(cfg, nil)

	meeting := domain.Meeting{ID: "m", Title: "Pipeline review", StartAt: testNow.Add(20 * time.Hour)}

	morning := baseInputs(domain.BriefingMorning)
	morning.Meetings = []domain.Meeting{meeting}
	evening := baseInputs(domain.BriefingEvening)
	evening.Meetings = []domain.Meeting{meeting}

	mScore := s.Score(morning)[0].Score
	eScore := s.Score(evening)[0].Score
	assert.Greater(t, mScore, eScore, "meetings are forward-looking content")
}

func TestScore_PersonalizationBounded(t *testing.T) {
	cfg := config.Default().Briefing
	hist := NewEngagementHistory()
	s := NewScorer(cfg, hist)

	in := baseInputs(domain.BriefingMorning)
	in.Messages = []domain.Message{{ID: "m", Subject: "hello", SenderRole: "customer", ReceivedAt: testNow}}

	neutral := s.Score(in)[0].Score

	// Below the sample floor personalization stays neutral.
	for i := 0; i < minEngagementSamples-1; i++ {
		hist.Record("t1", domain.ContentMessage, domain.FeedbackDismissed)
	}
	assert.Equal(t, neutral, s.Score(in)[0].Score)

	// Enough dismissals pull the factor down, bounded by config.
	for i := 0; i < 50; i++ {
		hist.Record("t1", domain.ContentMessage, domain.FeedbackDismissed)
	}
	suppressed := s.Score(in)[0].Score
	assert.Less(t, suppressed, neutral)
	assert.GreaterOrEqual(t, suppressed, neutral*cfg.EngagementMin-1e-9)
}

func TestScore_AllScoresBounded(t *testing.T) {
	s := NewScorer(config.Default().Briefing, nil)

	in := baseInputs(domain.BriefingEvening)
	in.Tasks = []domain.Task{{ID: "t", Title: "x", DueAt: testNow.Add(-100 * time.Hour), Priority: 1, Blocking: true}}
	in.Anomalies = []domain.Anomaly{{KPIName: "mrr", Severity: domain.SeverityCritical, Magnitude: 5, Timestamp: testNow}}
	in.Snapshots = map[string]float64{"mrr": 120000}

	for _, it := range s.Score(in) {
		assert.True(t, it.Score >= 0 && it.Score <= 100, "score %v out of range", it.Score)
		assert.True(t, it.Urgency >= 0 && it.Urgency <= 1)
	}
}

func indexByRef(items []domain.ContentItem) map[string]domain.ContentItem {
	out := make(map[string]domain.ContentItem)
	for _, it := range items {
		out[it.SourceRef] = it
	}
	return out
}
