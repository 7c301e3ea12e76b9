// Package briefing scores candidate content items and assembles the
// length-bounded digest. Scoring formulas are configured independently
// from the recommendation pipeline's weights.
package briefing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// urgentKeywords boost meetings and messages that mention them.
var urgentKeywords = map[string]bool{
	"board": true, "investor": true, "fundraise": true, "term sheet": true,
	"urgent": true, "deadline": true, "churn": true, "outage": true,
}

// importantRoles boost meetings and messages from these senders.
var importantRoles = map[string]float64{
	"board":    0.95,
	"investor": 0.9,
	"customer": 0.7,
	"team":     0.55,
}

// Inputs is every feed the selector scores for one tenant.
type Inputs struct {
	Tenant          string
	Type            domain.BriefingType
	Now             time.Time
	Profile         domain.FounderProfile
	Tasks           []domain.Task
	Meetings        []domain.Meeting
	Messages        []domain.Message
	Anomalies       []domain.Anomaly
	Trends          map[string]domain.Trend
	Recommendations []domain.Recommendation
	Snapshots       map[string]float64 // KPI name -> latest value
}

// Scorer turns raw feed entries into scored ContentItems.
type Scorer struct {
	cfg        config.BriefingConfig
	engagement EngagementSource
}

// NewScorer builds a scorer; a nil engagement source means neutral
// personalization.
func NewScorer(cfg config.BriefingConfig, engagement EngagementSource) *Scorer {
	return &Scorer{cfg: cfg, engagement: engagement}
}

// Score produces the full scored candidate pool, every item carrying a
// bounded score and its originating record reference.
func (s *Scorer) Score(in Inputs) []domain.ContentItem {
	var items []domain.ContentItem
	for _, t := range in.Tasks {
		if t.Completed {
			continue
		}
		items = append(items, s.scoreTask(t, in))
	}
	for _, m := range in.Meetings {
		if m.StartAt.Before(in.Now) {
			continue
		}
		items = append(items, s.scoreMeeting(m, in))
	}
	for _, m := range in.Messages {
		items = append(items, s.scoreMessage(m, in))
	}
	for _, a := range in.Anomalies {
		items = append(items, s.scoreAnomaly(a, in))
	}
	for _, r := range in.Recommendations {
		items = append(items, s.scoreRecommendation(r, in))
	}
	for kpi, value := range in.Snapshots {
		items = append(items, s.scoreSnapshot(kpi, value, in))
	}
	return items
}

// compose applies the shared weighted formula, the briefing-type
// multiplier, and the bounded personalization factor.
func (s *Scorer) compose(item domain.ContentItem, in Inputs) domain.ContentItem {
	w := s.cfg.Weights
	raw := w.Urgency*item.Urgency + w.Impact*item.Impact + w.Relevance*item.Relevance +
		w.Freshness*item.Freshness + w.Actionability*item.Actionability

	boost := 1.0
	boosts := s.cfg.MorningBoost
	if in.Type == domain.BriefingEvening {
		boosts = s.cfg.EveningBoost
	}
	if b, ok := boosts[string(item.Type)]; ok {
		boost = b
	}

	personal := 1.0
	if s.engagement != nil {
		personal = stats.Clamp(s.engagement.Factor(in.Tenant, item.Type), s.cfg.EngagementMin, s.cfg.EngagementMax)
	}

	item.Score = stats.Clamp(raw*100*boost*personal, 0, 100)
	return item
}

func (s *Scorer) scoreTask(t domain.Task, in Inputs) domain.ContentItem {
	until := t.DueAt.Sub(in.Now)
	urgency := 0.3
	switch {
	case until < 0:
		urgency = 1.0
	case until < 24*time.Hour:
		urgency = 0.9
	case until < 72*time.Hour:
		urgency = 0.7
	case until < 7*24*time.Hour:
		urgency = 0.5
	}
	if t.Blocking {
		urgency += 0.1
	}
	if t.Priority == 1 {
		urgency += 0.1
	}

	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentTask,
		Category:      "execution",
		Title:         t.Title,
		Body:          fmt.Sprintf("Due %s.", t.DueAt.Format("Mon Jan 2")),
		Urgency:       stats.Clamp(urgency, 0, 1),
		Impact:        impactFromPriority(t.Priority),
		Relevance:     s.relevance("execution", in.Profile),
		Freshness:     0.8,
		Actionability: 1.0,
		SourceRef:     t.ID,
		Timestamp:     t.DueAt,
	}, in)
}

func (s *Scorer) scoreMeeting(m domain.Meeting, in Inputs) domain.ContentItem {
	until := m.StartAt.Sub(in.Now)
	urgency := 0.3
	switch {
	case until < 4*time.Hour:
		urgency = 1.0
	case until < 24*time.Hour:
		urgency = 0.8
	case until < 72*time.Hour:
		urgency = 0.5
	}
	if hasKeyword(m.Keywords) {
		urgency += 0.1
	}
	impact := 0.5
	for _, role := range m.AttendeeRoles {
		if v, ok := importantRoles[strings.ToLower(role)]; ok && v > impact {
			impact = v
		}
	}

	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentMeeting,
		Category:      "calendar",
		Title:         m.Title,
		Body:          fmt.Sprintf("Starts %s.", m.StartAt.Format("Mon 15:04")),
		Urgency:       stats.Clamp(urgency, 0, 1),
		Impact:        impact,
		Relevance:     s.relevance("calendar", in.Profile),
		Freshness:     0.9,
		Actionability: 0.6,
		SourceRef:     m.ID,
		Timestamp:     m.StartAt,
	}, in)
}

func (s *Scorer) scoreMessage(m domain.Message, in Inputs) domain.ContentItem {
	urgency := 0.4
	if v, ok := importantRoles[strings.ToLower(m.SenderRole)]; ok {
		urgency = v
	}
	if hasKeyword(m.Keywords) {
		urgency += 0.1
	}
	if m.Unread {
		urgency += 0.05
	}

	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentMessage,
		Category:      "communications",
		Title:         m.Subject,
		Body:          fmt.Sprintf("From %s.", m.SenderRole),
		Urgency:       stats.Clamp(urgency, 0, 1),
		Impact:        0.5,
		Relevance:     s.relevance("communications", in.Profile),
		Freshness:     freshness(in.Now.Sub(m.ReceivedAt)),
		Actionability: 0.7,
		SourceRef:     m.ID,
		Timestamp:     m.ReceivedAt,
	}, in)
}

func (s *Scorer) scoreAnomaly(a domain.Anomaly, in Inputs) domain.ContentItem {
	urgency := map[domain.Severity]float64{
		domain.SeverityCritical: 1.0,
		domain.SeverityHigh:     0.8,
		domain.SeverityMedium:   0.6,
		domain.SeverityLow:      0.4,
	}[a.Severity]
	if tr, ok := in.Trends[a.KPIName]; ok && tr.Acceleration == domain.Accelerating {
		urgency += 0.1
	}

	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentAnomaly,
		Category:      "metrics",
		Title:         fmt.Sprintf("%s anomaly: %s %s", a.Severity, a.KPIName, a.Direction),
		Body:          a.Explanation,
		Urgency:       stats.Clamp(urgency, 0, 1),
		Impact:        stats.Clamp(0.4+a.Magnitude, 0, 1),
		Relevance:     s.relevance("metrics", in.Profile),
		Freshness:     freshness(in.Now.Sub(a.Timestamp)),
		Actionability: 0.5,
		SourceRef:     a.KPIName,
		Timestamp:     a.Timestamp,
	}, in)
}

func (s *Scorer) scoreRecommendation(r domain.Recommendation, in Inputs) domain.ContentItem {
	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentInsight,
		Category:      r.Category,
		Title:         r.Title,
		Body:          r.Description,
		Urgency:       r.Urgency,
		Impact:        r.Impact,
		Relevance:     s.relevance(r.Category, in.Profile),
		Freshness:     0.9,
		Actionability: 0.9,
		SourceRef:     r.ID,
		Timestamp:     r.CreatedAt,
	}, in)
}

func (s *Scorer) scoreSnapshot(kpi string, value float64, in Inputs) domain.ContentItem {
	urgency := 0.2
	body := fmt.Sprintf("%s is at %.1f.", kpi, value)
	if tr, ok := in.Trends[kpi]; ok && tr.Significant {
		urgency = 0.4
		body = fmt.Sprintf("%s is at %.1f, %s %.1f%% over the period.", kpi, value, tr.Direction, tr.Magnitude*100)
	}

	return s.compose(domain.ContentItem{
		ID:            uuid.NewString(),
		Type:          domain.ContentKPISnapshot,
		Category:      "metrics",
		Title:         fmt.Sprintf("KPI: %s", kpi),
		Body:          body,
		Urgency:       urgency,
		Impact:        0.4,
		Relevance:     s.relevance("metrics", in.Profile),
		Freshness:     1.0,
		Actionability: 0.2,
		SourceRef:     kpi,
		Timestamp:     in.Now,
	}, in)
}

// relevance boosts categories matching the founder's focus areas.
func (s *Scorer) relevance(category string, p domain.FounderProfile) float64 {
	for _, area := range p.FocusAreas {
		if strings.EqualFold(area, category) {
			return 0.9
		}
	}
	return 0.6
}

func hasKeyword(words []string) bool {
	for _, w := range words {
		if urgentKeywords[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

// freshness decays with age, flooring at 0.1 after a week.
func freshness(age time.Duration) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	return stats.Clamp(1-days/7, 0.1, 1)
}

func impactFromPriority(p int) float64 {
	switch p {
	case 1:
		return 0.9
	case 2:
		return 0.7
	default:
		return 0.5
	}
}
