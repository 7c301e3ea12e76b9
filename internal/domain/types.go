package domain

import (
	"time"
)

// Severity buckets an anomaly by combined detector confidence.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities for sorting, critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Direction classifies the sign of a detected change.
type Direction string

const (
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
	DirectionFlat     Direction = "flat"
	DirectionVolatile Direction = "volatile"
)

// Timeframe identifies the comparison window of a trend.
type Timeframe string

const (
	TimeframeWoW Timeframe = "wow"
	TimeframeMoM Timeframe = "mom"
	TimeframeQoQ Timeframe = "qoq"
	TimeframeYoY Timeframe = "yoy"
)

// WindowDays returns the length in days of one comparison window.
func (tf Timeframe) WindowDays() int {
	switch tf {
	case TimeframeWoW:
		return 7
	case TimeframeMoM:
		return 30
	case TimeframeQoQ:
		return 90
	case TimeframeYoY:
		return 365
	default:
		return 7
	}
}

// Acceleration classifies the second derivative of a smoothed series.
type Acceleration string

const (
	Accelerating Acceleration = "accelerating"
	Decelerating Acceleration = "decelerating"
	Steady       Acceleration = "steady"
)

// EffectSize buckets a standardized effect-size measure (Cohen's d).
type EffectSize string

const (
	EffectNegligible EffectSize = "negligible"
	EffectSmall      EffectSize = "small"
	EffectMedium     EffectSize = "medium"
	EffectLarge      EffectSize = "large"
)

// Point is a single observation in a KPI series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Frequency is the sampling cadence of a KPI series.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// KPISeries is a read-only time series owned by the ingestion layer.
// Points are ordered by timestamp ascending.
type KPISeries struct {
	Tenant    string    `json:"tenant"`
	KPIName   string    `json:"kpi_name"`
	Frequency Frequency `json:"frequency"`
	Points    []Point   `json:"points"`
}

// Values returns the raw value slice in timestamp order.
func (s KPISeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Tail returns the last n points, or all points when fewer exist.
func (s KPISeries) Tail(n int) []Point {
	if n >= len(s.Points) {
		return s.Points
	}
	return s.Points[len(s.Points)-n:]
}

// Anomaly is a single flagged point. Immutable once created.
type Anomaly struct {
	Tenant      string    `json:"tenant"`
	KPIName     string    `json:"kpi_name"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Expected    float64   `json:"expected"`
	Magnitude   float64   `json:"magnitude"` // relative deviation from expected
	Direction   Direction `json:"direction"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"` // 0.0-1.0
	Methods     []string  `json:"methods"`    // contributing detector tiers
	Explanation string    `json:"explanation"`
}

// Trend is a fully recomputed per-run classification for one timeframe.
type Trend struct {
	Tenant        string       `json:"tenant"`
	KPIName       string       `json:"kpi_name"`
	Timeframe     Timeframe    `json:"timeframe"`
	Direction     Direction    `json:"direction"`
	Magnitude     float64      `json:"magnitude"` // fractional change current vs prior window
	Significant   bool         `json:"significant"`
	PValue        float64      `json:"p_value"`
	EffectSize    EffectSize   `json:"effect_size"`
	Acceleration  Acceleration `json:"acceleration"`
	Slope         float64      `json:"slope,omitempty"`
	FitQuality    float64      `json:"fit_quality,omitempty"` // R² of linear fit
	GrowthRate    float64      `json:"growth_rate,omitempty"` // compound per-period rate
	Indeterminate bool         `json:"indeterminate,omitempty"`
	Confidence    float64      `json:"confidence"` // 0.0-1.0
	Method        string       `json:"method"`
}

// CorrelationEdge is a directed, lagged dependency between two KPIs.
// Edges exist only when both correlation and causality tests passed.
type CorrelationEdge struct {
	SourceKPI   string  `json:"source_kpi"`
	TargetKPI   string  `json:"target_kpi"`
	LagDays     int     `json:"lag_days"` // >= 0
	Strength    float64 `json:"strength"` // signed correlation at the best lag
	Correlation float64 `json:"correlation"`
	RankCorr    float64 `json:"rank_corr"`
	PValue      float64 `json:"p_value"`
	Confidence  float64 `json:"confidence"` // 0.0-1.0
	Method      string  `json:"method"`
}

// PatternMatch records a named multi-KPI pattern evaluation.
type PatternMatch struct {
	Name        string   `json:"name"`
	Matched     bool     `json:"matched"`
	Fraction    float64  `json:"fraction"` // conditions satisfied / total
	Conditions  []string `json:"conditions"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
}

// RootCause names a correlated, temporally-preceding anomaly offered
// as a candidate explanation for a later anomaly.
type RootCause struct {
	EffectKPI   string  `json:"effect_kpi"`
	CauseKPI    string  `json:"cause_kpi"`
	LagDays     int     `json:"lag_days"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// RecommendationSource tags which pipeline stage produced a recommendation.
type RecommendationSource string

const (
	SourceRule     RecommendationSource = "rule"
	SourcePattern  RecommendationSource = "pattern"
	SourceEnriched RecommendationSource = "enriched"
)

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusPending   RecommendationStatus = "pending"
	StatusAccepted  RecommendationStatus = "accepted"
	StatusScheduled RecommendationStatus = "scheduled"
	StatusDismissed RecommendationStatus = "dismissed"
	StatusExpired   RecommendationStatus = "expired"
)

// Recommendation is a ranked, actionable finding.
type Recommendation struct {
	ID            string               `json:"id"`
	Tenant        string               `json:"tenant"`
	RuleID        string               `json:"rule_id,omitempty"`
	Category      string               `json:"category"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	ActionItems   []string             `json:"action_items"`
	PriorityScore float64              `json:"priority_score"` // 0-100
	Urgency       float64              `json:"urgency"`        // 0.0-1.0
	Impact        float64              `json:"impact"`         // 0.0-1.0
	Feasibility   float64              `json:"feasibility"`    // 0.0-1.0
	Confidence    float64              `json:"confidence"`     // 0.0-1.0
	Source        RecommendationSource `json:"source"`
	Status        RecommendationStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ContentType classifies a briefing candidate item.
type ContentType string

const (
	ContentTask        ContentType = "task"
	ContentAnomaly     ContentType = "anomaly"
	ContentMeeting     ContentType = "meeting"
	ContentMessage     ContentType = "message"
	ContentInsight     ContentType = "insight"
	ContentDecision    ContentType = "decision"
	ContentKPISnapshot ContentType = "kpi_snapshot"
)

// ContentItem is a scored briefing candidate.
type ContentItem struct {
	ID            string      `json:"id"`
	Type          ContentType `json:"type"`
	Category      string      `json:"category"`
	Title         string      `json:"title"`
	Body          string      `json:"body"`
	Score         float64     `json:"score"` // 0-100
	Urgency       float64     `json:"urgency"`
	Impact        float64     `json:"impact"`
	Relevance     float64     `json:"relevance"`
	Freshness     float64     `json:"freshness"`
	Actionability float64     `json:"actionability"`
	SourceRef     string      `json:"source_ref,omitempty"` // id of the originating record
	Timestamp     time.Time   `json:"timestamp"`
}

// WordCount estimates the rendered length of the item.
func (c ContentItem) WordCount() int {
	n := 0
	inWord := false
	for _, r := range c.Title + " " + c.Body {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// BriefingType selects the scoring bias of a digest.
type BriefingType string

const (
	BriefingMorning BriefingType = "morning" // forward-looking
	BriefingEvening BriefingType = "evening" // retrospective
)

// BriefingSection groups selected items under a named heading.
type BriefingSection struct {
	Name      string        `json:"name"`
	Mandatory bool          `json:"mandatory"`
	Items     []ContentItem `json:"items"`
}

// Briefing is the delivered digest. Immutable once delivered except
// the read/engagement flags.
type Briefing struct {
	ID              string            `json:"id"`
	Tenant          string            `json:"tenant"`
	Type            BriefingType      `json:"type"`
	Sections        []BriefingSection `json:"sections"`
	GeneratedAt     time.Time         `json:"generated_at"`
	ReadTimeSeconds int               `json:"read_time_seconds"`
	DataQualityNote string            `json:"data_quality_note,omitempty"`
	Read            bool              `json:"read"`
}

// ItemCount returns the total number of selected items across sections.
func (b Briefing) ItemCount() int {
	n := 0
	for _, s := range b.Sections {
		n += len(s.Items)
	}
	return n
}
