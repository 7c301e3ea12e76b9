// Package config loads the engine configuration from YAML once at startup.
// The loaded Config is immutable and passed explicitly through every stage,
// so a run is fully reproducible from its config document.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const weightSumTolerance = 0.001

// Duration decodes YAML strings like "24h" or "5s" alongside the plain
// nanosecond integers yaml.v3 accepts natively.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration node %q", node.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full engine configuration surface.
type Config struct {
	Version     string            `yaml:"version"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Detector    DetectorConfig    `yaml:"detector"`
	Trend       TrendConfig       `yaml:"trend"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Recommend   RecommendConfig   `yaml:"recommend"`
	Briefing    BriefingConfig    `yaml:"briefing"`
	Store       StoreConfig       `yaml:"store"`
	HTTP        HTTPConfig        `yaml:"http"`
	Rules       []Rule            `yaml:"rules"`
	Patterns    []Pattern         `yaml:"patterns"`
}

// SchedulerConfig controls the batch run cadence.
type SchedulerConfig struct {
	Cron           string `yaml:"cron"`             // morning run, default "0 6 * * *"
	EveningCron    string `yaml:"evening_cron"`     // default "0 18 * * *"
	MaxConcurrency int    `yaml:"max_concurrency"`  // parallel tenants, default 4
	Timezone       string `yaml:"timezone"`
}

// DetectorConfig holds the anomaly ensemble parameters.
type DetectorConfig struct {
	Weights            TierWeights                   `yaml:"weights"`
	Threshold          float64                       `yaml:"threshold"`            // combined score cutoff, default 0.5
	MinHistory         int                           `yaml:"min_history"`          // points required for Tier 1/3, default 14
	SeasonalMinHistory int                           `yaml:"seasonal_min_history"` // points required for Tier 2, default 28
	SeasonPeriod       int                           `yaml:"season_period"`        // default 7 (weekly)
	MaxGapFill         int                           `yaml:"max_gap_fill"`         // consecutive points to interpolate, default 3
	RefitAfter         Duration                      `yaml:"refit_after"`          // seasonal model staleness, default 24h
	RefitErrorRatio    float64                       `yaml:"refit_error_ratio"`    // rolling error / fit error trigger, default 2.0
	Sensitivity        map[string]SensitivityProfile `yaml:"sensitivity"`
	StaticThresholds   map[string]KPIThreshold       `yaml:"static_thresholds"` // per-KPI overrides
	AdaptiveStep       float64                       `yaml:"adaptive_step"`     // bounded threshold update, default 0.05
}

// TierWeights combines the three detector tiers into one score.
type TierWeights struct {
	Statistical  float64 `yaml:"statistical"`  // default 0.15
	Seasonal     float64 `yaml:"seasonal"`     // default 0.55
	Multivariate float64 `yaml:"multivariate"` // default 0.30
}

// Sum returns the total tier weight, expected ≈ 1.0.
func (w TierWeights) Sum() float64 {
	return w.Statistical + w.Seasonal + w.Multivariate
}

// SensitivityProfile scales detection thresholds per founder preference.
type SensitivityProfile struct {
	ThresholdScale float64 `yaml:"threshold_scale"` // conservative > 1, aggressive < 1
	ZScoreCutoff   float64 `yaml:"z_score_cutoff"`
}

// KPIThreshold is a static per-KPI override of the ensemble cutoff.
type KPIThreshold struct {
	Threshold    float64 `yaml:"threshold"`
	ZScoreCutoff float64 `yaml:"z_score_cutoff"`
}

// TrendConfig holds trend classification parameters.
type TrendConfig struct {
	MinChange       float64 `yaml:"min_change"`       // fractional, default 0.02
	SignificanceP   float64 `yaml:"significance_p"`   // default 0.05
	VolatilityRatio float64 `yaml:"volatility_ratio"` // cv cutoff for "volatile", default 0.30
	SmoothingAlpha  float64 `yaml:"smoothing_alpha"`  // EMA factor for acceleration, default 0.3
	NearZeroEps     float64 `yaml:"near_zero_eps"`    // baseline guard, default 1e-9
}

// CorrelationConfig bounds the dependency graph construction.
type CorrelationConfig struct {
	MaxLagDays     int     `yaml:"max_lag_days"`     // default 14
	MinCorrelation float64 `yaml:"min_correlation"`  // default 0.5
	CausalityP     float64 `yaml:"causality_p"`      // default 0.05
	MinOverlap     int     `yaml:"min_overlap"`      // paired points required, default 20
	PatternMinFrac float64 `yaml:"pattern_min_frac"` // conditions fraction to match, default 0.75
	PageRankDamping float64 `yaml:"pagerank_damping"` // default 0.85
	PageRankIters   int     `yaml:"pagerank_iters"`   // default 50
}

// RecommendConfig holds the recommendation pipeline parameters.
type RecommendConfig struct {
	Weights        PriorityWeights `yaml:"weights"`
	MaxPerCategory int             `yaml:"max_per_category"` // default 2
	MaxTotal       int             `yaml:"max_total"`        // default 5
	EnrichTopK     int             `yaml:"enrich_top_k"`     // default 3
	EnrichTimeout  Duration        `yaml:"enrich_timeout"`   // default 5s
	EnrichBudget   int             `yaml:"enrich_budget"`    // calls per run, default 5
	CalibrationStep float64        `yaml:"calibration_step"` // default 0.05
	CalibrationMin  float64        `yaml:"calibration_min"`  // default 0.5
	CalibrationMax  float64        `yaml:"calibration_max"`  // default 1.5
	ExpireAfter     Duration       `yaml:"expire_after"`     // default 168h
}

// PriorityWeights combine into the 0-100 priority score.
type PriorityWeights struct {
	Urgency     float64 `yaml:"urgency"`     // default 0.35
	Impact      float64 `yaml:"impact"`      // default 0.30
	Feasibility float64 `yaml:"feasibility"` // default 0.15
	Confidence  float64 `yaml:"confidence"`  // default 0.20
}

// Sum returns the total priority weight, expected ≈ 1.0.
func (w PriorityWeights) Sum() float64 {
	return w.Urgency + w.Impact + w.Feasibility + w.Confidence
}

// BriefingConfig holds content selection parameters.
type BriefingConfig struct {
	Weights         ContentWeights      `yaml:"weights"`
	MaxItems        int                 `yaml:"max_items"`          // default 7
	MaxPerType      map[string]int      `yaml:"max_per_type"`       // default 3 each
	TargetReadSecs  int                 `yaml:"target_read_secs"`   // default 300
	ReadingWPM      int                 `yaml:"reading_wpm"`        // default 200
	MinPerMandatory int                 `yaml:"min_per_mandatory"`  // default 1
	MorningBoost    map[string]float64  `yaml:"morning_boost"`      // per content type multiplier
	EveningBoost    map[string]float64  `yaml:"evening_boost"`
	EngagementMin   float64             `yaml:"engagement_min"` // personalization floor, default 0.7
	EngagementMax   float64             `yaml:"engagement_max"` // personalization cap, default 1.3
}

// ContentWeights combine into the 0-100 content score. Independent from
// PriorityWeights: the two formulas are configured separately.
type ContentWeights struct {
	Urgency       float64 `yaml:"urgency"`       // default 0.30
	Impact        float64 `yaml:"impact"`        // default 0.25
	Relevance     float64 `yaml:"relevance"`     // default 0.20
	Freshness     float64 `yaml:"freshness"`     // default 0.10
	Actionability float64 `yaml:"actionability"` // default 0.15
}

// Sum returns the total content weight, expected ≈ 1.0.
func (w ContentWeights) Sum() float64 {
	return w.Urgency + w.Impact + w.Relevance + w.Freshness + w.Actionability
}

// StoreConfig points at the persistence backends.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	CacheTTL    Duration `yaml:"cache_ttl"` // default 48h
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // default ":8090"
}

// Load reads, defaults, and validates a config document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Rules = DefaultRules()
	cfg.Patterns = DefaultPatterns()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "v1"
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 6 * * *"
	}
	if c.Scheduler.EveningCron == "" {
		c.Scheduler.EveningCron = "0 18 * * *"
	}
	if c.Scheduler.MaxConcurrency == 0 {
		c.Scheduler.MaxConcurrency = 4
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "UTC"
	}

	d := &c.Detector
	if d.Weights.Sum() == 0 {
		d.Weights = TierWeights{Statistical: 0.15, Seasonal: 0.55, Multivariate: 0.30}
	}
	if d.Threshold == 0 {
		d.Threshold = 0.5
	}
	if d.MinHistory == 0 {
		d.MinHistory = 14
	}
	if d.SeasonalMinHistory == 0 {
		d.SeasonalMinHistory = 28
	}
	if d.SeasonPeriod == 0 {
		d.SeasonPeriod = 7
	}
	if d.MaxGapFill == 0 {
		d.MaxGapFill = 3
	}
	if d.RefitAfter == 0 {
		d.RefitAfter = Duration(24 * time.Hour)
	}
	if d.RefitErrorRatio == 0 {
		d.RefitErrorRatio = 2.0
	}
	if d.AdaptiveStep == 0 {
		d.AdaptiveStep = 0.05
	}
	if d.Sensitivity == nil {
		d.Sensitivity = map[string]SensitivityProfile{
			"conservative": {ThresholdScale: 1.25, ZScoreCutoff: 4.0},
			"balanced":     {ThresholdScale: 1.0, ZScoreCutoff: 3.5},
			"aggressive":   {ThresholdScale: 0.8, ZScoreCutoff: 3.0},
		}
	}

	t := &c.Trend
	if t.MinChange == 0 {
		t.MinChange = 0.02
	}
	if t.SignificanceP == 0 {
		t.SignificanceP = 0.05
	}
	if t.VolatilityRatio == 0 {
		t.VolatilityRatio = 0.30
	}
	if t.SmoothingAlpha == 0 {
		t.SmoothingAlpha = 0.3
	}
	if t.NearZeroEps == 0 {
		t.NearZeroEps = 1e-9
	}

	co := &c.Correlation
	if co.MaxLagDays == 0 {
		co.MaxLagDays = 14
	}
	if co.MinCorrelation == 0 {
		co.MinCorrelation = 0.5
	}
	if co.CausalityP == 0 {
		co.CausalityP = 0.05
	}
	if co.MinOverlap == 0 {
		co.MinOverlap = 20
	}
	if co.PatternMinFrac == 0 {
		co.PatternMinFrac = 0.75
	}
	if co.PageRankDamping == 0 {
		co.PageRankDamping = 0.85
	}
	if co.PageRankIters == 0 {
		co.PageRankIters = 50
	}

	r := &c.Recommend
	if r.Weights.Sum() == 0 {
		r.Weights = PriorityWeights{Urgency: 0.35, Impact: 0.30, Feasibility: 0.15, Confidence: 0.20}
	}
	if r.MaxPerCategory == 0 {
		r.MaxPerCategory = 2
	}
	if r.MaxTotal == 0 {
		r.MaxTotal = 5
	}
	if r.EnrichTopK == 0 {
		r.EnrichTopK = 3
	}
	if r.EnrichTimeout == 0 {
		r.EnrichTimeout = Duration(5 * time.Second)
	}
	if r.EnrichBudget == 0 {
		r.EnrichBudget = 5
	}
	if r.CalibrationStep == 0 {
		r.CalibrationStep = 0.05
	}
	if r.CalibrationMin == 0 {
		r.CalibrationMin = 0.5
	}
	if r.CalibrationMax == 0 {
		r.CalibrationMax = 1.5
	}
	if r.ExpireAfter == 0 {
		r.ExpireAfter = Duration(7 * 24 * time.Hour)
	}

	b := &c.Briefing
	if b.Weights.Sum() == 0 {
		b.Weights = ContentWeights{Urgency: 0.30, Impact: 0.25, Relevance: 0.20, Freshness: 0.10, Actionability: 0.15}
	}
	if b.MaxItems == 0 {
		b.MaxItems = 7
	}
	if b.MaxPerType == nil {
		b.MaxPerType = map[string]int{
			"task": 3, "anomaly": 3, "meeting": 3, "message": 3,
			"insight": 3, "decision": 2, "kpi_snapshot": 2,
		}
	}
	if b.TargetReadSecs == 0 {
		b.TargetReadSecs = 300
	}
	if b.ReadingWPM == 0 {
		b.ReadingWPM = 200
	}
	if b.MinPerMandatory == 0 {
		b.MinPerMandatory = 1
	}
	if b.MorningBoost == nil {
		b.MorningBoost = map[string]float64{
			"task": 1.2, "meeting": 1.25, "anomaly": 1.0,
			"message": 1.1, "insight": 1.0, "decision": 1.1, "kpi_snapshot": 0.9,
		}
	}
	if b.EveningBoost == nil {
		b.EveningBoost = map[string]float64{
			"task": 0.9, "meeting": 0.8, "anomaly": 1.2,
			"message": 1.0, "insight": 1.25, "decision": 1.1, "kpi_snapshot": 1.2,
		}
	}
	if b.EngagementMin == 0 {
		b.EngagementMin = 0.7
	}
	if b.EngagementMax == 0 {
		b.EngagementMax = 1.3
	}

	if c.Store.CacheTTL == 0 {
		c.Store.CacheTTL = Duration(48 * time.Hour)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
}

// Validate checks weight sums and bound ordering.
func (c *Config) Validate() error {
	if s := c.Detector.Weights.Sum(); math.Abs(s-1.0) > weightSumTolerance {
		return fmt.Errorf("detector tier weights sum to %.3f, expected 1.000", s)
	}
	if s := c.Recommend.Weights.Sum(); math.Abs(s-1.0) > weightSumTolerance {
		return fmt.Errorf("recommendation weights sum to %.3f, expected 1.000", s)
	}
	if s := c.Briefing.Weights.Sum(); math.Abs(s-1.0) > weightSumTolerance {
		return fmt.Errorf("content weights sum to %.3f, expected 1.000", s)
	}
	if c.Recommend.CalibrationMin >= c.Recommend.CalibrationMax {
		return fmt.Errorf("calibration bounds inverted: min %.2f >= max %.2f",
			c.Recommend.CalibrationMin, c.Recommend.CalibrationMax)
	}
	if c.Briefing.EngagementMin >= c.Briefing.EngagementMax {
		return fmt.Errorf("engagement bounds inverted: min %.2f >= max %.2f",
			c.Briefing.EngagementMin, c.Briefing.EngagementMax)
	}
	if c.Correlation.MaxLagDays < 1 {
		return fmt.Errorf("max_lag_days must be >= 1, got %d", c.Correlation.MaxLagDays)
	}
	return nil
}

// Profile returns the sensitivity profile by name, falling back to balanced.
func (c *Config) Profile(name string) SensitivityProfile {
	if p, ok := c.Detector.Sensitivity[name]; ok {
		return p
	}
	return c.Detector.Sensitivity["balanced"]
}
