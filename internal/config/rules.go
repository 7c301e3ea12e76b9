package config

import (
	"fmt"
	"strings"
)

// Rule is a deterministic business-critical condition. Rules are loaded
// with the config at run start and never mutated mid-run.
type Rule struct {
	ID          string   `yaml:"id"`
	Category    string   `yaml:"category"`
	Metric      string   `yaml:"metric"`
	Op          string   `yaml:"op"` // "lt", "gt", "le", "ge"
	Value       float64  `yaml:"value"`
	Priority    string   `yaml:"priority"` // "critical", "high", "medium"
	Title       string   `yaml:"title"`
	Template    string   `yaml:"template"` // %v placeholders: metric value, threshold
	ActionItems []string `yaml:"action_items"`
	Urgency     float64  `yaml:"urgency"`
	Impact      float64  `yaml:"impact"`
	Feasibility float64  `yaml:"feasibility"`
}

// Evaluate applies the rule's comparison to a metric value.
// An unknown operator is a configuration error.
func (r Rule) Evaluate(value float64) (bool, error) {
	switch r.Op {
	case "lt":
		return value < r.Value, nil
	case "gt":
		return value > r.Value, nil
	case "le":
		return value <= r.Value, nil
	case "ge":
		return value >= r.Value, nil
	default:
		return false, fmt.Errorf("rule %s: unknown operator %q", r.ID, r.Op)
	}
}

// Fill renders the rule's description template.
func (r Rule) Fill(value float64) string {
	desc := r.Template
	desc = strings.ReplaceAll(desc, "{value}", fmt.Sprintf("%.1f", value))
	desc = strings.ReplaceAll(desc, "{threshold}", fmt.Sprintf("%.1f", r.Value))
	desc = strings.ReplaceAll(desc, "{metric}", r.Metric)
	return desc
}

// PatternCondition is one directional requirement of a scenario pattern.
type PatternCondition struct {
	KPI       string `yaml:"kpi"`
	Direction string `yaml:"direction"` // "up", "down", "flat"
}

// Pattern is a named multi-KPI scenario evaluated against current trends.
type Pattern struct {
	Name        string             `yaml:"name"`
	Category    string             `yaml:"category"`
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Conditions  []PatternCondition `yaml:"conditions"`
	ActionItems []string           `yaml:"action_items"`
	Urgency     float64            `yaml:"urgency"`
	Impact      float64            `yaml:"impact"`
	Feasibility float64            `yaml:"feasibility"`
}

// DefaultRules is the built-in versioned rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "runway_low",
			Category: "finance",
			Metric:   "runway_months",
			Op:       "lt",
			Value:    6,
			Priority: "critical",
			Title:    "Runway below 6 months",
			Template: "Runway is {value} months, under the {threshold}-month floor. Begin fundraising or cut burn now.",
			ActionItems: []string{
				"Model burn reduction scenarios",
				"Open conversations with existing investors",
			},
			Urgency: 1.0, Impact: 1.0, Feasibility: 0.6,
		},
		{
			ID:       "ltv_cac_low",
			Category: "unit_economics",
			Metric:   "ltv_cac_ratio",
			Op:       "lt",
			Value:    3,
			Priority: "high",
			Title:    "LTV:CAC below 3",
			Template: "LTV:CAC is {value}, under the healthy {threshold}:1 line. Acquisition spend is outrunning customer value.",
			ActionItems: []string{
				"Audit channel-level CAC",
				"Review pricing and expansion revenue",
			},
			Urgency: 0.7, Impact: 0.9, Feasibility: 0.7,
		},
		{
			ID:       "churn_high",
			Category: "retention",
			Metric:   "churn_rate",
			Op:       "gt",
			Value:    5,
			Priority: "high",
			Title:    "Monthly churn above 5%",
			Template: "Monthly churn is {value}%, above the {threshold}% ceiling. Retention needs attention before growth spend.",
			ActionItems: []string{
				"Run churn-cohort interviews",
				"Review onboarding activation funnel",
			},
			Urgency: 0.8, Impact: 0.9, Feasibility: 0.65,
		},
		{
			ID:       "burn_multiple_high",
			Category: "finance",
			Metric:   "burn_multiple",
			Op:       "gt",
			Value:    2,
			Priority: "medium",
			Title:    "Burn multiple above 2x",
			Template: "Burn multiple is {value}x: each net-new ARR dollar costs over {threshold} dollars of burn.",
			ActionItems: []string{
				"Rank spend lines by revenue attribution",
			},
			Urgency: 0.55, Impact: 0.7, Feasibility: 0.7,
		},
	}
}

// DefaultPatterns is the built-in scenario pattern table.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "stalled_growth",
			Category:    "growth",
			Title:       "Growth is stalling",
			Description: "New revenue and signups are flattening while spend holds.",
			Conditions: []PatternCondition{
				{KPI: "mrr", Direction: "flat"},
				{KPI: "signups", Direction: "flat"},
				{KPI: "marketing_spend", Direction: "up"},
			},
			ActionItems: []string{"Re-evaluate channel mix", "Ship activation experiments"},
			Urgency:     0.6, Impact: 0.8, Feasibility: 0.6,
		},
		{
			Name:        "efficient_growth",
			Category:    "growth",
			Title:       "Growth efficiency improving",
			Description: "Revenue is climbing while acquisition cost falls.",
			Conditions: []PatternCondition{
				{KPI: "mrr", Direction: "up"},
				{KPI: "cac", Direction: "down"},
			},
			ActionItems: []string{"Consider increasing spend in winning channels"},
			Urgency:     0.3, Impact: 0.6, Feasibility: 0.8,
		},
		{
			Name:        "churn_crisis",
			Category:    "retention",
			Title:       "Pre-churn signals building",
			Description: "Engagement and support signals are degrading together.",
			Conditions: []PatternCondition{
				{KPI: "active_users", Direction: "down"},
				{KPI: "support_tickets", Direction: "up"},
				{KPI: "churn_rate", Direction: "up"},
			},
			ActionItems: []string{"Trigger save-flow outreach for at-risk accounts"},
			Urgency:     0.85, Impact: 0.9, Feasibility: 0.6,
		},
	}
}
