package domain

import "time"

// Task is a read-only item from the external task list.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"due_at"`
	Priority  int       `json:"priority"` // 1 = highest
	Blocking  bool      `json:"blocking"` // other tasks depend on it
	Completed bool      `json:"completed"`
}

// Meeting is a read-only item from the calendar feed.
type Meeting struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	StartAt       time.Time `json:"start_at"`
	AttendeeRoles []string  `json:"attendee_roles"` // e.g. "investor", "board"
	Keywords      []string  `json:"keywords"`
}

// Message is a read-only item from the communication feed.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	SenderRole string    `json:"sender_role"` // e.g. "investor", "customer"
	Keywords   []string  `json:"keywords"`
	Unread     bool      `json:"unread"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sensitivity selects how aggressively detectors flag deviations.
type Sensitivity string

const (
	SensitivityConservative Sensitivity = "conservative"
	SensitivityBalanced     Sensitivity = "balanced"
	SensitivityAggressive   Sensitivity = "aggressive"
	SensitivityCustom       Sensitivity = "custom"
)

// FounderProfile carries per-tenant preferences consumed read-only.
type FounderProfile struct {
	Tenant      string      `json:"tenant"`
	FocusAreas  []string    `json:"focus_areas"` // e.g. "growth", "runway"
	Stage       string      `json:"stage"`       // e.g. "seed", "series_a"
	Sensitivity Sensitivity `json:"sensitivity"`
}

// FeedbackAction is a founder action on a recommendation or content item.
type FeedbackAction string

const (
	FeedbackAccepted  FeedbackAction = "accepted"
	FeedbackDismissed FeedbackAction = "dismissed"
	FeedbackIgnored   FeedbackAction = "ignored"
)

// Feedback is consumed by the adaptive-threshold and personalization
// subsystems.
type Feedback struct {
	Tenant      string         `json:"tenant"`
	TargetID    string         `json:"target_id"` // recommendation or content item id
	RuleID      string         `json:"rule_id,omitempty"`
	KPIName     string         `json:"kpi_name,omitempty"` // set for anomaly feedback
	ContentType ContentType    `json:"content_type,omitempty"`
	Action      FeedbackAction `json:"action"`
	At          time.Time      `json:"at"`
}
