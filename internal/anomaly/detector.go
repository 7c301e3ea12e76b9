// Package anomaly implements the three-tier detection ensemble: a robust
// statistical outlier test, a seasonal forecast interval, and an
// isolation-style multivariate detector, combined by weighted score.
package anomaly

import (
	"errors"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

// ErrInsufficientHistory is returned by a tier that cannot run on the
// available history. The ensemble treats it as a skip, not a failure.
var ErrInsufficientHistory = errors.New("insufficient history")

// Context carries per-invocation inputs shared by all tiers.
type Context struct {
	Tenant   string
	KPI      string
	Profile  config.SensitivityProfile
	CrossKPI map[string][]float64 // recent values of sibling KPIs, optional
}

// Result is a single tier's verdict on the latest point.
type Result struct {
	Method     string
	Score      float64 // 0.0-1.0 anomaly likelihood
	Expected   float64
	Confidence float64 // 0.0-1.0 trust in this tier's score
	Detail     string
}

// Detector is the common capability implemented by every tier. New tiers
// can be added to the ensemble without changing the coordinator.
type Detector interface {
	Name() string
	Detect(history []domain.Point, ctx Context) (Result, error)
}
