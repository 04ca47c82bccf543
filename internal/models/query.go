package models

import (
	"fmt"
	"strings"
)

// SearchQuery represents a knowledge search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// Threshold is the minimum similarity; nil means the configured default.
	Threshold *float64 `json:"threshold,omitempty"`
	Category  string   `json:"category,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Validate rejects an empty query and fills limit and threshold defaults, capping the limit at maxLimit.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int, defaultThreshold float64) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Threshold == nil {
		t := defaultThreshold
		q.Threshold = &t
	}
	return nil
}

// ThresholdValue returns the threshold, or 0 when unset.
func (q *SearchQuery) ThresholdValue() float64 {
	if q.Threshold == nil {
		return 0
	}
	return *q.Threshold
}

// Float64 returns a pointer to v, for optional thresholds.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to s, for partial updates.
func String(s string) *string {
	return &s
}
