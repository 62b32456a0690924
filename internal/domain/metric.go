package domain

import (
	"fmt"
	"time"
)

// Well-known metric types emitted by the dashboard.
const (
	MetricAPIRequest    = "api_request"
	MetricAuthFailure   = "auth_failure"
	MetricDBQuery       = "db_query"
	MetricMemoryUsage   = "memory_usage"
	MetricPatientStatus = "patient_status"
)

// MetricSample is a single immutable observation in the counter store.
type MetricSample struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IsError reports whether the sample describes a failed request.
// A sample is an error when metadata "error" is true or "status_code" is 5xx.
func (s MetricSample) IsError() bool {
	if s.Metadata == nil {
		return false
	}
	if v, ok := s.Metadata["error"].(bool); ok && v {
		return true
	}
	switch code := s.Metadata["status_code"].(type) {
	case int:
		return code >= 500
	case int64:
		return code >= 500
	case float64:
		return code >= 500
	}
	return false
}

// RequestSampleType is the sample type used to count admitted requests for a rate-limit key.
func RequestSampleType(scope, key string) string {
	return fmt.Sprintf("request:%s:%s", scope, key)
}

// StatusSampleType is the sample type recorded for an entity status transition.
func StatusSampleType(status string) string {
	return MetricPatientStatus + ":" + status
}

// WindowCount is the outcome of an atomic count-and-append on a request key.
type WindowCount struct {
	Admitted bool
	// Count is the number of samples inside the window after the operation.
	Count int
	// Oldest is the timestamp of the oldest sample still inside the window.
	Oldest time.Time
}
