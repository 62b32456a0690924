package domain

import (
	"fmt"
	"math"
	"time"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Escalates reports whether alerts of this severity get an immediate follow-up job.
func (s Severity) Escalates() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Statistic names the aggregation a rule applies to its window.
type Statistic string

const (
	StatP95       Statistic = "p95"
	StatErrorRate Statistic = "error_rate"
	StatCount     Statistic = "count"
	StatAverage   Statistic = "avg"
	StatMax       Statistic = "max"
)

// Comparator compares a computed statistic with a rule threshold.
type Comparator string

const (
	GreaterThan        Comparator = ">"
	GreaterThanOrEqual Comparator = ">="
	LessThan           Comparator = "<"
	LessThanOrEqual    Comparator = "<="
	Equal              Comparator = "=="
	NotEqual           Comparator = "!="
)

// Compare applies the comparator. Unknown comparators never match.
func (c Comparator) Compare(value, threshold float64) (bool, error) {
	switch c {
	case GreaterThan:
		return value > threshold, nil
	case GreaterThanOrEqual:
		return value >= threshold, nil
	case LessThan:
		return value < threshold, nil
	case LessThanOrEqual:
		return value <= threshold, nil
	case Equal:
		return math.Abs(value-threshold) < 1e-9, nil
	case NotEqual:
		return math.Abs(value-threshold) >= 1e-9, nil
	default:
		return false, fmt.Errorf("%w: comparator %q", ErrInvalidRule, c)
	}
}

// AlertRule is an entry of the static rule catalog.
type AlertRule struct {
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Severity      Severity   `json:"severity"`
	Description   string     `json:"description"`
	MetricType    string     `json:"metric_type"`
	Statistic     Statistic  `json:"statistic"`
	Comparator    Comparator `json:"comparator"`
	Threshold     float64    `json:"threshold"`
	WindowSeconds int        `json:"window_seconds"`
	Enabled       bool       `json:"enabled"`
}

// Window returns the rule's evaluation window.
func (r AlertRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// AlertStatus is the lifecycle state of an ActiveAlert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// ActiveAlert is a raised alert. RuleName is the dedup key among non-resolved alerts.
type ActiveAlert struct {
	ID             string         `json:"id"`
	RuleName       string         `json:"rule_name"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details,omitempty"`
	TriggeredAt    time.Time      `json:"triggered_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Status         AlertStatus    `json:"status"`
}

// AlertFilter narrows alert listings. Zero values mean "any".
type AlertFilter struct {
	Status   AlertStatus
	RuleName string
	Limit    int
}
