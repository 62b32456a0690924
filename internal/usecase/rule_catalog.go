package usecase

import (
	"sync"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

// DefaultRules is the fixed alert rule catalog.
func DefaultRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			Name: "high_api_latency", Category: "performance", Severity: domain.SeverityHigh,
			Description: "95th percentile API latency above 2s",
			MetricType:  domain.MetricAPIRequest, Statistic: domain.StatP95,
			Comparator: domain.GreaterThan, Threshold: 2000, WindowSeconds: 300, Enabled: true,
		},
		{
			Name: "high_error_rate", Category: "performance", Severity: domain.SeverityCritical,
			Description: "At least 5% of API requests failed",
			MetricType:  domain.MetricAPIRequest, Statistic: domain.StatErrorRate,
			Comparator: domain.GreaterThanOrEqual, Threshold: 0.05, WindowSeconds: 600, Enabled: true,
		},
		{
			Name: "failed_login_burst", Category: "security", Severity: domain.SeverityHigh,
			Description: "Burst of failed login attempts",
			MetricType:  domain.MetricAuthFailure, Statistic: domain.StatCount,
			Comparator: domain.GreaterThan, Threshold: 10, WindowSeconds: 900, Enabled: true,
		},
		{
			Name: "critical_patient_surge", Category: "clinical", Severity: domain.SeverityCritical,
			Description: "Several patients moved to critical status within an hour",
			MetricType:  domain.StatusSampleType("critical"), Statistic: domain.StatCount,
			Comparator: domain.GreaterThanOrEqual, Threshold: 5, WindowSeconds: 3600, Enabled: true,
		},
		{
			Name: "slow_database_queries", Category: "performance", Severity: domain.SeverityMedium,
			Description: "Average database query time above 500ms",
			MetricType:  domain.MetricDBQuery, Statistic: domain.StatAverage,
			Comparator: domain.GreaterThan, Threshold: 500, WindowSeconds: 300, Enabled: true,
		},
		{
			Name: "high_memory_usage", Category: "system", Severity: domain.SeverityMedium,
			Description: "Memory usage above 90%",
			MetricType:  domain.MetricMemoryUsage, Statistic: domain.StatMax,
			Comparator: domain.GreaterThan, Threshold: 90, WindowSeconds: 300, Enabled: true,
		},
	}
}

// RuleCatalog holds the rule set and its enabled flags. Only the flags are mutable.
type RuleCatalog struct {
	mu    sync.RWMutex
	order []string
	rules map[string]domain.AlertRule
}

// NewRuleCatalog builds a catalog from rules, keeping their order.
func NewRuleCatalog(rules []domain.AlertRule) *RuleCatalog {
	c := &RuleCatalog{rules: make(map[string]domain.AlertRule, len(rules))}
	for _, r := range rules {
		if _, dup := c.rules[r.Name]; !dup {
			c.order = append(c.order, r.Name)
		}
		c.rules[r.Name] = r
	}
	return c
}

func (c *RuleCatalog) List() []domain.AlertRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.AlertRule, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.rules[name])
	}
	return out
}

func (c *RuleCatalog) Enabled() []domain.AlertRule {
	var out []domain.AlertRule
	for _, r := range c.List() {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

func (c *RuleCatalog) Get(name string) (domain.AlertRule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[name]
	if !ok {
		return domain.AlertRule{}, domain.ErrRuleNotFound
	}
	return r, nil
}

// SetEnabled toggles a rule and returns its new state.
func (c *RuleCatalog) SetEnabled(name string, enabled bool) (domain.AlertRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[name]
	if !ok {
		return domain.AlertRule{}, domain.ErrRuleNotFound
	}
	r.Enabled = enabled
	c.rules[name] = r
	return r, nil
}

// Windows returns the windows of all enabled rules.
func (c *RuleCatalog) Windows() []time.Duration {
	var out []time.Duration
	for _, r := range c.Enabled() {
		out = append(out, r.Window())
	}
	return out
}
