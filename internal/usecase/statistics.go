package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/V4T54L/carepulse/internal/domain"
)

// computeStatistic aggregates samples for a rule. ok is false when there is no data,
// which never triggers a rule.
func computeStatistic(stat domain.Statistic, samples []domain.MetricSample) (value float64, ok bool, err error) {
	if len(samples) == 0 {
		switch stat {
		case domain.StatP95, domain.StatErrorRate, domain.StatCount, domain.StatAverage, domain.StatMax:
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: statistic %q", domain.ErrInvalidRule, stat)
	}

	switch stat {
	case domain.StatP95:
		return percentile(samples, 0.95), true, nil
	case domain.StatErrorRate:
		errs := 0
		for _, s := range samples {
			if s.IsError() {
				errs++
			}
		}
		return float64(errs) / float64(len(samples)), true, nil
	case domain.StatCount:
		return float64(len(samples)), true, nil
	case domain.StatAverage:
		sum := 0.0
		for _, s := range samples {
			sum += s.Value
		}
		return sum / float64(len(samples)), true, nil
	case domain.StatMax:
		m := math.Inf(-1)
		for _, s := range samples {
			m = math.Max(m, s.Value)
		}
		return m, true, nil
	default:
		return 0, false, fmt.Errorf("%w: statistic %q", domain.ErrInvalidRule, stat)
	}
}

// percentile uses the nearest-rank method.
func percentile(samples []domain.MetricSample, p float64) float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	sort.Float64s(values)
	rank := int(math.Ceil(p*float64(len(values)))) - 1
	rank = min(max(rank, 0), len(values)-1)
	return values[rank]
}
