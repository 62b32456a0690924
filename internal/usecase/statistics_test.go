package usecase

import (
	"errors"
	"testing"

	"github.com/V4T54L/carepulse/internal/domain"
)

func values(vs ...float64) []domain.MetricSample {
	out := make([]domain.MetricSample, len(vs))
	for i, v := range vs {
		out[i] = domain.MetricSample{Value: v}
	}
	return out
}

func TestComputeStatistic(t *testing.T) {
	hundred := make([]float64, 100)
	for i := range hundred {
		hundred[i] = float64(i + 1)
	}
	withErrors := []domain.MetricSample{
		{Metadata: map[string]any{"error": true}},
		{Metadata: map[string]any{"status_code": 503}},
		{Metadata: map[string]any{"status_code": float64(200)}},
		{},
	}

	testCases := []struct {
		name    string
		stat    domain.Statistic
		samples []domain.MetricSample
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{name: "p95 of 1..100", stat: domain.StatP95, samples: values(hundred...), want: 95, wantOK: true},
		{name: "p95 single", stat: domain.StatP95, samples: values(42), want: 42, wantOK: true},
		{name: "error rate", stat: domain.StatErrorRate, samples: withErrors, want: 0.5, wantOK: true},
		{name: "count", stat: domain.StatCount, samples: values(1, 1, 1), want: 3, wantOK: true},
		{name: "avg", stat: domain.StatAverage, samples: values(100, 200, 600), want: 300, wantOK: true},
		{name: "max", stat: domain.StatMax, samples: values(12, 95, 40), want: 95, wantOK: true},
		{name: "no data", stat: domain.StatCount, samples: nil, wantOK: false},
		{name: "unknown statistic", stat: "median", samples: values(1), wantErr: true},
		{name: "unknown statistic without data", stat: "median", samples: nil, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := computeStatistic(tc.stat, tc.samples)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidRule) {
					t.Fatalf("expected ErrInvalidRule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("value = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComparator(t *testing.T) {
	testCases := []struct {
		cmp  domain.Comparator
		v, t float64
		want bool
	}{
		{domain.GreaterThan, 0.06, 0.05, true},
		{domain.GreaterThan, 0.05, 0.05, false},
		{domain.GreaterThanOrEqual, 5, 5, true},
		{domain.LessThan, 1, 2, true},
		{domain.LessThanOrEqual, 2, 2, true},
		{domain.Equal, 0.1 + 0.2, 0.3, true},
		{domain.NotEqual, 1, 2, true},
	}
	for _, tc := range testCases {
		got, err := tc.cmp.Compare(tc.v, tc.t)
		if err != nil || got != tc.want {
			t.Errorf("%v %s %v = %v (%v), want %v", tc.v, tc.cmp, tc.t, got, err, tc.want)
		}
	}
	if _, err := domain.Comparator("~").Compare(1, 1); !errors.Is(err, domain.ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for unknown comparator, got %v", err)
	}
}
