package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/V4T54L/carepulse/internal/domain"
)

func TestValidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"generated", uuid.NewString(), true},
		{"upper case", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", true},
		{"empty", "", false},
		{"plain word", "missing", false},
		{"numeric", "42", false},
		{"truncated", "6ba7b810-9dad-11d1-80b4", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validID(tt.id))
		})
	}
}

// Malformed ids never reach the database, so a store without a connection is enough.
func TestStores_MalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	alerts := &AlertStore{}
	jobs := &JobStore{}

	t.Run("alert get", func(t *testing.T) {
		_, err := alerts.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("alert acknowledge", func(t *testing.T) {
		_, err := alerts.Acknowledge(ctx, "not-a-uuid", "nurse.jones", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("alert resolve", func(t *testing.T) {
		_, changed, err := alerts.Resolve(ctx, "not-a-uuid", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, changed)
	})
	t.Run("job get", func(t *testing.T) {
		_, err := jobs.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("job complete", func(t *testing.T) {
		assert.ErrorIs(t, jobs.Complete(ctx, "not-a-uuid", now), domain.ErrNotFound)
	})
	t.Run("job fail", func(t *testing.T) {
		_, err := jobs.Fail(ctx, "not-a-uuid", domain.JobFailure{Error: "boom", At: now})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("job retry", func(t *testing.T) {
		_, err := jobs.Retry(ctx, "not-a-uuid", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
