package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
)

const alertColumns = `id, rule_name, severity, title, description, details, triggered_at,
	acknowledged_at, acknowledged_by, resolved_at, status`

// AlertStore implements domain.AlertStore on the active_alerts table. The partial unique
// index on rule_name enforces one non-resolved alert per rule.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore creates a PostgreSQL alert store.
func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) CreateIfNoneActive(ctx context.Context, alert *domain.ActiveAlert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = domain.AlertActive
	}
	details, err := marshalJSON(alert.Details)
	if err != nil {
		return false, err
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO active_alerts (id, rule_name, severity, title, description, details, triggered_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (rule_name) WHERE status <> 'RESOLVED' DO NOTHING
		RETURNING id`,
		alert.ID, alert.RuleName, alert.Severity, alert.Title, alert.Description, details, alert.TriggeredAt, alert.Status,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	return true, nil
}

func (s *AlertStore) GetActive(ctx context.Context, ruleName string) (*domain.ActiveAlert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM active_alerts WHERE rule_name = $1 AND status <> 'RESOLVED'`, ruleName)
	return scanAlert(row)
}

func (s *AlertStore) Get(ctx context.Context, id string) (*domain.ActiveAlert, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM active_alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (s *AlertStore) List(ctx context.Context, filter domain.AlertFilter) ([]domain.ActiveAlert, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RuleName != "" {
		args = append(args, filter.RuleName)
		where = append(where, fmt.Sprintf("rule_name = $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM active_alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY triggered_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return scanAlerts(rows)
}

func (s *AlertStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (*domain.ActiveAlert, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE active_alerts SET status = 'ACKNOWLEDGED', acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+alertColumns, id, by, at)
	alert, err := scanAlert(row)
	if !errors.Is(err, domain.ErrNotFound) {
		return alert, err
	}

	// Nothing updated: either the alert is missing or it is not ACTIVE.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, domain.AlertAcknowledged)
}

func (s *AlertStore) Resolve(ctx context.Context, id string, at time.Time) (*domain.ActiveAlert, bool, error) {
	if !validID(id) {
		return nil, false, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE active_alerts SET status = 'RESOLVED', resolved_at = $2
		WHERE id = $1 AND status <> 'RESOLVED'
		RETURNING `+alertColumns, id, at)
	alert, err := scanAlert(row)
	if err == nil {
		return alert, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	// Already resolved, or missing.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *AlertStore) ResolveOlderThan(ctx context.Context, cutoff, at time.Time) ([]domain.ActiveAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE active_alerts SET status = 'RESOLVED', resolved_at = $2
		WHERE status <> 'RESOLVED' AND triggered_at < $1
		RETURNING `+alertColumns, cutoff, at)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-resolve alerts: %w", err)
	}
	return scanAlerts(rows)
}

// validID reports whether id can be compared against a UUID column. Anything else
// cannot match a row and would only make the driver return a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.ActiveAlert, error) {
	var (
		a       domain.ActiveAlert
		details []byte
		ackAt   sql.NullTime
		ackBy   sql.NullString
		resAt   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.RuleName, &a.Severity, &a.Title, &a.Description, &details, &a.TriggeredAt,
		&ackAt, &ackBy, &resAt, &a.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("failed to decode alert details: %w", err)
		}
	}
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}
	a.AcknowledgedBy = ackBy.String
	if resAt.Valid {
		a.ResolvedAt = &resAt.Time
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]domain.ActiveAlert, error) {
	defer rows.Close()
	var out []domain.ActiveAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
