package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/carepulse/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks protected health information in outgoing message payloads.
// Field names match case-insensitively at any depth of nested objects and arrays.
type Redactor struct {
	fieldsToRedact map[string]struct{}
	logger         *slog.Logger
}

// NewRedactor creates a Redactor for the given field names.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		fieldSet[strings.ToLower(strings.TrimSpace(field))] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger.With("component", "phi_redactor"),
	}
}

// Redact returns a copy of msg with protected fields masked, and whether anything
// was masked. The input payload is never modified since it may be shared.
func (r *Redactor) Redact(msg domain.Message) (domain.Message, bool) {
	if len(r.fieldsToRedact) == 0 || len(msg.Payload) == 0 {
		return msg, false
	}
	payload, redacted := r.redactMap(msg.Payload)
	if redacted {
		r.logger.Debug("Redacted message payload", "type", msg.Type)
		msg.Payload = payload
	}
	return msg, redacted
}

func (r *Redactor) redactMap(in map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(in))
	redacted := false
	for k, v := range in {
		if _, ok := r.fieldsToRedact[strings.ToLower(k)]; ok {
			out[k] = RedactedPlaceholder
			redacted = true
			continue
		}
		nv, changed := r.redactValue(v)
		out[k] = nv
		redacted = redacted || changed
	}
	return out, redacted
}

func (r *Redactor) redactValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return r.redactMap(t)
	case []any:
		out := make([]any, len(t))
		redacted := false
		for i, item := range t {
			nv, changed := r.redactValue(item)
			out[i] = nv
			redacted = redacted || changed
		}
		return out, redacted
	default:
		return v, false
	}
}
