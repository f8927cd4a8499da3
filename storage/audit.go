package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Audit event types recorded per turn.
const (
	EventTurnStart   = "TURN_START"
	EventPlan        = "PLAN"
	EventToolCall    = "TOOL_CALL"
	EventToolResult  = "TOOL_RESULT"
	EventMemoryWrite = "MEMORY_WRITE"
	EventTurnEnd     = "TURN_END"
	EventTurnError   = "TURN_ERROR"
)

type AuditEntry struct {
	TraceID   string
	SessionID string
	EventType string
	Data      string
}

// RecordStep inserts a single audit log row.
//
// - traceID: the request correlation ID (X-Trace-ID)
// - sessionID: orchestrator session identifier
// - eventType: e.g. TURN_START, TOOL_CALL, TURN_END
// - data: JSON-encoded payload (best-effort)
func (d *DB) RecordStep(ctx context.Context, traceID, sessionID, eventType string, data any) error {
	if d == nil || d.db == nil {
		return nil
	}

	var payload string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			payload = fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
		} else {
			payload = string(b)
		}
	}

	_, err := d.db.ExecContext(
		ctx,
		`INSERT INTO audit_log (trace_id, session_id, timestamp, event_type, data)
		 VALUES (?, ?, ?, ?, ?)`,
		traceID,
		sessionID,
		d.timestamp(),
		eventType,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}

	return nil
}

// AuditTrail returns a session's audit rows in insertion order.
func (d *DB) AuditTrail(ctx context.Context, sessionID string) ([]AuditEntry, error) {
	rows, err := d.db.QueryContext(
		ctx,
		`SELECT COALESCE(trace_id, ''), session_id, event_type, COALESCE(data, '') FROM audit_log
		 WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit_log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.TraceID, &e.SessionID, &e.EventType, &e.Data); err != nil {
			return nil, fmt.Errorf("scan audit_log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
