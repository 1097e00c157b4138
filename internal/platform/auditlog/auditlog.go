// Package auditlog records upload activity in postgres. Events are keyed
// by a generated UUID and carry an integrity hash over their canonical
// JSON form. The audit trail is strictly off the request path: callers
// dispatch inserts with their own bounded context and drop failures.
//
// Expected table:
//
//	CREATE TABLE audit_events (
//	    event_id         text PRIMARY KEY,
//	    occurred_at      timestamptz NOT NULL,
//	    actor            text NOT NULL,
//	    action           text NOT NULL,
//	    script_id        text NOT NULL,
//	    request_id       text,
//	    payload          jsonb NOT NULL,
//	    integrity_sha256 text NOT NULL
//	);
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ActionScriptUploaded = "script.uploaded"

type Event struct {
	OccurredAt time.Time
	Actor      string
	Action     string
	ScriptID   string
	RequestID  string
	Payload    any
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ScriptID) == "" {
		return errors.New("ScriptID is required")
	}
	return nil
}

// Insert writes one audit event and returns its generated event ID.
func Insert(ctx context.Context, q Execer, event Event) (string, error) {
	if q == nil {
		return "", errors.New("execer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return "", err
	}

	var requestID sql.NullString
	if strings.TrimSpace(event.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(event.RequestID), Valid: true}
	}

	eventID := uuid.NewString()
	_, err = q.ExecContext(
		ctx,
		`INSERT INTO audit_events (
			event_id,
			occurred_at,
			actor,
			action,
			script_id,
			request_id,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		eventID,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ScriptID),
		requestID,
		payloadJSON,
		integrity,
	)
	if err != nil {
		return "", fmt.Errorf("insert audit event: %w", err)
	}
	return eventID, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		Actor      string          `json:"actor"`
		Action     string          `json:"action"`
		ScriptID   string          `json:"script_id"`
		RequestID  string          `json:"request_id,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      strings.TrimSpace(event.Actor),
		Action:     strings.TrimSpace(event.Action),
		ScriptID:   strings.TrimSpace(event.ScriptID),
		RequestID:  strings.TrimSpace(event.RequestID),
		Payload:    payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
