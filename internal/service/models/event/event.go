// Package event defines the envelope and payloads shared by every producer and
// consumer on the broker.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the envelope schema version stamped on every produced event.
const Version = "1.0"

// Transport header names accompanying each message.
const (
	HeaderCorrelationID = "correlation-id"
	HeaderEventVersion  = "event-version"
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
)

var (
	ErrMalformedEnvelope = errors.New("malformed event envelope")
	ErrMissingEventID    = errors.New("event id is missing")
)

// Source identifies the service instance that produced an event.
type Source struct {
	Service  string `json:"service"`
	Version  string `json:"version"`
	Instance string `json:"instance"`
}

// Metadata is the envelope header.
type Metadata struct {
	EventID       string    `json:"eventId"`
	EventType     Type      `json:"eventType"`
	EventVersion  string    `json:"eventVersion"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId,omitempty"`
	Source        Source    `json:"source"`
}

// Envelope is the JSON document carried on every topic.
type Envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh event id. An empty correlation id is
// replaced by the event id so that the first event of a flow starts the chain.
func New(t Type, payload any, src Source, correlationID, causationID string, at time.Time) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}

	return Envelope{
		Metadata: Metadata{
			EventID:       id,
			EventType:     t,
			EventVersion:  Version,
			Timestamp:     at.UTC(),
			CorrelationID: correlationID,
			CausationID:   causationID,
			Source:        src,
		},
		Payload: body,
	}, nil
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Headers returns the transport headers derived from the metadata.
func (e Envelope) Headers() map[string]string {
	return map[string]string{
		HeaderCorrelationID: e.Metadata.CorrelationID,
		HeaderEventVersion:  e.Metadata.EventVersion,
		HeaderEventID:       e.Metadata.EventID,
		HeaderEventType:     e.Metadata.EventType.String(),
	}
}

// DecodePayload unmarshals the payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	return nil
}

// Decode parses raw bytes into an envelope. It returns ErrMissingEventID when
// the document parses but carries no event id.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Metadata.EventID == "" {
		return env, ErrMissingEventID
	}

	return env, nil
}
