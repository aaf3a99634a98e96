package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is a versioned NATS subject prefix. Published subjects carry the
// owner id as a trailing token, e.g. v1.inbound.whatsapp.<owner>.
type EventType string

const (
	V1InboundWhatsApp EventType = "v1.inbound.whatsapp"
)

// MapToBaseEventType maps a concrete subject back to a known EventType,
// stripping the trailing owner token when present.
func MapToBaseEventType(subject string) (EventType, bool) {
	if isKnownEventType(EventType(subject)) {
		return EventType(subject), true
	}

	lastDot := strings.LastIndex(subject, ".")
	if lastDot <= 0 {
		return "", false
	}
	base := EventType(subject[:lastDot])
	if isKnownEventType(base) {
		return base, true
	}
	return "", false
}

func isKnownEventType(e EventType) bool {
	switch e {
	case V1InboundWhatsApp:
		return true
	}
	return false
}

// OwnerFromSubject returns the trailing owner token of a concrete subject.
func OwnerFromSubject(subject string) string {
	base, ok := MapToBaseEventType(subject)
	if !ok || string(base) == subject {
		return ""
	}
	return strings.TrimPrefix(subject, string(base)+".")
}

// Subject builds the concrete subject for an owner.
func (e EventType) Subject(ownerID string) string {
	return string(e) + "." + ownerID
}

// Origen is the channel name recorded in the webhook audit log for e.
func (e EventType) Origen() string {
	parts := strings.Split(string(e), ".")
	return parts[len(parts)-1]
}

// MessageMetadata is the JetStream delivery metadata of one message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	OwnerID          string
}

// DLQPayload is published to the dead letter subject when a message cannot
// be processed.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`
	Owner           string          `json:"owner"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"` // fatal, retryable or unknown
	RetryCount      uint64          `json:"retry_count"`
	MaxRetry        int             `json:"max_retry"`
	Timestamp       time.Time       `json:"ts"`
}
