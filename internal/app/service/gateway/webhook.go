package gateway

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Notification is a verified webhook delivery. Event is nil when the
// provider's event type carries nothing to reconcile.
type Notification struct {
	Provider  string
	EventID   string
	EventType string
	Event     Event
}

// WebhookDecoder authenticates a raw webhook body and decodes it into the
// internal event representation.
type WebhookDecoder interface {
	Provider() string
	Decode(payload []byte, header http.Header) (*Notification, error)
}
