package notification_dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/types"
)

// Notifier delivers one "record reached state" notification. Delivery is at
// least once: the outbox row id travels with the message so receivers can
// drop repeats.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Notification struct {
	ID         string           `json:"id"`
	RecordType types.RecordType `json:"record_type"`
	RecordID   string           `json:"record_id"`
	State      string           `json:"state"`
	Payload    map[string]any   `json:"payload"`
	CreatedAt  time.Time        `json:"created_at"`
}

func notificationOf(row models.DonationEventOutbox) Notification {
	return Notification{
		ID:         row.ID,
		RecordType: row.RecordType,
		RecordID:   row.RecordID,
		State:      row.State,
		Payload:    row.Payload,
		CreatedAt:  row.CreatedAt,
	}
}

// LogNotifier writes notifications to the application log. It is the
// default when no webhook URL is configured.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Infow("donation_event",
		"outbox_id", n.ID,
		"record_type", n.RecordType,
		"record_id", n.RecordID,
		"state", n.State,
		"payload", n.Payload,
	)
	return nil
}

// HTTPNotifier POSTs each notification as JSON to a fixed URL. Any non-2xx
// status counts as a failed delivery.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify %s: unexpected status %d", n.RecordID, resp.StatusCode)
	}
	return nil
}
