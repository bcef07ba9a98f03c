package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Message is a rendered event ready for a channel.
type Message struct {
	Event   Event  `json:"event"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the structured log.
type LogSender struct {
	Logger zerolog.Logger
}

func (LogSender) Name() string { return "log" }

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info().
		Str("event_id", msg.Event.ID.String()).
		Str("kind", string(msg.Event.Kind)).
		Str("appointment_id", msg.Event.AppointmentID.String()).
		Str("doctor_id", msg.Event.DoctorID.String()).
		Str("patient_id", msg.Event.PatientID.String()).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// WebhookSender POSTs signed JSON messages to a single endpoint.
type WebhookSender struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{URL: url, Secret: secret, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (*WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, s.Secret))
	req.Header.Set("X-Webhook-Event", string(msg.Event.Kind))
	req.Header.Set("X-Webhook-ID", msg.Event.ID.String())
	req.Header.Set("X-Webhook-Timestamp", msg.Event.OccurredAt.Format(time.RFC3339))

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", msg.Event.Kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
