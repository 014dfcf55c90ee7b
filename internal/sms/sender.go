package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Sender delivers one message to one phone. Implementations must treat
// duplicate sends as harmless: the queue in front of them is
// at-least-once.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// NewSender picks the gateway client when a URL is configured and the
// log sender otherwise (local development).
func NewSender(gatewayURL string) Sender {
	if gatewayURL == "" {
		log.Println("sms: no gateway configured, using log sender")
		return &LogSender{}
	}
	return NewGatewaySender(gatewayURL)
}

// LogSender writes messages to the process log instead of a network.
// The message text carries the plaintext code, so this sender is only
// acceptable outside production.
type LogSender struct{}

func (s *LogSender) Send(_ context.Context, phone, message string) error {
	log.Printf("sms (dev): to=%s message=%q", phone, message)
	return nil
}

// GatewaySender posts messages to an external SMS gateway.
type GatewaySender struct {
	url    string
	client *http.Client
}

func NewGatewaySender(url string) *GatewaySender {
	return &GatewaySender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *GatewaySender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway: unexpected status %d", resp.StatusCode)
	}
	return nil
}
