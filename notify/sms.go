package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trailguard/core"
)

// SMSConfig configures the SMS gateway sender.
type SMSConfig struct {
	GatewayURL string `json:"gateway_url" mapstructure:"gateway_url"`
	APIKey     string `json:"-" mapstructure:"api_key"`
	SenderID   string `json:"sender_id" mapstructure:"sender_id"`
}

// SMSSender delivers alerts through an HTTP SMS gateway.
type SMSSender struct {
	config SMSConfig
	client *http.Client
	logger *zap.SugaredLogger
}

// NewSMSSender creates an SMS sender against the configured gateway.
func NewSMSSender(config SMSConfig, logger *zap.SugaredLogger) *SMSSender {
	return &SMSSender{
		config: config,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger: logger,
	}
}

func (s *SMSSender) Channel() core.Channel { return core.ChannelSMS }

func (s *SMSSender) Validate(r *core.Recipient) error {
	return requirePhone(r, core.ChannelSMS)
}

// Send posts the message to the gateway and returns the gateway's message id.
func (s *SMSSender) Send(ctx context.Context, r *core.Recipient, text string) (string, error) {
	if s.config.GatewayURL == "" {
		return "", fmt.Errorf("%w: sms gateway not configured", core.ErrChannelNotConfigured)
	}

	payload := map[string]any{
		"to":      r.Phone,
		"from":    s.config.SenderID,
		"message": text,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TrailGuard/1.0")
	if s.config.APIKey != "" {
		req.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned non-2xx status: %d", resp.StatusCode)
	}

	providerID := decodeProviderMessageID(resp.Body)
	s.logger.Infow("Sent SMS alert", "recipient_id", r.ID, "provider_message_id", providerID)
	return providerID, nil
}
