package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trailguard/core"
)

// WhatsAppConfig configures the WhatsApp gateway sender.
type WhatsAppConfig struct {
	GatewayURL string `json:"gateway_url" mapstructure:"gateway_url"`
	Token      string `json:"-" mapstructure:"token"`
}

// WhatsAppSender delivers alerts through a WhatsApp business gateway webhook.
type WhatsAppSender struct {
	config WhatsAppConfig
	client *http.Client
	logger *zap.SugaredLogger
}

// NewWhatsAppSender creates a WhatsApp sender against the configured gateway.
func NewWhatsAppSender(config WhatsAppConfig, logger *zap.SugaredLogger) *WhatsAppSender {
	return &WhatsAppSender{
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

func (s *WhatsAppSender) Channel() core.Channel { return core.ChannelWhatsApp }

func (s *WhatsAppSender) Validate(r *core.Recipient) error {
	return requirePhone(r, core.ChannelWhatsApp)
}

// Send posts the message to the gateway and returns the gateway's message id.
func (s *WhatsAppSender) Send(ctx context.Context, r *core.Recipient, text string) (string, error) {
	if s.config.GatewayURL == "" {
		return "", fmt.Errorf("%w: whatsapp gateway not configured", core.ErrChannelNotConfigured)
	}

	payload := map[string]any{
		"to":   r.Phone,
		"type": "text",
		"text": map[string]string{"body": text},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TrailGuard/1.0")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp gateway returned non-2xx status: %d", resp.StatusCode)
	}

	providerID := decodeProviderMessageID(resp.Body)
	s.logger.Infow("Sent WhatsApp alert", "recipient_id", r.ID, "provider_message_id", providerID)
	return providerID, nil
}

// decodeProviderMessageID pulls the message id out of a gateway response.
// Gateways differ; both {"message_id": ...} and the Meta-style
// {"messages":[{"id": ...}]} shapes are accepted.
func decodeProviderMessageID(body io.Reader) string {
	var parsed struct {
		MessageID string `json:"message_id"`
		Messages  []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return ""
	}
	if parsed.MessageID != "" {
		return parsed.MessageID
	}
	if len(parsed.Messages) > 0 {
		return parsed.Messages[0].ID
	}
	return ""
}
