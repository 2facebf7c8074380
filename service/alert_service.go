// Package service contains the alert dispatch engine: the fan-out of
// detections across recipients and channels, with per-message outcome
// recording and aggregate statistics folded over the message ledger.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trailguard/core"
	"trailguard/metrics"
	"trailguard/notify"
	"trailguard/storage"
)

// Progress carries running totals delivered to the progress callback after
// every send attempt.
type Progress struct {
	Total   int               `json:"total"`
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Current core.AlertMessage `json:"current"`
}

// ProgressFunc receives progress updates during a bulk dispatch.
type ProgressFunc func(Progress)

// DispatchSummary aggregates the outcome of one dispatch call. Total is
// fixed up front from the requested cardinality, so Sent+Failed can fall
// short of it when detections or recipients were skipped.
type DispatchSummary struct {
	Total             int      `json:"total"`
	Sent              int      `json:"sent"`
	Failed            int      `json:"failed"`
	SkippedDetections []string `json:"skipped_detections,omitempty"`
	SkippedRecipients []string `json:"skipped_recipients,omitempty"`
}

// DispatchResult is the full outcome of a dispatch call.
type DispatchResult struct {
	Messages []core.AlertMessage `json:"messages"`
	Summary  DispatchSummary     `json:"summary"`
}

// ChannelStats aggregates per-channel delivery counts.
type ChannelStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Stats is the aggregate view computed by folding over the ledger.
type Stats struct {
	TotalSent   int                           `json:"total_sent"`
	TotalFailed int                           `json:"total_failed"`
	ByChannel   map[core.Channel]ChannelStats `json:"by_channel"`
	Recent      []core.AlertMessage           `json:"recent"`
}

// AlertConfig tunes the dispatch engine.
type AlertConfig struct {
	// MessageDelay is the pause between consecutive send attempts.
	MessageDelay time.Duration `mapstructure:"message_delay"`
	// Breaker configures the per-channel circuit breakers.
	Breaker core.CircuitBreakerConfig `mapstructure:"breaker"`
}

// AlertService fans detections out across recipients and channels. The bulk
// loop is sequential with a pacing delay between attempts; one failed send
// never aborts the batch.
type AlertService struct {
	recipients *storage.RecipientStore
	detections *storage.DetectionStore
	ledger     storage.MessageStore
	senders    map[core.Channel]notify.Sender
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger

	breakerConfig core.CircuitBreakerConfig
	breakers      map[core.Channel]*core.CircuitBreaker
	cbMu          sync.RWMutex
}

// NewAlertService wires the dispatch engine to its stores and senders.
func NewAlertService(
	recipients *storage.RecipientStore,
	detections *storage.DetectionStore,
	ledger storage.MessageStore,
	senders []notify.Sender,
	config AlertConfig,
	logger *zap.SugaredLogger,
) *AlertService {
	byChannel := make(map[core.Channel]notify.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.MessageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(config.MessageDelay), 1)
	}

	breakerConfig := config.Breaker
	if err := breakerConfig.Validate(); err != nil {
		breakerConfig = core.CircuitBreakerConfig{
			MaxFailures:         3,
			Timeout:             60 * time.Second,
			MaxHalfOpenRequests: 1,
		}
	}

	return &AlertService{
		recipients:    recipients,
		detections:    detections,
		ledger:        ledger,
		senders:       byChannel,
		limiter:       limiter,
		logger:        logger,
		breakerConfig: breakerConfig,
		breakers:      make(map[core.Channel]*core.CircuitBreaker),
	}
}

// DispatchBulk sends one message per requested detection × recipient ×
// channel. Missing detections and missing or inactive recipients are skipped
// and reported in the summary; the total is fixed up front from the
// requested cardinality.
func (s *AlertService) DispatchBulk(
	ctx context.Context,
	detectionIDs, recipientIDs []string,
	channels []core.Channel,
	customMessage string,
	onProgress ProgressFunc,
) (DispatchResult, error) {
	result := DispatchResult{
		Summary: DispatchSummary{
			Total: len(detectionIDs) * len(recipientIDs) * len(channels),
		},
	}

	detections := make([]core.Detection, 0, len(detectionIDs))
	for _, id := range detectionIDs {
		d, err := s.detections.Get(id)
		if err != nil {
			s.logger.Warnw("Skipping unknown detection in bulk dispatch", "event_id", id)
			result.Summary.SkippedDetections = append(result.Summary.SkippedDetections, id)
			continue
		}
		detections = append(detections, *d)
	}

	targets := make([]core.Recipient, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		r, err := s.recipients.Get(id)
		if err != nil || !r.Active {
			s.logger.Warnw("Skipping recipient in bulk dispatch",
				"recipient_id", id, "found", err == nil)
			result.Summary.SkippedRecipients = append(result.Summary.SkippedRecipients, id)
			continue
		}
		targets = append(targets, *r)
	}

	for i := range detections {
		d := &detections[i]
		text := notify.FormatAlert(d, customMessage)
		for j := range targets {
			r := &targets[j]
			for _, channel := range channels {
				if err := s.pace(ctx); err != nil {
					return result, err
				}
				msg := s.deliver(ctx, d, r, channel, text)
				result.Messages = append(result.Messages, msg)
				if msg.Status == core.MessageStatusSent {
					result.Summary.Sent++
				} else {
					result.Summary.Failed++
				}
				if onProgress != nil {
					onProgress(Progress{
						Total:   result.Summary.Total,
						Sent:    result.Summary.Sent,
						Failed:  result.Summary.Failed,
						Current: msg,
					})
				}
			}
		}
	}

	s.logger.Infow("Bulk dispatch complete",
		"total", result.Summary.Total,
		"sent", result.Summary.Sent,
		"failed", result.Summary.Failed,
		"skipped_detections", len(result.Summary.SkippedDetections),
		"skipped_recipients", len(result.Summary.SkippedRecipients))
	return result, nil
}

// DispatchAuto fans one detection out to every active auto-alert recipient
// over the full channel set. Each recipient's own channel preference is
// consulted inside the loop: a channel the recipient has not opted into is
// passed over without producing a message record.
func (s *AlertService) DispatchAuto(ctx context.Context, d *core.Detection) (DispatchResult, error) {
	targets := s.recipients.ListAutoAlert()
	result := DispatchResult{
		Summary: DispatchSummary{
			Total: len(targets) * len(core.AllChannels),
		},
	}
	if len(targets) == 0 {
		return result, nil
	}

	text := notify.FormatAlert(d, "")
	for i := range targets {
		r := &targets[i]
		for _, channel := range core.AllChannels {
			if !r.Prefers(channel) {
				continue
			}
			if err := s.pace(ctx); err != nil {
				return result, err
			}
			msg := s.deliver(ctx, d, r, channel, text)
			result.Messages = append(result.Messages, msg)
			if msg.Status == core.MessageStatusSent {
				result.Summary.Sent++
			} else {
				result.Summary.Failed++
			}
		}
	}

	s.logger.Infow("Auto-alert dispatch complete",
		"event_id", d.EventID,
		"species", d.Species,
		"recipients", len(targets),
		"sent", result.Summary.Sent,
		"failed", result.Summary.Failed)
	return result, nil
}

// deliver performs one send attempt and appends the outcome to the ledger.
// Every path produces exactly one Alert Message record.
func (s *AlertService) deliver(ctx context.Context, d *core.Detection, r *core.Recipient, channel core.Channel, text string) core.AlertMessage {
	now := time.Now().UTC()
	msg := core.AlertMessage{
		ID:            uuid.NewString(),
		EventID:       d.EventID,
		RecipientID:   r.ID,
		RecipientName: r.Name,
		Channel:       channel,
		Status:        core.MessageStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sender, ok := s.senders[channel]
	if !ok {
		msg.Status = core.MessageStatusFailed
		msg.Error = fmt.Sprintf("channel %s not configured", channel)
		s.record(&msg)
		return msg
	}

	cb := s.getOrCreateCircuitBreaker(channel)
	if err := cb.Allow(); err != nil {
		msg.Status = core.MessageStatusFailed
		msg.Error = fmt.Sprintf("channel %s temporarily unavailable: %v", channel, err)
		s.logger.Warnw("Circuit breaker rejected send",
			"channel", channel, "recipient_id", r.ID)
		s.record(&msg)
		return msg
	}

	if err := sender.Validate(r); err != nil {
		// Missing contact fields are recipient data problems, not channel
		// health; they do not count against the breaker.
		msg.Status = core.MessageStatusFailed
		msg.Error = err.Error()
		s.record(&msg)
		return msg
	}

	providerID, err := sender.Send(ctx, r, text)
	if err != nil {
		cb.RecordFailure()
		msg.Status = core.MessageStatusFailed
		msg.Error = err.Error()
		s.logger.Errorw("Alert send failed",
			"channel", channel,
			"recipient_id", r.ID,
			"event_id", d.EventID,
			"error", err)
	} else {
		cb.RecordSuccess()
		msg.Status = core.MessageStatusSent
		msg.ProviderMessageID = providerID
	}
	msg.UpdatedAt = time.Now().UTC()
	s.record(&msg)
	return msg
}

func (s *AlertService) record(msg *core.AlertMessage) {
	metrics.AlertMessagesTotal.WithLabelValues(string(msg.Channel), string(msg.Status)).Inc()
	if err := s.ledger.Append(*msg); err != nil {
		s.logger.Errorw("Failed to append alert message to ledger",
			"message_id", msg.ID, "error", err)
	}
}

// pace enforces the inter-message delay. The first attempt passes
// immediately; each subsequent one waits out the configured interval.
func (s *AlertService) pace(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatch cancelled: %w", err)
	}
	return nil
}

func (s *AlertService) getOrCreateCircuitBreaker(channel core.Channel) *core.CircuitBreaker {
	s.cbMu.RLock()
	cb, exists := s.breakers[channel]
	s.cbMu.RUnlock()
	if exists {
		return cb
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if cb, exists := s.breakers[channel]; exists {
		return cb
	}
	cb = core.MustNewCircuitBreaker(s.breakerConfig)
	s.breakers[channel] = cb
	s.logger.Infof("Created circuit breaker for alert channel: %s", channel)
	return cb
}

// ValidateRecipient checks partial recipient data and returns human-readable
// problems. An empty slice means the data is acceptable.
func (s *AlertService) ValidateRecipient(r *core.Recipient) []string {
	var problems []string

	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name must not be empty")
	}
	if strings.TrimSpace(r.Phone) == "" && strings.TrimSpace(r.Email) == "" {
		problems = append(problems, "at least one of phone or email is required")
	}
	if len(r.Channels) == 0 {
		problems = append(problems, "at least one preferred channel must be selected")
	}
	for _, channel := range r.Channels {
		if !channel.IsValid() {
			problems = append(problems, fmt.Sprintf("unknown channel %q", channel))
			continue
		}
		sender, ok := s.senders[channel]
		if !ok {
			continue
		}
		if err := sender.Validate(r); err != nil {
			problems = append(problems, contactProblem(err))
		}
	}
	return problems
}

// contactProblem strips the sentinel prefix so the API returns the
// human-readable tail only.
func contactProblem(err error) string {
	text := err.Error()
	if i := strings.Index(text, ": "); i >= 0 {
		return text[i+2:]
	}
	return text
}

// History returns ledger entries most-recent-first, optionally filtered by
// recipient and capped.
func (s *AlertService) History(recipientID string, limit int) ([]core.AlertMessage, error) {
	return s.ledger.List(recipientID, limit)
}

// Stats folds the ledger into aggregate delivery counts plus the ten most
// recent messages. There are no live counters to drift out of sync.
func (s *AlertService) Stats() (Stats, error) {
	all, err := s.ledger.List("", 0)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		ByChannel: make(map[core.Channel]ChannelStats),
		Recent:    make([]core.AlertMessage, 0, 10),
	}
	for _, msg := range all {
		cs := stats.ByChannel[msg.Channel]
		switch msg.Status {
		case core.MessageStatusSent, core.MessageStatusDelivered:
			stats.TotalSent++
			cs.Sent++
		case core.MessageStatusFailed:
			stats.TotalFailed++
			cs.Failed++
		}
		stats.ByChannel[msg.Channel] = cs
	}
	if len(all) > 10 {
		all = all[:10]
	}
	stats.Recent = append(stats.Recent, all...)
	return stats, nil
}

// BreakerStates reports each channel breaker's current state for the health
// endpoint.
func (s *AlertService) BreakerStates() map[core.Channel]core.CircuitBreakerState {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	out := make(map[core.Channel]core.CircuitBreakerState, len(s.breakers))
	for channel, cb := range s.breakers {
		out[channel] = cb.State()
	}
	return out
}
