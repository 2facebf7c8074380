package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trailguard/core"
	"trailguard/notify"
	"trailguard/storage"
)

type fixture struct {
	recipients *storage.RecipientStore
	detections *storage.DetectionStore
	ledger     *storage.MemoryMessageStore
	whatsapp   *notify.MockSender
	sms        *notify.MockSender
	email      *notify.MockSender
	service    *AlertService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		recipients: storage.NewRecipientStore(),
		detections: storage.NewDetectionStore(100),
		ledger:     storage.NewMemoryMessageStore(),
		whatsapp:   notify.NewMockSender(core.ChannelWhatsApp),
		sms:        notify.NewMockSender(core.ChannelSMS),
		email:      notify.NewMockSender(core.ChannelEmail),
	}
	f.service = NewAlertService(
		f.recipients,
		f.detections,
		f.ledger,
		[]notify.Sender{f.whatsapp, f.sms, f.email},
		AlertConfig{
			Breaker: core.CircuitBreakerConfig{
				MaxFailures:         3,
				Timeout:             time.Minute,
				MaxHalfOpenRequests: 1,
			},
		},
		zap.NewNop().Sugar(),
	)
	return f
}

func (f *fixture) addDetection(eventID string) {
	f.detections.Insert(core.Detection{
		EventID:    eventID,
		DeviceID:   "cam-01",
		Species:    "tiger",
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})
}

func TestDispatchBulk_FanOutCompleteness(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r1 := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Active: true})
	r2 := f.recipients.Add(core.Recipient{Name: "b", Phone: "+14155550101", Active: true})

	channels := []core.Channel{core.ChannelWhatsApp, core.ChannelSMS}
	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{r1.ID, r2.ID}, channels, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Summary.Total)
	assert.Equal(t, 4, result.Summary.Sent)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Len(t, result.Messages, 4)

	ledger, err := f.ledger.List("", 0)
	require.NoError(t, err)
	assert.Len(t, ledger, 4)
}

func TestDispatchBulk_InactiveRecipientKeepsTotal(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	active := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Active: true})
	inactive := f.recipients.Add(core.Recipient{Name: "b", Phone: "+14155550101", Active: false})

	channels := []core.Channel{core.ChannelWhatsApp, core.ChannelSMS}
	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{active.ID, inactive.ID}, channels, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Sent+result.Summary.Failed)
	assert.Equal(t, []string{inactive.ID}, result.Summary.SkippedRecipients)
}

func TestDispatchBulk_MissingDetectionSkipped(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Active: true})

	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1", "ghost"}, []string{r.ID}, []core.Channel{core.ChannelSMS}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.Sent)
	assert.Equal(t, []string{"ghost"}, result.Summary.SkippedDetections)
}

func TestDispatchBulk_OneFailureNeverAbortsBatch(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r1 := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Active: true})
	r2 := f.recipients.Add(core.Recipient{Name: "b", Phone: "+14155550101", Active: true})

	f.sms.FailNext(1, errors.New("gateway down"))

	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{r1.ID, r2.ID}, []core.Channel{core.ChannelSMS}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.Sent)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, core.MessageStatusFailed, result.Messages[0].Status)
	assert.Contains(t, result.Messages[0].Error, "gateway down")
	assert.Equal(t, core.MessageStatusSent, result.Messages[1].Status)
}

func TestDispatchBulk_MissingContactFieldRecordedAsFailed(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	noPhone := f.recipients.Add(core.Recipient{Name: "a", Email: "a@example.com", Active: true})

	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{noPhone.ID}, []core.Channel{core.ChannelWhatsApp}, "", nil)
	require.NoError(t, err)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, core.MessageStatusFailed, result.Messages[0].Status)
	assert.Contains(t, result.Messages[0].Error, "no phone")
	// Recipient data problems do not trip the channel breaker.
	assert.Equal(t, core.CircuitBreakerStateClosed, f.service.BreakerStates()[core.ChannelWhatsApp])
}

func TestDispatchBulk_ProgressCallback(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Email: "a@example.com", Active: true})

	var updates []Progress
	channels := []core.Channel{core.ChannelWhatsApp, core.ChannelSMS, core.ChannelEmail}
	_, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{r.ID}, channels, "", func(p Progress) {
			updates = append(updates, p)
		})
	require.NoError(t, err)

	require.Len(t, updates, 3)
	assert.Equal(t, 3, updates[0].Total)
	assert.Equal(t, 1, updates[0].Sent)
	assert.Equal(t, 3, updates[2].Sent)
	assert.Equal(t, core.ChannelEmail, updates[2].Current.Channel)
}

func TestDispatchBulk_CircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	var ids []string
	for _, phone := range []string{"+14155550100", "+14155550101", "+14155550102", "+14155550103"} {
		r := f.recipients.Add(core.Recipient{Name: "r" + phone, Phone: phone, Active: true})
		ids = append(ids, r.ID)
	}

	f.sms.FailWith(errors.New("provider outage"))

	result, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, ids, []core.Channel{core.ChannelSMS}, "", nil)
	require.NoError(t, err)

	// Breaker opens after three consecutive failures; the fourth attempt
	// fails fast without reaching the provider.
	assert.Equal(t, 4, result.Summary.Failed)
	assert.Equal(t, core.CircuitBreakerStateOpen, f.service.BreakerStates()[core.ChannelSMS])
	assert.Contains(t, result.Messages[3].Error, "temporarily unavailable")
}

func TestDispatchAuto_TargetsActiveAutoAlertOnly(t *testing.T) {
	f := newFixture(t)
	auto := f.recipients.Add(core.Recipient{
		Name: "auto", Phone: "+14155550100",
		Channels: []core.Channel{core.ChannelWhatsApp, core.ChannelSMS},
		Active:   true, AutoAlert: true,
	})
	f.recipients.Add(core.Recipient{
		Name: "manual", Phone: "+14155550101",
		Channels: []core.Channel{core.ChannelWhatsApp},
		Active:   true, AutoAlert: false,
	})
	f.recipients.Add(core.Recipient{
		Name: "disabled", Phone: "+14155550102",
		Channels: []core.Channel{core.ChannelWhatsApp},
		Active:   false, AutoAlert: true,
	})

	d := &core.Detection{EventID: "e1", DeviceID: "cam-01", Species: "tiger", Confidence: 0.9, Timestamp: time.Now()}
	result, err := f.service.DispatchAuto(context.Background(), d)
	require.NoError(t, err)

	// One auto recipient x full channel set; only the two preferred
	// channels produce messages.
	assert.Equal(t, len(core.AllChannels), result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Sent)
	require.Len(t, result.Messages, 2)
	for _, m := range result.Messages {
		assert.Equal(t, auto.ID, m.RecipientID)
	}
	assert.Empty(t, f.email.Sent())
}

func TestValidateRecipient(t *testing.T) {
	f := newFixture(t)

	ok := &core.Recipient{Name: "a", Phone: "+14155550100", Channels: []core.Channel{core.ChannelSMS}}
	assert.Empty(t, f.service.ValidateRecipient(ok))

	bad := &core.Recipient{}
	problems := f.service.ValidateRecipient(bad)
	assert.Len(t, problems, 3)

	wrongChannel := &core.Recipient{Name: "a", Email: "a@example.com", Channels: []core.Channel{core.ChannelSMS}}
	problems = f.service.ValidateRecipient(wrongChannel)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "no phone")
}

func TestStats_FoldsLedger(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r1 := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Email: "a@example.com", Active: true})

	f.email.FailWith(errors.New("smtp down"))

	channels := []core.Channel{core.ChannelWhatsApp, core.ChannelSMS, core.ChannelEmail}
	_, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{r1.ID}, channels, "", nil)
	require.NoError(t, err)

	stats, err := f.service.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSent)
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Equal(t, ChannelStats{Sent: 1}, stats.ByChannel[core.ChannelWhatsApp])
	assert.Equal(t, ChannelStats{Failed: 1}, stats.ByChannel[core.ChannelEmail])
	assert.Len(t, stats.Recent, 3)
}

func TestHistory_FiltersByRecipient(t *testing.T) {
	f := newFixture(t)
	f.addDetection("e1")
	r1 := f.recipients.Add(core.Recipient{Name: "a", Phone: "+14155550100", Active: true})
	r2 := f.recipients.Add(core.Recipient{Name: "b", Phone: "+14155550101", Active: true})

	_, err := f.service.DispatchBulk(context.Background(),
		[]string{"e1"}, []string{r1.ID, r2.ID}, []core.Channel{core.ChannelSMS}, "", nil)
	require.NoError(t, err)

	history, err := f.service.History(r1.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, r1.ID, history[0].RecipientID)
}
