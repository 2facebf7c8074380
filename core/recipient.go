package core

import "time"

// Channel identifies one outbound notification channel.
type Channel string

const (
	// ChannelWhatsApp delivers via a WhatsApp-style messaging provider.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelSMS delivers via a transactional SMS provider.
	ChannelSMS Channel = "sms"
	// ChannelEmail delivers via SMTP.
	ChannelEmail Channel = "email"
)

// AllChannels is the full channel set used by automatic dispatch.
var AllChannels = []Channel{ChannelWhatsApp, ChannelSMS, ChannelEmail}

// IsValid checks if the channel is one of the known channel types.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail:
		return true
	default:
		return false
	}
}

// Recipient is a notification target managed by the recipient ledger.
// Validation is the dispatch engine's responsibility, not the ledger's.
type Recipient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Channels  []Channel `json:"channels"`
	Active    bool      `json:"active"`
	AutoAlert bool      `json:"auto_alert"`
	CreatedAt time.Time `json:"created_at"`
}

// Prefers reports whether the recipient has the channel in their ordered
// preference set.
func (r *Recipient) Prefers(c Channel) bool {
	for _, pc := range r.Channels {
		if pc == c {
			return true
		}
	}
	return false
}

// RecipientUpdate carries a partial update with merge semantics: nil fields
// are left untouched. ID and CreatedAt are never mutated.
type RecipientUpdate struct {
	Name      *string    `json:"name,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Channels  *[]Channel `json:"channels,omitempty"`
	Active    *bool      `json:"active,omitempty"`
	AutoAlert *bool      `json:"auto_alert,omitempty"`
}
