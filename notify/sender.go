// Package notify implements the outbound alert channels. Each channel is a
// Sender; the dispatch engine treats them uniformly and never lets one
// channel's failure abort a batch.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"trailguard/core"
)

// Sender delivers one alert message to one recipient over a single channel.
type Sender interface {
	// Channel identifies which channel this sender serves.
	Channel() core.Channel

	// Validate reports whether the recipient carries the contact field this
	// channel requires. Returns core.ErrMissingContactField wrapped with
	// detail when it does not.
	Validate(r *core.Recipient) error

	// Send delivers the message text and returns the provider's message id
	// when the provider supplies one.
	Send(ctx context.Context, r *core.Recipient, text string) (string, error)
}

var validate = validator.New()

func requirePhone(r *core.Recipient, channel core.Channel) error {
	if strings.TrimSpace(r.Phone) == "" {
		return fmt.Errorf("%w: recipient %s has no phone for %s", core.ErrMissingContactField, r.ID, channel)
	}
	if err := validate.Var(r.Phone, "e164"); err != nil {
		return fmt.Errorf("%w: recipient %s phone %q is not E.164", core.ErrMissingContactField, r.ID, r.Phone)
	}
	return nil
}

func requireEmail(r *core.Recipient) error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: recipient %s has no email address", core.ErrMissingContactField, r.ID)
	}
	if err := validate.Var(r.Email, "email"); err != nil {
		return fmt.Errorf("%w: recipient %s email %q is malformed", core.ErrMissingContactField, r.ID, r.Email)
	}
	return nil
}
