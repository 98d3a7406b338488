package notifications

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/multierr"

	"github.com/claystudio/membership-backend/pkg/enums"
)

var (
	errTemplateRequired  = errors.New("notification template id required")
	errRecipientRequired = errors.New("notification recipient id required")
	errRecipientKind     = errors.New("notification recipient kind must be member or contact")
)

// Message is one transactional send addressed to a member or a contact.
type Message struct {
	TemplateID    string
	Kind          enums.NotificationKind
	RecipientID   string
	RecipientKind enums.RecipientKind
	Email         string
	Variables     map[string]string
}

// Validate checks the fields every notifier relies on.
func (m Message) Validate() error {
	if strings.TrimSpace(m.TemplateID) == "" {
		return errTemplateRequired
	}
	if strings.TrimSpace(m.RecipientID) == "" {
		return errRecipientRequired
	}
	switch m.RecipientKind {
	case enums.RecipientMember, enums.RecipientContact:
	default:
		return errRecipientKind
	}
	return nil
}

// Notifier delivers a message to the downstream mailer.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// FanOut sends every message to each notifier and combines their failures.
type FanOut []Notifier

func (f FanOut) Send(ctx context.Context, msg Message) error {
	var err error
	for _, n := range f {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, msg))
	}
	return err
}
