package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/pkg/email"
	"github.com/dmitrymomot/creatorkit/pkg/email/templates"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

var ErrNoOwnerEmail = errors.New("billing: organization owner has no e-mail")

// OwnerLookup finds who receives billing notices.
type OwnerLookup interface {
	OwnerEmail(ctx context.Context, orgID uuid.UUID) (string, error)
}

// EmailNotifier e-mails the organization owner.
type EmailNotifier struct {
	sender     email.Sender
	owners     OwnerLookup
	billingURL string
}

// NewEmailNotifier sends notices from sender to the address owners returns.
// billingURL is linked from every message.
func NewEmailNotifier(sender email.Sender, owners OwnerLookup, billingURL string) *EmailNotifier {
	return &EmailNotifier{sender: sender, owners: owners, billingURL: billingURL}
}

// PaymentFailed e-mails the owner of org. It returns ErrNoOwnerEmail when
// the owner has no address on file.
func (n *EmailNotifier) PaymentFailed(ctx context.Context, org *organization.Organization) error {
	to, err := n.owners.OwnerEmail(ctx, org.ID)
	if err != nil {
		return err
	}
	if to == "" {
		return ErrNoOwnerEmail
	}

	body, err := templates.Render(ctx, templates.PaymentFailed(org.Name, n.billingURL))
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  "Payment failed for " + org.Name,
		BodyHTML: body,
		Tag:      "payment-failed",
	})
}
