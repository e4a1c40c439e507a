// Package organization owns organizations, their memberships and the
// persistent billing and credit state attached to them.
package organization

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the payment provider's subscription status.
// Values outside the known set are kept verbatim and grant no access.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// ParseStatus normalises a stored or provider status. Empty means none.
func ParseStatus(s string) SubscriptionStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusNone
	}
	return SubscriptionStatus(s)
}

// GrantsAccess reports whether the status unlocks paid features.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == StatusActive || s == StatusTrialing
}

func (s SubscriptionStatus) String() string { return string(s) }

// Role is a member's role inside an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Organization is a billing tenant: it owns the subscription, the credit
// balance and the seats.
type Organization struct {
	ID                   uuid.UUID
	Name                 string
	MaxSeats             int
	Credits              int
	InviteCode           string
	StripeCustomerID     string
	StripeSubscriptionID string
	SubscriptionStatus   SubscriptionStatus
	CurrentPeriodEnd     *time.Time
	TrialEndsAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (o *Organization) HasActiveSubscription() bool {
	return o.SubscriptionStatus.GrantsAccess()
}

// Membership links an identity-provider user to an organization. Email is
// captured from the session at join time for billing notices.
type Membership struct {
	OrganizationID uuid.UUID
	UserID         string
	Email          string
	Role           Role
	CreatedAt      time.Time
}

// SubscriptionState is the billing snapshot written by the reconciler.
// Nil times clear the stored value.
type SubscriptionState struct {
	SubscriptionID   string
	Status           SubscriptionStatus
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time
}

// Summary is the caller's view of their current organization.
type Summary struct {
	Organization
	Role        Role
	MemberCount int
}

// ImageSource tells how an image entered the library.
type ImageSource string

const (
	ImageSourceAI     ImageSource = "ai_generated"
	ImageSourceUpload ImageSource = "upload"
)

// ImageMetadata is stored as jsonb.
type ImageMetadata struct {
	RequestID       string   `json:"request_id,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

// Image rows are insert-only.
type Image struct {
	ID             uuid.UUID
	OrganizationID *uuid.UUID
	URL            string
	Source         ImageSource
	Prompt         string
	StoragePath    string
	Metadata       ImageMetadata
	CreatedAt      time.Time
}
