package organization

import "errors"

var (
	ErrNotFound             = errors.New("organization not found")
	ErrInviteNotFound       = errors.New("invite code not found")
	ErrSubscriptionInactive = errors.New("organization subscription is not active")
	ErrAlreadyMember        = errors.New("user is already a member of this organization")
	ErrSeatLimitReached     = errors.New("organization seat limit reached")
	ErrNotMember            = errors.New("user is not a member of this organization")
	ErrInsufficientCredits  = errors.New("organization has no credits left")
	ErrInvalidName          = errors.New("organization name is invalid")
	ErrInvalidInviteCode    = errors.New("invite code is invalid")

	ErrFailedToCreate     = errors.New("failed to create organization")
	ErrFailedToLoad       = errors.New("failed to load organization")
	ErrFailedToAddMember  = errors.New("failed to add organization member")
	ErrFailedToUpdate     = errors.New("failed to update organization")
	ErrFailedToStoreImage = errors.New("failed to store image")
	ErrFailedToGenerateQR = errors.New("failed to generate invite QR code")
)
