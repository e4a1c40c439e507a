package organization

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/pkg/invitecode"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/qrcode"
)

// MaxNameLength bounds organization names in runes.
const MaxNameLength = 100

const inviteCodeAttempts = 3

// Config holds defaults applied to new organizations.
type Config struct {
	DefaultCredits  int    `env:"ORG_DEFAULT_CREDITS" envDefault:"0"`
	DefaultMaxSeats int    `env:"ORG_DEFAULT_MAX_SEATS" envDefault:"5"`
	JoinURL         string `env:"ORG_JOIN_URL" envDefault:"http://localhost:8080/join"`
}

// Store is the persistence the service needs.
type Store interface {
	CreateWithOwner(ctx context.Context, org *Organization, owner Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetByInviteCode(ctx context.Context, code string) (*Organization, error)
	SummaryForUser(ctx context.Context, userID string) (*Summary, error)
	CountMembers(ctx context.Context, orgID uuid.UUID) (int, error)
	IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error)
	AddMember(ctx context.Context, m Membership) error
}

// Service creates organizations and manages membership.
type Service struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewService panics when store is nil.
func NewService(store Store, cfg Config, log *slog.Logger) *Service {
	if store == nil {
		panic("organization: store is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.DefaultMaxSeats <= 0 {
		cfg.DefaultMaxSeats = 1
	}
	if cfg.DefaultCredits < 0 {
		cfg.DefaultCredits = 0
	}
	return &Service{store: store, cfg: cfg, logger: log.With(logger.Component("organization"))}
}

// Create makes a new organization with status none and the caller as owner.
func (s *Service) Create(ctx context.Context, userID, email, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrInvalidName
	}

	org := &Organization{
		ID:                 uuid.New(),
		Name:               name,
		MaxSeats:           s.cfg.DefaultMaxSeats,
		Credits:            s.cfg.DefaultCredits,
		SubscriptionStatus: StatusNone,
	}
	owner := Membership{OrganizationID: org.ID, UserID: userID, Email: email, Role: RoleOwner}

	for range inviteCodeAttempts {
		org.InviteCode = invitecode.Generate()
		err := s.store.CreateWithOwner(ctx, org, owner)
		if errors.Is(err, errInviteCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "organization created",
			logger.OrganizationID(org.ID), logger.UserID(userID))
		return org, nil
	}
	return nil, errors.Join(ErrFailedToCreate, errInviteCodeTaken)
}

// Join adds the caller to the organization owning inviteCode. The
// organization must have a subscription granting access and a free seat.
func (s *Service) Join(ctx context.Context, userID, email, inviteCode string) (*Organization, error) {
	code := invitecode.Normalize(inviteCode)
	if code == "" {
		return nil, ErrInvalidInviteCode
	}

	org, err := s.store.GetByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}

	if !org.HasActiveSubscription() {
		return nil, ErrSubscriptionInactive
	}

	member, err := s.store.IsMember(ctx, org.ID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	count, err := s.store.CountMembers(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	if count >= org.MaxSeats {
		return nil, ErrSeatLimitReached
	}

	if err := s.store.AddMember(ctx, Membership{
		OrganizationID: org.ID,
		UserID:         userID,
		Email:          email,
		Role:           RoleMember,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member joined organization",
		logger.OrganizationID(org.ID), logger.UserID(userID))
	return org, nil
}

// ForUser returns the caller's current organization.
func (s *Service) ForUser(ctx context.Context, userID string) (*Summary, error) {
	return s.store.SummaryForUser(ctx, userID)
}

func (s *Service) IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error) {
	return s.store.IsMember(ctx, orgID, userID)
}

// InviteQRCode renders a PNG QR code of the join link. Members only.
func (s *Service) InviteQRCode(ctx context.Context, userID string, orgID uuid.UUID, size int) ([]byte, error) {
	member, err := s.store.IsMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	org, err := s.store.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Generate(s.JoinLink(org.InviteCode), size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerateQR, err)
	}
	return png, nil
}

// JoinLink is the URL new members open to join with code.
func (s *Service) JoinLink(code string) string {
	u, err := url.Parse(s.cfg.JoinURL)
	if err != nil {
		return s.cfg.JoinURL + "?code=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
