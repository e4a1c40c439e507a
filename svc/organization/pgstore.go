package organization

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/pkg/pg"
)

var errInviteCodeTaken = errors.New("invite code already taken")

const orgColumns = `o.id, o.name, o.max_seats, o.credits, o.invite_code,
	o.stripe_customer_id, o.stripe_subscription_id, o.subscription_status,
	o.subscription_current_period_end, o.trial_ends_at, o.created_at, o.updated_at`

// PGStore persists organizations, memberships and images in Postgres.
// It backs the organization, billing, gate and generation services.
type PGStore struct {
	db *sql.DB
}

// NewPGStore returns a store over db, normally from pg.OpenDB.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner, extra ...any) (*Organization, error) {
	var (
		o              Organization
		customerID     sql.NullString
		subscriptionID sql.NullString
		status         sql.NullString
		periodEnd      sql.NullTime
		trialEnd       sql.NullTime
	)
	dest := []any{
		&o.ID, &o.Name, &o.MaxSeats, &o.Credits, &o.InviteCode,
		&customerID, &subscriptionID, &status,
		&periodEnd, &trialEnd, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	o.StripeCustomerID = customerID.String
	o.StripeSubscriptionID = subscriptionID.String
	o.SubscriptionStatus = ParseStatus(status.String)
	o.CurrentPeriodEnd = timePtr(periodEnd)
	o.TrialEndsAt = timePtr(trialEnd)
	return &o, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateWithOwner inserts the organization and its owner membership in one
// transaction and fills the timestamps on org.
func (s *PGStore) CreateWithOwner(ctx context.Context, org *Organization, owner Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(ErrFailedToCreate, err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, max_seats, credits, invite_code, subscription_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		org.ID, org.Name, org.MaxSeats, org.Credits, org.InviteCode, StatusNone,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errInviteCodeTaken
		}
		return errors.Join(ErrFailedToCreate, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)`,
		org.ID, owner.UserID, nullString(owner.Email), RoleOwner,
	); err != nil {
		return errors.Join(ErrFailedToCreate, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Join(ErrFailedToCreate, err)
	}
	org.SubscriptionStatus = StatusNone
	return nil
}

func (s *PGStore) getOne(ctx context.Context, where string, arg any) (*Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations o WHERE `+where, arg)
	org, err := scanOrganization(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return org, nil
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.getOne(ctx, `o.id = $1`, id)
}

func (s *PGStore) GetByInviteCode(ctx context.Context, code string) (*Organization, error) {
	return s.getOne(ctx, `o.invite_code = $1`, code)
}

func (s *PGStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Organization, error) {
	return s.getOne(ctx, `o.stripe_subscription_id = $1`, subscriptionID)
}

// SummaryForUser returns the organization the user joined most recently.
func (s *PGStore) SummaryForUser(ctx context.Context, userID string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orgColumns+`, m.role,
			(SELECT count(*) FROM memberships c WHERE c.organization_id = o.id)
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC
		LIMIT 1`, userID)

	var (
		role  string
		count int
	)
	org, err := scanOrganization(row, &role, &count)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return &Summary{Organization: *org, Role: Role(role), MemberCount: count}, nil
}

func (s *PGStore) CountMembers(ctx context.Context, orgID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM memberships WHERE organization_id = $1`, orgID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Join(ErrFailedToLoad, err)
	}
	return n, nil
}

func (s *PGStore) IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE organization_id = $1 AND user_id = $2)`,
		orgID, userID,
	).Scan(&ok)
	if err != nil {
		return false, errors.Join(ErrFailedToLoad, err)
	}
	return ok, nil
}

// AddMember inserts m only while the organization still has a free seat.
func (s *PGStore) AddMember(ctx context.Context, m Membership) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, email, role)
		SELECT $1, $2, $3, $4
		WHERE (SELECT count(*) FROM memberships WHERE organization_id = $1)
			< (SELECT max_seats FROM organizations WHERE id = $1)`,
		m.OrganizationID, m.UserID, nullString(m.Email), m.Role,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrAlreadyMember
		}
		return errors.Join(ErrFailedToAddMember, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Join(ErrFailedToAddMember, err)
	}
	if n == 0 {
		return ErrSeatLimitReached
	}
	return nil
}

// OwnerEmail returns the e-mail captured for the organization owner, or an
// empty string when none was recorded.
func (s *PGStore) OwnerEmail(ctx context.Context, orgID uuid.UUID) (string, error) {
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT email FROM memberships
		WHERE organization_id = $1 AND role = $2
		ORDER BY created_at
		LIMIT 1`, orgID, RoleOwner,
	).Scan(&email)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrNotFound
		}
		return "", errors.Join(ErrFailedToLoad, err)
	}
	return email.String, nil
}

// SetCustomerIDIfEmpty stores customerID unless the organization already has
// one, and returns whichever id is stored afterwards.
func (s *PGStore) SetCustomerIDIfEmpty(ctx context.Context, orgID uuid.UUID, customerID string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `
		UPDATE organizations
		SET stripe_customer_id = $2, updated_at = now()
		WHERE id = $1 AND stripe_customer_id IS NULL
		RETURNING stripe_customer_id`, orgID, customerID,
	).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if !pg.IsNotFoundError(err) {
		return "", errors.Join(ErrFailedToUpdate, err)
	}

	var existing sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT stripe_customer_id FROM organizations WHERE id = $1`, orgID,
	).Scan(&existing)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrNotFound
		}
		return "", errors.Join(ErrFailedToLoad, err)
	}
	return existing.String, nil
}

// ApplySubscription overwrites the billing snapshot. An empty subscription
// id keeps the stored one. updated_at only moves when the snapshot changes,
// so replaying an event leaves the row untouched.
func (s *PGStore) ApplySubscription(ctx context.Context, orgID uuid.UUID, state SubscriptionState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET stripe_subscription_id = COALESCE($2, stripe_subscription_id),
			subscription_status = $3,
			subscription_current_period_end = $4,
			trial_ends_at = $5,
			updated_at = CASE
				WHEN (stripe_subscription_id, subscription_status, subscription_current_period_end, trial_ends_at)
					IS DISTINCT FROM (COALESCE($2, stripe_subscription_id), $3, $4, $5)
				THEN now() ELSE updated_at END
		WHERE id = $1`,
		orgID, nullString(state.SubscriptionID), state.Status,
		nullTime(state.CurrentPeriodEnd), nullTime(state.TrialEndsAt),
	)
	return checkUpdated(res, err)
}

// SetSubscriptionStatus changes only the status; see ApplySubscription for
// the updated_at rule.
func (s *PGStore) SetSubscriptionStatus(ctx context.Context, orgID uuid.UUID, status SubscriptionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET subscription_status = $2,
			updated_at = CASE WHEN subscription_status IS DISTINCT FROM $2 THEN now() ELSE updated_at END
		WHERE id = $1`, orgID, status,
	)
	return checkUpdated(res, err)
}

func checkUpdated(res sql.Result, err error) error {
	if err != nil {
		return errors.Join(ErrFailedToUpdate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Join(ErrFailedToUpdate, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementCredit consumes one credit atomically and returns the balance
// left. It never drives the balance below zero.
func (s *PGStore) DecrementCredit(ctx context.Context, orgID uuid.UUID) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE organizations
		SET credits = credits - 1, updated_at = now()
		WHERE id = $1 AND credits > 0
		RETURNING credits`, orgID,
	).Scan(&remaining)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, ErrInsufficientCredits
		}
		return 0, errors.Join(ErrFailedToUpdate, err)
	}
	return remaining, nil
}

func (s *PGStore) InsertImage(ctx context.Context, img *Image) error {
	meta, err := json.Marshal(img.Metadata)
	if err != nil {
		return errors.Join(ErrFailedToStoreImage, err)
	}
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}

	var orgID uuid.NullUUID
	if img.OrganizationID != nil {
		orgID = uuid.NullUUID{UUID: *img.OrganizationID, Valid: true}
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO images (id, organization_id, url, source, prompt, storage_path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		img.ID, orgID, img.URL, img.Source, nullString(img.Prompt), img.StoragePath, meta,
	).Scan(&img.CreatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return ErrNotFound
		}
		return errors.Join(ErrFailedToStoreImage, err)
	}
	return nil
}
