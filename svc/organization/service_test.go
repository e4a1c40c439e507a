package organization_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/pkg/invitecode"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateWithOwner(ctx context.Context, org *organization.Organization, owner organization.Membership) error {
	return m.Called(ctx, org, owner).Error(0)
}

func (m *mockStore) GetByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*organization.Organization), args.Error(1)
}

func (m *mockStore) GetByInviteCode(ctx context.Context, code string) (*organization.Organization, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*organization.Organization), args.Error(1)
}

func (m *mockStore) SummaryForUser(ctx context.Context, userID string) (*organization.Summary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*organization.Summary), args.Error(1)
}

func (m *mockStore) CountMembers(ctx context.Context, orgID uuid.UUID) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) AddMember(ctx context.Context, mem organization.Membership) error {
	return m.Called(ctx, mem).Error(0)
}

func newService(store organization.Store) *organization.Service {
	return organization.NewService(store, organization.Config{
		DefaultCredits:  10,
		DefaultMaxSeats: 3,
		JoinURL:         "https://app.example.com/join",
	}, logger.Nop())
}

func activeOrg() *organization.Organization {
	return &organization.Organization{
		ID:                 uuid.New(),
		Name:               "Studio",
		MaxSeats:           3,
		InviteCode:         "brave-otter-0a1b2c",
		SubscriptionStatus: organization.StatusActive,
	}
}

func TestService_Join(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("adds member", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		org := activeOrg()
		store.On("GetByInviteCode", ctx, "brave-otter-0a1b2c").Return(org, nil)
		store.On("IsMember", ctx, org.ID, "user-2").Return(false, nil)
		store.On("CountMembers", ctx, org.ID).Return(2, nil)
		store.On("AddMember", ctx, organization.Membership{
			OrganizationID: org.ID,
			UserID:         "user-2",
			Email:          "u2@example.com",
			Role:           organization.RoleMember,
		}).Return(nil)

		got, err := newService(store).Join(ctx, "user-2", "u2@example.com", " Brave-Otter-0A1B2C ")
		require.NoError(t, err)
		assert.Equal(t, org.ID, got.ID)
		store.AssertExpectations(t)
	})

	t.Run("unknown code", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("GetByInviteCode", ctx, "nope").Return(nil, organization.ErrNotFound)

		_, err := newService(store).Join(ctx, "user-2", "", "nope")
		assert.ErrorIs(t, err, organization.ErrInviteNotFound)
	})

	t.Run("empty code", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		_, err := newService(store).Join(ctx, "user-2", "", "   ")
		assert.ErrorIs(t, err, organization.ErrInvalidInviteCode)
		store.AssertNotCalled(t, "GetByInviteCode", mock.Anything, mock.Anything)
	})

	t.Run("inactive subscription", func(t *testing.T) {
		t.Parallel()
		for _, status := range []organization.SubscriptionStatus{
			organization.StatusNone, organization.StatusPastDue, organization.StatusCanceled, "incomplete",
		} {
			store := &mockStore{}
			org := activeOrg()
			org.SubscriptionStatus = status
			store.On("GetByInviteCode", ctx, org.InviteCode).Return(org, nil)

			_, err := newService(store).Join(ctx, "user-2", "", org.InviteCode)
			assert.ErrorIs(t, err, organization.ErrSubscriptionInactive, status)
			store.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything)
		}
	})

	t.Run("already member", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		org := activeOrg()
		store.On("GetByInviteCode", ctx, org.InviteCode).Return(org, nil)
		store.On("IsMember", ctx, org.ID, "user-1").Return(true, nil)

		_, err := newService(store).Join(ctx, "user-1", "", org.InviteCode)
		assert.ErrorIs(t, err, organization.ErrAlreadyMember)
		store.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything)
	})

	t.Run("seat limit reached does not insert", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		org := activeOrg()
		store.On("GetByInviteCode", ctx, org.InviteCode).Return(org, nil)
		store.On("IsMember", ctx, org.ID, "user-4").Return(false, nil)
		store.On("CountMembers", ctx, org.ID).Return(3, nil)

		_, err := newService(store).Join(ctx, "user-4", "", org.InviteCode)
		assert.ErrorIs(t, err, organization.ErrSeatLimitReached)
		store.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything)
	})
}

func TestService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates with owner and defaults", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("CreateWithOwner", ctx, mock.MatchedBy(func(o *organization.Organization) bool {
			return o.Name == "Studio" && o.Credits == 10 && o.MaxSeats == 3 &&
				o.SubscriptionStatus == organization.StatusNone && invitecode.Valid(o.InviteCode)
		}), mock.MatchedBy(func(m organization.Membership) bool {
			return m.UserID == "user-1" && m.Role == organization.RoleOwner
		})).Return(nil)

		org, err := newService(store).Create(ctx, "user-1", "owner@example.com", "  Studio ")
		require.NoError(t, err)
		assert.Equal(t, "Studio", org.Name)
		assert.NotEqual(t, uuid.Nil, org.ID)
		store.AssertExpectations(t)
	})

	t.Run("retries taken invite code", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("CreateWithOwner", ctx, mock.Anything, mock.Anything).Return(organization.ErrInviteCodeTaken).Once()
		store.On("CreateWithOwner", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := newService(store).Create(ctx, "user-1", "", "Studio")
		require.NoError(t, err)
		store.AssertNumberOfCalls(t, "CreateWithOwner", 2)
	})

	t.Run("invalid name", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		_, err := newService(store).Create(ctx, "user-1", "", " ")
		assert.ErrorIs(t, err, organization.ErrInvalidName)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("CreateWithOwner", ctx, mock.Anything, mock.Anything).Return(errors.Join(organization.ErrFailedToCreate, errors.New("boom")))

		_, err := newService(store).Create(ctx, "user-1", "", "Studio")
		assert.ErrorIs(t, err, organization.ErrFailedToCreate)
	})
}

func TestService_InviteQRCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("member gets png", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		org := activeOrg()
		store.On("IsMember", ctx, org.ID, "user-1").Return(true, nil)
		store.On("GetByID", ctx, org.ID).Return(org, nil)

		png, err := newService(store).InviteQRCode(ctx, "user-1", org.ID, 128)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	})

	t.Run("non member forbidden", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		orgID := uuid.New()
		store.On("IsMember", ctx, orgID, "user-9").Return(false, nil)

		_, err := newService(store).InviteQRCode(ctx, "user-9", orgID, 0)
		assert.ErrorIs(t, err, organization.ErrNotMember)
		store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestService_JoinLink(t *testing.T) {
	t.Parallel()
	svc := newService(&mockStore{})
	assert.Equal(t, "https://app.example.com/join?code=brave-otter-0a1b2c", svc.JoinLink("brave-otter-0a1b2c"))
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, organization.StatusNone, organization.ParseStatus(""))
	assert.Equal(t, organization.StatusActive, organization.ParseStatus(" Active "))
	assert.Equal(t, organization.SubscriptionStatus("incomplete_expired"), organization.ParseStatus("incomplete_expired"))
	assert.True(t, organization.StatusTrialing.GrantsAccess())
	assert.False(t, organization.ParseStatus("incomplete").GrantsAccess())
}
