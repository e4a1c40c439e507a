package billing_test

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// fakeStore is an in-memory billing.Store.
type fakeStore struct {
	mu       sync.Mutex
	orgs     map[uuid.UUID]*organization.Organization
	members  map[uuid.UUID][]string
	writes   int
	writeErr error
}

func newFakeStore(orgs ...*organization.Organization) *fakeStore {
	s := &fakeStore{
		orgs:    make(map[uuid.UUID]*organization.Organization),
		members: make(map[uuid.UUID][]string),
	}
	for _, o := range orgs {
		s.orgs[o.ID] = o
	}
	return s
}

func (s *fakeStore) addMember(orgID uuid.UUID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[orgID] = append(s.members[orgID], userID)
}

func (s *fakeStore) org(id uuid.UUID) organization.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orgs[id]
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*organization.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, organization.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetBySubscriptionID(_ context.Context, subID string) (*organization.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if subID != "" && o.StripeSubscriptionID == subID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, organization.ErrNotFound
}

func (s *fakeStore) IsMember(_ context.Context, orgID uuid.UUID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.members[orgID], userID), nil
}

func (s *fakeStore) SetCustomerIDIfEmpty(_ context.Context, orgID uuid.UUID, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return "", s.writeErr
	}
	o, ok := s.orgs[orgID]
	if !ok {
		return "", organization.ErrNotFound
	}
	if o.StripeCustomerID == "" {
		o.StripeCustomerID = customerID
		s.writes++
	}
	return o.StripeCustomerID, nil
}

func (s *fakeStore) ApplySubscription(_ context.Context, orgID uuid.UUID, state organization.SubscriptionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	o, ok := s.orgs[orgID]
	if !ok {
		return organization.ErrNotFound
	}
	if state.SubscriptionID != "" {
		o.StripeSubscriptionID = state.SubscriptionID
	}
	o.SubscriptionStatus = state.Status
	o.CurrentPeriodEnd = state.CurrentPeriodEnd
	o.TrialEndsAt = state.TrialEndsAt
	s.writes++
	return nil
}

func (s *fakeStore) SetSubscriptionStatus(_ context.Context, orgID uuid.UUID, status organization.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	o, ok := s.orgs[orgID]
	if !ok {
		return organization.ErrNotFound
	}
	o.SubscriptionStatus = status
	s.writes++
	return nil
}
