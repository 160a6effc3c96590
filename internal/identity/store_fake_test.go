package identity_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.homestash.io/api/domain"
)

// errConflict stands in for the structured retryable conflict the
// postgres store reports (serialization failure or unique violation).
var errConflict = errors.New("unique_violation")

// fakeStore is an in-memory domain.UserStore. WithinTx runs the
// callback against the same map under a lock, which is enough to drive
// the engine's control flow; conflict behavior is injected via hooks.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*domain.User // by local id

	// beforeCreate, when set, runs once before the next CreateUser and
	// may return an error to inject a storage conflict.
	beforeCreate func(s *fakeStore, u *domain.User) error

	softDeleteCalls []softDeleteCall
}

type softDeleteCall struct {
	externalID string
	at         time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*domain.User{}}
}

func (s *fakeStore) add(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *fakeStore) byID(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *fakeStore) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupByExternalID(externalID), nil
}

func (s *fakeStore) lookupByExternalID(externalID string) *domain.User {
	for _, u := range s.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) lookupByEmail(email string) *domain.User {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) WithinTx(_ context.Context, fn func(tx domain.UserTx) error) error {
	return fn((*fakeTx)(s))
}

func (s *fakeStore) SoftDeleteByExternalID(_ context.Context, externalID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softDeleteCalls = append(s.softDeleteCalls, softDeleteCall{externalID: externalID, at: at})
	var rows int64
	for _, u := range s.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			u.IsActive = false
			deletedAt := at
			u.DeletedAt = &deletedAt
			u.UpdatedAt = at
			rows++
		}
	}
	return rows, nil
}

func (s *fakeStore) IsRetryableConflict(err error) bool {
	return errors.Is(err, errConflict)
}

// fakeTx is the transactional view over fakeStore.
type fakeTx fakeStore

func (t *fakeTx) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	s := (*fakeStore)(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupByExternalID(externalID), nil
}

func (t *fakeTx) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s := (*fakeStore)(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupByEmail(email), nil
}

func (t *fakeTx) CreateUser(_ context.Context, user *domain.User) error {
	s := (*fakeStore)(t)
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		if err := hook(s, user); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupByEmail(user.Email) != nil || (user.ExternalID != nil && s.lookupByExternalID(*user.ExternalID) != nil) {
		return errConflict
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (t *fakeTx) UpdateUser(_ context.Context, user *domain.User) error {
	s := (*fakeStore)(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return errors.New("user not found for update")
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}
