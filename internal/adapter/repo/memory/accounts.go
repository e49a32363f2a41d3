// Package memory provides an in-memory AccountStore for development mode and
// tests. The debit path mirrors the storage-layer contract: a conditional
// decrement under the store lock, never a separate read-then-write.
package memory

import (
	"fmt"
	"sync"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// AccountStore keeps usage accounts in a mutex-guarded map.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.UsageAccount
}

// NewAccountStore returns an empty in-memory store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.UsageAccount)}
}

// Seed inserts or replaces an account. Intended for startup and tests.
func (s *AccountStore) Seed(a domain.UsageAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = a
}

// Get loads a usage account by user id.
func (s *AccountStore) Get(_ domain.Context, userID string) (domain.UsageAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return domain.UsageAccount{}, fmt.Errorf("op=account.get: %w", domain.ErrAccountUnavailable)
	}
	return a, nil
}

// DebitOne decrements only when credits remain, returning the new balance.
func (s *AccountStore) DebitOne(_ domain.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("op=account.debit: %w", domain.ErrAccountUnavailable)
	}
	if a.Credits <= 0 {
		return 0, fmt.Errorf("op=account.debit: %w", domain.ErrInsufficientCredits)
	}
	a.Credits--
	s.accounts[userID] = a
	return a.Credits, nil
}

// Credit tops up a balance, provisioning a student account on first use.
func (s *AccountStore) Credit(_ domain.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("op=account.credit: amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		a = domain.UsageAccount{UserID: userID, Role: domain.RoleStudent}
	}
	a.Credits += amount
	s.accounts[userID] = a
	return a.Credits, nil
}
