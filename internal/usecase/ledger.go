// Package usecase contains the engine's application services: the usage gate
// and the feature executors the UI layer calls.
package usecase

import (
	"fmt"

	"github.com/TeacherMada/tutor-engine/internal/adapter/observability"
	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Ledger is the usage gate: it admits or denies a request before any provider
// call, and deducts exactly once after a provider call succeeds.
type Ledger struct {
	store domain.AccountStore
}

// NewLedger constructs a Ledger over an account store.
func NewLedger(store domain.AccountStore) *Ledger {
	return &Ledger{store: store}
}

// CheckAdmission returns nil when the user may issue a provider call. Admin
// accounts are always admitted. An unloadable account is a denial
// (ErrAccountUnavailable), not a provider error.
func (l *Ledger) CheckAdmission(ctx domain.Context, userID string) error {
	acct, err := l.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if acct.IsAdmin() {
		return nil
	}
	if acct.Credits <= 0 {
		return fmt.Errorf("op=ledger.check: %w", domain.ErrInsufficientCredits)
	}
	return nil
}

// Deduct charges one credit after a usable provider result. Admin accounts
// are never decremented. The store's DebitOne is atomic and conditional, so a
// concurrent request racing past admission still cannot drive the balance
// below zero.
func (l *Ledger) Deduct(ctx domain.Context, userID string) (int64, error) {
	acct, err := l.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acct.IsAdmin() {
		return acct.Credits, nil
	}
	balance, err := l.store.DebitOne(ctx, userID)
	if err != nil {
		return 0, err
	}
	observability.CreditsDeductedTotal.Inc()
	return balance, nil
}
