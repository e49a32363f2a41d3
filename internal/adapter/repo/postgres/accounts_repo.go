package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// PgxPool is the minimal pool surface the repos need; tests stub it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AccountRepo persists and debits usage accounts.
type AccountRepo struct{ Pool PgxPool }

// NewAccountRepo constructs an AccountRepo with the given pool.
func NewAccountRepo(p PgxPool) *AccountRepo { return &AccountRepo{Pool: p} }

// Get loads a usage account by user id.
func (r *AccountRepo) Get(ctx domain.Context, userID string) (domain.UsageAccount, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Get")
	defer span.End()
	q := `SELECT user_id, credits, role FROM accounts WHERE user_id=$1`
	row := r.Pool.QueryRow(ctx, q, userID)
	var a domain.UsageAccount
	if err := row.Scan(&a.UserID, &a.Credits, &a.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UsageAccount{}, fmt.Errorf("op=account.get: %w", domain.ErrAccountUnavailable)
		}
		return domain.UsageAccount{}, fmt.Errorf("op=account.get: %w: %w", domain.ErrAccountUnavailable, err)
	}
	return a, nil
}

// DebitOne is a single atomic conditional decrement: the row is only updated
// when credits remain, so two concurrent requests can never both spend the
// last credit. Returns the new balance.
func (r *AccountRepo) DebitOne(ctx domain.Context, userID string) (int64, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.DebitOne")
	defer span.End()
	q := `UPDATE accounts SET credits = credits - 1, updated_at = $2 WHERE user_id = $1 AND credits > 0 RETURNING credits`
	row := r.Pool.QueryRow(ctx, q, userID, time.Now().UTC())
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("op=account.debit: %w", domain.ErrInsufficientCredits)
		}
		return 0, fmt.Errorf("op=account.debit: %w", err)
	}
	return balance, nil
}

// Credit tops up a user's balance, provisioning a student account on first
// use. Returns the new balance.
func (r *AccountRepo) Credit(ctx domain.Context, userID string, amount int64) (int64, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Credit")
	defer span.End()
	if amount <= 0 {
		return 0, fmt.Errorf("op=account.credit: amount must be positive")
	}
	q := `INSERT INTO accounts (id, user_id, credits, role, created_at, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $5)
	      ON CONFLICT (user_id) DO UPDATE SET credits = accounts.credits + EXCLUDED.credits, updated_at = EXCLUDED.updated_at
	      RETURNING credits`
	row := r.Pool.QueryRow(ctx, q, uuid.New().String(), userID, amount, domain.RoleStudent, time.Now().UTC())
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, fmt.Errorf("op=account.credit: %w", err)
	}
	return balance, nil
}
