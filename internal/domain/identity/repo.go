package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// SetApproval moves a pending user to approved or rejected. It fails
	// with ErrAlreadyDecided when the status is no longer pending: the
	// transition happens exactly once.
	SetApproval(ctx context.Context, id uuid.UUID, status string, notes string) (*User, error)
	ListPending(ctx context.Context, limit, offset int) ([]*User, int, error)
}

type ResetRepository interface {
	Create(ctx context.Context, r *PasswordReset) error
	// GetActive returns the newest unconsumed, unexpired reset for the user.
	GetActive(ctx context.Context, userID uuid.UUID) (*PasswordReset, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	MarkConsumed(ctx context.Context, id uuid.UUID) error
}
