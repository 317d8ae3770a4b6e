package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const userCols = `id, name, email, password_hash, role, approval_status,
	approval_notes, profile, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&u.ApprovalStatus, &u.ApprovalNotes, &u.Profile, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Profile == nil {
		u.Profile = map[string]interface{}{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO app_user (id, name, email, password_hash, role, approval_status, profile)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.ApprovalStatus, u.Profile).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *repoPG) UpdateProfile(ctx context.Context, u *User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE app_user SET name = $2, profile = $3, updated_at = NOW()
		WHERE id = $1`, u.ID, u.Name, u.Profile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE app_user SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetApproval(ctx context.Context, id uuid.UUID, status string, notes string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE app_user SET approval_status = $2, approval_notes = $3, updated_at = NOW()
		WHERE id = $1 AND approval_status = 'pending'
		RETURNING `+userCols, id, status, notes)
	u, err := scanUser(row)
	if errors.Is(err, ErrNotFound) {
		// Either no such user, or the decision was already made.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrAlreadyDecided
		}
		return nil, ErrNotFound
	}
	return u, err
}

func (r *repoPG) ListPending(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM app_user WHERE approval_status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userCols+` FROM app_user
		WHERE approval_status = 'pending'
		ORDER BY created_at ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

type resetRepoPG struct{ pool *pgxpool.Pool }

func NewResetRepoPG(pool *pgxpool.Pool) ResetRepository {
	return &resetRepoPG{pool: pool}
}

func (r *resetRepoPG) Create(ctx context.Context, pr *PasswordReset) error {
	if pr.ID == uuid.Nil {
		pr.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset (id, user_id, otp_hash, expires_at)
		VALUES ($1,$2,$3,$4)`,
		pr.ID, pr.UserID, pr.OTPHash, pr.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *resetRepoPG) GetActive(ctx context.Context, userID uuid.UUID) (*PasswordReset, error) {
	var pr PasswordReset
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, otp_hash, expires_at, verified, consumed, created_at
		FROM password_reset
		WHERE user_id = $1 AND consumed = FALSE AND expires_at > NOW()
		ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&pr.ID, &pr.UserID, &pr.OTPHash, &pr.ExpiresAt, &pr.Verified, &pr.Consumed, &pr.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &pr, nil
}

func (r *resetRepoPG) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE password_reset SET verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *resetRepoPG) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE password_reset SET consumed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
