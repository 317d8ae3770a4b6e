package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Roles. Role is immutable after creation.
const (
	RolePatient  = "patient"
	RoleDoctor   = "doctor"
	RoleHospital = "hospital"
	RoleAdmin    = "admin"
)

// Approval statuses. pending transitions to approved or rejected exactly
// once, admin-driven.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

var (
	ErrNotFound           = errors.New("identity: user not found")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountRejected    = errors.New("identity: account has been rejected")
	ErrAlreadyDecided     = errors.New("identity: approval already decided")
	ErrValidation         = errors.New("identity: invalid input")
	ErrInvalidOTP         = errors.New("identity: invalid or expired OTP")
	ErrUnavailable        = errors.New("identity: store unavailable")
)

// User is an authenticated principal of the portal.
type User struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	Name           string                 `db:"name" json:"name"`
	Email          string                 `db:"email" json:"email"`
	PasswordHash   string                 `db:"password_hash" json:"-"`
	Role           string                 `db:"role" json:"role"`
	ApprovalStatus string                 `db:"approval_status" json:"approvalStatus"`
	ApprovalNotes  *string                `db:"approval_notes" json:"approvalNotes,omitempty"`
	Profile        map[string]interface{} `db:"profile" json:"profile"`
	CreatedAt      time.Time              `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updatedAt"`
}

func validRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleHospital:
		return true
	}
	// Admin accounts are seeded, never self-registered.
	return false
}

// requiresApproval reports whether the role needs an admin decision before
// the account becomes usable.
func requiresApproval(role string) bool {
	return role == RoleDoctor || role == RoleHospital
}

// PasswordReset is one OTP-based reset attempt. The OTP itself is stored
// only as a bcrypt hash.
type PasswordReset struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	OTPHash   string    `db:"otp_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Verified  bool      `db:"verified"`
	Consumed  bool      `db:"consumed"`
	CreatedAt time.Time `db:"created_at"`
}
