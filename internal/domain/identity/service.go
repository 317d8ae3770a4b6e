package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carevault/carevault/internal/domain/audit"
	"github.com/carevault/carevault/internal/platform/auth"
)

// Auditor is the slice of the audit recorder the service needs.
type Auditor interface {
	Append(ctx context.Context, e *audit.Entry) (string, error)
}

type Service struct {
	repo    Repository
	resets  ResetRepository
	tokens  *auth.TokenIssuer
	auditor Auditor
	log     zerolog.Logger
	now     func() time.Time
	otpTTL  time.Duration
}

func NewService(repo Repository, resets ResetRepository, tokens *auth.TokenIssuer, auditor Auditor, log zerolog.Logger, otpTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		resets:  resets,
		tokens:  tokens,
		auditor: auditor,
		log:     log.With().Str("component", "identity").Logger(),
		now:     time.Now,
		otpTTL:  otpTTL,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Register creates a user. Patients are usable immediately; doctor and
// hospital accounts start pending and stay capability-free until an admin
// decides.
func (s *Service) Register(ctx context.Context, name, email, password, role string, profile map[string]interface{}) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if !validRole(role) {
		return nil, fmt.Errorf("%w: role %q cannot self-register", ErrValidation, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	status := ApprovalApproved
	if requiresApproval(role) {
		status = ApprovalPending
	}

	u := &User{
		Name:           name,
		Email:          email,
		PasswordHash:   string(hash),
		Role:           role,
		ApprovalStatus: status,
		Profile:        profile,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues an access token. A rejected account
// cannot log in; a pending account receives a token that only reaches the
// awaiting-approval surface.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.audit(ctx, &u.ID, audit.ActionLogin, u.ID.String(), audit.StatusFailure, "bad credentials")
		return "", nil, ErrInvalidCredentials
	}
	if u.ApprovalStatus == ApprovalRejected {
		s.audit(ctx, &u.ID, audit.ActionLogin, u.ID.String(), audit.StatusFailure, "account rejected")
		return "", nil, ErrAccountRejected
	}

	token, err := s.tokens.Issue(u.ID.String(), u.Role, u.ApprovalStatus, s.now())
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	s.audit(ctx, &u.ID, audit.ActionLogin, u.ID.String(), audit.StatusSuccess, "")
	return token, u, nil
}

// Logout records the end of a session. Token invalidation is client-side:
// the session store drops all state unconditionally.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) {
	s.audit(ctx, &userID, audit.ActionLogout, userID.String(), audit.StatusSuccess, "")
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile updates name and profile data. Role and approval status are
// immutable through this path.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, name string, profile map[string]interface{}) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	if profile != nil {
		u.Profile = profile
	}
	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// ForgotPassword creates a one-time code for the account. The OTP is
// returned to the caller for delivery (mail is out of band); only its hash
// is stored. A missing account is not an error, to avoid account probing.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return "", nil
		}
		return "", err
	}

	otp, err := generateOTP()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}

	pr := &PasswordReset{
		UserID:    u.ID,
		OTPHash:   string(hash),
		ExpiresAt: s.now().Add(s.otpTTL),
	}
	if err := s.resets.Create(ctx, pr); err != nil {
		return "", err
	}
	return otp, nil
}

// VerifyOTP checks the code without consuming it, so the reset form can
// validate before asking for the new password.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) error {
	_, pr, err := s.activeReset(ctx, email, otp)
	if err != nil {
		return err
	}
	return s.resets.MarkVerified(ctx, pr.ID)
}

// ResetPassword consumes a valid OTP and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, email, otp, next string) error {
	u, pr, err := s.activeReset(ctx, email, otp)
	if err != nil {
		return err
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, string(hash)); err != nil {
		return err
	}
	return s.resets.MarkConsumed(ctx, pr.ID)
}

func (s *Service) activeReset(ctx context.Context, email, otp string) (*User, *PasswordReset, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil, ErrInvalidOTP
		}
		return nil, nil, err
	}
	pr, err := s.resets.GetActive(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(pr.OTPHash), []byte(otp)) != nil {
		return nil, nil, ErrInvalidOTP
	}
	return u, pr, nil
}

// Approve transitions a pending account to approved. Exactly-once: a second
// decision fails with ErrAlreadyDecided.
func (s *Service) Approve(ctx context.Context, adminID, userID uuid.UUID, notes string) (*User, error) {
	u, err := s.repo.SetApproval(ctx, userID, ApprovalApproved, notes)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &adminID, audit.ActionUserApprove, userID.String(), audit.StatusSuccess, notes)
	return u, nil
}

// Reject transitions a pending account to rejected.
func (s *Service) Reject(ctx context.Context, adminID, userID uuid.UUID, reason string) (*User, error) {
	u, err := s.repo.SetApproval(ctx, userID, ApprovalRejected, reason)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &adminID, audit.ActionUserReject, userID.String(), audit.StatusSuccess, reason)
	return u, nil
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

func (s *Service) audit(ctx context.Context, actorID *uuid.UUID, action audit.Action, resourceID string, status audit.Status, detail string) {
	if s.auditor == nil {
		return
	}
	if _, err := s.auditor.Append(ctx, &audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   resourceID,
		Status:       status,
		Detail:       detail,
	}); err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("audit append failed")
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
