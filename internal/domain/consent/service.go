package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/audit"
)

// Auditor is the slice of the audit recorder the registry needs.
type Auditor interface {
	Append(ctx context.Context, e *audit.Entry) (string, error)
}

// Registry owns Consent entities and their state transitions. All mutations
// go through optimistic versioning so a stale grant can never silently
// overwrite a concurrent revoke.
type Registry struct {
	repo            Repository
	policy          ExpiryPolicy
	auditor         Auditor
	log             zerolog.Logger
	now             func() time.Time
	validCategories map[string]bool
}

// NewRegistry creates a Registry. categories is the shared record-category
// list; an empty slice disables category validation.
func NewRegistry(repo Repository, auditor Auditor, log zerolog.Logger, categories []string) *Registry {
	valid := make(map[string]bool, len(categories))
	for _, c := range categories {
		valid[c] = true
	}
	return &Registry{
		repo:            repo,
		auditor:         auditor,
		log:             log.With().Str("component", "consent-registry").Logger(),
		now:             time.Now,
		validCategories: valid,
	}
}

// SetClock overrides the registry's clock. Tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// Policy exposes the shared expiry policy.
func (r *Registry) Policy() ExpiryPolicy { return r.policy }

func (r *Registry) validateInput(typ Type, validUntil time.Time, categories []string) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown consent type %q", ErrValidation, typ)
	}
	if !validUntil.After(r.now()) {
		return ErrInvalidExpiry
	}
	if len(r.validCategories) > 0 {
		for _, c := range categories {
			if !r.validCategories[c] {
				return fmt.Errorf("%w: unknown record category %q", ErrValidation, c)
			}
		}
	}
	return nil
}

// normalizeCategories clears the category list for consent types that ignore
// scoping, so "all categories" is stored uniformly as empty.
func normalizeCategories(typ Type, categories []string) []string {
	if typ != TypeLimitedAccess {
		return []string{}
	}
	if categories == nil {
		return []string{}
	}
	return categories
}

// RequestAccess records a doctor's request for access to a patient's records.
// Requests are idempotent by (doctor, patient) pair: while a previous request
// is still pending, a new one updates it in place instead of creating a
// duplicate row. A request against an unexpired grant returns the grant
// untouched; only the owning patient mutates granted state.
func (r *Registry) RequestAccess(ctx context.Context, doctorID, patientID uuid.UUID, typ Type, validUntil time.Time, perms Permissions, categories []string, requestMessage string) (*Consent, error) {
	if err := r.validateInput(typ, validUntil, categories); err != nil {
		return nil, err
	}

	perms.CanView = true
	categories = normalizeCategories(typ, categories)

	existing, err := r.repo.GetLatestByPair(ctx, doctorID, patientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil && r.policy.IsActive(existing, r.now()) {
		if existing.Status == StatusGranted {
			return existing, nil
		}
		existing.Type = typ
		existing.Permissions = perms
		existing.AllowedCategories = categories
		existing.ValidUntil = validUntil
		existing.RequestMessage = requestMessage
		if err := r.repo.UpdateVersioned(ctx, existing); err != nil {
			return nil, err
		}
		r.audit(ctx, doctorID, audit.ActionConsentRequest, existing.ID, audit.StatusSuccess, "request updated in place")
		return existing, nil
	}

	c := &Consent{
		DoctorID:          doctorID,
		PatientID:         patientID,
		Type:              typ,
		Status:            StatusPending,
		Permissions:       perms,
		AllowedCategories: categories,
		ValidUntil:        validUntil,
		RequestMessage:    requestMessage,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	r.audit(ctx, doctorID, audit.ActionConsentRequest, c.ID, audit.StatusSuccess, "")
	return c, nil
}

// Grant transitions a pending consent to granted. Only the owning patient
// may grant; canView is forced true regardless of input.
func (r *Registry) Grant(ctx context.Context, callerID, consentID uuid.UUID, perms Permissions, validUntil time.Time, categories []string, responseMessage string) (*Consent, error) {
	c, err := r.repo.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.PatientID != callerID {
		return nil, ErrNotOwner
	}
	if c.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot grant a %s consent", ErrInvalidState, c.Status)
	}
	if err := r.validateInput(c.Type, validUntil, categories); err != nil {
		return nil, err
	}

	perms.CanView = true
	c.Status = StatusGranted
	c.Permissions = perms
	c.AllowedCategories = normalizeCategories(c.Type, categories)
	c.ValidUntil = validUntil
	c.ResponseMessage = responseMessage

	if err := r.repo.UpdateVersioned(ctx, c); err != nil {
		return nil, err
	}
	r.audit(ctx, callerID, audit.ActionConsentGrant, c.ID, audit.StatusSuccess, "")
	return c, nil
}

// GrantToDoctor lets a patient proactively grant access to a doctor who has
// not requested it. An existing pending request for the pair is granted in
// place; an active grant is replaced with the new terms; otherwise a consent
// is created directly in granted state.
func (r *Registry) GrantToDoctor(ctx context.Context, patientID, doctorID uuid.UUID, typ Type, perms Permissions, validUntil time.Time, categories []string, responseMessage string) (*Consent, error) {
	if err := r.validateInput(typ, validUntil, categories); err != nil {
		return nil, err
	}

	perms.CanView = true
	categories = normalizeCategories(typ, categories)

	existing, err := r.repo.GetLatestByPair(ctx, doctorID, patientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil && r.policy.IsActive(existing, r.now()) {
		if existing.PatientID != patientID {
			return nil, ErrNotOwner
		}
		existing.Type = typ
		existing.Status = StatusGranted
		existing.Permissions = perms
		existing.AllowedCategories = categories
		existing.ValidUntil = validUntil
		existing.ResponseMessage = responseMessage
		if err := r.repo.UpdateVersioned(ctx, existing); err != nil {
			return nil, err
		}
		r.audit(ctx, patientID, audit.ActionConsentGrant, existing.ID, audit.StatusSuccess, "")
		return existing, nil
	}

	c := &Consent{
		DoctorID:          doctorID,
		PatientID:         patientID,
		Type:              typ,
		Status:            StatusGranted,
		Permissions:       perms,
		AllowedCategories: categories,
		ValidUntil:        validUntil,
		ResponseMessage:   responseMessage,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	r.audit(ctx, patientID, audit.ActionConsentGrant, c.ID, audit.StatusSuccess, "granted without prior request")
	return c, nil
}

// Revoke transitions a pending or granted consent to revoked. Revoked is
// terminal: revoking twice fails with ErrInvalidState.
func (r *Registry) Revoke(ctx context.Context, callerID, consentID uuid.UUID, responseMessage string) (*Consent, error) {
	c, err := r.repo.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.PatientID != callerID {
		return nil, ErrNotOwner
	}
	if c.Status == StatusRevoked {
		return nil, fmt.Errorf("%w: consent already revoked", ErrInvalidState)
	}

	c.Status = StatusRevoked
	if responseMessage != "" {
		c.ResponseMessage = responseMessage
	}
	if err := r.repo.UpdateVersioned(ctx, c); err != nil {
		return nil, err
	}
	r.audit(ctx, callerID, audit.ActionConsentRevoke, c.ID, audit.StatusSuccess, "")
	return c, nil
}

// RevokeForDoctor revokes the latest consent the patient holds for the given
// doctor. This is the patient-surface form, keyed by doctor instead of
// consent id.
func (r *Registry) RevokeForDoctor(ctx context.Context, patientID, doctorID uuid.UUID, responseMessage string) (*Consent, error) {
	c, err := r.repo.GetLatestByPair(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	return r.Revoke(ctx, patientID, c.ID, responseMessage)
}

// ListForPatient returns the patient's consents, most recently updated
// first, with the expired flag derived at read time.
func (r *Registry) ListForPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error) {
	items, total, err := r.repo.ListByPatient(ctx, patientID, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	r.markExpired(items)
	return items, total, nil
}

// ListForDoctor returns the doctor's consents, most recently updated first.
func (r *Registry) ListForDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error) {
	items, total, err := r.repo.ListByDoctor(ctx, doctorID, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	r.markExpired(items)
	return items, total, nil
}

func (r *Registry) markExpired(items []*Listed) {
	now := r.now()
	for _, l := range items {
		l.Expired = r.policy.IsExpired(&l.Consent, now)
	}
}

func (r *Registry) audit(ctx context.Context, actorID uuid.UUID, action audit.Action, consentID uuid.UUID, status audit.Status, detail string) {
	if r.auditor == nil {
		return
	}
	actor := actorID
	if _, err := r.auditor.Append(ctx, &audit.Entry{
		ActorID:      &actor,
		Action:       action,
		ResourceType: "consent",
		ResourceID:   consentID.String(),
		Status:       status,
		Detail:       detail,
	}); err != nil {
		// The recorder already logged the dropped entry; the transition
		// stands either way.
		r.log.Warn().Err(err).Str("consent_id", consentID.String()).Msg("audit append failed")
	}
}
