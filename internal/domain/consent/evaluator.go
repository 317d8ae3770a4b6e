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

// DenyReason categorizes why access was refused, so callers can show the
// specific cause instead of a generic failure.
type DenyReason string

const (
	DenyNoConsent          DenyReason = "no-consent"
	DenyNotGranted         DenyReason = "not-granted"
	DenyExpired            DenyReason = "expired"
	DenyCategoryNotAllowed DenyReason = "category-not-allowed"
	DenyActionNotPermitted DenyReason = "action-not-permitted"
)

// Decision is the outcome of one permission evaluation.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Reason    DenyReason `json:"reason,omitempty"`
	ConsentID *uuid.UUID `json:"consentId,omitempty"`
	// BreakGlass marks an allow under an emergency-only consent; the audit
	// entry for it is escalated to critical.
	BreakGlass bool `json:"breakGlass,omitempty"`
}

// Evaluator decides whether a doctor may perform an action on a patient's
// records of a given category. The decision is a deterministic function of
// the stored consent and the supplied clock; the only side effect is the
// audit emission, so it is safe to call on every access.
type Evaluator struct {
	repo    Repository
	policy  ExpiryPolicy
	auditor Auditor
	log     zerolog.Logger
}

func NewEvaluator(repo Repository, auditor Auditor, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		repo:    repo,
		auditor: auditor,
		log:     log.With().Str("component", "permission-evaluator").Logger(),
	}
}

// Evaluate runs the consent check. A backend failure is returned as an
// ErrUnavailable-wrapped error and is never a Deny: the caller must be able
// to tell "you may not" apart from "the system could not decide".
func (e *Evaluator) Evaluate(ctx context.Context, doctorID, patientID uuid.UUID, category string, action Action, now time.Time) (*Decision, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	d, err := e.decide(ctx, doctorID, patientID, category, action, now)
	if err != nil {
		// Could not determine access; no decision was made, so no decision
		// entry is emitted.
		return nil, err
	}

	e.auditDecision(ctx, doctorID, patientID, category, action, d)
	return d, nil
}

func (e *Evaluator) decide(ctx context.Context, doctorID, patientID uuid.UUID, category string, action Action, now time.Time) (*Decision, error) {
	c, err := e.repo.GetLatestDecidedByPair(ctx, doctorID, patientID)
	if errors.Is(err, ErrNotFound) {
		return &Decision{Reason: DenyNoConsent}, nil
	}
	if err != nil {
		return nil, err
	}

	d := &Decision{ConsentID: &c.ID}

	if c.Status != StatusGranted {
		d.Reason = DenyNotGranted
		return d, nil
	}
	// Expiry is derived here, never written back: the stored status still
	// reads granted.
	if e.policy.IsExpired(c, now) {
		d.Reason = DenyExpired
		return d, nil
	}
	if !c.CoversCategory(category) {
		d.Reason = DenyCategoryNotAllowed
		return d, nil
	}
	if c.Type == TypeEmergencyOnly && action != ActionView {
		d.Reason = DenyActionNotPermitted
		return d, nil
	}
	if !c.PermissionFor(action) {
		d.Reason = DenyActionNotPermitted
		return d, nil
	}

	d.Allowed = true
	d.BreakGlass = c.Type == TypeEmergencyOnly
	return d, nil
}

// auditDecision emits exactly one entry per evaluation, success or failure.
func (e *Evaluator) auditDecision(ctx context.Context, doctorID, patientID uuid.UUID, category string, action Action, d *Decision) {
	if e.auditor == nil {
		return
	}

	auditAction := audit.ActionRecordView
	if action == ActionDownload {
		auditAction = audit.ActionRecordDownload
	}

	status := audit.StatusFailure
	detail := fmt.Sprintf("action=%s category=%s patient=%s", action, category, patientID)
	if d.Allowed {
		status = audit.StatusSuccess
	} else {
		detail += fmt.Sprintf(" denied=%s", d.Reason)
	}

	entry := &audit.Entry{
		ActorID:      &doctorID,
		Action:       auditAction,
		ResourceType: "record-category",
		ResourceID:   category,
		Status:       status,
		Detail:       detail,
	}
	if d.BreakGlass {
		entry.Severity = audit.SeverityCritical
		entry.Detail += " break-glass=true"
	}

	if _, err := e.auditor.Append(ctx, entry); err != nil {
		e.log.Warn().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("patient_id", patientID.String()).
			Msg("audit append failed for access decision")
	}
}
