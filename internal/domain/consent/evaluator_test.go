package consent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/audit"
)

func seedConsent(repo *fakeRepo, c *Consent) *Consent {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	repo.seq++
	c.UpdatedAt = time.Unix(int64(repo.seq), 0)
	repo.consents[c.ID] = c
	return c
}

func grantedConsent(doctor, patient uuid.UUID) *Consent {
	return &Consent{
		DoctorID:    doctor,
		PatientID:   patient,
		Type:        TypeFullAccess,
		Status:      StatusGranted,
		Permissions: Permissions{CanView: true, CanDownload: true},
		ValidUntil:  testNow.Add(24 * time.Hour),
	}
}

func TestEvaluateNoConsent(t *testing.T) {
	repo := newFakeRepo()
	auditor := &fakeAuditor{}
	ev := NewEvaluator(repo, auditor, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), uuid.New(), uuid.New(), "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyNoConsent {
		t.Errorf("decision = %+v, want deny no-consent", d)
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(auditor.entries))
	}
	if auditor.entries[0].Status != audit.StatusFailure {
		t.Errorf("audit status = %s, want failure", auditor.entries[0].Status)
	}
}

func TestEvaluatePendingIsNoConsent(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.Status = StatusPending
	seedConsent(repo, c)
	ev := NewEvaluator(repo, &fakeAuditor{}, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), doctor, patient, "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyNoConsent {
		t.Errorf("decision = %+v, want deny no-consent (pending is not a decision)", d)
	}
}

func TestEvaluateRevokedDeniesNotGranted(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.Status = StatusRevoked
	seedConsent(repo, c)
	ev := NewEvaluator(repo, &fakeAuditor{}, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), doctor, patient, "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyNotGranted {
		t.Errorf("decision = %+v, want deny not-granted", d)
	}
}

func TestEvaluateExpiredDerivedAtReadTime(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.ValidUntil = testNow.Add(-time.Minute)
	seedConsent(repo, c)
	ev := NewEvaluator(repo, &fakeAuditor{}, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), doctor, patient, "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyExpired {
		t.Errorf("decision = %+v, want deny expired", d)
	}
	if repo.consents[c.ID].Status != StatusGranted {
		t.Error("evaluation mutated stored status")
	}
}

func TestEvaluateCategoryScoping(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.Type = TypeLimitedAccess
	c.AllowedCategories = []string{"cardiology"}
	seedConsent(repo, c)
	ev := NewEvaluator(repo, &fakeAuditor{}, zerolog.Nop())
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, doctor, patient, "cardiology", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed {
		t.Errorf("cardiology should be allowed, got %+v", d)
	}

	d, err = ev.Evaluate(ctx, doctor, patient, "neurology", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyCategoryNotAllowed {
		t.Errorf("decision = %+v, want deny category-not-allowed", d)
	}
}

func TestEvaluateActionNotPermitted(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.Permissions.CanDownload = false
	seedConsent(repo, c)
	auditor := &fakeAuditor{}
	ev := NewEvaluator(repo, auditor, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), doctor, patient, "general", ActionDownload, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyActionNotPermitted {
		t.Errorf("decision = %+v, want deny action-not-permitted", d)
	}
	if auditor.entries[0].Action != audit.ActionRecordDownload {
		t.Errorf("audit action = %s, want RECORD_DOWNLOAD", auditor.entries[0].Action)
	}
}

func TestEvaluateAllowEmitsOneEntry(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	seedConsent(repo, grantedConsent(doctor, patient))
	auditor := &fakeAuditor{}
	ev := NewEvaluator(repo, auditor, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), doctor, patient, "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("decision = %+v, want allow", d)
	}
	if d.ConsentID == nil {
		t.Error("allow must carry the consent id")
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(auditor.entries))
	}
	e := auditor.entries[0]
	if e.Action != audit.ActionRecordView || e.Status != audit.StatusSuccess {
		t.Errorf("audit entry = %s/%s, want RECORD_VIEW/success", e.Action, e.Status)
	}
}

func TestEvaluateEmergencyOnlyViewOnly(t *testing.T) {
	repo := newFakeRepo()
	doctor, patient := uuid.New(), uuid.New()
	c := grantedConsent(doctor, patient)
	c.Type = TypeEmergencyOnly
	seedConsent(repo, c)
	auditor := &fakeAuditor{}
	ev := NewEvaluator(repo, auditor, zerolog.Nop())
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, doctor, patient, "general", ActionView, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || !d.BreakGlass {
		t.Errorf("decision = %+v, want break-glass allow", d)
	}
	e := auditor.entries[0]
	if e.Severity != audit.SeverityCritical {
		t.Errorf("break-glass audit severity = %s, want critical", e.Severity)
	}
	if !strings.Contains(e.Detail, "break-glass=true") {
		t.Errorf("detail %q missing break-glass marker", e.Detail)
	}

	// Anything beyond view is refused even though the download bit is set.
	d, err = ev.Evaluate(ctx, doctor, patient, "general", ActionDownload, testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed || d.Reason != DenyActionNotPermitted {
		t.Errorf("decision = %+v, want deny action-not-permitted", d)
	}
}

func TestEvaluateBackendFailureIsNotADeny(t *testing.T) {
	repo := newFakeRepo()
	repo.failWith = ErrUnavailable
	auditor := &fakeAuditor{}
	ev := NewEvaluator(repo, auditor, zerolog.Nop())

	d, err := ev.Evaluate(context.Background(), uuid.New(), uuid.New(), "general", ActionView, testNow)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if d != nil {
		t.Errorf("decision = %+v, want none", d)
	}
	if len(auditor.entries) != 0 {
		t.Errorf("audit entries = %d, want none when no decision was made", len(auditor.entries))
	}
}

func TestEvaluateRejectsUnknownAction(t *testing.T) {
	ev := NewEvaluator(newFakeRepo(), &fakeAuditor{}, zerolog.Nop())

	_, err := ev.Evaluate(context.Background(), uuid.New(), uuid.New(), "general", Action("delete"), testNow)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
