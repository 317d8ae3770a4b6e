package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/consent"
)

// Gate is the permission check every cross-patient access goes through.
type Gate interface {
	Evaluate(ctx context.Context, doctorID, patientID uuid.UUID, category string, action consent.Action, now time.Time) (*consent.Decision, error)
}

// DeniedError carries the structured decision behind an ErrDenied so the
// handler can surface the reason.
type DeniedError struct {
	Decision *consent.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("record: access denied (%s)", e.Decision.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

type Service struct {
	repo       Repository
	gate       Gate
	log        zerolog.Logger
	now        func() time.Time
	categories []string
}

func NewService(repo Repository, gate Gate, log zerolog.Logger, categories []string) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		log:        log.With().Str("component", "records").Logger(),
		now:        time.Now,
		categories: categories,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Upload(ctx context.Context, patientID, uploadedBy uuid.UUID, category, fileType, title string, metadata map[string]interface{}) (*Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !s.validCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}
	rec := &Record{
		PatientID:  patientID,
		UploadedBy: uploadedBy,
		Category:   category,
		FileType:   fileType,
		Title:      title,
		Metadata:   metadata,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// View fetches a record on behalf of a doctor. The consent gate decides; a
// deny surfaces as *DeniedError, a gate outage as the gate's own error so the
// caller never mistakes "could not decide" for a refusal.
func (s *Service) View(ctx context.Context, doctorID uuid.UUID, recordID uuid.UUID) (*Record, error) {
	return s.access(ctx, doctorID, recordID, consent.ActionView)
}

// Download is View with the download permission bit, audited as a download.
func (s *Service) Download(ctx context.Context, doctorID uuid.UUID, recordID uuid.UUID) (*Record, error) {
	return s.access(ctx, doctorID, recordID, consent.ActionDownload)
}

func (s *Service) access(ctx context.Context, doctorID, recordID uuid.UUID, action consent.Action) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	d, err := s.gate.Evaluate(ctx, doctorID, rec.PatientID, rec.Category, action, s.now())
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &DeniedError{Decision: d}
	}
	if d.BreakGlass {
		s.log.Warn().
			Str("doctor_id", doctorID.String()).
			Str("record_id", recordID.String()).
			Msg("break-glass record access")
	}
	return rec, nil
}

// ListPatientRecords lists a doctor's view of one patient's records. Each
// category is gated separately; categories the consent does not cover are
// excluded before the query runs, so the returned total and the pagination
// envelope count only what the doctor is allowed to see.
func (s *Service) ListPatientRecords(ctx context.Context, doctorID, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	now := s.now()
	if f.Category != "" {
		d, err := s.gate.Evaluate(ctx, doctorID, patientID, f.Category, consent.ActionView, now)
		if err != nil {
			return nil, 0, err
		}
		if !d.Allowed {
			return nil, 0, &DeniedError{Decision: d}
		}
		return s.repo.ListByPatient(ctx, patientID, f, limit, offset)
	}

	cats, err := s.repo.CategoriesByPatient(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	var covered []string
	for _, cat := range cats {
		d, err := s.gate.Evaluate(ctx, doctorID, patientID, cat, consent.ActionView, now)
		if err != nil {
			return nil, 0, err
		}
		if d.Allowed {
			covered = append(covered, cat)
		}
	}
	if len(covered) == 0 {
		return []*Record{}, 0, nil
	}
	f.Categories = covered
	return s.repo.ListByPatient(ctx, patientID, f, limit, offset)
}

// GetOwn fetches one of the caller's own records. Someone else's record is
// reported as not found rather than denied, so record ids do not leak.
func (s *Service) GetOwn(ctx context.Context, patientID, recordID uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.PatientID != patientID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListOwn lists the caller's own records. No gate: patients always see their
// own data.
func (s *Service) ListOwn(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByPatient(ctx, patientID, f, limit, offset)
}

// ListUploaded lists records a hospital account has uploaded.
func (s *Service) ListUploaded(ctx context.Context, uploaderID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByUploader(ctx, uploaderID, f, limit, offset)
}

func (s *Service) validCategory(category string) bool {
	for _, c := range s.categories {
		if c == category {
			return true
		}
	}
	return false
}
