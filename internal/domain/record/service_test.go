package record

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/consent"
)

type fakeRepo struct {
	records map[uuid.UUID]*Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*Record)}
}

func (r *fakeRepo) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	var items []*Record
	for _, rec := range r.records {
		if rec.PatientID != patientID {
			continue
		}
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		if len(f.Categories) > 0 && !containsCategory(f.Categories, rec.Category) {
			continue
		}
		cp := *rec
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func containsCategory(cats []string, cat string) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

func (r *fakeRepo) CategoriesByPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	seen := map[string]bool{}
	var cats []string
	for _, rec := range r.records {
		if rec.PatientID == patientID && !seen[rec.Category] {
			seen[rec.Category] = true
			cats = append(cats, rec.Category)
		}
	}
	sort.Strings(cats)
	return cats, nil
}

func (r *fakeRepo) ListByUploader(ctx context.Context, uploaderID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	var items []*Record
	for _, rec := range r.records {
		if rec.UploadedBy == uploaderID {
			cp := *rec
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

// fakeGate allows the configured categories and records every evaluation.
type fakeGate struct {
	allowed  map[string]bool
	reason   consent.DenyReason
	failWith error
	calls    []consent.Action
}

func (g *fakeGate) Evaluate(ctx context.Context, doctorID, patientID uuid.UUID, category string, action consent.Action, now time.Time) (*consent.Decision, error) {
	if g.failWith != nil {
		return nil, g.failWith
	}
	g.calls = append(g.calls, action)
	if g.allowed[category] {
		return &consent.Decision{Allowed: true}, nil
	}
	reason := g.reason
	if reason == "" {
		reason = consent.DenyCategoryNotAllowed
	}
	return &consent.Decision{Reason: reason}, nil
}

func newTestService(repo Repository, gate Gate) *Service {
	return NewService(repo, gate, zerolog.Nop(), []string{"general", "cardiology", "neurology"})
}

func seedRecord(repo *fakeRepo, patientID uuid.UUID, category string) *Record {
	rec := &Record{
		ID:         uuid.New(),
		PatientID:  patientID,
		UploadedBy: patientID,
		Category:   category,
		FileType:   "pdf",
		Title:      category + " report",
		CreatedAt:  time.Now(),
	}
	repo.records[rec.ID] = rec
	return rec
}

func TestUploadValidates(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeGate{})
	ctx := context.Background()
	patient := uuid.New()

	if _, err := svc.Upload(ctx, patient, patient, "general", "pdf", "  ", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("blank title err = %v, want ErrValidation", err)
	}
	if _, err := svc.Upload(ctx, patient, patient, "astrology", "pdf", "chart", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown category err = %v, want ErrValidation", err)
	}
	rec, err := svc.Upload(ctx, patient, patient, "general", "pdf", "blood work", nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Error("upload did not assign an id")
	}
}

func TestViewAllowed(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	rec := seedRecord(repo, patient, "cardiology")
	gate := &fakeGate{allowed: map[string]bool{"cardiology": true}}
	svc := newTestService(repo, gate)

	got, err := svc.View(context.Background(), uuid.New(), rec.ID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("got record %s, want %s", got.ID, rec.ID)
	}
	if len(gate.calls) != 1 || gate.calls[0] != consent.ActionView {
		t.Errorf("gate calls = %v, want one view evaluation", gate.calls)
	}
}

func TestViewDeniedCarriesReason(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	rec := seedRecord(repo, patient, "neurology")
	gate := &fakeGate{reason: consent.DenyExpired}
	svc := newTestService(repo, gate)

	_, err := svc.View(context.Background(), uuid.New(), rec.ID)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want DeniedError", err)
	}
	if denied.Decision.Reason != consent.DenyExpired {
		t.Errorf("reason = %s, want expired", denied.Decision.Reason)
	}
	if !errors.Is(err, ErrDenied) {
		t.Error("DeniedError must unwrap to ErrDenied")
	}
}

func TestDownloadEvaluatesDownloadAction(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	rec := seedRecord(repo, patient, "general")
	gate := &fakeGate{allowed: map[string]bool{"general": true}}
	svc := newTestService(repo, gate)

	if _, err := svc.Download(context.Background(), uuid.New(), rec.ID); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(gate.calls) != 1 || gate.calls[0] != consent.ActionDownload {
		t.Errorf("gate calls = %v, want one download evaluation", gate.calls)
	}
}

func TestGateOutageIsNotADeny(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	rec := seedRecord(repo, patient, "general")
	gate := &fakeGate{failWith: consent.ErrUnavailable}
	svc := newTestService(repo, gate)

	_, err := svc.View(context.Background(), uuid.New(), rec.ID)
	if !errors.Is(err, consent.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	var denied *DeniedError
	if errors.As(err, &denied) {
		t.Error("a backend failure must never surface as a deny")
	}
}

func TestListPatientRecordsFiltersUncoveredCategories(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	seedRecord(repo, patient, "cardiology")
	seedRecord(repo, patient, "cardiology")
	seedRecord(repo, patient, "neurology")
	gate := &fakeGate{allowed: map[string]bool{"cardiology": true}}
	svc := newTestService(repo, gate)

	items, total, err := svc.ListPatientRecords(context.Background(), uuid.New(), patient, ListFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("ListPatientRecords: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("visible records = %d, want 2", len(items))
	}
	for _, rec := range items {
		if rec.Category != "cardiology" {
			t.Errorf("uncovered category %s leaked into listing", rec.Category)
		}
	}
	// The envelope must not overstate what the doctor can see.
	if total != 2 {
		t.Errorf("total = %d, want 2 counting only covered categories", total)
	}
}

func TestListPatientRecordsNothingCovered(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	seedRecord(repo, patient, "cardiology")
	seedRecord(repo, patient, "neurology")
	gate := &fakeGate{} // denies everything
	svc := newTestService(repo, gate)

	items, total, err := svc.ListPatientRecords(context.Background(), uuid.New(), patient, ListFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("ListPatientRecords: %v", err)
	}
	if len(items) != 0 || total != 0 {
		t.Errorf("items = %d, total = %d; want an empty, zero-total listing", len(items), total)
	}
	// One evaluation per distinct category, not per record.
	if len(gate.calls) != 2 {
		t.Errorf("gate evaluations = %d, want 2", len(gate.calls))
	}
}

func TestListPatientRecordsWithCategoryFilterDenies(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	seedRecord(repo, patient, "neurology")
	gate := &fakeGate{allowed: map[string]bool{"cardiology": true}}
	svc := newTestService(repo, gate)

	_, _, err := svc.ListPatientRecords(context.Background(), uuid.New(), patient,
		ListFilter{Category: "neurology"}, 20, 0)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want DeniedError for an explicitly requested uncovered category", err)
	}
}

func TestListOwnIsUngated(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	seedRecord(repo, patient, "psychiatry")
	gate := &fakeGate{} // denies everything
	svc := newTestService(repo, gate)

	items, _, err := svc.ListOwn(context.Background(), patient, ListFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("ListOwn: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("own records = %d, want 1 regardless of consent state", len(items))
	}
}
