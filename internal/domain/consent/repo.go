package consent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	// GetLatestByPair returns the most recently updated consent for the
	// (doctor, patient) pair regardless of status, or ErrNotFound.
	GetLatestByPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Consent, error)
	// GetLatestDecidedByPair returns the most recently updated non-pending
	// consent for the pair, or ErrNotFound.
	GetLatestDecidedByPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Consent, error)
	// UpdateVersioned persists the consent only if the stored version still
	// matches c.Version; on success c.Version is incremented. A stale
	// version yields ErrConflict and no mutation.
	UpdateVersioned(ctx context.Context, c *Consent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error)
}
