package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error)
	ListByUploader(ctx context.Context, uploaderID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error)
	// CategoriesByPatient returns the distinct categories the patient has
	// records in.
	CategoriesByPatient(ctx context.Context, patientID uuid.UUID) ([]string, error)
}
