package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recordCols = `id, patient_id, uploaded_by, category, file_type, title, metadata, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.UploadedBy, &rec.Category,
		&rec.FileType, &rec.Title, &rec.Metadata, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]interface{}{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO medical_record (id, patient_id, uploaded_by, category, file_type, title, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.UploadedBy, rec.Category, rec.FileType, rec.Title, rec.Metadata).
		Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return r.list(ctx, "patient_id", patientID, f, limit, offset)
}

func (r *repoPG) ListByUploader(ctx context.Context, uploaderID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return r.list(ctx, "uploaded_by", uploaderID, f, limit, offset)
}

func (r *repoPG) CategoriesByPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT category FROM medical_record
		WHERE patient_id = $1 ORDER BY category`, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func (r *repoPG) list(ctx context.Context, ownerCol string, ownerID uuid.UUID, f ListFilter, limit, offset int) ([]*Record, int, error) {
	where := ` WHERE ` + ownerCol + ` = $1`
	args := []interface{}{ownerID}
	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if len(f.Categories) > 0 {
		args = append(args, f.Categories)
		where += fmt.Sprintf(` AND category = ANY($%d)`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM medical_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordCols+` FROM medical_record`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
