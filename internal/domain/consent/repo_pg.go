package consent

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

const consentCols = `id, doctor_id, patient_id, consent_type, status,
	can_view, can_download, can_update, can_share, allowed_categories,
	valid_until, request_message, response_message, version, created_at, updated_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.DoctorID, &c.PatientID, &c.Type, &c.Status,
		&c.Permissions.CanView, &c.Permissions.CanDownload, &c.Permissions.CanUpdate,
		&c.Permissions.CanShare, &c.AllowedCategories,
		&c.ValidUntil, &c.RequestMessage, &c.ResponseMessage, &c.Version,
		&c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Consent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	err := r.pool.QueryRow(ctx, `
		INSERT INTO consent (id, doctor_id, patient_id, consent_type, status,
			can_view, can_download, can_update, can_share, allowed_categories,
			valid_until, request_message, response_message, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		c.ID, c.DoctorID, c.PatientID, c.Type, c.Status,
		c.Permissions.CanView, c.Permissions.CanDownload, c.Permissions.CanUpdate,
		c.Permissions.CanShare, c.AllowedCategories,
		c.ValidUntil, c.RequestMessage, c.ResponseMessage, c.Version).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx,
		`SELECT `+consentCols+` FROM consent WHERE id = $1`, id))
}

func (r *repoPG) GetLatestByPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx, `
		SELECT `+consentCols+` FROM consent
		WHERE doctor_id = $1 AND patient_id = $2
		ORDER BY updated_at DESC LIMIT 1`, doctorID, patientID))
}

func (r *repoPG) GetLatestDecidedByPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx, `
		SELECT `+consentCols+` FROM consent
		WHERE doctor_id = $1 AND patient_id = $2 AND status <> 'pending'
		ORDER BY updated_at DESC LIMIT 1`, doctorID, patientID))
}

func (r *repoPG) UpdateVersioned(ctx context.Context, c *Consent) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consent SET
			consent_type = $3, status = $4,
			can_view = $5, can_download = $6, can_update = $7, can_share = $8,
			allowed_categories = $9, valid_until = $10,
			request_message = $11, response_message = $12,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, c.Type, c.Status,
		c.Permissions.CanView, c.Permissions.CanDownload, c.Permissions.CanUpdate,
		c.Permissions.CanShare, c.AllowedCategories, c.ValidUntil,
		c.RequestMessage, c.ResponseMessage)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	c.Version++
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error) {
	return r.list(ctx, "patient_id", "doctor_id", patientID, f, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error) {
	return r.list(ctx, "doctor_id", "patient_id", doctorID, f, limit, offset)
}

// list returns consents where ownerCol = ownerID, joined with the identity of
// the counterpart (the user referenced by counterpartCol), most recently
// updated first.
func (r *repoPG) list(ctx context.Context, ownerCol, counterpartCol string, ownerID uuid.UUID, f ListFilter, limit, offset int) ([]*Listed, int, error) {
	where := fmt.Sprintf(`WHERE c.%s = $1`, ownerCol)
	args := []interface{}{ownerID}

	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND c.status = $%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND (u.name ILIKE $%d OR u.email ILIKE $%d)`, len(args), len(args))
	}

	join := fmt.Sprintf(`JOIN app_user u ON u.id = c.%s`, counterpartCol)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM consent c %s %s`, join, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.doctor_id, c.patient_id, c.consent_type, c.status,
			c.can_view, c.can_download, c.can_update, c.can_share, c.allowed_categories,
			c.valid_until, c.request_message, c.response_message, c.version,
			c.created_at, c.updated_at,
			u.id, u.name, u.email
		FROM consent c %s %s
		ORDER BY c.updated_at DESC LIMIT $%d OFFSET $%d`,
		join, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []*Listed
	for rows.Next() {
		var l Listed
		err := rows.Scan(&l.ID, &l.DoctorID, &l.PatientID, &l.Type, &l.Status,
			&l.Permissions.CanView, &l.Permissions.CanDownload, &l.Permissions.CanUpdate,
			&l.Permissions.CanShare, &l.AllowedCategories,
			&l.ValidUntil, &l.RequestMessage, &l.ResponseMessage, &l.Version,
			&l.CreatedAt, &l.UpdatedAt,
			&l.Counterpart.ID, &l.Counterpart.Name, &l.Counterpart.Email)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}
