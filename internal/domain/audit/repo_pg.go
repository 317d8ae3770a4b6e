package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const entryCols = `id, actor_id, action, resource_type, resource_id, severity,
	status, detail, ledger_hash, ledger_seq, recorded_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.Severity, &e.Status, &e.Detail, &e.LedgerHash, &e.LedgerSeq, &e.RecordedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entry (id, actor_id, action, resource_type, resource_id,
			severity, status, detail, ledger_hash, ledger_seq, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		e.Severity, e.Status, e.Detail, e.LedgerHash, e.LedgerSeq, e.RecordedAt)
	return err
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.From != nil {
		add("recorded_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("recorded_at <= $%d", *f.To)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entry`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+entryCols+` FROM audit_entry%s ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *repoPG) LastAnchor(ctx context.Context) (string, int64, error) {
	var hash string
	var seq int64
	err := r.pool.QueryRow(ctx, `
		SELECT ledger_hash, ledger_seq FROM audit_entry
		WHERE ledger_seq IS NOT NULL
		ORDER BY ledger_seq DESC LIMIT 1`).Scan(&hash, &seq)
	if err == pgx.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return hash, seq, nil
}

func (r *repoPG) ListAnchored(ctx context.Context) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryCols+` FROM audit_entry
		WHERE ledger_seq IS NOT NULL
		ORDER BY ledger_seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
