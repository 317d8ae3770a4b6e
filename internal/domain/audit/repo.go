package audit

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	// LastAnchor returns the hash and sequence number of the most recently
	// anchored entry, or ("", 0) when nothing has been anchored yet.
	LastAnchor(ctx context.Context) (string, int64, error)
	// ListAnchored returns every anchored entry in ledger sequence order,
	// for chain verification.
	ListAnchored(ctx context.Context) ([]*Entry, error)
}
