package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/ledger"
)

// ErrWriteFailure marks an audit entry that could not be durably recorded.
// Callers must not let it block the decision that produced the entry, but
// they must surface it for operational alerting rather than swallow it.
var ErrWriteFailure = errors.New("audit: write failure")

// Recorder appends immutable audit entries, optionally anchoring each one
// into the tamper-evident ledger chain. mu serializes Append end to end:
// the anchor and the row persist must happen as one step, or concurrent
// appends could store entries in a different order than they were chained
// and verification would flag an intact history as tampered.
type Recorder struct {
	repo  Repository
	chain *ledger.Chain
	log   zerolog.Logger
	now   func() time.Time

	mu  sync.Mutex
	seq int64
}

// NewRecorder creates a Recorder. chain may be nil, in which case entries
// are recorded without a ledger hash.
func NewRecorder(repo Repository, chain *ledger.Chain, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo:  repo,
		chain: chain,
		log:   log.With().Str("component", "audit").Logger(),
		now:   time.Now,
	}
}

// SetClock overrides the recorder's clock. Tests only.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// Resume seeds the ledger chain and sequence counter from the last durably
// stored anchor. Must be called once at startup, before any Append.
func (r *Recorder) Resume(ctx context.Context) error {
	if r.chain == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, seq, err := r.repo.LastAnchor(ctx)
	if err != nil {
		return fmt.Errorf("resume ledger chain: %w", err)
	}
	r.chain.Seed(hash)
	r.seq = seq
	return nil
}

// Append records one entry. Severity comes from the fixed action mapping;
// an entry may arrive pre-escalated to critical (break-glass) but can never
// lower its severity below the mapping. On storage failure the entry is
// logged and ErrWriteFailure returned; the triggering decision stands.
func (r *Recorder) Append(ctx context.Context, e *Entry) (string, error) {
	if e.Severity != SeverityCritical {
		e.Severity = e.Action.BaseSeverity()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e.RecordedAt.IsZero() {
		// Postgres keeps microseconds; anchor the value that will be stored,
		// or verification against the stored row would re-derive a different
		// payload.
		e.RecordedAt = r.now().UTC().Truncate(time.Microsecond)
	}

	var head string
	if r.chain != nil {
		head = r.chain.Head()
		hash := r.chain.Anchor(canonicalPayload(e))
		e.LedgerHash = &hash
		r.seq++
		seq := r.seq
		e.LedgerSeq = &seq
	}

	if err := r.repo.Create(ctx, e); err != nil {
		if r.chain != nil {
			// Rewind so the next entry chains from the last durable anchor.
			r.chain.Seed(head)
			r.seq--
		}
		r.log.Error().
			Err(err).
			Str("action", string(e.Action)).
			Str("resource", e.ResourceType+"/"+e.ResourceID).
			Msg("audit entry dropped by sink")
		return "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	if e.LedgerHash != nil {
		return *e.LedgerHash, nil
	}
	return "", nil
}

// Search returns entries matching the filter, most recent first.
func (r *Recorder) Search(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return r.repo.Search(ctx, f, limit, offset)
}

// VerifyChain re-derives every anchored hash and reports whether the stored
// chain is intact.
func (r *Recorder) VerifyChain(ctx context.Context) error {
	entries, err := r.repo.ListAnchored(ctx)
	if err != nil {
		return fmt.Errorf("load anchored entries: %w", err)
	}
	chain := make([]ledger.ChainEntry, 0, len(entries))
	for _, e := range entries {
		chain = append(chain, ledger.ChainEntry{
			Payload: canonicalPayload(e),
			Hash:    *e.LedgerHash,
		})
	}
	return ledger.Verify(chain)
}
