// Package ledger persists committed financial decisions as an append-only,
// hash-chained log per company. Every append is validated, idempotent on
// (companyId, idempotencyKey), and chained to the previous record via a
// SHA-256 over the canonical JSON payload. No update or delete path exists.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ordgate/core/pkg/canonicalize"
	"github.com/ordgate/core/pkg/fdc"
	"github.com/ordgate/core/pkg/fdv"
)

// Store is the persistence abstraction. Lookups return (nil, nil) when no
// record exists. Implementations only ever insert; mutation of stored rows
// is outside the contract.
type Store interface {
	// GetByIdempotencyKey returns the commit previously appended under the
	// given (companyID, key), if any.
	GetByIdempotencyKey(ctx context.Context, companyID, key string) (*fdc.Commit, error)

	// Head returns the most recent commit for the company by generation
	// time, or nil when the company has no records yet.
	Head(ctx context.Context, companyID string) (*fdc.Commit, error)

	// Insert appends a fully-linked commit.
	Insert(ctx context.Context, c *fdc.Commit) error

	// ListByCompany returns the company's commits in generation order.
	ListByCompany(ctx context.Context, companyID string) ([]*fdc.Commit, error)

	// GetByFdcID returns a single commit by identity.
	GetByFdcID(ctx context.Context, companyID, fdcID string) (*fdc.Commit, error)
}

// TxStore is implemented by stores that can serialize the whole
// check-then-insert sequence per company in the storage layer itself
// (a serializable transaction). The ledger prefers it over the in-process
// keyed lock when available.
type TxStore interface {
	Store
	RunInCompanyTx(ctx context.Context, companyID string, fn func(Store) error) error
}

// ValidationError carries the validation gate's rejection. It is a distinct
// type so callers can tell "retry with corrected input" apart from
// operational failures.
type ValidationError struct {
	Result fdv.Result
}

func (e *ValidationError) Error() string {
	codes := make([]string, len(e.Result.Reasons))
	for i, r := range e.Result.Reasons {
		codes[i] = string(r)
	}
	return fmt.Sprintf("ledger: commit rejected: %s", strings.Join(codes, ", "))
}

// ChainError reports a broken chain link found during verification.
type ChainError struct {
	CompanyID string
	Position  int
	FdcID     string
	Detail    string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger: chain broken for %s at position %d (fdc %s): %s",
		e.CompanyID, e.Position, e.FdcID, e.Detail)
}

// AppendResult is the outcome of AppendCommit.
type AppendResult struct {
	Commit *fdc.Commit
	// Reused is true when the idempotency key matched an existing record
	// and no new row was written.
	Reused bool
}

// Ledger appends and verifies financial decision commits.
type Ledger struct {
	store Store
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		clock: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// AppendCommit validates and appends a commit. Steps, each a precondition
// for the next: validation gate, idempotency lookup, chain-head lookup,
// chain hash, single insert. A rejected commit writes nothing.
func (l *Ledger) AppendCommit(ctx context.Context, c *fdc.Commit) (AppendResult, error) {
	if c == nil {
		return AppendResult{}, fmt.Errorf("ledger: nil commit")
	}

	// 1. Validation gate. Fails before any store access.
	if res := fdv.Validate(c); !res.Allow {
		return AppendResult{}, &ValidationError{Result: res}
	}

	// The idempotency-then-chain-lookup sequence is a check-then-act race;
	// serialize it per company, in the store when it can, else in-process.
	if tx, ok := l.store.(TxStore); ok {
		var out AppendResult
		err := tx.RunInCompanyTx(ctx, c.CompanyID, func(s Store) error {
			var err error
			out, err = l.appendLocked(ctx, s, c)
			return err
		})
		return out, err
	}

	lock := l.companyLock(c.CompanyID)
	lock.Lock()
	defer lock.Unlock()
	return l.appendLocked(ctx, l.store, c)
}

func (l *Ledger) appendLocked(ctx context.Context, s Store, c *fdc.Commit) (AppendResult, error) {
	// 2. Idempotency. The sole de-duplication mechanism.
	existing, err := s.GetByIdempotencyKey(ctx, c.CompanyID, c.IdempotencyKey)
	if err != nil {
		return AppendResult{}, fmt.Errorf("ledger: idempotency lookup: %w", err)
	}
	if existing != nil {
		return AppendResult{Commit: existing, Reused: true}, nil
	}

	// 3. Chain head. Absence implies genesis.
	head, err := s.Head(ctx, c.CompanyID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("ledger: chain lookup: %w", err)
	}

	record := *c
	if record.GeneratedAt.IsZero() {
		record.GeneratedAt = l.clock().UTC()
	}
	if head != nil {
		record.PreviousFdcID = head.FdcID
		record.PreviousChainHash = head.ChainHash
	} else {
		record.PreviousFdcID = fdc.Genesis
		record.PreviousChainHash = fdc.Genesis
	}

	// 4. Chain hash over the canonical payload.
	hash, err := canonicalize.CanonicalHash(record.Payload(record.PreviousFdcID, record.PreviousChainHash))
	if err != nil {
		return AppendResult{}, fmt.Errorf("ledger: chain hash: %w", err)
	}
	record.ChainHash = hash

	// 5. Single atomic insert. Nothing before this point wrote anything.
	if err := s.Insert(ctx, &record); err != nil {
		return AppendResult{}, fmt.Errorf("ledger: insert: %w", err)
	}
	return AppendResult{Commit: &record}, nil
}

// VerifyChain recomputes every chain hash for a company. The first broken
// link is reported as a ChainError; a broken chain is detectable but not
// repairable here.
func (l *Ledger) VerifyChain(ctx context.Context, companyID string) error {
	commits, err := l.store.ListByCompany(ctx, companyID)
	if err != nil {
		return fmt.Errorf("ledger: list for verify: %w", err)
	}

	prevHash := fdc.Genesis
	prevID := fdc.Genesis
	for i, c := range commits {
		if c.PreviousChainHash != prevHash {
			return &ChainError{
				CompanyID: companyID, Position: i, FdcID: c.FdcID,
				Detail: fmt.Sprintf("previous hash %s does not match expected %s", c.PreviousChainHash, prevHash),
			}
		}
		if c.PreviousFdcID != prevID {
			return &ChainError{
				CompanyID: companyID, Position: i, FdcID: c.FdcID,
				Detail: fmt.Sprintf("previous fdc id %s does not match expected %s", c.PreviousFdcID, prevID),
			}
		}
		computed, err := canonicalize.CanonicalHash(c.Payload(c.PreviousFdcID, c.PreviousChainHash))
		if err != nil {
			return fmt.Errorf("ledger: rehash at position %d: %w", i, err)
		}
		if computed != c.ChainHash {
			return &ChainError{
				CompanyID: companyID, Position: i, FdcID: c.FdcID,
				Detail: "stored chain hash is not reproducible from record fields",
			}
		}
		prevHash = c.ChainHash
		prevID = c.FdcID
	}
	return nil
}

// ListCommits returns a company's records in generation order.
func (l *Ledger) ListCommits(ctx context.Context, companyID string) ([]*fdc.Commit, error) {
	return l.store.ListByCompany(ctx, companyID)
}

// GetCommit returns a single record by identity.
func (l *Ledger) GetCommit(ctx context.Context, companyID, fdcID string) (*fdc.Commit, error) {
	return l.store.GetByFdcID(ctx, companyID, fdcID)
}

func (l *Ledger) companyLock(companyID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[companyID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[companyID] = lock
	}
	return lock
}
