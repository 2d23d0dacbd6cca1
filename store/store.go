// Package store defines the ordered, filterable, transactional record
// store backing the micro-ledgers.
//
// The store keeps one physical Record per (participant, ledger) replica.
// It knows nothing about consensus or message schemas: it persists opaque
// payload documents, answers filtered reads in insertion order, and runs
// multi-record writes inside a single transaction with an optional
// caller-supplied hook executing in the same transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the storage layer.
var (
	ErrNotFound    = errors.New("store: record not found")
	ErrInvalidPath = errors.New("store: invalid payload path")
)

// Record is the persisted shape shared by replicated logs and documents.
// Payload holds the serialized message or document. StorageIDs records
// the full participant set the write was fanned out to, so later audits
// can reconstruct who was notified.
type Record struct {
	UID        string         `json:"uid"`
	StorageID  string         `json:"storage_id"`
	LedgerID   string         `json:"ledger_id"`
	Tags       []string       `json:"tags,omitempty"`
	Signature  string         `json:"signature,omitempty"`
	Payload    map[string]any `json:"payload"`
	StorageIDs []string       `json:"storage_ids,omitempty"`

	// Seq is the driver-assigned insertion order, the only ordering
	// contract offered to callers.
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUID returns a fresh opaque record uid.
func NewUID() string {
	return uuid.NewString()
}

// Sort selects read ordering by insertion order.
type Sort string

const (
	SortAsc  Sort = "asc"  // oldest first (default)
	SortDesc Sort = "desc" // newest first
)

// Cond is an equality / membership predicate over a nested payload
// document. Path is a dot-separated field path ("transaction.order_id").
// A single value means equality; multiple values mean "in".
type Cond struct {
	Path   string
	Values []string
}

// Eq builds an equality condition.
func Eq(path, value string) Cond { return Cond{Path: path, Values: []string{value}} }

// In builds a membership condition.
func In(path string, values ...string) Cond { return Cond{Path: path, Values: values} }

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// Validate reports whether the condition carries a well-formed path and
// at least one value. Drivers that splice paths into queries call this
// before executing.
func (c Cond) Validate() error {
	if !pathPattern.MatchString(c.Path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, c.Path)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("store: condition %q has no values", c.Path)
	}
	return nil
}

// Query selects records. Zero-valued fields are ignored.
type Query struct {
	StorageID  string   // owner replica ("me")
	StorageIDs []string // owner in set (document fan-out updates)
	LedgerID   string
	Tag        string // tag containment
	Payload    []Cond // nested payload predicates, ANDed

	Sort   Sort // SortAsc when empty
	Limit  int  // 0 = no limit
	Offset int
}

// Reader answers filtered reads. Find returns the total number of
// matching records (ignoring Limit/Offset) alongside the requested page.
type Reader interface {
	Find(ctx context.Context, q Query) (int, []*Record, error)
	FindOne(ctx context.Context, q Query) (*Record, error)
}

// Tx is the write surface available inside a transaction. All writes
// performed through a Tx commit or roll back together.
type Tx interface {
	Reader

	// Insert appends a new record, assigning Seq and timestamps.
	Insert(ctx context.Context, rec *Record) error
	// Update replaces the payload, tags and signature of the record
	// identified by rec.UID, bumping UpdatedAt.
	Update(ctx context.Context, rec *Record) error
	// Upsert replaces the first record matching q, or inserts rec when
	// none matches. Last write wins.
	Upsert(ctx context.Context, q Query, rec *Record) error
}

// Store is the transaction-store collaborator contract.
type Store interface {
	Reader

	// InTx runs fn inside a single transaction. If fn returns an error
	// every write made through the Tx is rolled back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
