// Package sqlite provides a SQLite-backed store driver using the pure-Go
// modernc.org/sqlite driver. Payload predicates are pushed down with the
// JSON1 json_extract function.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RuSwift/microledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a single SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at path. Use ":memory:" for an
// in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: open %q: %w", path, err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the record table and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Find(ctx context.Context, q store.Query) (int, []*store.Record, error) {
	return find(ctx, s.db, q)
}

func (s *Store) FindOne(ctx context.Context, q store.Query) (*store.Record, error) {
	return findOne(ctx, s.db, q)
}

// InTx runs fn inside one SQL transaction, rolling back on error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store/sqlite: begin: %w", err)
	}

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store/sqlite: commit: %w", err)
	}
	return nil
}

// querier is the read/write surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*sqlTx)(nil)

func (t *sqlTx) Find(ctx context.Context, q store.Query) (int, []*store.Record, error) {
	return find(ctx, t.tx, q)
}

func (t *sqlTx) FindOne(ctx context.Context, q store.Query) (*store.Record, error) {
	return findOne(ctx, t.tx, q)
}

func (t *sqlTx) Insert(ctx context.Context, rec *store.Record) error {
	if rec.UID == "" {
		rec.UID = store.NewUID()
	}
	now := time.Now().UTC()

	tags, payload, storageIDs, err := marshalFields(rec)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
INSERT INTO ledger_records
    (uid, storage_id, ledger_id, tags, signature, payload, storage_ids, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UID, rec.StorageID, rec.LedgerID, tags, rec.Signature,
		payload, storageIDs, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store/sqlite: insert: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store/sqlite: insert seq: %w", err)
	}
	rec.Seq = seq
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (t *sqlTx) Update(ctx context.Context, rec *store.Record) error {
	tags, payload, storageIDs, err := marshalFields(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := t.tx.ExecContext(ctx, `
UPDATE ledger_records
   SET tags = ?, signature = ?, payload = ?, storage_ids = ?, updated_at = ?
 WHERE uid = ?`,
		tags, rec.Signature, payload, storageIDs, now.Format(time.RFC3339Nano), rec.UID,
	)
	if err != nil {
		return fmt.Errorf("store/sqlite: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store/sqlite: update affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) Upsert(ctx context.Context, q store.Query, rec *store.Record) error {
	existing, err := findOne(ctx, t.tx, q)
	if errors.Is(err, store.ErrNotFound) {
		return t.Insert(ctx, rec)
	}
	if err != nil {
		return err
	}

	rec.UID = existing.UID
	return t.Update(ctx, rec)
}

// Query building

func buildWhere(q store.Query) (string, []any, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if q.StorageID != "" {
		clauses = append(clauses, "storage_id = ?")
		args = append(args, q.StorageID)
	}
	if len(q.StorageIDs) > 0 {
		clauses = append(clauses, "storage_id IN ("+placeholders(len(q.StorageIDs))+")")
		for _, sid := range q.StorageIDs {
			args = append(args, sid)
		}
	}
	if q.LedgerID != "" {
		clauses = append(clauses, "ledger_id = ?")
		args = append(args, q.LedgerID)
	}
	if q.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(ledger_records.tags) WHERE json_each.value = ?)")
		args = append(args, q.Tag)
	}
	for _, cond := range q.Payload {
		if err := cond.Validate(); err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "json_extract(payload, '$."+cond.Path+"') IN ("+placeholders(len(cond.Values))+")")
		for _, v := range cond.Values {
			args = append(args, v)
		}
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func find(ctx context.Context, db querier, q store.Query) (int, []*store.Record, error) {
	where, args, err := buildWhere(q)
	if err != nil {
		return 0, nil, err
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_records"+where, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("store/sqlite: count: %w", err)
	}

	order := " ORDER BY seq ASC"
	if q.Sort == store.SortDesc {
		order = " ORDER BY seq DESC"
	}
	page := ""
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1 // SQLite: no limit
		}
		page = fmt.Sprintf(" LIMIT %d OFFSET %d", limit, q.Offset)
	}

	rows, err := db.QueryContext(ctx, `
SELECT seq, uid, storage_id, ledger_id, tags, signature, payload, storage_ids, created_at, updated_at
  FROM ledger_records`+where+order+page, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("store/sqlite: select: %w", err)
	}
	defer rows.Close()

	records := make([]*store.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return 0, nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("store/sqlite: rows: %w", err)
	}
	return total, records, nil
}

func findOne(ctx context.Context, db querier, q store.Query) (*store.Record, error) {
	q.Limit = 1
	q.Offset = 0
	_, records, err := find(ctx, db, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return records[0], nil
}

func scanRecord(rows *sql.Rows) (*store.Record, error) {
	var (
		rec                       store.Record
		tags, payload, storageIDs string
		createdAt, updatedAt      string
	)
	if err := rows.Scan(
		&rec.Seq, &rec.UID, &rec.StorageID, &rec.LedgerID,
		&tags, &rec.Signature, &payload, &storageIDs, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("store/sqlite: scan: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("store/sqlite: decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("store/sqlite: decode payload: %w", err)
	}
	if err := json.Unmarshal([]byte(storageIDs), &rec.StorageIDs); err != nil {
		return nil, fmt.Errorf("store/sqlite: decode storage_ids: %w", err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store/sqlite: decode created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("store/sqlite: decode updated_at: %w", err)
	}
	return &rec, nil
}

func marshalFields(rec *store.Record) (tags, payload, storageIDs string, err error) {
	b, err := json.Marshal(rec.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("store/sqlite: encode tags: %w", err)
	}
	tags = string(b)
	if rec.Tags == nil {
		tags = "[]"
	}

	if rec.Payload == nil {
		payload = "{}"
	} else {
		b, err = json.Marshal(rec.Payload)
		if err != nil {
			return "", "", "", fmt.Errorf("store/sqlite: encode payload: %w", err)
		}
		payload = string(b)
	}

	b, err = json.Marshal(rec.StorageIDs)
	if err != nil {
		return "", "", "", fmt.Errorf("store/sqlite: encode storage_ids: %w", err)
	}
	storageIDs = string(b)
	if rec.StorageIDs == nil {
		storageIDs = "[]"
	}
	return tags, payload, storageIDs, nil
}
