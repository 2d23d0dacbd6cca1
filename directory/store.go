package directory

import (
	"context"
	"errors"
	"fmt"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/types"
)

// Directory is the registry view of one identity. Every participant of
// a registered ledger holds its own copy of the record, so lookups are
// always replica-local.
type Directory struct {
	st store.Store
	me types.Identity
}

// New binds a registry view to an identity.
func New(st store.Store, me types.Identity) (*Directory, error) {
	if me.IsZero() {
		return nil, microledger.ErrNoIdentity
	}
	return &Directory{st: st, me: me}, nil
}

// Save registers or updates a ledger record, writing one copy per
// participant in one transaction.
func (d *Directory) Save(ctx context.Context, l *types.Ledger) error {
	if l.ID == "" {
		return microledger.ValidationError{Field: "id", Message: "is empty"}
	}
	members := d.members(l)
	if len(members) == 0 {
		return microledger.ValidationError{Field: "participants", Message: "is empty"}
	}

	payload, err := marshalLedger(l)
	if err != nil {
		return err
	}

	err = d.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, did := range members {
			key := store.Query{
				StorageID: did,
				LedgerID:  ID,
				Payload:   []store.Cond{store.Eq("id", l.ID)},
			}
			rec := &store.Record{
				StorageID:  did,
				LedgerID:   ID,
				Tags:       l.Tags,
				Payload:    payload,
				StorageIDs: members,
			}
			if err := tx.Upsert(ctx, key, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("directory: save %q: %w", l.ID, err)
	}
	return nil
}

// Get reads one registry record from the caller's own replica.
func (d *Directory) Get(ctx context.Context, id string) (*types.Ledger, error) {
	rec, err := d.st.FindOne(ctx, store.Query{
		StorageID: d.me.DID,
		LedgerID:  ID,
		Payload:   []store.Cond{store.Eq("id", id)},
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: ledger %s", microledger.ErrNotFound, id)
		}
		return nil, fmt.Errorf("directory: get %q: %w", id, err)
	}
	return unmarshalLedger(rec.Payload)
}

// List enumerates the ledgers the caller participates in. The returned
// count is the total number of matches regardless of paging.
func (d *Directory) List(ctx context.Context, opts ListOpts) (int, []*types.Ledger, error) {
	count, records, err := d.st.Find(ctx, store.Query{
		StorageID: d.me.DID,
		LedgerID:  ID,
		Tag:       opts.Tag,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("directory: list: %w", err)
	}

	ledgers := make([]*types.Ledger, 0, len(records))
	for _, rec := range records {
		l, err := unmarshalLedger(rec.Payload)
		if err != nil {
			return 0, nil, err
		}
		ledgers = append(ledgers, l)
	}
	return count, ledgers, nil
}

// members flattens the role map into the de-duplicated participant set,
// always including the registering identity.
func (d *Directory) members(l *types.Ledger) []string {
	members := []string{d.me.DID}
	seen := map[string]bool{d.me.DID: true}
	for _, group := range l.Participants {
		for _, did := range group {
			if !seen[did] {
				seen[did] = true
				members = append(members, did)
			}
		}
	}
	return members
}
