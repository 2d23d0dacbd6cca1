package directory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/directory"
	"github.com/RuSwift/microledger/masspayment"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/store/memory"
)

const (
	me    = "did:web:exchange.example"
	peer1 = "did:web:merchant.example"
	peer2 = "did:web:agent.example"
)

func newDirectory(t *testing.T) (*directory.Directory, *memory.Store) {
	t.Helper()
	st := memory.New()
	d, err := directory.New(st, microledger.Identity{DID: me})
	require.NoError(t, err)
	return d, st
}

func ledgerRecord(id string) *microledger.Ledger {
	return &microledger.Ledger{
		ID:   id,
		Tags: []string{"payments"},
		Participants: map[string][]string{
			"owner":      {me},
			"processing": {peer1, peer2},
		},
	}
}

func TestNewRequiresIdentity(t *testing.T) {
	_, err := directory.New(memory.New(), microledger.Identity{})
	require.ErrorIs(t, err, microledger.ErrNoIdentity)
}

func TestSaveReplicatesToAllMembers(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, ledgerRecord("payments:acme")))

	for _, did := range []string{me, peer1, peer2} {
		rec, err := st.FindOne(ctx, store.Query{StorageID: did, LedgerID: directory.ID})
		require.NoError(t, err)
		assert.Equal(t, "payments:acme", rec.Payload["id"])
		assert.ElementsMatch(t, []string{me, peer1, peer2}, rec.StorageIDs)
	}
}

func TestSaveValidates(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	err := d.Save(ctx, &microledger.Ledger{Tags: []string{"payments"}})
	require.Error(t, err)
	assert.True(t, microledger.IsValidation(err))
}

func TestSaveUpdatesInPlace(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()

	l := ledgerRecord("payments:acme")
	require.NoError(t, d.Save(ctx, l))

	l.Tags = []string{"payments", "priority"}
	require.NoError(t, d.Save(ctx, l))

	total, _, err := st.Find(ctx, store.Query{LedgerID: directory.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "save must upsert, not append")

	got, err := d.Get(ctx, "payments:acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"payments", "priority"}, got.Tags)
}

func TestGetNotFound(t *testing.T) {
	d, _ := newDirectory(t)

	_, err := d.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, microledger.IsNotFound(err))
}

func TestListScopedToOwnReplica(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, ledgerRecord("payments:acme")))
	other := ledgerRecord("deposits:acme")
	other.Tags = []string{"deposits"}
	require.NoError(t, d.Save(ctx, other))

	count, ledgers, err := d.List(ctx, directory.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, ledgers, 2)

	count, ledgers, err = d.List(ctx, directory.ListOpts{Tag: "deposits"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, ledgers, 1)
	assert.Equal(t, "deposits:acme", ledgers[0].ID)

	count, ledgers, err = d.List(ctx, directory.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, ledgers, 1)
}

func TestRegistryRecordBuildsTypedLedger(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, ledgerRecord("payments:acme")))
	src, err := d.Get(ctx, "payments:acme")
	require.NoError(t, err)

	ledger, err := masspayment.FromLedger(*src,
		microledger.Identity{DID: me},
		consensus.NewFactory(st),
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{me, peer1, peer2}, ledger.Participants())
}
