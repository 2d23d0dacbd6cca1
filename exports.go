package microledger

import (
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/types"
)

// Re-export common types for convenience so users don't have to import
// the sub-packages.

// Identity is re-exported from the types package.
type Identity = types.Identity

// Ledger is the directory record, re-exported from the types package.
type Ledger = types.Ledger

// Transaction is re-exported from the consensus package.
type Transaction = consensus.Transaction

// KeyValueState is re-exported from the consensus package.
type KeyValueState = consensus.KeyValueState

// Consensus is re-exported from the consensus package.
type Consensus = consensus.Consensus

// ConsensusFactory is re-exported from the consensus package.
type ConsensusFactory = consensus.Factory

// EmptySignature is the placeholder transaction signature.
const EmptySignature = consensus.EmptySignature

// Read ordering, re-exported from the store package.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc
)

// ErrDuplicateState is re-exported from the consensus package.
var ErrDuplicateState = consensus.ErrDuplicateState
