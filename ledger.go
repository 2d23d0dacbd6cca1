package microledger

import (
	"log/slog"

	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/hook"
	"github.com/RuSwift/microledger/types"
)

// MicroLedger is the behavior shared by concrete ledgers. Typed send
// and load operations live on the concrete types.
type MicroLedger interface {
	LedgerID() string
	Identity() types.Identity
	Participants() []string
}

// Base carries the identity, participant set and consensus backend of a
// ledger instance. Concrete ledgers embed it.
type Base struct {
	identity     types.Identity
	participants []string
	consensus    consensus.Consensus
	logger       *slog.Logger
	hooks        *hook.Registry
}

// Option configures a ledger instance.
type Option func(*Base)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		b.logger = logger
	}
}

// WithHooks sets the hook registry notified after committed writes.
func WithHooks(hooks *hook.Registry) Option {
	return func(b *Base) {
		b.hooks = hooks
	}
}

// NewBase binds an identity and participant set to a consensus backend.
// The identity is always explicit — there is no ambient request context
// to fall back to. The participant set is normalized to include the
// identity and de-duplicated, preserving order.
func NewBase(me types.Identity, participants []string, factory consensus.Factory, opts ...Option) (Base, error) {
	if me.IsZero() {
		return Base{}, ErrNoIdentity
	}

	normalized := make([]string, 0, len(participants)+1)
	seen := make(map[string]bool, len(participants)+1)
	for _, did := range append([]string{me.DID}, participants...) {
		if !seen[did] {
			seen[did] = true
			normalized = append(normalized, did)
		}
	}

	b := Base{
		identity:     me,
		participants: normalized,
		logger:       slog.Default(),
		hooks:        hook.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.consensus = factory(me.DID, normalized)
	return b, nil
}

// Identity returns the identity the ledger operates as.
func (b *Base) Identity() types.Identity { return b.identity }

// Participants returns the normalized participant set, including the
// own identity.
func (b *Base) Participants() []string {
	return append([]string(nil), b.participants...)
}

// Consensus returns the replication backend.
func (b *Base) Consensus() consensus.Consensus { return b.consensus }

// Logger returns the configured logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Hooks returns the hook registry.
func (b *Base) Hooks() *hook.Registry { return b.hooks }

// ParticipantsOf flattens a directory ledger record into the union of
// participants across all roles.
func ParticipantsOf(src types.Ledger) []string {
	participants := make([]string, 0)
	seen := make(map[string]bool)
	for _, members := range src.Participants {
		for _, did := range members {
			if !seen[did] {
				seen[did] = true
				participants = append(participants, did)
			}
		}
	}
	return participants
}
