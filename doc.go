// Package microledger provides participant-scoped micro-ledgers for
// payment workflows: typed append logs replicated to every participant,
// and replicated mutable documents with an enforced status state machine.
//
// Microledger is designed as a library, not a service. An API layer
// builds messages and calls the typed ledgers; this package owns
// replication, projections and state transitions. It provides:
//
//   - A pluggable consensus contract that fans writes out to every
//     participant with per-call atomicity
//   - A mass-payment ledger: typed event log with dedup keys, a
//     latest-status projection and deposit aggregation
//   - A payment-request contract: a shared mutable document with an
//     enforced status state machine
//   - A directory registry of ledgers and their participant roles
//   - A hook system, with audit and metrics extensions, observing
//     committed writes
//   - Store drivers for memory, SQLite and MongoDB
//
// # Quick Start
//
// Create a ledger over your preferred store:
//
//	import (
//	    "github.com/RuSwift/microledger/consensus"
//	    "github.com/RuSwift/microledger/masspayment"
//	    "github.com/RuSwift/microledger/store/sqlite"
//	    "github.com/RuSwift/microledger/types"
//	)
//
//	st, err := sqlite.New("./data/ledger.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	me := types.Identity{DID: "did:web:exchange.example"}
//	ledger, err := masspayment.New(me,
//	    []string{"did:web:merchant.example"},
//	    consensus.NewFactory(st),
//	)
//
// Send a payout and read it back with its freshest status:
//
//	err = ledger.Send(ctx, msg, masspayment.WithStates(map[string]string{
//	    msg.UID: "pending",
//	}))
//	count, payments, err := ledger.LoadPayments(ctx, masspayment.LoadOpts{})
//
// # Consensus
//
// Every write goes through the consensus.Consensus interface: one
// logical transaction becomes one physical record per participant,
// written inside a single store transaction together with any atomic
// side-effect delegates. The bundled consensus.Replicated backend
// replicates through one shared store and keeps an unauthenticated
// placeholder signature; a signing multi-writer backend can be
// substituted without touching the ledger layer.
//
// # Identity
//
// Every ledger instance is bound to exactly one identity, passed
// explicitly into the constructor. Reads only ever return the caller's
// own replica.
package microledger
