// Package directory persists the ledger registry: the Ledger records
// describing which participants, under which roles, share a ledger.
// Typed ledgers are constructed from these records via FromLedger.
package directory

import (
	"encoding/json"
	"fmt"

	"github.com/RuSwift/microledger/types"
)

// ID is the ledger id the registry records live under.
const ID = "directory"

// ListOpts narrows a List call. Zero-valued fields are ignored.
type ListOpts struct {
	Tag    string
	Limit  int
	Offset int
}

func marshalLedger(l *types.Ledger) (map[string]any, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("directory: encode ledger %q: %w", l.ID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: encode ledger %q: %w", l.ID, err)
	}
	return payload, nil
}

func unmarshalLedger(payload map[string]any) (*types.Ledger, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("directory: decode ledger: %w", err)
	}
	var l types.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("directory: decode ledger: %w", err)
	}
	return &l, nil
}
