// Package types provides common types shared across the micro-ledger
// packages.
package types

// Identity identifies a ledger participant by its decentralized
// identifier. Every ledger instance is bound to exactly one identity;
// there is no ambient "current user" lookup — callers pass the identity
// explicitly into every constructor.
type Identity struct {
	DID string `json:"did"`
}

// IsZero reports whether the identity carries no DID.
func (i Identity) IsZero() bool { return i.DID == "" }

func (i Identity) String() string { return i.DID }

// Ledger is a directory record describing a participant-scoped ledger:
// its id, classification tags and the participants grouped by role.
// Roles are opaque strings ("owner", "processing", "guarantor"); role
// membership is lookup-only, not hierarchical.
type Ledger struct {
	ID           string              `json:"id"`
	Tags         []string            `json:"tags,omitempty"`
	Participants map[string][]string `json:"participants,omitempty"`
}

// ParticipantsByRole returns the participant DIDs registered under role.
func (l Ledger) ParticipantsByRole(role string) []string {
	for r, members := range l.Participants {
		if r == role {
			return members
		}
	}
	return nil
}

// RoleByDID returns the role under which did is registered, or "".
func (l Ledger) RoleByDID(did string) string {
	for role, members := range l.Participants {
		for _, m := range members {
			if m == did {
				return role
			}
		}
	}
	return ""
}

// HasParticipant reports whether addr is involved in the ledger, either
// as a registered participant or as the addressee encoded in the id.
func (l Ledger) HasParticipant(addr string) bool {
	if len(l.ID) >= len(addr) && l.ID[:len(addr)] == addr {
		return true
	}
	for _, members := range l.Participants {
		for _, m := range members {
			if m == addr {
				return true
			}
		}
	}
	return false
}
