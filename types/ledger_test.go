package types_test

import (
	"testing"

	"github.com/RuSwift/microledger/types"
)

func directoryLedger() types.Ledger {
	return types.Ledger{
		ID:   "mass-payment",
		Tags: []string{"payments"},
		Participants: map[string][]string{
			"owner":      {"did:web:exchange.example"},
			"processing": {"did:web:merchant.example", "did:web:agent.example"},
		},
	}
}

func TestParticipantsByRole(t *testing.T) {
	l := directoryLedger()

	got := l.ParticipantsByRole("processing")
	if len(got) != 2 {
		t.Fatalf("expected 2 processing participants, got %d", len(got))
	}
	if got := l.ParticipantsByRole("guarantor"); got != nil {
		t.Errorf("expected nil for unknown role, got %v", got)
	}
}

func TestRoleByDID(t *testing.T) {
	l := directoryLedger()

	if role := l.RoleByDID("did:web:merchant.example"); role != "processing" {
		t.Errorf("expected role %q, got %q", "processing", role)
	}
	if role := l.RoleByDID("did:web:unknown.example"); role != "" {
		t.Errorf("expected empty role, got %q", role)
	}
}

func TestHasParticipant(t *testing.T) {
	l := directoryLedger()

	if !l.HasParticipant("did:web:agent.example") {
		t.Error("expected registered participant to be found")
	}
	if !l.HasParticipant("mass-payment") {
		t.Error("expected id-prefix addressee to be found")
	}
	if l.HasParticipant("did:web:unknown.example") {
		t.Error("expected unknown participant to be rejected")
	}
}
