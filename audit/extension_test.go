package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuSwift/microledger/audit"
)

func capture(events *[]*audit.Event) audit.RecorderFunc {
	return func(_ context.Context, event *audit.Event) error {
		*events = append(*events, event)
		return nil
	}
}

func TestRecordsLedgerEvents(t *testing.T) {
	var events []*audit.Event
	ext := audit.New(capture(&events))
	ctx := context.Background()

	require.NoError(t, ext.OnMessagesSent(ctx, "mass-payment", []interface{}{"m1", "m2"}))
	require.NoError(t, ext.OnRequestTransition(ctx, "payment-request:r1", "created", "linked", nil))

	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionMessagesSent, events[0].Action)
	assert.Equal(t, 2, events[0].Metadata["count"])
	assert.Equal(t, audit.ActionRequestTransition, events[1].Action)
	assert.Equal(t, "linked", events[1].Metadata["to"])
	assert.Equal(t, audit.SeverityInfo, events[1].Severity)
}

func TestDisputeEscalatesSeverity(t *testing.T) {
	var events []*audit.Event
	ext := audit.New(capture(&events))

	require.NoError(t, ext.OnRequestTransition(context.Background(),
		"payment-request:r1", "payed", "dispute", nil))
	require.Len(t, events, 1)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
}

func TestActionFiltering(t *testing.T) {
	var events []*audit.Event
	ext := audit.New(capture(&events),
		audit.WithDisabledActions(audit.ActionStatesWritten))
	ctx := context.Background()

	require.NoError(t, ext.OnStatesWritten(ctx, "mass-payment", map[string]string{"k": "v"}))
	require.NoError(t, ext.OnRequestCreated(ctx, "payment-request:r1", nil))

	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRequestCreated, events[0].Action)
}
