package audit

// Action constants for audit events.
const (
	// Mass-payment actions
	ActionMessagesSent  = "message.sent"
	ActionStatesWritten = "state.written"

	// Payment-request actions
	ActionRequestCreated    = "request.created"
	ActionRequestTransition = "request.transition"
)

// Resource constants for audit events.
const (
	ResourceMessage = "message"
	ResourceState   = "state"
	ResourceRequest = "request"
)

// Category constants for audit events.
const (
	CategoryPayment     = "payment"
	CategoryReplication = "replication"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
