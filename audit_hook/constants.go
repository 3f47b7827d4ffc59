package audithook

// Action constants for audit events.
const (
	// Engine actions
	ActionEngineStarted = "engine.started"
	ActionEngineStopped = "engine.stopped"

	// Billing actions
	ActionDuesGenerated   = "dues.generated"
	ActionSessionRecorded = "session.recorded"
	ActionDebtCreated     = "debt.created"

	// Settlement actions
	ActionReceiptIssued        = "receipt.issued"
	ActionBulkSettled          = "receipt.bulk_settled"
	ActionSettlementFlagFailed = "settlement.flag_failed"

	// Reporting actions
	ActionReportGenerated = "report.generated"
)

// Resource constants for audit events.
const (
	ResourceEngine     = "engine"
	ResourceDue        = "due"
	ResourceAttendance = "attendance"
	ResourceReceipt    = "receipt"
	ResourceReport     = "report"
)

// Category constants for audit events.
const (
	CategorySystem     = "system"
	CategoryBilling    = "billing"
	CategoryAttendance = "attendance"
	CategoryPayment    = "payment"
	CategoryReporting  = "reporting"
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
	OutcomePartial = "partial"
)
