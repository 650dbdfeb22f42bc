package audithook

// Action constants for audit events.
const (
	// Pool actions
	ActionPoolCreated = "pool.created"
	ActionPoolUpdated = "pool.updated"
	ActionPoolDeleted = "pool.deleted"

	// Entitlement actions
	ActionEntitlementGranted = "entitlement.granted"
	ActionEntitlementRevoked = "entitlement.revoked"

	// Admission actions
	ActionAdmissionDenied  = "admission.denied"
	ActionOverflowDetected = "pool.overflow"
	ActionVersionConflict  = "pool.version_conflict"
)

// Resource constants for audit events.
const (
	ResourcePool        = "pool"
	ResourceEntitlement = "entitlement"
)

// Category constants for audit events.
const (
	CategoryPool      = "pool"
	CategoryAccess    = "access"
	CategoryAdmission = "admission"
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
