// package audit implements the tamper-evident compliance audit log: a
// hash-chained, HMAC-signed, encrypted-at-rest record store with an
// integrity verifier that can pinpoint the exact block where the chain broke.
package audit

import (
	"fmt"

	"github.com/google/uuid"
)

// Category classifies the business operation an event records.
type Category string

const (
	CategoryPayment    Category = "payment"
	CategoryAuth       Category = "auth"
	CategoryDataAccess Category = "data-access"
	CategoryAdmin      Category = "admin"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPayment, CategoryAuth, CategoryDataAccess, CategoryAdmin:
		return true
	}
	return false
}

// Result records whether the audited operation succeeded.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// RiskLevel grades how sensitive the audited operation is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ComplianceTag labels an event for filtered reporting.
type ComplianceTag string

const (
	TagFinancialRecord ComplianceTag = "financial-record"
	TagPrivacyData     ComplianceTag = "privacy-data"
	TagAccessControl   ComplianceTag = "access-control"
	TagRetention       ComplianceTag = "retention"
)

// ChangeSet is an optional before/after snapshot attached to mutating events.
type ChangeSet struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// AuditEvent is the raw input produced by calling code. It is never persisted
// verbatim; it always passes through Sanitize first.
type AuditEvent struct {
	Category      Category               `json:"category"`
	Actor         string                 `json:"actor"`
	Resource      string                 `json:"resource"`
	Result        Result                 `json:"result"`
	Origin        string                 `json:"origin,omitempty"` // network origin (IP or host)
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Risk          RiskLevel              `json:"risk,omitempty"`
	Tags          []ComplianceTag        `json:"tags,omitempty"`
	Change        *ChangeSet             `json:"change,omitempty"`
}

// Validate checks the required fields. It returns a *ValidationError so the
// caller can reject malformed input synchronously.
func (e *AuditEvent) Validate() error {
	if e == nil {
		return &ValidationError{Field: "event", Reason: "nil event"}
	}
	if e.Category == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if !ValidCategory(e.Category) {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", e.Category)}
	}
	if e.Actor == "" {
		return &ValidationError{Field: "actor", Reason: "required"}
	}
	if e.Result != "" && e.Result != ResultSuccess && e.Result != ResultFailure {
		return &ValidationError{Field: "result", Reason: fmt.Sprintf("unknown result %q", e.Result)}
	}
	return nil
}

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}
