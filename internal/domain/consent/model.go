package consent

import (
	"time"

	"github.com/google/uuid"
)

// Type scopes what a consent covers.
type Type string

const (
	TypeLimitedAccess Type = "limited-access"
	TypeFullAccess    Type = "full-access"
	TypeEmergencyOnly Type = "emergency-only"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLimitedAccess, TypeFullAccess, TypeEmergencyOnly:
		return true
	}
	return false
}

// Status is the stored lifecycle state. Expiry is never a stored status:
// a granted consent past its validUntil still reads "granted" so the audit
// history of the grant survives; usability is derived at read time.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
)

// Permissions are the independent capability bits within a consent.
// CanView is forced true on every grant.
type Permissions struct {
	CanView     bool `json:"canView"`
	CanDownload bool `json:"canDownload"`
	CanUpdate   bool `json:"canUpdate"`
	CanShare    bool `json:"canShare"`
}

// Action is a requested operation on a record, mapped to a permission flag
// at evaluation time.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionUpdate   Action = "update"
	ActionShare    Action = "share"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionDownload, ActionUpdate, ActionShare:
		return true
	}
	return false
}

// Consent is a time-bounded grant of permissions from a patient to a doctor
// over some or all record categories. AllowedCategories is meaningful only
// for limited-access; empty means all categories.
type Consent struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	DoctorID          uuid.UUID   `db:"doctor_id" json:"doctorId"`
	PatientID         uuid.UUID   `db:"patient_id" json:"patientId"`
	Type              Type        `db:"consent_type" json:"consentType"`
	Status            Status      `db:"status" json:"status"`
	Permissions       Permissions `json:"permissions"`
	AllowedCategories []string    `db:"allowed_categories" json:"allowedCategories"`
	ValidUntil        time.Time   `db:"valid_until" json:"validUntil"`
	RequestMessage    string      `db:"request_message" json:"requestMessage,omitempty"`
	ResponseMessage   string      `db:"response_message" json:"responseMessage,omitempty"`
	Version           int         `db:"version" json:"-"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

// CoversCategory reports whether the consent's scope includes the category.
// Full-access and emergency-only ignore category scoping entirely.
func (c *Consent) CoversCategory(category string) bool {
	if c.Type != TypeLimitedAccess {
		return true
	}
	if len(c.AllowedCategories) == 0 {
		return true
	}
	for _, allowed := range c.AllowedCategories {
		if allowed == category {
			return true
		}
	}
	return false
}

// PermissionFor maps an action to the corresponding flag.
func (c *Consent) PermissionFor(action Action) bool {
	switch action {
	case ActionView:
		return c.Permissions.CanView
	case ActionDownload:
		return c.Permissions.CanDownload
	case ActionUpdate:
		return c.Permissions.CanUpdate
	case ActionShare:
		return c.Permissions.CanShare
	}
	return false
}

// ListFilter narrows consent listings.
type ListFilter struct {
	Status Status
	// Search matches the counterpart's name or email, case-insensitively.
	Search string
}

// CounterpartInfo is the identity summary resolved for each listed consent.
type CounterpartInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Listed is a consent together with its resolved counterpart, as returned by
// the listing surfaces. Expired is derived from ExpiryPolicy at read time;
// Status still reads "granted" for an expired grant.
type Listed struct {
	Consent
	Counterpart CounterpartInfo `json:"counterpart"`
	Expired     bool            `json:"expired"`
}
