package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action identifies what kind of decision or transition an entry records.
type Action string

const (
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionConsentRequest Action = "CONSENT_REQUEST"
	ActionConsentGrant   Action = "CONSENT_GRANT"
	ActionConsentRevoke  Action = "CONSENT_REVOKE"
	ActionRecordView     Action = "RECORD_VIEW"
	ActionRecordDownload Action = "RECORD_DOWNLOAD"
	ActionUserApprove    Action = "USER_APPROVE"
	ActionUserReject     Action = "USER_REJECT"
)

// Severity of an audit entry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the outcome the entry records.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
)

// severityByAction is the fixed action-to-severity mapping. Entries never
// choose their own severity below this table; break-glass access may only
// escalate to critical.
var severityByAction = map[Action]Severity{
	ActionLogin:          SeverityLow,
	ActionLogout:         SeverityLow,
	ActionRecordView:     SeverityLow,
	ActionConsentRequest: SeverityMedium,
	ActionConsentGrant:   SeverityMedium,
	ActionConsentRevoke:  SeverityHigh,
	ActionRecordDownload: SeverityHigh,
	ActionUserApprove:    SeverityHigh,
	ActionUserReject:     SeverityHigh,
}

// BaseSeverity returns the severity assigned to the action by the fixed
// mapping.
func (a Action) BaseSeverity() Severity {
	if s, ok := severityByAction[a]; ok {
		return s
	}
	return SeverityLow
}

// Entry is one immutable audit record. Entries are only ever inserted; there
// is no update or delete path anywhere in the codebase.
type Entry struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ActorID      *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	Action       Action     `db:"action" json:"action"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceID   string     `db:"resource_id" json:"resource_id"`
	Severity     Severity   `db:"severity" json:"severity"`
	Status       Status     `db:"status" json:"status"`
	Detail       string     `db:"detail" json:"detail,omitempty"`
	LedgerHash   *string    `db:"ledger_hash" json:"ledger_hash,omitempty"`
	LedgerSeq    *int64     `db:"ledger_seq" json:"ledger_seq,omitempty"`
	RecordedAt   time.Time  `db:"recorded_at" json:"recorded_at"`
}

// canonicalPayload is the byte representation anchored into the ledger. It
// must be stable across releases: chain verification re-derives it from the
// stored row.
func canonicalPayload(e *Entry) []byte {
	actor := ""
	if e.ActorID != nil {
		actor = e.ActorID.String()
	}
	payload, _ := json.Marshal(struct {
		Actor        string `json:"actor"`
		Action       Action `json:"action"`
		ResourceType string `json:"resource_type"`
		ResourceID   string `json:"resource_id"`
		Severity     Severity `json:"severity"`
		Status       Status `json:"status"`
		Detail       string `json:"detail"`
		RecordedAt   string `json:"recorded_at"`
	}{
		Actor:        actor,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Severity:     e.Severity,
		Status:       e.Status,
		Detail:       e.Detail,
		RecordedAt:   e.RecordedAt.UTC().Format(time.RFC3339Nano),
	})
	return payload
}

// Filter narrows audit searches.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Action   Action
	Severity Severity
	Status   Status
	ActorID  *uuid.UUID
}
