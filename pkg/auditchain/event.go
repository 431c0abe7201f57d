// Package auditchain implements the append-only, hash-chained event log that
// observes every lifecycle decision. Entries are canonicalized with RFC 8785
// JCS before hashing so the chain verifies identically across stores and
// processes.
package auditchain

import (
	"strings"
	"time"
)

// Severity grades an event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Event types the pipeline emits. The retention table in retention.go keys
// off these plus the generic security and data event families.
const (
	EventRecordCreated          = "RECORD_CREATED"
	EventRecordStateChanged     = "RECORD_STATE_CHANGED"
	EventAnonymizationPerformed = "ANONYMIZATION_PERFORMED"
	EventApprovalRefused        = "APPROVAL_REFUSED"
	EventDatasetCreated         = "DATASET_CREATED"
	EventModelTrained           = "MODEL_TRAINED_ON_DATASET"
	EventIntegrityCheck         = "INTEGRITY_CHECK_PERFORMED"
)

// zeroHash is the previous-hash value of the genesis event.
var zeroHash = strings.Repeat("0", 64)

// Event is one immutable chain entry. SelfHash covers every other field,
// including PrevHash; it is excluded from its own preimage.
type Event struct {
	ID           string            `json:"id"`
	Seq          uint64            `json:"seq"`
	TS           time.Time         `json:"ts"`
	TenantID     string            `json:"tenant_id,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	EventType    string            `json:"event_type"`
	Severity     Severity          `json:"severity"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Action       string            `json:"action"`
	Changes      map[string]string `json:"changes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	PrevHash     string            `json:"prev_hash"`
	SelfHash     string            `json:"self_hash"`
}

// Draft is the caller-supplied part of an event. The chain assigns identity,
// sequence, timestamp, and hashes.
type Draft struct {
	TenantID     string
	ActorID      string
	EventType    string
	Severity     Severity
	ResourceType string
	ResourceID   string
	Action       string
	Changes      map[string]string
	Metadata     map[string]string
}

// preimage is the hashable view of an event: everything but self_hash.
type preimage struct {
	ID           string            `json:"id"`
	Seq          uint64            `json:"seq"`
	TS           string            `json:"ts"`
	TenantID     string            `json:"tenant_id,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	EventType    string            `json:"event_type"`
	Severity     Severity          `json:"severity"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Action       string            `json:"action"`
	Changes      map[string]string `json:"changes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	PrevHash     string            `json:"prev_hash"`
}

func (e *Event) preimage() preimage {
	return preimage{
		ID:           e.ID,
		Seq:          e.Seq,
		TS:           e.TS.UTC().Format(time.RFC3339Nano),
		TenantID:     e.TenantID,
		ActorID:      e.ActorID,
		EventType:    e.EventType,
		Severity:     e.Severity,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Action:       e.Action,
		Changes:      e.Changes,
		Metadata:     e.Metadata,
		PrevHash:     e.PrevHash,
	}
}
