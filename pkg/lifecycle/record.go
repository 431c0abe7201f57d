// Package lifecycle owns TrainingRecord state. All mutation happens through
// transitions executed by the Manager under per-record serialization, and
// every transition lands on the audit chain.
package lifecycle

import (
	"time"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/quality"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// Status is a TrainingRecord state-machine state.
type Status string

const (
	StatusPendingReview       Status = "PENDING_REVIEW"
	StatusAnonymizing         Status = "ANONYMIZING"
	StatusAnonymized          Status = "ANONYMIZED"
	StatusValidated           Status = "VALIDATED"
	StatusApprovedForTraining Status = "APPROVED_FOR_TRAINING"
	StatusInTraining          Status = "IN_TRAINING"
	StatusRejected            Status = "REJECTED"
	StatusRetired             Status = "RETIRED"
)

// transitions is the full forward edge set. REJECTED is reachable from any
// non-terminal state and handled separately.
var transitions = map[Status][]Status{
	StatusPendingReview:       {StatusAnonymizing},
	StatusAnonymizing:         {StatusAnonymized},
	StatusAnonymized:          {StatusValidated},
	StatusValidated:           {StatusApprovedForTraining},
	StatusApprovedForTraining: {StatusInTraining},
	StatusInTraining:          {StatusRetired},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusRetired
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	if to == StatusRejected {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModelTraining is one model-training occurrence recorded for lineage.
type ModelTraining struct {
	ModelID   string            `json:"model_id"`
	ModelName string            `json:"model_name,omitempty"`
	TrainedAt time.Time         `json:"trained_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TrainingRecord is one statement moving toward the training corpus.
type TrainingRecord struct {
	ID                  string                      `json:"id"`
	TenantID            string                      `json:"tenant_id,omitempty"`
	StatementType       statement.Type              `json:"statement_type"`
	Source              string                      `json:"source"`
	Status              Status                      `json:"status"`
	SchemaVersion       string                      `json:"schema_version"`
	Statement           map[string]interface{}      `json:"statement,omitempty"`
	AnonymizedStatement map[string]interface{}      `json:"anonymized_statement,omitempty"`
	Anonymization       *anonymize.Metadata         `json:"anonymization,omitempty"`
	AnonymizationValid  *anonymize.ValidationReport `json:"anonymization_validation,omitempty"`
	Quality             *quality.Assessment         `json:"quality,omitempty"`
	Metadata            map[string]string           `json:"metadata,omitempty"`
	UploadedBy          string                      `json:"uploaded_by"`
	UploadedAt          time.Time                   `json:"uploaded_at"`
	ApprovedBy          string                      `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time                  `json:"approved_at,omitempty"`
	RejectionReason     string                      `json:"rejection_reason,omitempty"`
	LastError           string                      `json:"last_error,omitempty"`
	UsedInModels        []ModelTraining             `json:"used_in_models,omitempty"`
}

// Dataset is a composed set of approved records.
type Dataset struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Purpose       string          `json:"purpose"`
	SchemaVersion string          `json:"schema_version"`
	RecordIDs     []string        `json:"record_ids"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	ModelsTrained []ModelTraining `json:"models_trained,omitempty"`
}

// Result is the uniform outcome of lifecycle calls. Reason carries a stable
// code when OK is false.
type Result struct {
	OK       bool   `json:"ok"`
	RecordID string `json:"record_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// LineageRecord is the per-record slice of a lineage report.
type LineageRecord struct {
	RecordID   string              `json:"record_id"`
	Source     string              `json:"source"`
	Quality    *quality.Assessment `json:"quality,omitempty"`
	UploadedAt time.Time           `json:"uploaded_at"`
	ApprovedAt *time.Time          `json:"approved_at,omitempty"`
}

// LineageReport traces a model back through datasets to source records.
type LineageReport struct {
	ModelID  string          `json:"model_id"`
	Datasets []Dataset       `json:"datasets"`
	Records  []LineageRecord `json:"records"`
}
