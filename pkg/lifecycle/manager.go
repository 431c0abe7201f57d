package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
	"github.com/Veridata-Labs/fincorpus/core/pkg/quality"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// Stable reason codes surfaced in Result.Reason.
const (
	ReasonValidationFailed       = "VALIDATION_FAILED"
	ReasonAnonymization          = "ANONYMIZATION_FAILED"
	ReasonAnonymizationLeak      = "ANONYMIZATION_LEAK"
	ReasonQualityFloor           = "QUALITY_FLOOR"
	ReasonAnonymizationUnchecked = "ANONYMIZATION_NOT_VALIDATED"
	ReasonPolicyDenied           = "POLICY_DENIED"
	ReasonNotFound               = "NOT_FOUND"
	ReasonIllegalTransition      = "ILLEGAL_TRANSITION"
	ReasonNotApproved            = "NOT_APPROVED"
	ReasonSchemaIncompatible     = "SCHEMA_INCOMPATIBLE"
	ReasonCancelled              = "CANCELLED"
	ReasonInternal               = "INTERNAL"
)

// defaultSchemaVersion is the record schema this build writes.
const defaultSchemaVersion = "1.2.0"

// Manager drives TrainingRecords through the state machine. It is the only
// writer of record state; C1-C6 surface errors to it and it decides the
// lifecycle consequence, always recording the decision on the audit chain.
type Manager struct {
	store     Store
	chain     *auditchain.Chain
	engine    *anonymize.Engine
	level     anonymize.Level
	policy    *ApprovalPolicy
	schemaVer *semver.Version
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithApprovalPolicy installs a compiled CEL predicate checked at approval.
func WithApprovalPolicy(p *ApprovalPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithAnonymizationLevel overrides the default FULL level.
func WithAnonymizationLevel(level anonymize.Level) Option {
	return func(m *Manager) { m.level = level }
}

// WithSchemaVersion overrides the record schema version stamped on new
// records and datasets.
func WithSchemaVersion(v *semver.Version) Option {
	return func(m *Manager) { m.schemaVer = v }
}

// NewManager builds a Manager.
func NewManager(store Store, chain *auditchain.Chain, engine *anonymize.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		chain:     chain,
		engine:    engine,
		level:     anonymize.LevelFull,
		schemaVer: semver.MustParse(defaultSchemaVersion),
		logger:    slog.Default().With("component", "lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IngestStatement accepts an external statement document and creates a
// record in PENDING_REVIEW. The document must carry a statement_type
// discriminator and a fields map.
func (m *Manager) IngestStatement(ctx context.Context, doc map[string]interface{}, source string, metadata map[string]string, tenantID, userID string) Result {
	if err := validateIngest(doc); err != nil {
		return Result{OK: false, Reason: errkind.Reason(err)}
	}
	stmtType := statement.Type(doc["statement_type"].(string))

	record := &TrainingRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		StatementType: stmtType,
		Source:        source,
		Status:        StatusPendingReview,
		SchemaVersion: m.schemaVer.String(),
		Statement:     doc,
		Metadata:      metadata,
		UploadedBy:    userID,
		UploadedAt:    time.Now().UTC(),
	}
	if err := m.store.CreateRecord(ctx, record); err != nil {
		m.logger.Error("record create failed", "error", err)
		return Result{OK: false, Reason: ReasonInternal}
	}
	m.emit(ctx, auditchain.Draft{
		TenantID: tenantID, ActorID: userID,
		EventType: auditchain.EventRecordCreated, Severity: auditchain.SeverityInfo,
		ResourceType: "training_record", ResourceID: record.ID,
		Action:   "ingest",
		Metadata: map[string]string{"source": source, "statement_type": string(stmtType)},
	})
	return Result{OK: true, RecordID: record.ID}
}

// ProcessRecord drives a PENDING_REVIEW record through anonymization and
// validation to VALIDATED. A residual-PII finding rejects the record; a
// tokenization failure parks it in ANONYMIZING for retry; cancellation
// rejects it with reason CANCELLED.
func (m *Manager) ProcessRecord(ctx context.Context, id string) Result {
	if _, err := m.transition(ctx, id, StatusAnonymizing, "pipeline", nil); err != nil {
		return m.failure(id, err)
	}

	if err := ctx.Err(); err != nil {
		return m.cancel(ctx, id)
	}

	record, err := m.store.GetRecord(ctx, id)
	if err != nil {
		return Result{OK: false, RecordID: id, Reason: ReasonNotFound}
	}

	anonymized, meta, err := m.engine.Anonymize(ctx, record.Statement, m.level)
	if err != nil {
		if errors.Is(err, errkind.ErrCancelled) {
			return m.cancel(ctx, id)
		}
		// park for retry, record the failure
		_, parkErr := m.store.Transition(ctx, id, func(r *TrainingRecord) error {
			r.LastError = err.Error()
			return nil
		})
		if parkErr != nil {
			m.logger.Error("parking record failed", "record", id, "error", parkErr)
		}
		return Result{OK: false, RecordID: id, Reason: ReasonAnonymization}
	}
	anonymizedDoc, _ := anonymized.(map[string]interface{})

	_, err = m.transition(ctx, id, StatusAnonymized, "pipeline", func(r *TrainingRecord) error {
		r.AnonymizedStatement = anonymizedDoc
		r.Anonymization = &meta
		r.LastError = ""
		return nil
	})
	if err != nil {
		return m.failure(id, err)
	}
	m.emit(ctx, auditchain.Draft{
		TenantID: record.TenantID,
		EventType: auditchain.EventAnonymizationPerformed, Severity: auditchain.SeverityInfo,
		ResourceType: "training_record", ResourceID: id,
		Action: "anonymize",
		Metadata: map[string]string{
			"level":     string(meta.Level),
			"pii_count": strconv.Itoa(meta.PIICount),
		},
	})

	report := anonymize.Validate(anonymizedDoc)
	if !report.IsValid {
		m.emit(ctx, auditchain.Draft{
			TenantID: record.TenantID,
			EventType: "SECURITY_ALERT", Severity: auditchain.SeverityCritical,
			ResourceType: "training_record", ResourceID: id,
			Action:   "anonymization_leak",
			Metadata: map[string]string{"issue_count": strconv.Itoa(len(report.Issues))},
		})
		m.reject(ctx, id, ReasonAnonymizationLeak, "pipeline")
		return Result{OK: false, RecordID: id, Reason: ReasonAnonymizationLeak}
	}

	assessment := quality.Assess(statementFromDoc(anonymizedDoc, record.StatementType))
	_, err = m.transition(ctx, id, StatusValidated, "pipeline", func(r *TrainingRecord) error {
		r.AnonymizationValid = &report
		r.Quality = &assessment
		return nil
	})
	if err != nil {
		return m.failure(id, err)
	}
	return Result{OK: true, RecordID: id}
}

// ApproveForTraining applies the approval preconditions. A refusal leaves the
// record VALIDATED and emits an approval-refused event; no state-change event
// is written because no transition occurred.
func (m *Manager) ApproveForTraining(ctx context.Context, id, approver string) Result {
	record, err := m.store.GetRecord(ctx, id)
	if err != nil {
		return Result{OK: false, RecordID: id, Reason: ReasonNotFound}
	}

	refuse := func(reason string) Result {
		m.emit(ctx, auditchain.Draft{
			TenantID: record.TenantID, ActorID: approver,
			EventType: auditchain.EventApprovalRefused, Severity: auditchain.SeverityWarning,
			ResourceType: "training_record", ResourceID: id,
			Action:   "approve",
			Metadata: map[string]string{"precondition": reason},
		})
		return Result{OK: false, RecordID: id, Reason: reason}
	}

	if record.Status != StatusValidated {
		return refuse(ReasonIllegalTransition)
	}
	if record.Quality == nil || record.Quality.Overall == quality.GradePoor {
		return refuse(ReasonQualityFloor)
	}
	if record.AnonymizationValid == nil || !record.AnonymizationValid.IsValid {
		return refuse(ReasonAnonymizationUnchecked)
	}
	if allowed, err := m.policy.Allows(record); err != nil {
		m.logger.Error("approval policy failed", "record", id, "error", err)
		return refuse(ReasonPolicyDenied)
	} else if !allowed {
		return refuse(ReasonPolicyDenied)
	}

	now := time.Now().UTC()
	_, err = m.transition(ctx, id, StatusApprovedForTraining, approver, func(r *TrainingRecord) error {
		// preconditions re-checked under the record lock
		if r.Status != StatusValidated {
			return errkind.Wrap(errkind.ErrValidation, "record is %s", r.Status)
		}
		if r.Quality == nil || r.Quality.Overall == quality.GradePoor {
			return errkind.Wrap(errkind.ErrQualityFloor, "quality is POOR")
		}
		r.ApprovedBy = approver
		r.ApprovedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, errkind.ErrQualityFloor) {
			return refuse(ReasonQualityFloor)
		}
		return m.failure(id, err)
	}
	return Result{OK: true, RecordID: id}
}

// Reject moves any non-terminal record to REJECTED.
func (m *Manager) Reject(ctx context.Context, id, reason, actor string) Result {
	return m.reject(ctx, id, reason, actor)
}

// Retire moves an IN_TRAINING record to RETIRED.
func (m *Manager) Retire(ctx context.Context, id, actor string) Result {
	if _, err := m.transition(ctx, id, StatusRetired, actor, nil); err != nil {
		return m.failure(id, err)
	}
	return Result{OK: true, RecordID: id}
}

func (m *Manager) reject(ctx context.Context, id, reason, actor string) Result {
	_, err := m.transition(ctx, id, StatusRejected, actor, func(r *TrainingRecord) error {
		r.RejectionReason = reason
		return nil
	})
	if err != nil {
		return m.failure(id, err)
	}
	return Result{OK: true, RecordID: id, Reason: reason}
}

func (m *Manager) cancel(ctx context.Context, id string) Result {
	// the parent context is gone; the rejection itself must still land
	detached := context.WithoutCancel(ctx)
	m.reject(detached, id, ReasonCancelled, "pipeline")
	return Result{OK: false, RecordID: id, Reason: ReasonCancelled}
}

// transition performs one guarded state change and records it on the chain.
func (m *Manager) transition(ctx context.Context, id string, to Status, actor string, mutate func(*TrainingRecord) error) (*TrainingRecord, error) {
	var before Status
	updated, err := m.store.Transition(ctx, id, func(r *TrainingRecord) error {
		before = r.Status
		if !CanTransition(r.Status, to) {
			return errkind.Wrap(errkind.ErrValidation, "illegal transition %s -> %s", r.Status, to)
		}
		if mutate != nil {
			if err := mutate(r); err != nil {
				return err
			}
		}
		r.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, auditchain.Draft{
		TenantID: updated.TenantID, ActorID: actor,
		EventType: auditchain.EventRecordStateChanged, Severity: auditchain.SeverityInfo,
		ResourceType: "training_record", ResourceID: id,
		Action:  "transition",
		Changes: map[string]string{"before": string(before), "after": string(to)},
	})
	return updated, nil
}

func (m *Manager) failure(id string, err error) Result {
	reason := errkind.Reason(err)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		reason = ReasonNotFound
	case reason == "OK" || reason == "INTERNAL":
		reason = ReasonInternal
	}
	m.logger.Warn("lifecycle call failed", "record", id, "reason", reason, "error", err)
	return Result{OK: false, RecordID: id, Reason: reason}
}

func (m *Manager) emit(ctx context.Context, draft auditchain.Draft) {
	if m.chain == nil {
		return
	}
	if _, err := m.chain.Append(ctx, draft); err != nil {
		m.logger.Error("audit append failed", "event_type", draft.EventType, "error", err)
	}
}

// statementFromDoc rebuilds a canonical Statement from an ingested document
// for quality assessment. Non-numeric field values are skipped.
func statementFromDoc(doc map[string]interface{}, t statement.Type) *statement.Statement {
	s := &statement.Statement{
		Type:   t,
		Fields: make(map[string]decimal.Decimal),
	}
	if pe, ok := doc["period_end"].(string); ok {
		s.PeriodEnd = pe
	}
	fields, ok := doc["fields"].(map[string]interface{})
	if !ok {
		return s
	}
	for name, raw := range fields {
		switch v := raw.(type) {
		case string:
			if d, err := decimal.Parse(v); err == nil {
				s.Fields[name] = d
			}
		case float64:
			s.Fields[name] = decimal.FromFloat64(v)
		case int:
			s.Fields[name] = decimal.FromInt64(int64(v))
		case int64:
			s.Fields[name] = decimal.FromInt64(v)
		}
	}
	return s
}

// CreateDataset composes approved records into a dataset. The operation is
// all-or-nothing: if any cited record is not APPROVED_FOR_TRAINING, or its
// schema version is incompatible with the dataset's, nothing is created and
// nothing transitions. On success every cited record flips to IN_TRAINING.
func (m *Manager) CreateDataset(ctx context.Context, name string, recordIDs []string, purpose, creator string) (string, Result) {
	if len(recordIDs) == 0 {
		return "", Result{OK: false, Reason: ReasonValidationFailed}
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf("^%d", m.schemaVer.Major()))
	if err != nil {
		return "", Result{OK: false, Reason: ReasonInternal}
	}
	for _, id := range recordIDs {
		record, err := m.store.GetRecord(ctx, id)
		if err != nil {
			return "", Result{OK: false, RecordID: id, Reason: ReasonNotFound}
		}
		if record.Status != StatusApprovedForTraining {
			return "", Result{OK: false, RecordID: id, Reason: ReasonNotApproved}
		}
		recordVer, err := semver.NewVersion(record.SchemaVersion)
		if err != nil || !constraint.Check(recordVer) {
			return "", Result{OK: false, RecordID: id, Reason: ReasonSchemaIncompatible}
		}
	}

	dataset := &Dataset{
		ID:            uuid.New().String(),
		Name:          name,
		Purpose:       purpose,
		SchemaVersion: m.schemaVer.String(),
		RecordIDs:     append([]string(nil), recordIDs...),
		CreatedBy:     creator,
		CreatedAt:     time.Now().UTC(),
	}

	// Flip records one at a time, re-checking approval under each record's
	// lock. A failure rolls back the records already flipped.
	var flipped []string
	rollback := func() {
		for _, id := range flipped {
			_, err := m.store.Transition(ctx, id, func(r *TrainingRecord) error {
				r.Status = StatusApprovedForTraining
				return nil
			})
			if err != nil {
				m.logger.Error("dataset rollback failed", "record", id, "error", err)
			}
		}
	}
	for _, id := range recordIDs {
		_, err := m.store.Transition(ctx, id, func(r *TrainingRecord) error {
			if r.Status != StatusApprovedForTraining {
				return errkind.Wrap(errkind.ErrValidation, "record is %s", r.Status)
			}
			r.Status = StatusInTraining
			return nil
		})
		if err != nil {
			rollback()
			return "", Result{OK: false, RecordID: id, Reason: ReasonNotApproved}
		}
		flipped = append(flipped, id)
	}

	if err := m.store.CreateDataset(ctx, dataset); err != nil {
		rollback()
		m.logger.Error("dataset create failed", "error", err)
		return "", Result{OK: false, Reason: ReasonInternal}
	}

	for _, id := range recordIDs {
		m.emit(ctx, auditchain.Draft{
			ActorID:   creator,
			EventType: auditchain.EventRecordStateChanged, Severity: auditchain.SeverityInfo,
			ResourceType: "training_record", ResourceID: id,
			Action:  "transition",
			Changes: map[string]string{"before": string(StatusApprovedForTraining), "after": string(StatusInTraining)},
		})
	}
	m.emit(ctx, auditchain.Draft{
		ActorID:   creator,
		EventType: auditchain.EventDatasetCreated, Severity: auditchain.SeverityInfo,
		ResourceType: "dataset", ResourceID: dataset.ID,
		Action:   "create",
		Metadata: map[string]string{"name": name, "record_count": strconv.Itoa(len(recordIDs))},
	})
	return dataset.ID, Result{OK: true}
}

// TrackTraining records that a model was trained on a dataset. Bookkeeping
// only; appended to the dataset and to every referenced record's lineage.
func (m *Manager) TrackTraining(ctx context.Context, datasetID, modelID, modelName string, metadata map[string]string) error {
	training := ModelTraining{
		ModelID:   modelID,
		ModelName: modelName,
		TrainedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	var recordIDs []string
	err := m.store.UpdateDataset(ctx, datasetID, func(d *Dataset) error {
		d.ModelsTrained = append(d.ModelsTrained, training)
		recordIDs = append([]string(nil), d.RecordIDs...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("track training: %w", err)
	}
	for _, id := range recordIDs {
		_, err := m.store.Transition(ctx, id, func(r *TrainingRecord) error {
			r.UsedInModels = append(r.UsedInModels, training)
			return nil
		})
		if err != nil {
			m.logger.Error("lineage update failed", "record", id, "error", err)
		}
	}
	m.emit(ctx, auditchain.Draft{
		EventType: auditchain.EventModelTrained, Severity: auditchain.SeverityInfo,
		ResourceType: "dataset", ResourceID: datasetID,
		Action:   "train",
		Metadata: map[string]string{"model_id": modelID},
	})
	return nil
}

// LineageOf returns every dataset that trained the model and, transitively,
// the records composing those datasets.
func (m *Manager) LineageOf(ctx context.Context, modelID string) (*LineageReport, error) {
	datasets, err := m.store.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	report := &LineageReport{ModelID: modelID}
	seen := make(map[string]bool)
	for _, dataset := range datasets {
		trained := false
		for _, mt := range dataset.ModelsTrained {
			if mt.ModelID == modelID {
				trained = true
				break
			}
		}
		if !trained {
			continue
		}
		report.Datasets = append(report.Datasets, *dataset)
		for _, id := range dataset.RecordIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			record, err := m.store.GetRecord(ctx, id)
			if err != nil {
				continue
			}
			report.Records = append(report.Records, LineageRecord{
				RecordID:   record.ID,
				Source:     record.Source,
				Quality:    record.Quality,
				UploadedAt: record.UploadedAt,
				ApprovedAt: record.ApprovedAt,
			})
		}
	}
	return report, nil
}
