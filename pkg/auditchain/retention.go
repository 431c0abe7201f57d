package auditchain

import (
	"strings"
	"time"
)

// Retention durations, built from 365-day years so leap years do not shift
// class boundaries between runs.
const (
	retentionOneYear    = 365 * 24 * time.Hour
	retentionTwoYears   = 2 * 365 * 24 * time.Hour
	retentionSevenYears = 7 * 365 * 24 * time.Hour
)

// retentionTable maps exact event types to their retention duration.
// Anything not listed falls to the seven-year default.
var retentionTable = map[string]time.Duration{
	"LOGIN_SUCCESS": retentionOneYear,

	"LOGIN_FAILURE":        retentionTwoYears,
	"SECURITY_ALERT":       retentionTwoYears,
	"UNAUTHORIZED_ACCESS":  retentionTwoYears,
	"PRIVILEGE_ESCALATION": retentionTwoYears,

	"DATA_CREATE": retentionSevenYears,
	"DATA_UPDATE": retentionSevenYears,
	"DATA_DELETE": retentionSevenYears,

	EventRecordCreated:          retentionSevenYears,
	EventRecordStateChanged:     retentionSevenYears,
	EventAnonymizationPerformed: retentionSevenYears,
	EventApprovalRefused:        retentionSevenYears,
	EventDatasetCreated:         retentionSevenYears,
	EventModelTrained:           retentionSevenYears,
	EventIntegrityCheck:         retentionSevenYears,
}

// RetentionFor returns how long events of this type must stay in the hot
// store. TRANSACTION_* events are financial modifications and keep the
// seven-year floor.
func RetentionFor(eventType string) time.Duration {
	if d, ok := retentionTable[eventType]; ok {
		return d
	}
	if strings.HasPrefix(eventType, "TRANSACTION_") {
		return retentionSevenYears
	}
	return retentionSevenYears
}

// SetRetention overrides or adds a retention class. Configuration hooks call
// this at startup, before any archival sweep runs.
func SetRetention(eventType string, d time.Duration) {
	retentionTable[eventType] = d
}

// ShouldArchive reports whether an event of the given type and timestamp has
// outlived its retention as of now.
func ShouldArchive(eventType string, ts, now time.Time) bool {
	return now.Sub(ts) > RetentionFor(eventType)
}
