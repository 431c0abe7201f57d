package auditchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veridata-Labs/fincorpus/core/pkg/canonicalize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

// Store persists chain events. Append is only ever called by the chain's
// single writer; implementations need not serialize it themselves.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Get(ctx context.Context, seq uint64) (*Event, error)
	Range(ctx context.Context, from, to uint64) ([]*Event, error)
	Last(ctx context.Context) (*Event, error)
	Len(ctx context.Context) (uint64, error)
}

// EventHandler observes appended events.
type EventHandler func(event *Event)

// IntegrityError reports the first sequence at which verification failed.
type IntegrityError struct {
	Seq    uint64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity broken at seq %d: %s", e.Seq, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return errkind.ErrChainIntegrity }

// Chain is the single serializing writer over a Store. Sequence numbers start
// at 0; the genesis event's prev_hash is all zeros.
type Chain struct {
	mu       sync.Mutex
	store    Store
	handlers []EventHandler
	logger   *slog.Logger

	// tail cache; loaded lazily from the store
	loaded   bool
	nextSeq  uint64
	lastHash string
}

// New creates a Chain over a store. An existing store resumes at its tail.
func New(store Store) *Chain {
	return &Chain{
		store:  store,
		logger: slog.Default().With("component", "auditchain"),
	}
}

func (c *Chain) loadTail(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	last, err := c.store.Last(ctx)
	if err != nil {
		return fmt.Errorf("load chain tail: %w", err)
	}
	if last == nil {
		c.nextSeq = 0
		c.lastHash = zeroHash
	} else {
		c.nextSeq = last.Seq + 1
		c.lastHash = last.SelfHash
	}
	c.loaded = true
	return nil
}

// Append seals a draft onto the chain and returns its sequence number.
func (c *Chain) Append(ctx context.Context, draft Draft) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadTail(ctx); err != nil {
		return 0, err
	}

	event := &Event{
		ID:           uuid.New().String(),
		Seq:          c.nextSeq,
		TS:           time.Now().UTC(),
		TenantID:     draft.TenantID,
		ActorID:      draft.ActorID,
		EventType:    draft.EventType,
		Severity:     draft.Severity,
		ResourceType: draft.ResourceType,
		ResourceID:   draft.ResourceID,
		Action:       draft.Action,
		Changes:      draft.Changes,
		Metadata:     draft.Metadata,
		PrevHash:     c.lastHash,
	}
	selfHash, err := canonicalize.CanonicalHash(event.preimage())
	if err != nil {
		return 0, fmt.Errorf("hash event: %w", err)
	}
	event.SelfHash = selfHash

	if err := c.store.Append(ctx, event); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	c.nextSeq = event.Seq + 1
	c.lastHash = event.SelfHash

	for _, h := range c.handlers {
		h(event)
	}
	return event.Seq, nil
}

// hashEvent recomputes an event's self hash from its preimage.
func hashEvent(e *Event) (string, error) {
	return canonicalize.CanonicalHash(e.preimage())
}

// AddHandler registers an observer for appended events.
func (c *Chain) AddHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Verify recomputes hashes over [from, to] inclusive. It returns nil when
// every self_hash matches its recomputed value and every prev_hash matches
// the predecessor's self_hash; otherwise an IntegrityError naming the first
// failing sequence. No mutation is ever performed.
func (c *Chain) Verify(ctx context.Context, from, to uint64) error {
	events, err := c.store.Range(ctx, from, to)
	if err != nil {
		return fmt.Errorf("verify range: %w", err)
	}

	expectedPrev := ""
	if from == 0 {
		expectedPrev = zeroHash
	} else {
		prev, err := c.store.Get(ctx, from-1)
		if err != nil {
			return fmt.Errorf("verify predecessor %d: %w", from-1, err)
		}
		expectedPrev = prev.SelfHash
	}

	for _, event := range events {
		if expectedPrev != "" && event.PrevHash != expectedPrev {
			return &IntegrityError{Seq: event.Seq, Reason: "prev_hash does not match predecessor"}
		}
		computed, err := canonicalize.CanonicalHash(event.preimage())
		if err != nil {
			return &IntegrityError{Seq: event.Seq, Reason: "hash computation failed"}
		}
		if computed != event.SelfHash {
			return &IntegrityError{Seq: event.Seq, Reason: "self_hash mismatch"}
		}
		expectedPrev = event.SelfHash
	}
	return nil
}

// RunIntegrityCheck verifies the range and records the outcome on the chain
// itself. The verification result is returned unchanged.
func (c *Chain) RunIntegrityCheck(ctx context.Context, from, to uint64, actor string) error {
	verifyErr := c.Verify(ctx, from, to)

	outcome := "PASS"
	severity := SeverityInfo
	if verifyErr != nil {
		outcome = "FAIL"
		severity = SeverityCritical
	}
	_, appendErr := c.Append(ctx, Draft{
		ActorID:      actor,
		EventType:    EventIntegrityCheck,
		Severity:     severity,
		ResourceType: "audit_chain",
		ResourceID:   fmt.Sprintf("%d-%d", from, to),
		Action:       "verify",
		Metadata:     map[string]string{"outcome": outcome},
	})
	if appendErr != nil {
		c.logger.Error("recording integrity check failed", "error", appendErr)
	}
	if verifyErr != nil {
		c.logger.Error("chain integrity check failed", "from", from, "to", to, "error", verifyErr)
	}
	return verifyErr
}

// Head returns the current tail sequence and hash. The second return is
// false while the chain is empty.
func (c *Chain) Head(ctx context.Context) (uint64, string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadTail(ctx); err != nil {
		return 0, "", false, err
	}
	if c.nextSeq == 0 {
		return 0, "", false, nil
	}
	return c.nextSeq - 1, c.lastHash, true, nil
}

// QueryFilter selects events for queries and bundle export.
type QueryFilter struct {
	EventType    string
	ResourceType string
	ResourceID   string
	TenantID     string
	StartTime    *time.Time
	EndTime      *time.Time
	MaxResults   int
}

func (f QueryFilter) matches(e *Event) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.StartTime != nil && e.TS.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.TS.After(*f.EndTime) {
		return false
	}
	return true
}

// Query returns matching events in sequence order.
func (c *Chain) Query(ctx context.Context, filter QueryFilter) ([]*Event, error) {
	length, err := c.store.Len(ctx)
	if err != nil || length == 0 {
		return nil, err
	}
	events, err := c.store.Range(ctx, 0, length-1)
	if err != nil {
		return nil, err
	}
	var results []*Event
	for _, e := range events {
		if filter.matches(e) {
			results = append(results, e)
			if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
				break
			}
		}
	}
	return results, nil
}
