package auditchain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veridata-Labs/fincorpus/core/pkg/canonicalize"
)

// EvidenceBundle is an exportable, self-verifying slice of the chain. The
// bundle hash is computed over the canonical JSON of the entries, so a bundle
// verifies identically regardless of which store produced it.
type EvidenceBundle struct {
	BundleID   string    `json:"bundle_id"`
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	StartSeq   uint64    `json:"start_seq"`
	EndSeq     uint64    `json:"end_seq"`
	EntryCount int       `json:"entry_count"`
	Events     []*Event  `json:"events"`
	ChainHead  string    `json:"chain_head"`
	BundleHash string    `json:"bundle_hash"`
}

const bundleVersion = "1.0.0"

// ExportBundle exports a contiguous sequence range as an evidence bundle.
func (c *Chain) ExportBundle(ctx context.Context, from, to uint64) (*EvidenceBundle, error) {
	events, err := c.store.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("export range: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events in range [%d, %d]", from, to)
	}

	bundle := &EvidenceBundle{
		BundleID:   uuid.New().String(),
		Version:    bundleVersion,
		CreatedAt:  time.Now().UTC(),
		StartSeq:   events[0].Seq,
		EndSeq:     events[len(events)-1].Seq,
		EntryCount: len(events),
		Events:     events,
		ChainHead:  events[len(events)-1].SelfHash,
	}
	hash, err := canonicalize.CanonicalHash(bundle.Events)
	if err != nil {
		return nil, fmt.Errorf("hash bundle: %w", err)
	}
	bundle.BundleHash = hash
	return bundle, nil
}

// VerifyBundle checks a bundle's hash and internal chain linkage.
func VerifyBundle(bundle *EvidenceBundle) error {
	if len(bundle.Events) == 0 {
		return fmt.Errorf("bundle is empty")
	}
	hash, err := canonicalize.CanonicalHash(bundle.Events)
	if err != nil {
		return fmt.Errorf("hash bundle: %w", err)
	}
	if hash != bundle.BundleHash {
		return fmt.Errorf("bundle hash mismatch")
	}
	for i, event := range bundle.Events {
		computed, err := canonicalize.CanonicalHash(event.preimage())
		if err != nil || computed != event.SelfHash {
			return &IntegrityError{Seq: event.Seq, Reason: "self_hash mismatch in bundle"}
		}
		if i > 0 && event.PrevHash != bundle.Events[i-1].SelfHash {
			return &IntegrityError{Seq: event.Seq, Reason: "prev_hash mismatch in bundle"}
		}
	}
	return nil
}
