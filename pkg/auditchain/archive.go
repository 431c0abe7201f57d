package auditchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ColdStore receives archived evidence bundles.
type ColdStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Archiver sweeps the chain for events past their retention class and copies
// them to cold storage as verified evidence bundles. Events stay in the hot
// store afterward so hash linkage is never broken; compaction of the hot
// store is a separate, store-level concern.
type Archiver struct {
	chain  *Chain
	cold   ColdStore
	logger *slog.Logger
}

func NewArchiver(chain *Chain, cold ColdStore) *Archiver {
	return &Archiver{
		chain:  chain,
		cold:   cold,
		logger: slog.Default().With("component", "archiver"),
	}
}

// Sweep exports every maximal contiguous run of archival candidates as one
// bundle. Returns the number of events archived.
func (a *Archiver) Sweep(ctx context.Context, now time.Time) (int, error) {
	length, err := a.chain.store.Len(ctx)
	if err != nil || length == 0 {
		return 0, err
	}
	events, err := a.chain.store.Range(ctx, 0, length-1)
	if err != nil {
		return 0, err
	}

	archived := 0
	runStart := -1
	flush := func(endIdx int) error {
		if runStart < 0 {
			return nil
		}
		from, to := events[runStart].Seq, events[endIdx].Seq
		bundle, err := a.chain.ExportBundle(ctx, from, to)
		if err != nil {
			return err
		}
		if err := VerifyBundle(bundle); err != nil {
			return fmt.Errorf("refusing to archive unverifiable range [%d, %d]: %w", from, to, err)
		}
		data, err := json.Marshal(bundle)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("audit/%s/bundle-%010d-%010d.json", now.UTC().Format("2006-01-02"), from, to)
		if err := a.cold.Put(ctx, key, data); err != nil {
			return fmt.Errorf("cold store put %s: %w", key, err)
		}
		a.logger.Info("archived chain range", "from", from, "to", to, "key", key)
		archived += endIdx - runStart + 1
		runStart = -1
		return nil
	}

	for i, event := range events {
		if ShouldArchive(event.EventType, event.TS, now) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if err := flush(i - 1); err != nil {
			return archived, err
		}
	}
	if err := flush(len(events) - 1); err != nil {
		return archived, err
	}
	return archived, nil
}

// DirStore writes bundles under a local directory.
type DirStore struct {
	Root string
}

func (d *DirStore) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// S3Store writes bundles to an S3 bucket.
type S3Store struct {
	Client *s3.Client
	Bucket string
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// GCSStore writes bundles to a Google Cloud Storage bucket.
type GCSStore struct {
	Client *storage.Client
	Bucket string
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := g.Client.Bucket(g.Bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
