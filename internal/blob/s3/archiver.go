package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sofmarkets/infofid/internal/domain"
)

// ArbArchiveStore is the slice of the arbitrage store the archiver needs.
// Satisfied by the Postgres ArbStore.
type ArbArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves aged arbitrage records out of PostgreSQL into object
// storage. Records are serialized to JSONL, uploaded, verified with a head
// request, and only then deleted from the primary store.
type Archiver struct {
	client    *Client
	up        *Uploader
	arbs      ArbArchiveStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates the archiver. retention is how long records stay in
// PostgreSQL before being moved.
func NewArchiver(client *Client, arbs ArbArchiveStore, retention time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Archiver{
		client:    client,
		up:        NewUploader(client),
		arbs:      arbs,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run executes one archival pass per day until ctx is cancelled. A failed
// pass is logged and retried on the next tick; nothing is deleted unless the
// upload verified.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if n, err := a.ArchiveBefore(ctx, time.Now().UTC().Add(-a.retention)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("archive pass failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.Info("archive pass complete", slog.Int64("records", n))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ArchiveBefore uploads every arbitrage record older than the cutoff to
// archive/arbitrage/YYYY-MM.jsonl and deletes the archived rows. Returns the
// number of rows moved.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.arbs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := fmt.Sprintf("archive/arbitrage/%s.jsonl", before.Format("2006-01"))
	if err := a.up.Upload(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	// Verify the object landed before touching the primary store.
	if err := a.verify(ctx, path); err != nil {
		return 0, err
	}

	deleted, err := a.arbs.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive delete: %w", err)
	}

	a.logger.Info("arbitrage history archived",
		slog.String("path", path),
		slog.Int("uploaded", len(opps)),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (a *Archiver) verify(ctx context.Context, path string) error {
	_, err := a.client.S3().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.client.Bucket()),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3blob: verify %s: %w", path, err)
	}
	return nil
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
