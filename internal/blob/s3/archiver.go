package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// archiveBatchLimit bounds how many journal rows one archive pass reads.
const archiveBatchLimit = 10000

// multipartThreshold is the object size at which uploads switch from a
// single PutObject to the multipart manager.
const multipartThreshold = 8 << 20

// multipartWriter is an optional upgrade of domain.BlobWriter for backends
// that support multipart uploads.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver periodically moves journal rows older than the retention cutoff
// into blob storage. Rows are grouped by detection date and written as one
// JSON array per day at opportunities/{date}.json, then deleted from the
// journal. A failed pass is logged and retried on the next tick; the journal
// keeps the rows until an upload has succeeded.
type Archiver struct {
	writer      domain.BlobWriter
	journal     domain.OpportunityStore
	interval    time.Duration
	retain      time.Duration
	mpThreshold int
	logger      *slog.Logger
	now         func() time.Time
}

// NewArchiver creates an Archiver that retains journal rows for retain and
// runs a pass every interval.
func NewArchiver(writer domain.BlobWriter, journal domain.OpportunityStore, interval, retain time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:      writer,
		journal:     journal,
		interval:    interval,
		retain:      retain,
		mpThreshold: multipartThreshold,
		logger:      logger.With(slog.String("component", "archiver")),
		now:         time.Now,
	}
}

// Run executes archive passes until ctx is cancelled. Pass failures never
// stop the loop.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("archive pass failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("archived opportunities", slog.Int64("count", count))
			}
		}
	}
}

// ArchiveOnce uploads and deletes every journal row older than the retention
// cutoff, returning the number of rows archived. Deletion only runs after
// all uploads succeeded.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-a.retain)

	rows, err := a.journal.ListBefore(ctx, cutoff, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	byDate := make(map[string][]domain.Opportunity)
	for _, opp := range rows {
		date := opp.DetectedAt.UTC().Format("2006-01-02")
		byDate[date] = append(byDate[date], opp)
	}

	for date, opps := range byDate {
		buf, err := json.Marshal(opps)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive marshal %s: %w", date, err)
		}
		path := "opportunities/" + date + ".json"
		if err := a.upload(ctx, path, buf); err != nil {
			return 0, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
		}
	}

	deleted, err := a.journal.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive prune: %w", err)
	}
	return deleted, nil
}

// upload writes one day's snapshot, switching to a multipart upload for
// objects at or above the threshold when the backend supports it.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= a.mpThreshold {
		if mp, ok := a.writer.(multipartWriter); ok {
			return mp.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		}
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
}
