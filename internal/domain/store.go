package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityStore journals gate-approved opportunities for later analysis.
// The journal is optional glue around the detection loop: an unreachable
// database degrades to a logged warning, never a stopped scanner.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlobWriter uploads a single object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
