package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type fakeJournal struct {
	rows    []domain.Opportunity
	deleted []time.Time
}

func (f *fakeJournal) Insert(context.Context, domain.Opportunity) error { return nil }

func (f *fakeJournal) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (f *fakeJournal) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, opp := range f.rows {
		if opp.DetectedAt.Before(cutoff) {
			out = append(out, opp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJournal) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleted = append(f.deleted, cutoff)
	var kept []domain.Opportunity
	var n int64
	for _, opp := range f.rows {
		if opp.DetectedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, opp)
	}
	f.rows = kept
	return n, nil
}

type fakeWriter struct {
	objects   map[string][]byte
	multipart map[string][]byte
	err       error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.err != nil {
		return f.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[path] = buf
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if f.err != nil {
		return f.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.multipart == nil {
		f.multipart = make(map[string][]byte)
	}
	f.multipart[path] = buf
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func TestArchiveOnceGroupsByDate(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	journal := &fakeJournal{rows: []domain.Opportunity{
		{ID: "a", MarketID: "m1", DetectedAt: day1},
		{ID: "b", MarketID: "m2", DetectedAt: day1.Add(time.Hour)},
		{ID: "c", MarketID: "m1", DetectedAt: day2},
		{ID: "d", MarketID: "m1", DetectedAt: recent},
	}}
	writer := &fakeWriter{}

	a := NewArchiver(writer, journal, time.Hour, 7*24*time.Hour, testLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	count, err := a.ArchiveOnce(context.Background())
	if err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if count != 3 {
		t.Fatalf("archived %d rows, want 3", count)
	}

	var day1Rows []domain.Opportunity
	if err := json.Unmarshal(writer.objects["opportunities/2026-02-01.json"], &day1Rows); err != nil {
		t.Fatalf("day1 object: %v", err)
	}
	if len(day1Rows) != 2 {
		t.Fatalf("day1 object has %d rows, want 2", len(day1Rows))
	}
	if _, ok := writer.objects["opportunities/2026-02-02.json"]; !ok {
		t.Fatal("day2 object missing")
	}

	// The row inside the retention window stays in the journal.
	if len(journal.rows) != 1 || journal.rows[0].ID != "d" {
		t.Fatalf("journal after archive = %+v, want only row d", journal.rows)
	}
}

func TestArchiveOnceKeepsRowsWhenUploadFails(t *testing.T) {
	journal := &fakeJournal{rows: []domain.Opportunity{
		{ID: "a", DetectedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}}
	writer := &fakeWriter{err: errors.New("bucket gone")}

	a := NewArchiver(writer, journal, time.Hour, 7*24*time.Hour, testLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	if _, err := a.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("upload failure was not reported")
	}
	if len(journal.deleted) != 0 {
		t.Fatal("journal was pruned despite a failed upload")
	}
	if len(journal.rows) != 1 {
		t.Fatal("journal rows lost on failed upload")
	}
}

func TestArchiveOnceUsesMultipartAboveThreshold(t *testing.T) {
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	journal := &fakeJournal{rows: []domain.Opportunity{
		{ID: "a", MarketID: strings.Repeat("x", 2048), DetectedAt: day},
		{ID: "b", MarketID: "m2", DetectedAt: day.AddDate(0, 0, 1)},
	}}
	writer := &fakeWriter{}

	a := NewArchiver(writer, journal, time.Hour, 7*24*time.Hour, testLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	a.mpThreshold = 1024

	if _, err := a.ArchiveOnce(context.Background()); err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}

	if _, ok := writer.multipart["opportunities/2026-02-01.json"]; !ok {
		t.Fatal("oversized object did not go through the multipart path")
	}
	if _, ok := writer.objects["opportunities/2026-02-01.json"]; ok {
		t.Fatal("oversized object was also written with a single put")
	}
	if _, ok := writer.objects["opportunities/2026-02-02.json"]; !ok {
		t.Fatal("small object should use a single put")
	}

	var rows []domain.Opportunity
	if err := json.Unmarshal(writer.multipart["opportunities/2026-02-01.json"], &rows); err != nil {
		t.Fatalf("multipart object: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a" {
		t.Fatalf("multipart object rows = %+v, want row a", rows)
	}
}

func TestArchiveOnceEmptyJournalIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(writer, &fakeJournal{}, time.Hour, 7*24*time.Hour, testLogger())

	count, err := a.ArchiveOnce(context.Background())
	if err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if count != 0 || len(writer.objects) != 0 {
		t.Fatalf("no-op pass wrote %d objects, count %d", len(writer.objects), count)
	}
}
