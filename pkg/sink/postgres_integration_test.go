//go:build integration

package sink

import (
	"context"
	"testing"

	"github.com/Sternrassler/steam-review-ingest/internal/testutil"
)

func TestPostgres_PublishIntegration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	ctx := context.Background()

	p, err := NewPostgres(ctx, dsn, "")
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	defer p.Close()

	b := sampleBatch()
	if err := p.Publish(ctx, b); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	// Republishing must not fail or duplicate rows.
	if err := p.Publish(ctx, b); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}

	var count int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+DefaultTable).Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != len(b.Records) {
		t.Errorf("rows = %d, want %d", count, len(b.Records))
	}

	var date string
	err = p.pool.QueryRow(ctx, "SELECT date::text FROM "+DefaultTable+" WHERE id = $1", b.Records[0].ID).Scan(&date)
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	if date != "2024-05-01" {
		t.Errorf("date = %s, want 2024-05-01", date)
	}
}
