package sink

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// DefaultTable is the Postgres table records are inserted into.
const DefaultTable = "steam_reviews"

// rowsPerStatement keeps a statement well below the 65535 bind parameter limit.
const rowsPerStatement = 1000

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{
	"id", "author", "date", "hours", "content", "comments",
	"source", "helpful", "funny", "recommended",
}

// Postgres inserts records, skipping ids that are already stored.
type Postgres struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// NewPostgres connects to dsn and creates the table if it does not exist.
func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		table:  table,
		logger: logging.NewLogger("sink").With().Str("sink", "postgres").Logger(),
	}
	if _, err := pool.Exec(ctx, createTableSQL(table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return p, nil
}

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id          CHAR(56) PRIMARY KEY,
		author      CHAR(56) NOT NULL,
		date        DATE NOT NULL,
		hours       BIGINT NOT NULL,
		content     TEXT NOT NULL,
		comments    BIGINT NOT NULL,
		source      TEXT NOT NULL,
		helpful     BIGINT NOT NULL,
		funny       BIGINT NOT NULL,
		recommended BOOLEAN NOT NULL
	)`
}

// insertQuery builds one multi-row insert for records.
func insertQuery(table string, records []review.Record) (string, []interface{}, error) {
	q := psql.Insert(table).Columns(recordColumns...)
	for _, r := range records {
		date, err := time.Parse(review.DateLayout, r.Date)
		if err != nil {
			return "", nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		q = q.Values(r.ID, r.Author, date, r.Hours, r.Content, r.Comments,
			r.Source, r.Helpful, r.Funny, r.Recommended)
	}
	return q.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
}

// Name implements Sink.
func (p *Postgres) Name() string {
	return "postgres"
}

// Publish inserts the batch in one transaction.
func (p *Postgres) Publish(ctx context.Context, b Batch) error {
	if len(b.Records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var inserted int64
	for i := 0; i < len(b.Records); i += rowsPerStatement {
		j := i + rowsPerStatement
		if j > len(b.Records) {
			j = len(b.Records)
		}
		query, args, err := insertQuery(p.table, b.Records[i:j])
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Debug().
		Str("file", b.Name).
		Int("records", len(b.Records)).
		Int64("inserted", inserted).
		Msg("Batch stored")
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
