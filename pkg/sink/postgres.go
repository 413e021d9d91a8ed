package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

// PostgresConfig holds connection settings for the relational sink.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Postgres stores normalized records in an estates table. An upsert
// runs the duplicate-check query and the insert in one transaction;
// existing rows are left untouched, matching the source-of-truth role
// of the first fetch. All field values are stored as text.
type Postgres struct {
	cfg  PostgresConfig
	pool *pgxpool.Pool

	insertSQL string
	columns   []string
}

// NewPostgres returns a relational sink for the given connection
// settings.
func NewPostgres(cfg PostgresConfig) *Postgres {
	cols := normalize.FieldNames()
	placeholders := make([]string, len(cols)+1)
	quoted := make([]string, len(cols)+1)
	quoted[0] = "content_hash"
	placeholders[0] = "$1"
	for i, name := range cols {
		quoted[i+1] = fmt.Sprintf("%q", name)
		placeholders[i+1] = fmt.Sprintf("$%d", i+2)
	}

	return &Postgres{
		cfg:     cfg,
		columns: cols,
		insertSQL: fmt.Sprintf("INSERT INTO estates (%s) VALUES (%s)",
			strings.Join(quoted, ", "), strings.Join(placeholders, ", ")),
	}
}

func (p *Postgres) Open(ctx context.Context) error {
	if p.cfg.Port == 0 {
		p.cfg.Port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port),
		Path:   "/" + p.cfg.Database,
	}
	if p.cfg.User != "" {
		if p.cfg.Password != "" {
			connURL.User = url.UserPassword(p.cfg.User, p.cfg.Password)
		} else {
			connURL.User = url.User(p.cfg.User)
		}
	}

	pool, err := pgxpool.New(ctx, connURL.String())
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to reach postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, p.createTableSQL()); err != nil {
		pool.Close()
		return fmt.Errorf("failed to create estates table: %w", err)
	}

	p.pool = pool
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, rec normalize.Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}
	defer tx.Rollback(ctx)

	// Duplicate check by source identifier when present, by content
	// hash for fallback-hashed records.
	var exists bool
	if id := normalize.FormatValue(rec.Fields["id"]); id != "" {
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM estates WHERE "id" = $1)`, id).Scan(&exists)
	} else {
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM estates WHERE content_hash = $1)`, rec.Hash).Scan(&exists)
	}
	if err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}
	if exists {
		return tx.Commit(ctx)
	}

	args := make([]any, 0, len(p.columns)+1)
	args = append(args, rec.Hash)
	for _, name := range p.columns {
		args = append(args, normalize.FormatValue(rec.Fields[name]))
	}
	if _, err := tx.Exec(ctx, p.insertSQL, args...); err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) createTableSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS estates (\n    content_hash text PRIMARY KEY")
	for _, name := range p.columns {
		fmt.Fprintf(&b, ",\n    %q text", name)
	}
	b.WriteString("\n)")
	return b.String()
}
