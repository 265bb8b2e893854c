package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// DefaultResultsTable is used when no table name is configured.
const DefaultResultsTable = "batch_results"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// DriverName maps configured driver aliases onto registered database/sql drivers.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return "pgx", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	}
	return "", fmt.Errorf("unsupported results database driver %q", driver)
}

// OpenSQL opens and pings a results database.
func OpenSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", name, err)
	}
	return db, nil
}

// SQLResultHandler upserts one row per entry into a results table.
type SQLResultHandler struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewSQLResultHandler(db *sql.DB, table string) (*SQLResultHandler, error) {
	if table == "" {
		table = DefaultResultsTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid results table name %q", table)
	}
	return &SQLResultHandler{db: db, table: table, now: time.Now}, nil
}

func (h *SQLResultHandler) Name() string { return "sql:" + h.table }

// EnsureTable creates the results table if needed.
func (h *SQLResultHandler) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		job_name   TEXT NOT NULL,
		custom_id  TEXT NOT NULL,
		value      TEXT,
		error      TEXT,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (job_name, custom_id)
	)`, h.table)
	if _, err := h.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create results table %s: %w", h.table, err)
	}
	return nil
}

func (h *SQLResultHandler) Handle(ctx context.Context, results *models.BatchResults) error {
	query := fmt.Sprintf(`INSERT INTO %s (job_name, custom_id, value, error, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_name, custom_id) DO UPDATE SET value = excluded.value, error = excluded.error, created_at = excluded.created_at`, h.table)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	now := h.now().UTC()
	for _, id := range results.SortedIDs() {
		e := results.Entries[id]
		var value, errMsg sql.NullString
		if e.OK() {
			value = sql.NullString{String: FormatValue(e.Value), Valid: true}
		} else {
			errMsg = sql.NullString{String: e.Error, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query, results.JobName, id, value, errMsg, now); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warnf("Rollback of results tx failed: %v", rbErr)
			}
			return fmt.Errorf("upsert result %s/%s: %w", results.JobName, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results for %s: %w", results.JobName, err)
	}
	return nil
}
