package sink

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/sqlutil"
)

// insertBatchSize bounds how many rows one INSERT statement carries.
const insertBatchSize = 100

// DBSink loads finished exports into a relational database, one table per
// entity type. All columns are stored as text; the export is an archive, not
// a typed replica.
type DBSink struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	logger  *logger.Logger
}

// NewDBSink connects to the configured database with retry and returns a
// ready sink.
func NewDBSink(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*DBSink, error) {
	if log == nil {
		log = logger.NewDefault()
	}

	dialect := sqlutil.DialectMySQL
	driver := "mysql"
	if cfg.Driver == "postgres" {
		dialect = sqlutil.DialectPostgres
		driver = "pgx"
	}

	db, err := connectWithRetry(ctx, driver, BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s sink: %w", cfg.Driver, err)
	}

	return &DBSink{db: db, dialect: dialect, logger: log}, nil
}

// connectWithRetry attempts to connect with exponential backoff.
func connectWithRetry(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open(driver, dsn)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				db.SetMaxOpenConns(10)
				db.SetConnMaxLifetime(10 * time.Minute)
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// BuildDSN constructs the driver DSN from configuration.
func BuildDSN(cfg config.DatabaseConfig) string {
	if cfg.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// Store creates the entity table if needed, clears any rows from a previous
// run and loads the export rows in batches, inside one transaction. Re-running
// a job overwrites, never appends.
func (s *DBSink) Store(ctx context.Context, entity, csvPath string) (int64, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	table, columns, err := s.quoteSchema(entity, header)
	if err != nil {
		return 0, err
	}

	createStmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		table, strings.Join(columnDefs(columns), ", "))
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		return 0, fmt.Errorf("failed to create table for %s: %w", entity, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// DELETE rather than TRUNCATE: MySQL TRUNCATE implicitly commits, which
	// would break the all-or-nothing overwrite.
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return 0, fmt.Errorf("failed to clear previous %s rows: %w", entity, err)
	}

	var total int64
	batch := make([][]string, 0, insertBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.insertBatch(ctx, tx, table, columns, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("failed to read record: %w", err)
		}
		batch = append(batch, padRecord(record, len(columns)))
		if len(batch) == insertBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	if err := tx.Commit(); err != nil {
		return total, fmt.Errorf("failed to commit %s load: %w", entity, err)
	}

	s.logger.Infow("Export loaded into database", "entity", entity, "rows", total)
	return total, nil
}

// insertBatch issues one multi-row INSERT for the batch.
func (s *DBSink) insertBatch(ctx context.Context, tx *sql.Tx, table string, columns []string, batch [][]string) error {
	width := len(columns)
	rows := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*width)

	for i, record := range batch {
		if s.dialect == sqlutil.DialectPostgres {
			ph := make([]string, width)
			for j := range ph {
				ph[j] = fmt.Sprintf("$%d", i*width+j+1)
			}
			rows[i] = "(" + strings.Join(ph, ", ") + ")"
		} else {
			rows[i] = "(" + sqlutil.Placeholders(s.dialect, width) + ")"
		}
		for _, v := range record {
			args = append(args, v)
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, strings.Join(columns, ", "), strings.Join(rows, ", "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// quoteSchema validates and quotes the table and column identifiers.
func (s *DBSink) quoteSchema(entity string, header []string) (string, []string, error) {
	table, err := sqlutil.QuoteIdentifierSafe(s.dialect, entity)
	if err != nil {
		return "", nil, fmt.Errorf("unusable entity name: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		col, err := sqlutil.QuoteIdentifierSafe(s.dialect, h)
		if err != nil {
			return "", nil, fmt.Errorf("unusable column name: %w", err)
		}
		columns[i] = col
	}
	return table, columns, nil
}

func columnDefs(columns []string) []string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c + " TEXT"
	}
	return defs
}

// padRecord pads short records to the column count.
func padRecord(record []string, width int) []string {
	if len(record) >= width {
		return record[:width]
	}
	out := make([]string, width)
	copy(out, record)
	return out
}

func (s *DBSink) Close() error {
	return s.db.Close()
}
