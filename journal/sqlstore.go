package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps entries in one table of a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect string
	table   string
	owned   bool
}

// Open connects to driver ("sqlite3", "postgres" or "mysql") and prepares
// the journal table. The returned store closes the connection on Close.
func Open(driver, dsn, table string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("journal %s: dsn is required", driver)
	}

	dsn, err := PrepareDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// PrepareDSN adjusts dsn for driver. MySQL DSNs always get parseTime=true
// so TIMESTAMP columns scan into time.Time.
func PrepareDSN(driver, dsn string) (string, error) {
	if driver != DialectMySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// NewSQLStore uses an existing connection. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, dialect, table string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	normalized := dialect
	if dialect == "sqlite3" {
		normalized = DialectSQLite
	}
	switch normalized {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return nil, fmt.Errorf("%w: %s (supported: postgres, mysql, sqlite)", ErrUnsupported, dialect)
	}

	if table == "" {
		table = "relay_journal"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid journal table name %q", table)
	}

	s := &SQLStore{db: db, dialect: normalized, table: table}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) PRIMARY KEY,
    sender VARCHAR(255) NOT NULL,
    recipient VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    attempts INTEGER NOT NULL,
    route VARCHAR(64),
    strategy VARCHAR(64),
    reason TEXT,
    record_json TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	if s.dialect != DialectMySQL {
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_finished_at ON %[1]s(finished_at)`, s.table)
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create finished_at index: %w", err)
		}
	}
	return nil
}

// bind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: empty id", ErrSaveFailed)
	}

	record, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}

	columns := "id, sender, recipient, status, attempts, route, strategy, reason, record_json, enqueued_at, finished_at"
	values := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"

	var query string
	switch s.dialect {
	case DialectMySQL:
		query = fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (%s)
ON DUPLICATE KEY UPDATE
    status = VALUES(status),
    attempts = VALUES(attempts),
    route = VALUES(route),
    strategy = VALUES(strategy),
    reason = VALUES(reason),
    record_json = VALUES(record_json),
    finished_at = VALUES(finished_at)`, s.table, columns, values)
	default:
		query = fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (%s)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    attempts = excluded.attempts,
    route = excluded.route,
    strategy = excluded.strategy,
    reason = excluded.reason,
    record_json = excluded.record_json,
    finished_at = excluded.finished_at`, s.table, columns, values)
	}

	_, err = s.db.ExecContext(ctx, s.bind(query),
		entry.ID, entry.Record.Sender, entry.Record.Recipient,
		entry.Status, entry.Attempts, entry.Route, entry.Strategy, entry.Reason,
		string(record), entry.EnqueuedAt.UTC(), entry.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, entry.ID, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (Entry, error) {
	query := fmt.Sprintf(`
SELECT id, status, attempts, route, strategy, reason, record_json, enqueued_at, finished_at
FROM %s WHERE id = ?`, s.table)

	var (
		entry                   Entry
		route, strategy, reason sql.NullString
		record                  string
	)
	err := s.db.QueryRowContext(ctx, s.bind(query), id).Scan(
		&entry.ID, &entry.Status, &entry.Attempts,
		&route, &strategy, &reason, &record,
		&entry.EnqueuedAt, &entry.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}

	if err := json.Unmarshal([]byte(record), &entry.Record); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	entry.Route = route.String
	entry.Strategy = strategy.String
	entry.Reason = reason.String
	return entry, nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY finished_at, id`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return ids, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, s.bind(query), id); err != nil {
		return fmt.Errorf("delete failed: %s: %w", id, err)
	}
	return nil
}

// Close closes the connection when the store opened it.
func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
