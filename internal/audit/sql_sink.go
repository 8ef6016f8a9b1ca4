package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	// SQL drivers for the supported audit databases
	_ "github.com/go-sql-driver/mysql" // MySQL / MariaDB
	_ "github.com/lib/pq"              // PostgreSQL
)

// driverMap translates configured database types to driver names.
var driverMap = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// SQLSink writes events to a relational audit table. The table is expected
// to exist:
//
//	CREATE TABLE audit_events (
//	    id             VARCHAR(36) PRIMARY KEY,
//	    operation      VARCHAR(32)  NOT NULL,
//	    key_name       VARCHAR(255) NOT NULL,
//	    project        VARCHAR(255) NOT NULL,
//	    environment    VARCHAR(64)  NOT NULL,
//	    service        VARCHAR(255),
//	    source         VARCHAR(255),
//	    previous_value TEXT,
//	    new_value      TEXT,
//	    metadata       TEXT,
//	    created_at     TIMESTAMP NOT NULL
//	);
type SQLSink struct {
	db     *sql.DB
	driver string
	table  string
}

// SQLSinkOption is a functional option for configuring SQL sinks.
type SQLSinkOption func(*SQLSink)

// WithDB injects an existing database handle (for testing with sqlmock).
func WithDB(db *sql.DB) SQLSinkOption {
	return func(s *SQLSink) {
		s.db = db
	}
}

// NewSQLSink opens a sink for the given database type ("postgres", "mysql",
// "mariadb", ...) and DSN. Table defaults to "audit_events".
func NewSQLSink(dbType, dsn, table string, opts ...SQLSinkOption) (*SQLSink, error) {
	driver, ok := driverMap[strings.ToLower(dbType)]
	if !ok {
		return nil, fmt.Errorf("unsupported audit database type: %s", dbType)
	}
	if table == "" {
		table = "audit_events"
	}

	s := &SQLSink{driver: driver, table: table}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		s.db = db
	}

	return s, nil
}

// insertStatement builds the INSERT with driver-appropriate placeholders.
func (s *SQLSink) insertStatement() string {
	columns := "(id, operation, key_name, project, environment, service, source, previous_value, new_value, metadata, created_at)"
	if s.driver == "postgres" {
		return fmt.Sprintf("INSERT INTO %s %s VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)", s.table, columns)
	}
	return fmt.Sprintf("INSERT INTO %s %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, columns)
}

// Log inserts one event row.
func (s *SQLSink) Log(event Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return WriteError{Sink: "sql", Err: err}
	}

	_, err = s.db.Exec(s.insertStatement(),
		event.ID,
		event.Operation,
		event.Key,
		event.Project,
		event.Environment,
		event.Service,
		event.Source,
		event.PreviousValue,
		event.NewValue,
		string(metadata),
		event.Timestamp,
	)
	if err != nil {
		return WriteError{Sink: "sql", Err: err}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
