package audit_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/audit"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/tests/fakes"
)

func sampleEvent() audit.Event {
	return audit.NewEvent(audit.Event{
		Operation:     audit.OpSet,
		Key:           "DB_HOST",
		Project:       "shop",
		Environment:   "prd",
		Service:       "api",
		Source:        "push",
		PreviousValue: "db-01",
		NewValue:      "db-02",
		Metadata:      map[string]string{"plan_id": "p-1", "user": "alice"},
	})
}

func TestNewEventStampsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	e := audit.NewEvent(audit.Event{Operation: audit.OpDelete, Key: "K"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	// Existing identity is preserved.
	again := audit.NewEvent(e)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, e.Timestamp, again.Timestamp)
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	sink, err := audit.NewFileSink(path)
	require.NoError(t, err)

	first := sampleEvent()
	second := audit.NewEvent(audit.Event{Operation: audit.OpDelete, Key: "OLD", Project: "shop", Environment: "prd"})
	require.NoError(t, sink.Log(first))
	require.NoError(t, sink.Log(second))
	require.NoError(t, sink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []audit.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e audit.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, first.ID, lines[0].ID)
	assert.Equal(t, "DB_HOST", lines[0].Key)
	assert.Equal(t, map[string]string{"plan_id": "p-1", "user": "alice"}, lines[0].Metadata)
	assert.Equal(t, audit.OpDelete, lines[1].Operation)
}

func TestFileSinkReopensInAppendMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")

	sink, err := audit.NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Log(sampleEvent()))
	require.NoError(t, sink.Close())

	sink, err = audit.NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Log(sampleEvent()))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, len(regexp.MustCompile(`(?m)^\{`).FindAll(data, -1)))
}

func TestSQLSinkPostgresPlaceholders(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sink, err := audit.NewSQLSink("postgresql", "ignored", "", audit.WithDB(db))
	require.NoError(t, err)

	e := sampleEvent()
	metadata, err := json.Marshal(e.Metadata)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO audit_events (id, operation, key_name, project, environment, service, source, previous_value, new_value, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
	)).WithArgs(
		e.ID, e.Operation, e.Key, e.Project, e.Environment,
		e.Service, e.Source, e.PreviousValue, e.NewValue, string(metadata), e.Timestamp,
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	require.NoError(t, sink.Log(e))
	require.NoError(t, sink.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkMySQLPlaceholders(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sink, err := audit.NewSQLSink("mariadb", "ignored", "config_audit", audit.WithDB(db))
	require.NoError(t, err)

	e := sampleEvent()
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO config_audit (id, operation, key_name, project, environment, service, source, previous_value, new_value, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	require.NoError(t, sink.Log(e))
	require.NoError(t, sink.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWrapsExecFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sink, err := audit.NewSQLSink("postgres", "ignored", "", audit.WithDB(db))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("connection reset"))

	logErr := sink.Log(sampleEvent())
	var writeErr audit.WriteError
	require.ErrorAs(t, logErr, &writeErr)
	assert.Equal(t, "sql", writeErr.Sink)
	assert.Contains(t, logErr.Error(), "connection reset")
}

func TestNewSQLSinkRejectsUnknownDatabase(t *testing.T) {
	t.Parallel()

	_, err := audit.NewSQLSink("mongodb", "dsn", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongodb")
}

func TestMultiSinkFansOutAndReturnsFirstError(t *testing.T) {
	t.Parallel()

	healthy := &fakes.RecordingSink{}
	broken := &fakes.RecordingSink{Err: errors.New("disk full")}
	trailing := &fakes.RecordingSink{}
	multi := audit.MultiSink{healthy, broken, trailing}

	err := multi.Log(sampleEvent())
	assert.EqualError(t, err, "disk full")

	// Later sinks still receive the event.
	assert.Len(t, healthy.Events(), 1)
	assert.Len(t, trailing.Events(), 1)

	require.NoError(t, multi.Close())
	assert.True(t, healthy.Closed)
	assert.True(t, trailing.Closed)
}

func TestBestEffortSwallowsWriteFailures(t *testing.T) {
	t.Parallel()

	broken := &fakes.RecordingSink{Err: errors.New("unreachable")}
	best := audit.NewBestEffort(broken, logging.New(false, true))

	// Must not panic or propagate.
	best.Log(sampleEvent())
	require.NoError(t, best.Close())
	assert.True(t, broken.Closed)
}

func TestBestEffortNilSink(t *testing.T) {
	t.Parallel()

	best := audit.NewBestEffort(nil, logging.New(false, true))
	best.Log(sampleEvent())
	assert.NoError(t, best.Close())
}
