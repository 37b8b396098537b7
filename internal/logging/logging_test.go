package logging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelDebug)

	LogError(logger, "fetch failed", errors.New("boom"), slog.String("route_id", "R1"))

	record := decodeLine(t, &buf)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "fetch failed", record["msg"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, "R1", record["route_id"])
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogOperation(logger, "topology_cache_miss", slog.String("route_id", "R2"))

	record := decodeLine(t, &buf)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "topology_cache_miss", record["msg"])
}

func TestLogHTTPRequestLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "ok", status: 200, level: "INFO"},
		{name: "client error", status: 404, level: "WARN"},
		{name: "server error", status: 503, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewStructuredLogger(&buf, slog.LevelDebug)
			LogHTTPRequest(logger, "GET", "/healthz", tt.status, 1.5)

			record := decodeLine(t, &buf)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, float64(tt.status), record["status"])
		})
	}
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)
	closer := &failingCloser{}

	SafeCloseWithLogging(closer, logger, "http_response_body")

	assert.True(t, closer.closed)
	record := decodeLine(t, &buf)
	assert.Equal(t, "http_response_body", record["resource"])

	// nil closers are ignored
	SafeCloseWithLogging(nil, logger, "nothing")
}

func TestSafeRollbackWithLogging(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	SafeRollbackWithLogging(tx, logger, "committed")
	SafeRollbackWithLogging(nil, logger, "nil")
	assert.Empty(t, buf.String())

	tx, err = db.Begin()
	require.NoError(t, err)
	SafeRollbackWithLogging(tx, logger, "open")
	assert.Empty(t, buf.String())
	assert.ErrorIs(t, tx.Commit(), sql.ErrTxDone)
}
