package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/anvit-dd/pi-drive/pkg/logger"
)

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "pidrive", Password: "p@ss/word", DBName: "pidrive", SSLMode: "disable"}
	assert.Equal(t, "postgres://pidrive:p%40ss%2Fword@db:5432/pidrive?sslmode=disable", cfg.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: 6379}.Addr())
}

func TestRetryBackoff(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := retryBaseWait << attempt
		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*(1-retryJitterFraction)))
			assert.LessOrEqual(t, d, time.Duration(float64(base)*(1+retryJitterFraction)))
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "42601"}))
	assert.False(t, IsConnectionError(errors.New("syntax error")))
	assert.True(t, IsConnectionError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.True(t, IsConnectionError(&pgconn.ConnectError{}))
}

func TestWithRetry_StopsOnSQLError(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	sqlErr := &pgconn.PgError{Code: "42P01"}

	err := withRetry(context.Background(), logger.NewWithWriter("test", "info", &buf), "op", func() error {
		calls++
		return sqlErr
	})
	assert.ErrorIs(t, err, sqlErr)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCanceledDuringBackoff(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := withRetry(ctx, logger.NewWithWriter("test", "info", &buf), "op", func() error {
		calls++
		cancel()
		return &net.OpError{Op: "dial", Err: errors.New("refused")}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Contains(t, buf.String(), "op failed, retrying")
}

func TestRunMigrations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations := fstest.MapFS{
		"001_users.up.sql":          {Data: []byte("CREATE TABLE users (id uuid)")},
		"001_users.down.sql":        {Data: []byte("DROP TABLE users")},
		"002_refresh_tokens.up.sql": {Data: []byte("CREATE TABLE refresh_tokens (id text)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_refresh_tokens.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE refresh_tokens").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_refresh_tokens.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	var buf bytes.Buffer
	err = RunMigrations(context.Background(), mock, migrations, logger.NewWithWriter("test", "info", &buf))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, buf.String(), "002_refresh_tokens.up.sql")
	assert.NotContains(t, buf.String(), "001_users.down.sql")
}

func TestRunMigrations_FailedStatementRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations := fstest.MapFS{"001_users.up.sql": {Data: []byte("CREATE TABLE users (")}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	mock.ExpectRollback()

	var buf bytes.Buffer
	err = RunMigrations(context.Background(), mock, migrations, logger.NewWithWriter("test", "info", &buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_users.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceQuery(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	_, end := TraceQuery(context.Background(), "refresh_tokens.consume", "UPDATE refresh_tokens")
	end(nil)
	_, end = TraceQuery(context.Background(), "users.get", "SELECT")
	end(errors.New("boom"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.refresh_tokens.consume", spans[0].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestTraceQuery_SlowQueryLog(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "users.count", "SELECT count(*) FROM users")
	time.Sleep(time.Millisecond)
	end(nil)

	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), "users.count")
}
