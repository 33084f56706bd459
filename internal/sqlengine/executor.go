// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Executor Shim: the single-node execution guard around the embedded
// analytical engine. Every request gets its own *sql.Conn session so that
// thread pinning and profiling pragmas set by one request never bleed into
// another; the shared engine handle is otherwise a single process-wide
// resource.

package sqlengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dbgrid/internal/config"
	coorderrors "dbgrid/internal/errors"
)

// AutoThreads is the sentinel meaning "leave the thread count untouched".
const AutoThreads = -1

// Request mirrors the client's query request (spec §3).
type Request struct {
	SQL        string
	Profiling  bool
	MaxRows    int
	NumThreads int
}

// Response mirrors the client-facing result (spec §3 and §4.7).
type Response struct {
	Columns       []string
	Rows          [][]any
	Hostname      string
	ExecutionTime float64
	Profiling     map[string]any
}

// Executor wraps a single embedded engine handle shared by every request.
type Executor struct {
	db       *sql.DB
	hostname string
	cfg      config.Config
	logger   *zap.Logger
}

// Open initializes the embedded engine, loads the httpfs extension needed
// for object-storage reads, and runs the configured init SQL file if
// present (a missing file is not an error).
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Executor, error) {
	dsn := cfg.ExecutorPath
	if dsn == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	host, _ := os.Hostname()
	e := &Executor{db: db, hostname: host, cfg: cfg, logger: logger}
	if err := e.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Executor) bootstrap(ctx context.Context) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap connection: %w", err)
	}
	defer conn.Close()

	loadHTTPFS := "INSTALL httpfs; LOAD httpfs;"
	if e.cfg.HTTPFSExtPath != "" {
		loadHTTPFS = fmt.Sprintf("LOAD '%s';", sqlQuoteEscape(e.cfg.HTTPFSExtPath))
	}
	if _, err := conn.ExecContext(ctx, loadHTTPFS); err != nil {
		return fmt.Errorf("load httpfs extension: %w", err)
	}
	e.loadObjectStorageCredentials(ctx, conn)

	path := e.cfg.InitSQLPath
	if path == "" {
		path = "./init.sql"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Debug("sqlengine.init_sql.absent", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("read init sql %s: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("exec init sql %s: %w", path, err)
	}
	return nil
}

// loadObjectStorageCredentials resolves the standard AWS credential chain
// (environment, shared config, container/IMDS role) and bridges whatever it
// finds into httpfs's S3 settings, so object-storage reads work the same
// way the rest of the AWS SDK ecosystem does without the executor owning
// its own credential plumbing. Absence of resolvable credentials is not an
// error: anonymous or pre-configured access still works.
func (e *Executor) loadObjectStorageCredentials(ctx context.Context, conn *sql.Conn) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		e.logger.Debug("sqlengine.aws_credentials.unavailable", zap.Error(err))
		return
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		e.logger.Debug("sqlengine.aws_credentials.unresolved", zap.Error(err))
		return
	}
	if awsCfg.Region != "" {
		conn.ExecContext(ctx, fmt.Sprintf("SET s3_region='%s'", sqlQuoteEscape(awsCfg.Region)))
	}
	if creds.AccessKeyID != "" {
		conn.ExecContext(ctx, fmt.Sprintf("SET s3_access_key_id='%s'", sqlQuoteEscape(creds.AccessKeyID)))
		conn.ExecContext(ctx, fmt.Sprintf("SET s3_secret_access_key='%s'", sqlQuoteEscape(creds.SecretAccessKey)))
	}
	if creds.SessionToken != "" {
		conn.ExecContext(ctx, fmt.Sprintf("SET s3_session_token='%s'", sqlQuoteEscape(creds.SessionToken)))
	}
}

func sqlQuoteEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Close releases the engine handle. Call once at process shutdown.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Query executes req on its own session, isolating thread and profiling
// pragma mutations from every other concurrent request.
func (e *Executor) Query(ctx context.Context, req Request) (*Response, error) {
	if e.cfg.StatementTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.StatementTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}
	defer conn.Close()

	release, err := e.overrideThreads(ctx, conn, req.NumThreads)
	if err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}
	defer release()

	sqlText := req.SQL
	if req.MaxRows > 0 {
		sqlText = injectLimit(sqlText, req.MaxRows)
	}

	start := time.Now()
	if req.Profiling {
		return e.executeProfiling(ctx, conn, sqlText, start)
	}
	return e.executePlain(ctx, conn, sqlText, start)
}

func (e *Executor) executePlain(ctx context.Context, conn *sql.Conn, sqlText string, start time.Time) (*Response, error) {
	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, coorderrors.NewExecutorFailure(err)
		}
		out = append(out, sanitizeRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}

	return &Response{
		Columns:       cols,
		Rows:          out,
		Hostname:      e.hostname,
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}

const profileWait = 2 * time.Second

func (e *Executor) executeProfiling(ctx context.Context, conn *sql.Conn, sqlText string, start time.Time) (*Response, error) {
	profilePath := filepath.Join(os.TempDir(), fmt.Sprintf("dbgrid-profile-%s.json", uuid.NewString()))
	defer os.Remove(profilePath)

	if _, err := conn.ExecContext(ctx, "PRAGMA enable_profiling='json'"); err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA profiling_output='%s'", profilePath)); err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}
	defer conn.ExecContext(context.Background(), "PRAGMA disable_profiling")

	if _, err := conn.ExecContext(ctx, sqlText); err != nil {
		return nil, coorderrors.NewExecutorFailure(err)
	}

	deadline := time.Now().Add(profileWait)
	var data []byte
	for {
		b, err := os.ReadFile(profilePath)
		if err == nil {
			data = b
			break
		}
		if time.Now().After(deadline) {
			return nil, coorderrors.NewProfilingUnavailable(fmt.Sprintf("profile output did not appear within %s", profileWait))
		}
		select {
		case <-ctx.Done():
			return nil, coorderrors.NewProfilingUnavailable("request cancelled while waiting for profile output")
		case <-time.After(25 * time.Millisecond):
		}
	}

	var profile map[string]any
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, coorderrors.NewProfilingUnavailable("profile output was not valid json")
	}

	return &Response{
		Hostname:      e.hostname,
		ExecutionTime: time.Since(start).Seconds(),
		Profiling:     profile,
	}, nil
}

// overrideThreads implements the scoped-release idiom from spec §5/§9: the
// prior value is captured before the override and restored on every exit
// path, including a failing query.
func (e *Executor) overrideThreads(ctx context.Context, conn *sql.Conn, numThreads int) (func(), error) {
	noop := func() {}
	if numThreads <= 0 {
		return noop, nil
	}

	var prior string
	if err := conn.QueryRowContext(ctx, "SELECT current_setting('threads')").Scan(&prior); err != nil {
		return noop, fmt.Errorf("read current thread setting: %w", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET threads = %d", numThreads)); err != nil {
		return noop, fmt.Errorf("set threads: %w", err)
	}

	return func() {
		if _, err := conn.ExecContext(context.Background(), fmt.Sprintf("SET threads = %s", prior)); err != nil {
			e.logger.Warn("sqlengine.thread_restore_failed", zap.Error(err), zap.String("prior", prior))
		}
	}, nil
}

var limitWord = regexp.MustCompile(`(?i)\blimit\b`)

// injectLimit appends LIMIT max_rows to a SELECT statement lacking one. The
// match is lexical on the leading keyword, matching spec §4.7; non-SELECT
// statements and statements with a pre-existing LIMIT pass through
// untouched.
func injectLimit(sqlText string, maxRows int) string {
	if firstKeyword(sqlText) != "select" {
		return sqlText
	}
	if limitWord.MatchString(sqlText) {
		return sqlText
	}
	return strings.TrimRight(strings.TrimSpace(sqlText), ";") + fmt.Sprintf(" LIMIT %d", maxRows)
}

func firstKeyword(sqlText string) string {
	s := stripLeadingComments(sqlText)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';' {
			return strings.ToLower(s[:i])
		}
	}
	return strings.ToLower(s)
}

func stripLeadingComments(sqlText string) string {
	s := sqlText
	for {
		s = strings.TrimLeft(s, "\t\n\r ")
		if strings.HasPrefix(s, "--") {
			if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
				s = s[idx:]
				continue
			}
			return ""
		}
		if strings.HasPrefix(s, "/*") {
			if idx := strings.Index(s, "*/"); idx >= 0 {
				s = s[idx+2:]
				continue
			}
			return ""
		}
		return s
	}
}

// sanitizeRow applies the response invariant from spec §3 to every cell.
func sanitizeRow(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return t
	}
}
