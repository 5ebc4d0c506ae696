package engine

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
)

// Statement prefixes the gateway will execute. COPY serves the
// conversion path; CREATE/DROP serve registry promotion and eviction.
var allowedStatements = []string{"SELECT", "WITH", "DESCRIBE", "COPY", "CREATE", "DROP"}

// Result represents the outcome of an executed statement.
type Result struct {
	Columns   []string
	Rows      [][]interface{}
	RowCount  int64
	Truncated bool
	Duration  time.Duration
	QueryID   string
}

// Column describes a single column as reported by the engine.
type Column struct {
	Name string
	Type string
}

// Metrics tracks gateway activity.
type Metrics struct {
	QueriesExecuted int64
	ErrorCount      int64
	TotalQueryTime  time.Duration
	mu              sync.Mutex
}

// Gateway owns the embedded columnar engine connection. Session settings
// only hold on a single connection, so the pool is pinned to one and all
// callers share it; database/sql serializes access.
type Gateway struct {
	db      *sql.DB
	cfg     *config.EngineConfig
	logger  zerolog.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// New opens an in-memory engine instance and applies session settings.
func New(cfg *config.EngineConfig, logger zerolog.Logger) (*Gateway, error) {
	g := &Gateway{
		cfg:     cfg,
		logger:  logger.With().Str("component", "engine-gateway").Logger(),
		metrics: &Metrics{},
	}

	if err := g.open(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Gateway) open() error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return errors.New(ErrOpenFailed, "failed to open engine connection", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return errors.New(ErrPingFailed, "failed to ping engine", err)
	}

	// One connection keeps SET statements effective for every caller.
	db.SetMaxOpenConns(1)

	if err := applySessionSettings(db, g.cfg); err != nil {
		db.Close()
		return err
	}

	g.mu.Lock()
	g.db = db
	g.mu.Unlock()

	g.logger.Info().Int("max_memory_mb", g.cfg.MaxMemoryMB).Msg("Engine gateway initialized")
	return nil
}

func applySessionSettings(db *sql.DB, cfg *config.EngineConfig) error {
	settings := []string{
		fmt.Sprintf("SET threads = %d", runtime.GOMAXPROCS(0)),
		fmt.Sprintf("SET memory_limit = '%dMB'", cfg.MaxMemoryMB),
		"SET enable_progress_bar = false",
	}
	for _, stmt := range settings {
		if _, err := db.Exec(stmt); err != nil {
			return errors.New(ErrSessionSetupFailed, "failed to apply session setting", err).AddContext("statement", stmt)
		}
	}
	return nil
}

// Execute runs a statement and returns all rows up to the configured cap.
func (g *Gateway) Execute(ctx context.Context, query string) (*Result, error) {
	g.mu.RLock()
	db := g.db
	g.mu.RUnlock()

	if db == nil {
		return nil, errors.New(ErrNotInitialized, "engine gateway is not initialized", nil)
	}

	queryID := fmt.Sprintf("q_%d", time.Now().UnixNano())
	if err := g.validateStatement(query, queryID); err != nil {
		g.recordError()
		return nil, err
	}

	if g.cfg.QueryTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.cfg.QueryTimeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		g.recordError()
		return nil, errors.New(ErrExecutionFailed, "engine rejected statement", err).AddContext("query_id", queryID)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		g.recordError()
		return nil, errors.New(ErrExecutionFailed, "failed to read result columns", err).AddContext("query_id", queryID)
	}

	result := &Result{Columns: columns, QueryID: queryID}
	for rows.Next() {
		if g.cfg.MaxResultRows > 0 && result.RowCount >= g.cfg.MaxResultRows {
			result.Truncated = true
			g.logger.Warn().Str("query_id", queryID).Int64("cap", g.cfg.MaxResultRows).Msg("Result truncated at row cap")
			break
		}

		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			g.recordError()
			return nil, errors.New(ErrScanFailed, "failed to scan result row", err).AddContext("query_id", queryID)
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}

	if err := rows.Err(); err != nil {
		g.recordError()
		return nil, errors.New(ErrExecutionFailed, "error iterating result rows", err).AddContext("query_id", queryID)
	}

	result.Duration = time.Since(start)

	g.metrics.mu.Lock()
	g.metrics.QueriesExecuted++
	g.metrics.TotalQueryTime += result.Duration
	g.metrics.mu.Unlock()

	return result, nil
}

// Describe returns the column names and types a statement would produce.
func (g *Gateway) Describe(ctx context.Context, query string) ([]Column, error) {
	res, err := g.Execute(ctx, "DESCRIBE "+query)
	if err != nil {
		return nil, errors.New(ErrDescribeFailed, "describe failed", err)
	}

	columns := make([]Column, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		columns = append(columns, Column{
			Name: asString(row[0]),
			Type: asString(row[1]),
		})
	}
	return columns, nil
}

// IsHealthy probes the connection with a cheap bounded query.
func (g *Gateway) IsHealthy(ctx context.Context) bool {
	g.mu.RLock()
	db := g.db
	g.mu.RUnlock()

	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}

// Reconnect tears down and rebuilds the engine connection.
func (g *Gateway) Reconnect() error {
	g.mu.Lock()
	if g.db != nil {
		g.db.Close()
		g.db = nil
	}
	g.mu.Unlock()

	if err := g.open(); err != nil {
		return errors.New(ErrReconnectFailed, "failed to reconnect engine gateway", err)
	}
	return nil
}

// Close closes the engine connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		return err
	}
	return nil
}

// GetMetrics returns a copy of the gateway metrics.
func (g *Gateway) GetMetrics() Metrics {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()
	return Metrics{
		QueriesExecuted: g.metrics.QueriesExecuted,
		ErrorCount:      g.metrics.ErrorCount,
		TotalQueryTime:  g.metrics.TotalQueryTime,
	}
}

func (g *Gateway) validateStatement(query, queryID string) error {
	normalized := strings.TrimSpace(strings.ToUpper(query))
	if normalized == "" {
		return errors.New(ErrEmptyStatement, "empty statement not allowed", nil).AddContext("query_id", queryID)
	}

	for _, stmt := range allowedStatements {
		if strings.HasPrefix(normalized, stmt) {
			return nil
		}
	}
	return errors.New(ErrStatementRejected, "statement type not allowed", nil).
		AddContext("query_id", queryID).
		AddContext("prefix", firstWord(normalized))
}

func (g *Gateway) recordError() {
	g.metrics.mu.Lock()
	g.metrics.ErrorCount++
	g.metrics.mu.Unlock()
}

func firstWord(s string) string {
	if idx := strings.IndexByte(s, ' '); idx > 0 {
		return s[:idx]
	}
	return s
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
