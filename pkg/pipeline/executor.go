package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/logging"
	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/warehouse"
)

// ExecutorConfig bounds query execution.
type ExecutorConfig struct {
	// RowCap is the hard bound on returned rows. Rows beyond it are dropped
	// and the result marked truncated.
	RowCap int
	// Timeout is the per-query wall-clock bound.
	Timeout time.Duration
}

// QueryExecutor runs validated statements against the read-only warehouse
// and converts raw results into the pipeline's bounded form.
type QueryExecutor struct {
	warehouse warehouse.Executor
	cfg       ExecutorConfig
	logger    *zap.Logger
}

// NewQueryExecutor creates the executor.
func NewQueryExecutor(wh warehouse.Executor, cfg ExecutorConfig, logger *zap.Logger) *QueryExecutor {
	if cfg.RowCap <= 0 {
		cfg.RowCap = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &QueryExecutor{warehouse: wh, cfg: cfg, logger: logger.Named("executor")}
}

// Execute runs the statement under the row cap and timeout. Warehouse
// failures come back as ExecutionError with identifiers scrubbed from the
// message; deadline expiry comes back as Timeout.
func (e *QueryExecutor) Execute(ctx context.Context, sqlText string) (*models.ExecutionResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	started := time.Now()
	raw, err := e.warehouse.Query(queryCtx, sqlText, e.cfg.RowCap)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || queryCtx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.KindTimeout,
				"The query took too long and was cancelled. Try narrowing the time range.", err)
		}
		e.logger.Error("warehouse query failed",
			zap.String("query", logging.SanitizeQuery(sqlText)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.Wrap(apperrors.KindExecutionError,
			"The query could not be executed: "+logging.SanitizeWarehouseError(err), err)
	}

	result := &models.ExecutionResult{
		Columns:   raw.Columns,
		RowCount:  raw.RowCount,
		ElapsedMS: elapsed.Milliseconds(),
	}
	for i, row := range raw.Rows {
		if i >= e.cfg.RowCap {
			result.Truncated = true
			break
		}
		result.Rows = append(result.Rows, models.Row(row))
	}
	if raw.RowCount > e.cfg.RowCap {
		result.Truncated = true
		result.RowCount = e.cfg.RowCap
	}

	e.logger.Debug("query executed",
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Int64("elapsed_ms", result.ElapsedMS))
	return result, nil
}
