package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/image-classifier/internal/logging"
)

// PredictionLog is one served classification.
type PredictionLog struct {
	ID                  uint      `gorm:"primaryKey"`
	RequestID           string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Label               string    `gorm:"column:label;size:32;index"`
	Confidence          float64   `gorm:"column:confidence"`
	Score               float32   `gorm:"column:score"`
	SHA1Hash            string    `gorm:"column:sha1_hash;size:40;index"`
	MediaType           string    `gorm:"column:media_type;size:64"`
	Cached              bool      `gorm:"column:cached"`
	ProcessingLatencyMs float64   `gorm:"column:processing_latency_ms"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// MetricsAggregation is the raw aggregate over all prediction logs.
type MetricsAggregation struct {
	TotalCount                 int64
	AverageConfidence          float64
	AverageProcessingLatencyMs float64
	CachedCount                int64
	LabelCounts                map[string]int64
}

// PredictionRepository persists prediction logs with gorm.
type PredictionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPredictionRepository creates a new repository instance.
func NewPredictionRepository(db *gorm.DB, logger *zap.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:             db,
		logger:         logger.Named("prediction_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *PredictionRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&PredictionLog{})
	})
}

// SaveLog persists a prediction log entry.
func (r *PredictionRepository) SaveLog(ctx context.Context, log *PredictionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the log for a single request.
func (r *PredictionRepository) FindByRequestID(ctx context.Context, requestID string) (*PredictionLog, error) {
	var log PredictionLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarizes every stored prediction.
func (r *PredictionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		TotalCount                 int64
		AverageConfidence          float64
		AverageProcessingLatencyMs float64
		CachedCount                int64
	}
	var labels []struct {
		Label string
		Count int64
	}

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		tx := r.db.WithContext(ctx).Model(&PredictionLog{})
		if err := tx.Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(AVG(confidence), 0) AS average_confidence, " +
				"COALESCE(AVG(processing_latency_ms), 0) AS average_processing_latency_ms, " +
				"COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cached_count",
		).Scan(&totals).Error; err != nil {
			return err
		}
		return r.db.WithContext(ctx).Model(&PredictionLog{}).
			Select("label, COUNT(*) AS count").
			Group("label").
			Scan(&labels).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{
		TotalCount:                 totals.TotalCount,
		AverageConfidence:          totals.AverageConfidence,
		AverageProcessingLatencyMs: totals.AverageProcessingLatencyMs,
		CachedCount:                totals.CachedCount,
		LabelCounts:                make(map[string]int64, len(labels)),
	}
	for _, l := range labels {
		agg.LabelCounts[l.Label] = l.Count
	}
	return agg, nil
}

func (r *PredictionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !IsTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransientError reports errors worth retrying: deadlines and network
// errors that advertise Timeout or Temporary.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	return false
}
