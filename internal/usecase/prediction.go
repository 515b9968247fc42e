package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/image-classifier/internal/imageprocessor"
	"github.com/example/image-classifier/internal/inference"
	"github.com/example/image-classifier/internal/logging"
	"github.com/example/image-classifier/internal/repository"
)

// ErrHistoryDisabled is returned by history queries when no repository is configured.
var ErrHistoryDisabled = errors.New("prediction history is disabled")

// Normalizer prepares raw image bytes for the model.
type Normalizer interface {
	Normalize(raw []byte) (*imageprocessor.Tensor, error)
}

// Classifier scores a normalized tensor.
type Classifier interface {
	Classify(ctx context.Context, tensor *imageprocessor.Tensor) (*inference.Prediction, error)
}

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Outcome is the result of one prediction request.
type Outcome struct {
	RequestID      string
	Prediction     inference.Prediction
	Hash           string
	MediaType      string
	Cached         bool
	ProcessingTime time.Duration
}

// PredictionUseCase runs the normalize -> classify pipeline for uploads and
// records the results. Cache and repository are optional; failures in either
// are logged and never fail the request.
type PredictionUseCase struct {
	normalizer     Normalizer
	classifier     Classifier
	repo           PredictionRepository
	cache          Cache
	cacheNamespace string
	cacheTTL       time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedPrediction struct {
	Label      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Score      float32 `json:"score"`
}

// NewPredictionUseCase constructs a use case without cache or history.
func NewPredictionUseCase(normalizer Normalizer, classifier Classifier, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		normalizer:     normalizer,
		classifier:     classifier,
		logger:         logger.Named("prediction_usecase"),
		cacheNamespace: "prediction",
		cacheTTL:       10 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// WithRepository enables prediction history. Call before serving.
func (uc *PredictionUseCase) WithRepository(repo PredictionRepository) *PredictionUseCase {
	uc.repo = repo
	return uc
}

// WithCache enables result caching keyed by the upload hash. The namespace
// should change whenever the model does.
func (uc *PredictionUseCase) WithCache(cache Cache, namespace string, ttl time.Duration) *PredictionUseCase {
	uc.cache = cache
	if namespace != "" {
		uc.cacheNamespace = namespace
	}
	if ttl > 0 {
		uc.cacheTTL = ttl
	}
	return uc
}

// HistoryEnabled reports whether results are persisted.
func (uc *PredictionUseCase) HistoryEnabled() bool {
	return uc.repo != nil
}

// Predict classifies one uploaded image.
func (uc *PredictionUseCase) Predict(ctx context.Context, raw []byte, mediaType string) (*Outcome, error) {
	start := time.Now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	hash := sha1.Sum(raw)
	hashHex := hex.EncodeToString(hash[:])
	outcome := &Outcome{RequestID: requestID, Hash: hashHex, MediaType: mediaType}

	if prediction, ok := uc.lookupCached(ctx, requestID, hashHex); ok {
		outcome.Prediction = prediction
		outcome.Cached = true
		outcome.ProcessingTime = time.Since(start)
		uc.record(ctx, opLogger, outcome)
		return outcome, nil
	}

	tensor, err := uc.normalizer.Normalize(raw)
	if err != nil {
		wrapped := logging.NewOperationError("imageprocessor.normalize", requestID, err)
		opLogger.Info("image rejected", zap.Error(err), zap.String("media_type", mediaType), zap.Int("bytes", len(raw)))
		return nil, wrapped
	}

	prediction, err := uc.classifier.Classify(ctx, tensor)
	if err != nil {
		wrapped := logging.NewOperationError("inference.classify", requestID, err)
		opLogger.Error("classification failed", zap.Error(wrapped))
		return nil, wrapped
	}

	outcome.Prediction = *prediction
	outcome.ProcessingTime = time.Since(start)

	uc.storeCached(ctx, opLogger, requestID, hashHex, *prediction)
	uc.record(ctx, opLogger, outcome)

	opLogger.Debug("prediction served",
		zap.String("class", prediction.Label),
		zap.Float64("confidence", prediction.Confidence),
		zap.Duration("processing_time", outcome.ProcessingTime),
	)
	return outcome, nil
}

// GetResult loads a stored prediction by request ID.
func (uc *PredictionUseCase) GetResult(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}

func (uc *PredictionUseCase) cacheKey(hash string) string {
	return fmt.Sprintf("%s:%s", uc.cacheNamespace, hash)
}

func (uc *PredictionUseCase) lookupCached(ctx context.Context, requestID, hash string) (inference.Prediction, bool) {
	if uc.cache == nil {
		return inference.Prediction{}, false
	}

	opLogger := logging.WithOperation(uc.logger, "cache.get.prediction", requestID)
	value, err := uc.cache.Get(ctx, uc.cacheKey(hash))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return inference.Prediction{}, false
	}

	var payload cachedPrediction
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		opLogger.Warn("failed to decode cached prediction", zap.Error(err))
		return inference.Prediction{}, false
	}
	return inference.Prediction{Label: payload.Label, Confidence: payload.Confidence, Score: payload.Score}, true
}

func (uc *PredictionUseCase) storeCached(ctx context.Context, opLogger *zap.Logger, requestID, hash string, prediction inference.Prediction) {
	if uc.cache == nil {
		return
	}

	serialized, err := json.Marshal(cachedPrediction{
		Label:      prediction.Label,
		Confidence: prediction.Confidence,
		Score:      prediction.Score,
	})
	if err != nil {
		opLogger.Warn("failed to serialize prediction", zap.Error(err))
		return
	}

	if err := uc.withCacheRetry(ctx, requestID, "cache.set.prediction", func() error {
		return uc.cache.Set(ctx, uc.cacheKey(hash), string(serialized), uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache prediction", zap.Error(err))
	}
}

func (uc *PredictionUseCase) record(ctx context.Context, opLogger *zap.Logger, outcome *Outcome) {
	if uc.repo == nil {
		return
	}

	log := &repository.PredictionLog{
		RequestID:           outcome.RequestID,
		Label:               outcome.Prediction.Label,
		Confidence:          outcome.Prediction.Confidence,
		Score:               outcome.Prediction.Score,
		SHA1Hash:            outcome.Hash,
		MediaType:           outcome.MediaType,
		Cached:              outcome.Cached,
		ProcessingLatencyMs: float64(outcome.ProcessingTime) / float64(time.Millisecond),
		CreatedAt:           time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to persist prediction log", zap.Error(err))
	}
}

func (uc *PredictionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !repository.IsTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
