package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/image-classifier/internal/imageprocessor"
	"github.com/example/image-classifier/internal/inference"
	"github.com/example/image-classifier/internal/usecase"
)

const (
	// MaxUploadSize is the default cap on a single uploaded image.
	MaxUploadSize = 10 << 20
	// FileField is the multipart field carrying the image.
	FileField = "file"

	// multipartSlack leaves room for boundaries and part headers on top of
	// the file itself before the body reader gives up.
	multipartSlack = 1 << 20
)

// ErrUploadMissing is reported when the request carries no usable file.
var ErrUploadMissing = errors.New(`no image uploaded: send exactly one file in the "file" form field`)

// ServiceInfo is static information exposed by the informational endpoints.
type ServiceInfo struct {
	Version        string
	Model          inference.Metadata
	MaxUploadBytes int64
}

// PredictionResponse is the body of a successful POST /predict.
type PredictionResponse struct {
	Class          string  `json:"class"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase, info ServiceInfo) {
	if info.MaxUploadBytes <= 0 {
		info.MaxUploadBytes = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   info.Version,
		})
	})

	router.GET("/model/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"model_name": info.Model.ModelName,
			"version":    info.Model.Version,
			"accuracy":   info.Model.Accuracy,
			"classes":    info.Model.Classes,
			"image_size": info.Model.ImageSize,
			"resample":   info.Model.Resample,
		})
	})

	router.POST("/predict", predictHandler(uc, info.MaxUploadBytes))

	if uc.HistoryEnabled() {
		router.GET("/predictions/:id", func(c *gin.Context) {
			log, err := uc.GetResult(c.Request.Context(), c.Param("id"))
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "prediction not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load prediction"})
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"request_id":            log.RequestID,
				"class":                 log.Label,
				"confidence":            log.Confidence,
				"sha1_hash":             log.SHA1Hash,
				"media_type":            log.MediaType,
				"cached":                log.Cached,
				"processing_latency_ms": log.ProcessingLatencyMs,
				"created_at":            log.CreatedAt,
			})
		})

		router.GET("/metrics/summary", func(c *gin.Context) {
			summary, err := uc.GetMetricsSummary(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
				return
			}
			c.JSON(http.StatusOK, summary)
		})
	}
}

func predictHandler(uc *usecase.PredictionUseCase, maxUpload int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+multipartSlack)

		file, err := c.FormFile(FileField)
		if err != nil {
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxErr):
				abortTooLarge(c, maxUpload)
			case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrUploadMissing.Error()})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			}
			return
		}

		if files := c.Request.MultipartForm.File[FileField]; len(files) > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrUploadMissing.Error()})
			return
		}
		if file.Size == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrUploadMissing.Error()})
			return
		}
		if file.Size > maxUpload {
			abortTooLarge(c, maxUpload)
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		mediaType, isImage := imageprocessor.Sniff(data)
		if !isImage {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": fmt.Sprintf("unsupported media type %s: upload a JPEG, PNG, GIF, WebP, BMP or TIFF image", mediaType),
			})
			return
		}

		outcome, err := uc.Predict(c.Request.Context(), data, mediaType)
		if err != nil {
			var decodeErr *imageprocessor.DecodeError
			var inferenceErr *inference.InferenceError
			switch {
			case errors.As(err, &decodeErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("could not read image: %v", decodeErr.Err)})
			case errors.As(err, &inferenceErr):
				c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.Header("X-Request-ID", outcome.RequestID)
		c.JSON(http.StatusOK, PredictionResponse{
			Class:          outcome.Prediction.Label,
			Confidence:     outcome.Prediction.Confidence,
			ProcessingTime: outcome.ProcessingTime.Seconds(),
		})
	}
}

func abortTooLarge(c *gin.Context, maxUpload int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("image exceeds the %d byte upload limit", maxUpload),
	})
}
