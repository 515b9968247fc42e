// Package form serves a minimal upload page that forwards images to the
// prediction service and renders the returned label and confidence.
package form

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker probes the prediction service.
type HealthChecker interface {
	Check(ctx context.Context) (bool, error)
}

type pageData struct {
	Prediction *Result
	Percent    string
	Error      string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Cat or Dog?</title></head>
<body>
  <h1>Cat or Dog?</h1>
  <form method="post" enctype="multipart/form-data">
    <input type="file" name="file" accept="image/*">
    <button type="submit">Classify</button>
  </form>
  {{if .Prediction}}
  <p class="prediction">Prediction: <strong>{{.Prediction.Class}}</strong> ({{.Percent}} confidence)</p>
  {{end}}
  {{if .Error}}
  <p class="error">{{.Error}}</p>
  {{end}}
</body>
</html>
`))

// RegisterRoutes wires the form pages. checker may be nil.
func RegisterRoutes(router *gin.Engine, client *Client, checker HealthChecker, logger *zap.Logger) {
	router.SetHTMLTemplate(indexTemplate)

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index", pageData{})
	})

	router.POST("/", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.HTML(http.StatusBadRequest, "index", pageData{Error: "Please choose an image to upload."})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.HTML(http.StatusBadRequest, "index", pageData{Error: "Unable to open the uploaded file."})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.HTML(http.StatusInternalServerError, "index", pageData{Error: "Unable to read the uploaded file."})
			return
		}

		result, err := client.Predict(c.Request.Context(), file.Filename, data)
		if err != nil {
			var upstream *UpstreamError
			if errors.As(err, &upstream) && upstream.Status < http.StatusInternalServerError {
				c.HTML(http.StatusBadRequest, "index", pageData{Error: upstream.Message})
				return
			}
			logger.Error("prediction request failed", zap.Error(err))
			c.HTML(http.StatusBadGateway, "index", pageData{Error: "The prediction service is unavailable. Try again later."})
			return
		}

		c.HTML(http.StatusOK, "index", pageData{
			Prediction: result,
			Percent:    fmt.Sprintf("%.0f%%", result.Confidence*100),
		})
	})

	router.GET("/health", func(c *gin.Context) {
		predictor := "unknown"
		if checker != nil {
			predictor = "unavailable"
			if ok, err := checker.Check(c.Request.Context()); err == nil && ok {
				predictor = "serving"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "predictor": predictor})
	})
}
