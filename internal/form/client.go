package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Result mirrors the prediction service reply.
type Result struct {
	Class          string  `json:"class"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
}

// UpstreamError is a non-200 reply from the prediction service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("prediction service returned %d: %s", e.Status, e.Message)
}

// Client forwards uploads to the prediction service.
type Client struct {
	http       *resty.Client
	predictURL string
}

// NewClient builds a client for the POST /predict endpoint at predictURL.
func NewClient(predictURL string, timeout time.Duration) *Client {
	return &Client{
		http:       resty.New().SetTimeout(timeout),
		predictURL: predictURL,
	}
}

// Predict sends data as the "file" field and decodes the reply.
func (c *Client) Predict(ctx context.Context, filename string, data []byte) (*Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		Post(c.predictURL)
	if err != nil {
		return nil, fmt.Errorf("call prediction service: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		message := http.StatusText(resp.StatusCode())
		if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
			message = body.Error
		}
		return nil, &UpstreamError{Status: resp.StatusCode(), Message: message}
	}

	var result Result
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &result, nil
}
