package separation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"safi/core/audio"
	"safi/logger"
)

var (
	// ErrMissingCredential is returned when no Replicate API token is configured.
	ErrMissingCredential = errors.New("REPLICATE_API_TOKEN is missing")
	// ErrPredictionFailed is returned when the prediction ends failed or canceled.
	ErrPredictionFailed = errors.New("prediction failed")
)

// APIError is a non-2xx response from the Replicate API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate API returned status %d: %s", e.StatusCode, e.Body)
}

// Result holds the stems of a finished separation.
type Result struct {
	PredictionID    string
	VocalsURL       string
	InstrumentalURL *string
}

// Separator splits an audio file into vocal and instrumental stems.
type Separator interface {
	Separate(ctx context.Context, audioPath string) (*Result, error)
}

// Config contains configuration for the Replicate client.
type Config struct {
	APIToken     string
	BaseURL      string
	ModelVersion string
	Timeout      time.Duration // bounds the whole Separate call
	PollInterval time.Duration
}

// ReplicateClient runs the vocal isolation model on Replicate.
type ReplicateClient struct {
	config     Config
	httpClient *http.Client
}

// NewReplicateClient creates a client; a missing token is reported per call, not here.
func NewReplicateClient(config Config) *ReplicateClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.replicate.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &ReplicateClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 90 * time.Second, // single request; Prefer: wait holds up to 60s
		},
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func (p *prediction) errorMessage() string {
	msg := strings.TrimSpace(string(p.Error))
	if msg == "" || msg == "null" {
		return p.Status
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return msg
}

// Separate uploads audioPath as a data URI and blocks until the prediction finishes.
func (c *ReplicateClient) Separate(ctx context.Context, audioPath string) (*Result, error) {
	if c.config.APIToken == "" {
		return nil, ErrMissingCredential
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	dataURI, err := EncodeDataURI(audioPath)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"version": c.config.ModelVersion,
		"input":   map[string]string{"audio": dataURI},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	start := time.Now()
	pred, err := c.do(ctx, http.MethodPost, c.config.BaseURL+"/v1/predictions", body)
	if err != nil {
		return nil, err
	}
	logger.Info("replicate prediction created",
		logger.String("predictionId", pred.ID),
		logger.String("status", pred.Status))

	for !pred.terminal() {
		if pred.URLs.Get == "" {
			return nil, fmt.Errorf("prediction %s is %s and has no poll url", pred.ID, pred.Status)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for prediction %s: %w", pred.ID, ctx.Err())
		case <-time.After(c.config.PollInterval):
		}
		if pred, err = c.do(ctx, http.MethodGet, pred.URLs.Get, nil); err != nil {
			return nil, err
		}
	}

	logger.Info("replicate prediction finished",
		logger.String("predictionId", pred.ID),
		logger.String("status", pred.Status),
		logger.Duration("elapsed", time.Since(start)))

	if pred.Status != "succeeded" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrPredictionFailed, pred.errorMessage(), pred.ID)
	}

	out, err := ParseOutput(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	logger.Debug("parsed prediction output", logger.String("shape", string(out.Shape)))

	return &Result{
		PredictionID:    pred.ID,
		VocalsURL:       out.VocalsURL,
		InstrumentalURL: out.InstrumentalURL,
	}, nil
}

func (c *ReplicateClient) do(ctx context.Context, method, url string, body []byte) (*prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read replicate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &pred, nil
}

// EncodeDataURI reads path and returns it as a base64 data URI.
func EncodeDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio %s: %w", path, err)
	}
	return "data:" + audio.ContentType(filepath.Ext(path)) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
