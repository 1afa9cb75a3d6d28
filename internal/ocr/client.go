// Package ocr talks to the OCR collaborator: a microservice that accepts a
// document upload and returns the extracted plain text.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TextExtractor is the interface the pipeline depends on. Output may be empty
// when the engine found no text; that is a result, not an error.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, filename string) (string, error)
}

// Config for the OCR HTTP client.
type Config struct {
	BaseURL    string        // e.g. http://ocr-service:8001
	Timeout    time.Duration // http client timeout; OCR on large scans is slow
	MaxRetries int
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://ocr-service:8001"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ExtractText uploads the document bytes and returns the extracted text.
func (c *Client) ExtractText(ctx context.Context, content []byte, filename string) (string, error) {
	start := time.Now()
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/ocr"

	c.logger.Info("ocr.extract.start", "filename", filename, "bytes", len(content))

	operation := func() (string, error) {
		body := new(bytes.Buffer)
		mw := multipart.NewWriter(body)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("create form file: %w", err))
		}
		if _, err := part.Write(content); err != nil {
			return "", backoff.Permanent(fmt.Errorf("write form file: %w", err))
		}
		if err := mw.Close(); err != nil {
			return "", backoff.Permanent(fmt.Errorf("close multipart writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("ocr http error: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read ocr response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("ocr service status %d: %s", resp.StatusCode, payload)
		}
		if resp.StatusCode != http.StatusOK {
			return "", backoff.Permanent(fmt.Errorf("ocr service status %d: %s", resp.StatusCode, payload))
		}

		var out struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode ocr response: %w", err))
		}
		return out.Text, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)),
		ctx,
	)
	text, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		c.logger.Error("ocr.extract.failed",
			"filename", filename, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	c.logger.Info("ocr.extract.ok",
		"filename", filename,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
