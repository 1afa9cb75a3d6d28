package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

// systemPrompt instructs the model to emit the canonical invoice schema.
// The normalizer still tolerates alias keys and nested/flat supplier shapes
// because models drift across prompt versions.
const systemPrompt = `You are an invoice parser. Extract invoice data from OCR'd text into this exact JSON schema.

**Output ONLY valid JSON**, nothing else.

### Schema:
{
  "supplier": {
    "name": string,
    "address": string,
    "email": string,
    "phone_number": string,
    "vat_number": string,
    "website": string
  },
  "expense_date": string,   // YYYY-MM-DD
  "invoice_number": string,
  "currency": string,       // ISO 4217
  "total_net": number,
  "total_tax": number,
  "total_amount": number
}

Omit fields that are not present in the document. Never invent values.`

// ExtractInvoice implements llm.Extractor over text-only chat/completions.
// It returns the provider's message content verbatim; downstream stages own
// the decision of how to treat unparseable output.
func (c *Client) ExtractInvoice(ctx context.Context, ocrText string) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(ocrText),
	)

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildUserPrompt(ocrText)},
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages":        history,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("no choices in openai response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	// Advisory shape check; the orchestrator treats unparseable JSON as a
	// first-class stage failure, so a mismatch here is only logged.
	if err := llm.ValidateInvoiceJSON(content); err != nil {
		c.logger.Warn("llm.extract.schema_mismatch",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// post sends the request, retrying transient failures (network errors and
// 5xx/429 responses) with exponential backoff.
func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("openai http error: %w", err)
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				c.logger.Warn("openai response body close error", "error", cerr)
			}
		}()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read openai response: %w", err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, payload)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, backoff.Permanent(fmt.Errorf("openai status %d: %s", resp.StatusCode, payload))
		}
		return payload, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)),
		ctx,
	)
	return backoff.RetryWithData(operation, policy)
}

func buildUserPrompt(ocr string) string {
	var b strings.Builder
	b.WriteString("Input invoice text (first ~6k chars):\n")
	if len(ocr) > 6000 {
		b.WriteString(ocr[:6000])
	} else {
		b.WriteString(ocr)
	}
	return b.String()
}
