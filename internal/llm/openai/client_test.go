package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionsURL = "https://llm.test/v1/chat/completions"

func newTestClient(maxRetries int) *Client {
	return NewClient(Config{
		APIKey:     "sk-test",
		BaseURL:    "https://llm.test/v1",
		Model:      "gpt-4o-mini",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
	}, nil)
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestExtractInvoice_ReturnsMessageContent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	extraction := `{"supplier": {"name": "ACME GmbH"}, "total_amount": 119.0}`
	httpmock.RegisterResponder("POST", completionsURL,
		httpmock.NewJsonResponderOrPanic(200, completionResponse("  "+extraction+"\n")))

	raw, err := newTestClient(0).ExtractInvoice(context.Background(), "INVOICE ACME GmbH")
	require.NoError(t, err)
	assert.JSONEq(t, extraction, string(raw))
}

func TestExtractInvoice_SendsAuthAndPrompt(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var captured map[string]any
	var authHeader string
	httpmock.RegisterResponder("POST", completionsURL,
		func(req *http.Request) (*http.Response, error) {
			authHeader = req.Header.Get("Authorization")
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &captured)
			return httpmock.NewJsonResponse(200, completionResponse("{}"))
		})

	_, err := newTestClient(0).ExtractInvoice(context.Background(), "some ocr text")
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", authHeader)
	assert.Equal(t, "gpt-4o-mini", captured["model"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "some ocr text")
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestExtractInvoice_NoChoices(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", completionsURL,
		httpmock.NewJsonResponderOrPanic(200, map[string]any{"choices": []any{}}))

	_, err := newTestClient(0).ExtractInvoice(context.Background(), "text")
	assert.ErrorContains(t, err, "no choices")
}

func TestExtractInvoice_AuthFailureIsNotRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", completionsURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error": "bad key"}`))

	_, err := newTestClient(3).ExtractInvoice(context.Background(), "text")
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestExtractInvoice_RetriesRateLimit(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", completionsURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return httpmock.NewJsonResponse(200, completionResponse(`{"total_amount": 10}`))
		})

	raw, err := newTestClient(2).ExtractInvoice(context.Background(), "text")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_amount": 10}`, string(raw))
	assert.Equal(t, 2, calls)
}

func TestBuildUserPrompt_TruncatesLongText(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'a'
	}
	prompt := buildUserPrompt(string(long))
	assert.LessOrEqual(t, len(prompt), 6000+len("Input invoice text (first ~6k chars):\n"))
}
