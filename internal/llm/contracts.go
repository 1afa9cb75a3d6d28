package llm

import "context"

// Chat roles accepted by the extraction providers.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of the prompt history sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Extractor is the interface the pipeline depends on. Implementations take
// OCR text and return the provider's raw response body, which is expected
// (but not guaranteed) to be a JSON invoice document in one of the known
// shapes. Callers own the decision of what to do with unparseable output.
type Extractor interface {
	ExtractInvoice(ctx context.Context, ocrText string) ([]byte, error)
}
