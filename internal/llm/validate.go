package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	invoiceSchemaOnce sync.Once
	invoiceSchema     *jsonschema.Schema
	invoiceSchemaErr  error
)

func compiledInvoiceSchema() (*jsonschema.Schema, error) {
	invoiceSchemaOnce.Do(func() {
		b, err := json.Marshal(BuildInvoiceJSONSchema())
		if err != nil {
			invoiceSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("invoice-schema.json", bytes.NewReader(b)); err != nil {
			invoiceSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		invoiceSchema, invoiceSchemaErr = compiler.Compile("invoice-schema.json")
	})
	return invoiceSchema, invoiceSchemaErr
}

// ValidateInvoiceJSON checks that data is a JSON object whose recognized
// invoice keys carry usable value types. The schema is compiled once and
// reused across pipeline runs.
func ValidateInvoiceJSON(data []byte) error {
	schema, err := compiledInvoiceSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match invoice schema: %w", err)
	}
	return nil
}
