package builtin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// dataTool groups CSV/JSON parse and format operations (§1 "CSV, JSON").
func dataTool() toolhost.Tool {
	csvParse := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		r := csv.NewReader(strings.NewReader(input))
		records, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		return map[string]interface{}{"rows": records}, nil
	}
	jsonParse := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		var out interface{}
		if err := json.Unmarshal([]byte(input), &out); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return map[string]interface{}{"value": out}, nil
	}
	jsonStringify := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		value := params["value"]
		out, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("value is not serializable: %w", err)
		}
		return map[string]interface{}{"output": string(out)}, nil
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "data.format",
			Category: "data",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"csv_parse":      "csv_parse",
				"json_parse":     "json_parse",
				"json_stringify": "json_stringify",
			},
		},
		Methods: map[string]toolhost.Method{
			"csv_parse":      csvParse,
			"json_parse":     jsonParse,
			"json_stringify": jsonStringify,
		},
	}
}
