package builtin

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// textTool groups regex and casing operations (§1 "text/regex").
func textTool() toolhost.Tool {
	match := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		pattern, _ := params["pattern"].(string)
		input, _ := params["input"].(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return map[string]interface{}{"matches": re.FindAllString(input, -1)}, nil
	}
	replace := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		pattern, _ := params["pattern"].(string)
		input, _ := params["input"].(string)
		replacement, _ := params["replacement"].(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return map[string]interface{}{"output": re.ReplaceAllString(input, replacement)}, nil
	}
	upper := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		return map[string]interface{}{"output": strings.ToUpper(input)}, nil
	}
	lower := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		return map[string]interface{}{"output": strings.ToLower(input)}, nil
	}
	markdownToHTML := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(input), &buf); err != nil {
			return nil, fmt.Errorf("markdown conversion failed: %w", err)
		}
		return map[string]interface{}{"html": buf.String()}, nil
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "text.transform",
			Category: "text",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"regex_match":        "regex_match",
				"regex_replace":      "regex_replace",
				"uppercase":          "uppercase",
				"lowercase":          "lowercase",
				"markdown_to_html":   "markdown_to_html",
			},
		},
		Methods: map[string]toolhost.Method{
			"regex_match":      match,
			"regex_replace":    replace,
			"uppercase":        upper,
			"lowercase":        lower,
			"markdown_to_html": markdownToHTML,
		},
	}
}
