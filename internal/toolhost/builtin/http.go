package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// httpTool fetches a URL over HTTP (§1 "HTTP fetch"). Trust tier gates the
// operation: public-tier callers (the least trusted class) are denied, since
// an open relay to arbitrary hosts is a classic SSRF vector.
func httpTool(client *http.Client) toolhost.Tool {
	fetch := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		url, _ := params["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("url is required")
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid url: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response failed: %w", err)
		}
		return map[string]interface{}{"status": resp.StatusCode, "body": string(body)}, nil
	}

	denyPublicTier := func(parameters map[string]interface{}, tier fabric.TrustTier) error {
		if tier == fabric.TrustPublic {
			return fmt.Errorf("http.fetch is not permitted for public trust tier")
		}
		return nil
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "http.fetch",
			Category: "network",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"fetch": "fetch",
			},
		},
		Methods: map[string]toolhost.Method{"fetch": fetch},
		Safety:  []toolhost.SafetyConstraint{denyPublicTier},
	}
}
