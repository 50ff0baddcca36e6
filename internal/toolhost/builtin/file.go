package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// fileTool groups sandboxed file I/O operations (§1 "file I/O"), restricted
// to a configured root directory so a tool call can never escape it via
// "../" traversal.
func fileTool(root string) toolhost.Tool {
	resolve := func(params map[string]interface{}) (string, error) {
		rel, _ := params["path"].(string)
		if rel == "" {
			return "", fmt.Errorf("path is required")
		}
		clean := filepath.Clean(filepath.Join(root, rel))
		if !strings.HasPrefix(clean, filepath.Clean(root)+string(os.PathSeparator)) && clean != filepath.Clean(root) {
			return "", fmt.Errorf("path escapes sandbox root")
		}
		return clean, nil
	}

	read := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		path, err := resolve(params)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return map[string]interface{}{"content": string(data)}, nil
	}
	write := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		if tier == fabric.TrustPublic {
			return nil, fmt.Errorf("file.write is not permitted for public trust tier")
		}
		path, err := resolve(params)
		if err != nil {
			return nil, err
		}
		content, _ := params["content"].(string)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write failed: %w", err)
		}
		return map[string]interface{}{"written": len(content)}, nil
	}
	list := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		path, err := resolve(params)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("list failed: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return map[string]interface{}{"entries": names}, nil
	}

	pathSafety := func(parameters map[string]interface{}, tier fabric.TrustTier) error {
		_, err := resolve(parameters)
		return err
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "file.io",
			Category: "file",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"read":  "read",
				"write": "write",
				"list":  "list",
			},
		},
		Methods: map[string]toolhost.Method{
			"read":  read,
			"write": write,
			"list":  list,
		},
		Safety: []toolhost.SafetyConstraint{pathSafety},
	}
}
