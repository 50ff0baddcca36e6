package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// mathTool evaluates arithmetic expressions via a sandboxed expression
// engine (no eval/code-gen), grounding §1's "math eval" built-in.
func mathTool() toolhost.Tool {
	calculate := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		exprStr, _ := params["expression"].(string)
		if exprStr == "" {
			return nil, fmt.Errorf("expression is required")
		}
		vars, _ := params["variables"].(map[string]interface{})
		program, err := expr.Compile(exprStr, expr.Env(vars))
		if err != nil {
			return nil, fmt.Errorf("invalid expression: %w", err)
		}
		out, err := expr.Run(program, vars)
		if err != nil {
			return nil, fmt.Errorf("evaluation failed: %w", err)
		}
		return map[string]interface{}{"result": out}, nil
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "math.calculate",
			Category: "math",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"calculate": "calculate",
			},
		},
		Methods: map[string]toolhost.Method{"calculate": calculate},
	}
}
