package toolhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

func echoTool() Tool {
	return Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "test.echo",
			Category: "test",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"echo": "echo",
			},
		},
		Methods: map[string]Method{
			"echo": func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
				return params, nil
			},
		},
	}
}

func TestHostExecuteTool(t *testing.T) {
	h := NewHost()
	h.Register(echoTool())

	out, err := h.ExecuteTool(context.Background(), "test.echo", "echo", map[string]interface{}{"x": 1}, fabric.TrustLocal)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": 1}, out)
}

func TestHostToolNotFound(t *testing.T) {
	h := NewHost()
	_, err := h.ExecuteTool(context.Background(), "missing", "echo", nil, fabric.TrustLocal)
	require.Error(t, err)
	assert.Equal(t, fabric.ToolNotFound, err.(*fabric.Error).Code)
}

func TestHostCapabilityNotFound(t *testing.T) {
	h := NewHost()
	h.Register(echoTool())
	_, err := h.ExecuteTool(context.Background(), "test.echo", "missing", nil, fabric.TrustLocal)
	require.Error(t, err)
	assert.Equal(t, fabric.CapabilityNotFound, err.(*fabric.Error).Code)
}

func TestHostListAndDescribe(t *testing.T) {
	h := NewHost()
	h.Register(echoTool())

	list := h.ListTools("test", "")
	require.Len(t, list, 1)

	d, err := h.DescribeTool("test.echo")
	require.NoError(t, err)
	assert.Equal(t, "test.echo", d.ToolID)
}
