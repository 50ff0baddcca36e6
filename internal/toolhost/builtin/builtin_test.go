package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

func TestRegisterAllAndDispatch(t *testing.T) {
	host := toolhost.NewHost()
	RegisterAll(host, t.TempDir())

	tools := host.ListTools("", "")
	require.NotEmpty(t, tools)

	out, err := host.ExecuteTool(context.Background(), "math.calculate", "calculate",
		map[string]interface{}{"expression": "2 + 2"}, fabric.TrustLocal)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": 4}, out)
}

func TestFileToolSandboxEscape(t *testing.T) {
	host := toolhost.NewHost()
	RegisterAll(host, t.TempDir())

	_, err := host.ExecuteTool(context.Background(), "file.io", "read",
		map[string]interface{}{"path": "../../etc/passwd"}, fabric.TrustLocal)
	require.Error(t, err)
}

func TestHashToolSHA256(t *testing.T) {
	host := toolhost.NewHost()
	RegisterAll(host, t.TempDir())

	out, err := host.ExecuteTool(context.Background(), "crypto.hash", "sha256",
		map[string]interface{}{"input": "hello"}, fabric.TrustLocal)
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", m["digest"])
}
