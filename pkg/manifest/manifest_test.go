package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

func writeManifest(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadDirParsesManifestsAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "agent-a.toml", `
agent_id = "agent-a"
display_name = "Agent A"
version = "1.0.0"
runtime_kind = "native"

[endpoint]
uri = "http://localhost:9001"

[[capabilities]]
name = "reason"
`)

	manifests, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m := manifests[0]
	assert.Equal(t, "agent-a", m.AgentID)
	assert.Equal(t, fabric.StatusOnline, m.Status)
	assert.Equal(t, fabric.TrustOrg, m.TrustTier)
	assert.Equal(t, fabric.TransportHTTP, m.Endpoint.Transport)
	require.Len(t, m.Capabilities, 1)
	assert.Equal(t, "reason", m.Capabilities[0].Name)
}

func TestLoadDirIgnoresNonTomlFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "README.md", "not a manifest")
	manifests, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestLoadDirMissingDirIsEmptyNotError(t *testing.T) {
	manifests, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestLoadFileRejectsMissingAgentID(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.toml", `display_name = "No ID"`)
	_, err := LoadFile(filepath.Join(dir, "bad.toml"))
	require.Error(t, err)
}
