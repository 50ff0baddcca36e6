// Package manifest loads agent manifest files from a directory of TOML
// documents. A manifest directory holds one *.toml file per agent. Unknown
// fields are ignored rather than rejected; they are not kept anywhere on the
// decoded manifest. Missing status, trust tier and endpoint transport get the
// defaults LoadFile applies; other missing optional fields take their zero
// value.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// LoadDir parses every *.toml file directly under dir into an AgentManifest.
// A directory that does not exist yields an empty, non-error result, since a
// gateway with no seeded manifests is a valid (if empty) configuration.
func LoadDir(dir string) ([]fabric.AgentManifest, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read dir %s: %w", dir, err)
	}

	var out []fabric.AgentManifest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadFile parses a single manifest file, defaulting its status to "online",
// trust tier to "org" and endpoint transport to "http" when the file leaves
// them blank.
func LoadFile(path string) (fabric.AgentManifest, error) {
	var m fabric.AgentManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return fabric.AgentManifest{}, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	if m.AgentID == "" {
		return fabric.AgentManifest{}, fmt.Errorf("manifest: %s: missing agent_id", path)
	}
	if m.Status == "" {
		m.Status = fabric.StatusOnline
	}
	if m.TrustTier == "" {
		m.TrustTier = fabric.TrustOrg
	}
	if m.Endpoint.Transport == "" {
		m.Endpoint.Transport = fabric.TransportHTTP
	}
	return m, nil
}
