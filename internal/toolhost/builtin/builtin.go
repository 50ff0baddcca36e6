// Package builtin implements the gateway's ~20 built-in tool capabilities
// (file I/O, HTTP fetch, math eval, text/regex, hashing, base64, CSV, JSON,
// Markdown), discovered at startup as a fixed, static set (§1, §4.5, §9).
package builtin

import (
	"net/http"
	"time"

	"github.com/fabricgw/gateway/internal/toolhost"
)

// RegisterAll wires every built-in tool into host. fileRoot sandboxes the
// file.io tool to a single directory.
func RegisterAll(host *toolhost.Host, fileRoot string) {
	client := &http.Client{Timeout: 15 * time.Second}

	host.Register(mathTool())
	host.Register(textTool())
	host.Register(hashTool())
	host.Register(encodingTool())
	host.Register(dataTool())
	host.Register(httpTool(client))
	host.Register(fileTool(fileRoot))
}
