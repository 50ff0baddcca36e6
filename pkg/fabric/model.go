package fabric

import "time"

// RuntimeKind identifies which adapter family serves an agent.
type RuntimeKind string

const (
	RuntimeNative     RuntimeKind = "native"
	RuntimeZeroStyle  RuntimeKind = "zero-style"
	RuntimeCustomHTTP RuntimeKind = "custom-http"
)

// TransportKind identifies the wire transport an agent's endpoint speaks.
type TransportKind string

const (
	TransportHTTP  TransportKind = "http"
	TransportWS    TransportKind = "ws"
	TransportLocal TransportKind = "local"
	TransportStdio TransportKind = "stdio"
)

// AgentStatus is the registry's health classification for an agent.
type AgentStatus string

const (
	StatusOnline   AgentStatus = "online"
	StatusDegraded AgentStatus = "degraded"
	StatusOffline  AgentStatus = "offline"
	StatusUnknown  AgentStatus = "unknown"
)

// statusRank orders statuses for list() stable-sort: online < degraded < unknown < offline.
var statusRank = map[AgentStatus]int{
	StatusOnline:   0,
	StatusDegraded: 1,
	StatusUnknown:  2,
	StatusOffline:  3,
}

// StatusRank returns the sort rank for a status per the registry's stable
// ordering contract (online < degraded < unknown < offline).
func StatusRank(s AgentStatus) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return statusRank[StatusUnknown]
}

// TrustTier gates sensitive tool operations.
type TrustTier string

const (
	TrustLocal  TrustTier = "local"
	TrustOrg    TrustTier = "org"
	TrustPublic TrustTier = "public"
)

// CapabilityDescriptor describes one named operation an agent can perform.
type CapabilityDescriptor struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Streaming    bool                   `json:"streaming"`
	Modalities   []string               `json:"modalities,omitempty"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	MaxTimeoutMs int                    `json:"max_timeout_ms,omitempty"`
}

// EffectiveTimeout returns MaxTimeoutMs or the 60s default.
func (c CapabilityDescriptor) EffectiveTimeout() int {
	if c.MaxTimeoutMs > 0 {
		return c.MaxTimeoutMs
	}
	return 60000
}

// Endpoint names where and how an agent is reached.
type Endpoint struct {
	Transport TransportKind `json:"transport"`
	URI       string        `json:"uri"`
}

// AgentManifest is the registry's record of one agent.
type AgentManifest struct {
	AgentID      string                 `json:"agent_id" toml:"agent_id"`
	DisplayName  string                 `json:"display_name" toml:"display_name"`
	Version      string                 `json:"version" toml:"version"`
	Description  string                 `json:"description,omitempty" toml:"description"`
	RuntimeKind  RuntimeKind            `json:"runtime_kind" toml:"runtime_kind"`
	Endpoint     Endpoint               `json:"endpoint" toml:"endpoint"`
	Capabilities []CapabilityDescriptor `json:"capabilities" toml:"capabilities"`
	Tags         []string               `json:"tags,omitempty" toml:"tags"`
	TrustTier    TrustTier              `json:"trust_tier" toml:"trust_tier"`
	Status       AgentStatus            `json:"status"`
	LastSeenAt   time.Time              `json:"last_seen_at"`
}

// HasCapability reports whether name is declared on the manifest.
func (m AgentManifest) HasCapability(name string) (CapabilityDescriptor, bool) {
	for _, c := range m.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return CapabilityDescriptor{}, false
}

// ToolProvider names who supplies a tool implementation.
type ToolProvider string

const (
	ProviderBuiltin  ToolProvider = "builtin"
	ProviderExternal ToolProvider = "external"
	ProviderMCP      ToolProvider = "mcp"
)

// ToolDescriptor describes a locally-hosted tool and its dispatch mapping.
type ToolDescriptor struct {
	ToolID       string            `json:"tool_id"`
	Category     string            `json:"category"`
	Capabilities map[string]string `json:"capabilities"`
	Provider     ToolProvider      `json:"provider"`
}

// Priority is the relative ordering hint of a bus message.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Message is one entry in an agent's inbox stream or a published topic
// broadcast.
type Message struct {
	MessageID     string                 `json:"message_id"`
	FromAgent     string                 `json:"from_agent"`
	ToAgent       string                 `json:"to_agent,omitempty"`
	MessageType   string                 `json:"message_type"`
	Payload       map[string]interface{} `json:"payload"`
	Priority      Priority               `json:"priority,omitempty"`
	ReplyTo       string                 `json:"reply_to,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	StreamEntryID string                 `json:"stream_entry_id,omitempty"`
}

// AgentFilter narrows a registry list() call.
type AgentFilter struct {
	Capability string
	Tag        string
	Status     AgentStatus
}
