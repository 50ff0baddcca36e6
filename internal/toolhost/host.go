// Package toolhost discovers tool implementations by id, dispatches
// capability calls, and enforces per-tool safety rules (C5 of the gateway
// core).
package toolhost

import (
	"context"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// Method is one dispatchable capability implementation on a Tool.
type Method func(ctx context.Context, parameters map[string]interface{}, tier fabric.TrustTier) (interface{}, error)

// SafetyConstraint validates parameters before a Method runs, returning a
// descriptive error if the call violates the tool's safety policy (path
// restriction, command denylist, sensitive-variable filter, ...).
type SafetyConstraint func(parameters map[string]interface{}, tier fabric.TrustTier) error

// Tool is one pluggable tool implementation, discovered once at startup.
type Tool struct {
	Descriptor  fabric.ToolDescriptor
	Methods     map[string]Method
	Safety      []SafetyConstraint
	InputSchema map[string]*jsonschema.Schema // keyed by capability name
}

// Host is the static mapping from tool_id to Tool, built at startup (§4.5,
// §9: "no run-time code loading is assumed").
type Host struct {
	tools map[string]Tool
}

// NewHost builds an empty host; tools are added via Register before serving
// any traffic.
func NewHost() *Host {
	return &Host{tools: make(map[string]Tool)}
}

// Register adds a tool to the static mapping. Called once per tool at
// startup by the builtin package's registration list.
func (h *Host) Register(t Tool) {
	h.tools[t.Descriptor.ToolID] = t
}

// ListTools filters by category and/or provider (§4.5).
func (h *Host) ListTools(category string, provider fabric.ToolProvider) []fabric.ToolDescriptor {
	out := make([]fabric.ToolDescriptor, 0, len(h.tools))
	for _, t := range h.tools {
		if category != "" && t.Descriptor.Category != category {
			continue
		}
		if provider != "" && t.Descriptor.Provider != provider {
			continue
		}
		out = append(out, t.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

// DescribeTool returns the descriptor for tool_id.
func (h *Host) DescribeTool(toolID string) (fabric.ToolDescriptor, error) {
	t, ok := h.tools[toolID]
	if !ok {
		return fabric.ToolDescriptor{}, fabric.NewError(fabric.ToolNotFound, "tool not found: "+toolID)
	}
	return t.Descriptor, nil
}

// ExecuteTool resolves capability → method, enforces safety constraints,
// and invokes the method (§4.5).
func (h *Host) ExecuteTool(ctx context.Context, toolID, capability string, parameters map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
	t, ok := h.tools[toolID]
	if !ok {
		return nil, fabric.NewError(fabric.ToolNotFound, "tool not found: "+toolID)
	}
	method, ok := t.Methods[capability]
	if !ok {
		return nil, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+capability)
	}
	if schema, ok := t.InputSchema[capability]; ok && schema != nil {
		if err := schema.Validate(parameters); err != nil {
			return nil, fabric.NewError(fabric.BadInput, "parameters failed schema validation: "+err.Error())
		}
	}
	for _, constraint := range t.Safety {
		if err := constraint(parameters, tier); err != nil {
			return nil, fabric.NewError(fabric.ToolExecutionError, err.Error())
		}
	}
	result, err := method(ctx, parameters, tier)
	if err != nil {
		if ferr, ok := err.(*fabric.Error); ok {
			return nil, ferr
		}
		return nil, fabric.NewError(fabric.ToolExecutionError, err.Error())
	}
	return result, nil
}
