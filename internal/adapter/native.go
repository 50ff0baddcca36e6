package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// NativeAdapter posts {name, arguments} to the agent endpoint, where name is
// the capability and arguments is the envelope's input (§4.4).
type NativeAdapter struct {
	manifest fabric.AgentManifest
	client   HTTPDoer
}

// NewNativeAdapter builds a NativeAdapter bound to manifest.
func NewNativeAdapter(manifest fabric.AgentManifest, client HTTPDoer) *NativeAdapter {
	return &NativeAdapter{manifest: manifest, client: client}
}

type nativeRequest struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}

type nativeResponse struct {
	OK     bool           `json:"ok"`
	Result interface{}    `json:"result,omitempty"`
	Error  *fabric.Error  `json:"error,omitempty"`
}

func (a *NativeAdapter) Call(ctx context.Context, env fabric.CanonicalEnvelope) (*fabric.Response, error) {
	cap, ok := a.manifest.HasCapability(env.Target.Capability)
	if !ok {
		return nil, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+env.Target.Capability)
	}
	timeout := effectiveTimeout(env, cap)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(nativeRequest{Name: cap.Name, Arguments: env.Input})
	if err != nil {
		return nil, fabric.NewError(fabric.InternalError, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.manifest.Endpoint.URI, bytes.NewReader(body))
	if err != nil {
		return nil, fabric.NewError(fabric.InternalError, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-Id", env.Trace.TraceID)
	req.Header.Set("X-Span-Id", env.Trace.SpanID)

	httpResp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fabric.NewError(fabric.Timeout, "adapter call timed out")
		}
		return nil, fabric.NewError(fabric.AgentOffline, "agent unreachable")
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fabric.NewError(fabric.UpstreamError, "reading agent response failed")
	}
	var nr nativeResponse
	if err := json.Unmarshal(data, &nr); err != nil {
		return nil, fabric.NewError(fabric.UpstreamError, "malformed agent response")
	}
	if !nr.OK {
		if nr.Error == nil {
			nr.Error = fabric.NewError(fabric.UpstreamError, "agent reported failure")
		}
		return fabric.Failure(env.Trace, nr.Error), nil
	}
	return fabric.Success(env.Trace, nr.Result), nil
}

func (a *NativeAdapter) CallStream(ctx context.Context, env fabric.CanonicalEnvelope) (<-chan fabric.Event, error) {
	resp, err := a.Call(ctx, env)
	return synthesizeStream(env.Trace, resp, err), nil
}

func (a *NativeAdapter) ProbeHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.manifest.Endpoint.URI, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("agent returned %d", resp.StatusCode)
	}
	return nil
}

func (a *NativeAdapter) Describe() fabric.AgentManifest { return a.manifest }

func effectiveTimeout(env fabric.CanonicalEnvelope, cap fabric.CapabilityDescriptor) time.Duration {
	ms := env.Target.TimeoutMs
	if ms <= 0 {
		ms = cap.EffectiveTimeout()
	}
	return time.Duration(ms) * time.Millisecond
}
