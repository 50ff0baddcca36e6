package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// ZeroStyleAdapter translates the envelope into the Agent-Zero-style
// protocol's request shape and maps the foreign response back into the
// canonical shape (§4.4).
type ZeroStyleAdapter struct {
	manifest fabric.AgentManifest
	client   HTTPDoer
}

// NewZeroStyleAdapter builds a ZeroStyleAdapter bound to manifest.
func NewZeroStyleAdapter(manifest fabric.AgentManifest, client HTTPDoer) *ZeroStyleAdapter {
	return &ZeroStyleAdapter{manifest: manifest, client: client}
}

type zeroStyleRequest struct {
	ActionName string      `json:"action_name"`
	Params     interface{} `json:"params"`
	TraceID    string      `json:"trace_id"`
}

type zeroStyleResponse struct {
	Success bool            `json:"success"`
	Data    interface{}     `json:"data,omitempty"`
	ErrCode string          `json:"error_code,omitempty"`
	ErrMsg  string          `json:"error_message,omitempty"`
}

func (a *ZeroStyleAdapter) Call(ctx context.Context, env fabric.CanonicalEnvelope) (*fabric.Response, error) {
	cap, ok := a.manifest.HasCapability(env.Target.Capability)
	if !ok {
		return nil, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+env.Target.Capability)
	}
	ctx, cancel := context.WithTimeout(ctx, effectiveTimeout(env, cap))
	defer cancel()

	body, err := json.Marshal(zeroStyleRequest{ActionName: cap.Name, Params: env.Input, TraceID: env.Trace.TraceID})
	if err != nil {
		return nil, fabric.NewError(fabric.InternalError, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.manifest.Endpoint.URI, bytes.NewReader(body))
	if err != nil {
		return nil, fabric.NewError(fabric.InternalError, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

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
	var zr zeroStyleResponse
	if err := json.Unmarshal(data, &zr); err != nil {
		return nil, fabric.NewError(fabric.UpstreamError, "malformed agent response")
	}
	if !zr.Success {
		code := fabric.UpstreamError
		if zr.ErrCode != "" {
			code = fabric.Code(zr.ErrCode)
		}
		msg := zr.ErrMsg
		if msg == "" {
			msg = "agent reported failure"
		}
		return fabric.Failure(env.Trace, fabric.NewError(code, msg)), nil
	}
	return fabric.Success(env.Trace, zr.Data), nil
}

func (a *ZeroStyleAdapter) CallStream(ctx context.Context, env fabric.CanonicalEnvelope) (<-chan fabric.Event, error) {
	resp, err := a.Call(ctx, env)
	return synthesizeStream(env.Trace, resp, err), nil
}

func (a *ZeroStyleAdapter) ProbeHealth(ctx context.Context) error {
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
	return nil
}

func (a *ZeroStyleAdapter) Describe() fabric.AgentManifest { return a.manifest }
