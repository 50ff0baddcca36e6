package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// CustomHTTPAdapter talks to an agent whose wire shape is defined per agent
// but still framed as request/response JSON over HTTP (§4.4). Unlike the
// native and zero-style variants it also supports genuine call_stream via
// text/event-stream framing, so it implements StreamingCapable.
type CustomHTTPAdapter struct {
	manifest fabric.AgentManifest
	client   HTTPDoer
}

// NewCustomHTTPAdapter builds a CustomHTTPAdapter bound to manifest.
func NewCustomHTTPAdapter(manifest fabric.AgentManifest, client HTTPDoer) *CustomHTTPAdapter {
	return &CustomHTTPAdapter{manifest: manifest, client: client}
}

func (a *CustomHTTPAdapter) SupportsStreaming() bool { return true }

func (a *CustomHTTPAdapter) Call(ctx context.Context, env fabric.CanonicalEnvelope) (*fabric.Response, error) {
	cap, ok := a.manifest.HasCapability(env.Target.Capability)
	if !ok {
		return nil, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+env.Target.Capability)
	}
	ctx, cancel := context.WithTimeout(ctx, effectiveTimeout(env, cap))
	defer cancel()

	body, _ := json.Marshal(map[string]interface{}{"capability": cap.Name, "input": env.Input, "trace_id": env.Trace.TraceID})
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
	var generic struct {
		OK     bool          `json:"ok"`
		Result interface{}   `json:"result,omitempty"`
		Error  *fabric.Error `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fabric.NewError(fabric.UpstreamError, "malformed agent response")
	}
	if !generic.OK {
		if generic.Error == nil {
			generic.Error = fabric.NewError(fabric.UpstreamError, "agent reported failure")
		}
		return fabric.Failure(env.Trace, generic.Error), nil
	}
	return fabric.Success(env.Trace, generic.Result), nil
}

// CallStream opens the agent endpoint with Accept: text/event-stream and
// relays each `data: <json>\n\n` frame as a fabric.Event, honoring the
// cancellation-closes-transport contract of §4.4.
func (a *CustomHTTPAdapter) CallStream(ctx context.Context, env fabric.CanonicalEnvelope) (<-chan fabric.Event, error) {
	cap, ok := a.manifest.HasCapability(env.Target.Capability)
	if !ok {
		return nil, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+env.Target.Capability)
	}
	callCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(env, cap))

	body, _ := json.Marshal(map[string]interface{}{"capability": cap.Name, "input": env.Input, "trace_id": env.Trace.TraceID, "stream": true})
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.manifest.Endpoint.URI, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fabric.NewError(fabric.InternalError, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	httpResp, err := a.client.Do(req)
	if err != nil {
		cancel()
		if callCtx.Err() != nil {
			return nil, fabric.NewError(fabric.Timeout, "adapter call timed out")
		}
		return nil, fabric.NewError(fabric.AgentOffline, "agent unreachable")
	}

	out := make(chan fabric.Event)
	go func() {
		defer cancel()
		defer httpResp.Body.Close()
		defer close(out)

		scanner := bufio.NewScanner(httpResp.Body)
		gotFinal := false
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev fabric.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			ev.Trace = env.Trace
			select {
			case out <- ev:
			case <-callCtx.Done():
				return
			}
			if ev.Kind == fabric.EventFinal {
				gotFinal = true
				return
			}
		}
		if !gotFinal {
			var failErr *fabric.Error
			if callCtx.Err() != nil {
				failErr = fabric.NewError(fabric.Timeout, "stream terminated before final event")
			} else {
				failErr = fabric.NewError(fabric.UpstreamError, "stream closed without final event")
			}
			select {
			case out <- fabric.FinalFailure(env.Trace, failErr):
			case <-callCtx.Done():
			}
		}
	}()
	return out, nil
}

func (a *CustomHTTPAdapter) ProbeHealth(ctx context.Context) error {
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

func (a *CustomHTTPAdapter) Describe() fabric.AgentManifest { return a.manifest }
