package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fabricgw/gateway/internal/adapter"
	"github.com/fabricgw/gateway/internal/bus"
	"github.com/fabricgw/gateway/internal/registry"
	"github.com/fabricgw/gateway/internal/telemetry"
	"github.com/fabricgw/gateway/internal/trace"
	"github.com/fabricgw/gateway/pkg/fabric"
)

func (p *Pipeline) handleHealth(ctx context.Context, tc fabric.TraceContext) *fabric.Response {
	counts := map[string]int{"online": 0, "degraded": 0, "offline": 0}
	agents, err := p.Registry.List(ctx, fabric.AgentFilter{})
	if err == nil {
		for _, a := range agents {
			switch a.Status {
			case fabric.StatusOnline:
				counts["online"]++
			case fabric.StatusDegraded:
				counts["degraded"]++
			default:
				counts["offline"]++
			}
		}
	}
	return fabric.Success(tc, map[string]interface{}{
		"registry":       "ok",
		"runtimes":       counts,
		"version":        p.Config.Version,
		"uptime_seconds": int(time.Since(p.startedAt).Seconds()),
	})
}

func (p *Pipeline) handleAgentList(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	filter := fabric.AgentFilter{}
	if f := argMap(args, "filter"); f != nil {
		filter.Capability, _ = argString(f, "capability")
		filter.Tag, _ = argString(f, "tag")
		if s, ok := argString(f, "status"); ok {
			filter.Status = fabric.AgentStatus(s)
		}
	}
	agents, err := p.Registry.List(ctx, filter)
	if err != nil {
		return fabric.Failure(tc, registry.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{"agents": agents})
}

func (p *Pipeline) handleAgentDescribe(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	agentID, ok := argString(args, "agent_id")
	if !ok || agentID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id is required"))
	}
	m, err := p.Registry.Get(ctx, agentID)
	if err != nil {
		return fabric.Failure(tc, registry.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{"agent": m})
}

// handleRoutePreview answers against the same capability ranking the
// dispatcher itself uses, so the preview can't drift from actual routing
// (SPEC_FULL.md Part E's note on fabric.route.preview).
func (p *Pipeline) handleRoutePreview(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	agentID, _ := argString(args, "agent_id")
	capability, _ := argString(args, "capability")
	if agentID == "" || capability == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id and capability are required"))
	}
	m, err := p.Registry.Get(ctx, agentID)
	if err != nil {
		return fabric.Failure(tc, registry.AsFabricError(err))
	}
	if _, ok := m.HasCapability(capability); !ok {
		return fabric.Failure(tc, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+capability))
	}

	policy := "primary-only"
	var fallbacks []string
	if p.Config.FallbackEnabled {
		policy = "fallback-chain"
		candidates, err := p.Registry.FindByCapability(ctx, capability)
		if err == nil {
			for _, c := range candidates {
				if c.AgentID == agentID {
					continue
				}
				if cm, err := p.Registry.Get(ctx, c.AgentID); err != nil || cm.Status == fabric.StatusOffline {
					continue
				}
				fallbacks = append(fallbacks, c.AgentID)
			}
		}
	}
	return fabric.Success(tc, map[string]interface{}{
		"selected_runtime": string(m.RuntimeKind),
		"policy":           policy,
		"fallbacks":        fallbacks,
	})
}

// retryableCodes are the adapter-side failures a fallback attempt might
// overcome (AGENT_OFFLINE, TIMEOUT); every other code, including
// UPSTREAM_ERROR and caller errors like BAD_INPUT, is returned as is.
var retryableCodes = map[fabric.Code]bool{
	fabric.Timeout:      true,
	fabric.AgentOffline: true,
}

func (p *Pipeline) handleCall(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}, actx fabric.AuthContext) (*fabric.Response, <-chan fabric.Event) {
	agentID, _ := argString(args, "agent_id")
	capability, _ := argString(args, "capability")
	if agentID == "" || capability == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id and capability are required")), nil
	}
	task, _ := argString(args, "task")
	stream := argBool(args, "stream")
	timeoutMs := argInt(args, "timeout_ms")
	contextMap := argMap(args, "context")

	manifest, err := p.Registry.Get(ctx, agentID)
	if err != nil {
		return fabric.Failure(tc, registry.AsFabricError(err)), nil
	}
	capDesc, ok := manifest.HasCapability(capability)
	if !ok {
		return fabric.Failure(tc, fabric.NewError(fabric.CapabilityNotFound, "capability not found: "+capability)), nil
	}
	if manifest.Status == fabric.StatusOffline {
		return fabric.Failure(tc, fabric.NewError(fabric.AgentOffline, "agent is offline: "+agentID)), nil
	}

	ad, err := p.Adapters.Build(manifest)
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err)), nil
	}

	// §4.7: a streaming request against a capability that isn't declared
	// streaming-capable degrades to a synchronous call. The degradation is
	// recorded on the trace-enriched logger rather than silently dropped.
	degraded := ""
	if stream && !capDesc.Streaming {
		degraded = "capability not streaming-capable"
		stream = false
	}
	_, genuineStreaming := ad.(adapter.StreamingCapable)

	ctx = trace.WithContext(ctx, tc)
	callTC := trace.Child(tc)
	env := fabric.CanonicalEnvelope{
		Trace:    callTC,
		Auth:     actx,
		Target:   fabric.Target{Kind: fabric.TargetAgent, ID: agentID, Capability: capability, TimeoutMs: timeoutMs},
		Input:    fabric.Input{Task: task, Context: contextMap},
		Response: fabric.ResponseShape{Stream: stream},
	}

	spanAttrs := []attribute.KeyValue{
		attribute.String("fabric.agent_id", agentID),
		attribute.String("fabric.capability", capability),
		attribute.Bool("fabric.streaming_genuine", genuineStreaming),
	}
	if degraded != "" {
		spanAttrs = append(spanAttrs, attribute.String("fabric.streaming_degraded", degraded))
	}
	ctx, endSpan := telemetry.StartSpan(ctx, "adapter.call", callTC.TraceID, callTC.SpanID, spanAttrs...)
	defer endSpan()

	if degraded != "" {
		trace.Logger(p.logger, tc).Warn().
			Str("agent_id", agentID).Str("capability", capability).
			Str("reason", degraded).Msg("streaming call degraded to sync")
	}

	if stream {
		ch, err := ad.CallStream(ctx, env)
		if err != nil {
			return fabric.Failure(tc, fabric.AsFabricError(err)), nil
		}
		return nil, ch
	}

	startedAt := time.Now()
	resp, callErr := ad.Call(ctx, env)
	if callErr != nil {
		ferr := fabric.AsFabricError(callErr)
		if p.Config.FallbackEnabled && retryableCodes[ferr.Code] {
			if fbResp, attempted := p.tryFallback(ctx, env, agentID, capability); fbResp != nil {
				p.logCall(ctx, tc.TraceID, agentID, env, fbResp, startedAt)
				return fbResp, nil
			} else if len(attempted) > 0 {
				ferr = ferr.WithDetail("fallbacks", attempted)
			}
		}
		failResp := fabric.Failure(tc, ferr)
		p.logCall(ctx, tc.TraceID, agentID, env, failResp, startedAt)
		return failResp, nil
	}
	p.logCall(ctx, tc.TraceID, agentID, env, resp, startedAt)
	return resp, nil
}

// logCall appends a durable audit row when the registry is the durable
// variant (Part B decision #4); a no-op against the in-memory registry.
func (p *Pipeline) logCall(ctx context.Context, traceID, agentID string, env fabric.CanonicalEnvelope, resp *fabric.Response, startedAt time.Time) {
	cl, ok := p.Registry.(registry.CallLogger)
	if !ok {
		return
	}
	reqBytes, _ := json.Marshal(env)
	respBytes, _ := json.Marshal(resp)
	if err := cl.LogCall(ctx, traceID, string(fabric.TargetAgent), agentID, reqBytes, respBytes, startedAt, time.Now()); err != nil {
		p.logger.Warn().Err(err).Str("agent_id", agentID).Msg("call audit log failed")
	}
}

// tryFallback retries capability-ranked alternates to agentID, skipping the
// primary and any offline candidate. It returns the first successful
// response, or nil plus the list of agent ids actually attempted.
func (p *Pipeline) tryFallback(ctx context.Context, env fabric.CanonicalEnvelope, primaryAgentID, capability string) (*fabric.Response, []string) {
	parentTC, ok := trace.FromContext(ctx)
	if !ok {
		parentTC = env.Trace
	}
	candidates, err := p.Registry.FindByCapability(ctx, capability)
	if err != nil {
		return nil, nil
	}
	var attempted []string
	for _, c := range candidates {
		if c.AgentID == primaryAgentID {
			continue
		}
		m, err := p.Registry.Get(ctx, c.AgentID)
		if err != nil || m.Status == fabric.StatusOffline {
			continue
		}
		ad, err := p.Adapters.Build(m)
		if err != nil {
			continue
		}
		attempted = append(attempted, c.AgentID)

		// Each fallback attempt gets its own child span under the request's
		// trace, so a trace viewer can tell which candidate actually served
		// the call apart from the primary attempt.
		attemptTC := trace.Child(parentTC)
		candidateCtx := trace.WithContext(ctx, attemptTC)
		candidateEnv := env
		candidateEnv.Target.ID = c.AgentID
		candidateEnv.Trace = attemptTC
		var resp *fabric.Response
		retryErr := backoff.Retry(func() error {
			r, callErr := ad.Call(candidateCtx, candidateEnv)
			if callErr != nil {
				return callErr
			}
			resp = r
			return nil
		}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1))
		if retryErr == nil && resp != nil && resp.OK {
			return resp, attempted
		}
	}
	return nil, attempted
}

func (p *Pipeline) handleToolList(tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	category, _ := argString(args, "category")
	providerStr, _ := argString(args, "provider")
	tools := p.Tools.ListTools(category, fabric.ToolProvider(providerStr))
	return fabric.Success(tc, map[string]interface{}{"tools": tools, "count": len(tools)})
}

func (p *Pipeline) handleToolDescribe(tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	toolID, ok := argString(args, "tool_id")
	if !ok || toolID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "tool_id is required"))
	}
	d, err := p.Tools.DescribeTool(toolID)
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{"tool": d})
}

func (p *Pipeline) handleToolCall(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}, tier fabric.TrustTier) *fabric.Response {
	toolID, _ := argString(args, "tool_id")
	capability, _ := argString(args, "capability")
	if toolID == "" || capability == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "tool_id and capability are required"))
	}
	parameters := argMap(args, "parameters")
	out, err := p.Tools.ExecuteTool(ctx, toolID, capability, parameters, tier)
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, out)
}

// handleToolShorthand dispatches fabric.tool.{category}.{capability}, a
// sugar form that resolves to whichever registered tool in that category
// exposes the named capability (§6).
func (p *Pipeline) handleToolShorthand(ctx context.Context, tc fabric.TraceContext, name string, args map[string]interface{}, tier fabric.TrustTier) *fabric.Response {
	rest := strings.TrimPrefix(name, toolShorthandPrefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "malformed tool shorthand: "+name))
	}
	category, capability := parts[0], parts[1]

	var toolID string
	for _, d := range p.Tools.ListTools(category, "") {
		if _, ok := d.Capabilities[capability]; ok {
			toolID = d.ToolID
			break
		}
	}
	if toolID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.ToolNotFound, "no tool in category "+category+" exposes capability "+capability))
	}

	parameters := argMap(args, "parameters")
	out, err := p.Tools.ExecuteTool(ctx, toolID, capability, parameters, tier)
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, out)
}

func (p *Pipeline) handleMessageSend(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	toAgent, _ := argString(args, "to_agent")
	fromAgent, _ := argString(args, "from_agent")
	messageType, _ := argString(args, "message_type")
	if toAgent == "" || fromAgent == "" || messageType == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "to_agent, from_agent, and message_type are required"))
	}
	payload := argMap(args, "payload")
	priority := fabric.Priority(argStringDefault(args, "priority", string(fabric.PriorityNormal)))
	replyTo, _ := argString(args, "reply_to")

	msg := fabric.Message{
		MessageID:   uuid.NewString(),
		FromAgent:   fromAgent,
		ToAgent:     toAgent,
		MessageType: messageType,
		Payload:     payload,
		Priority:    priority,
		ReplyTo:     replyTo,
	}
	_, endSpan := telemetry.StartSpan(ctx, "bus.send", tc.TraceID, tc.SpanID,
		attribute.String("fabric.to_agent", toAgent), attribute.String("fabric.from_agent", fromAgent))
	streamID, err := p.Bus.Send(ctx, msg)
	endSpan()
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{
		"message_id": msg.MessageID,
		"status":     "queued",
		"stream_id":  streamID,
	})
}

func (p *Pipeline) handleMessageReceive(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	agentID, ok := argString(args, "agent_id")
	if !ok || agentID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id is required"))
	}
	count := argIntDefault(args, "count", 10)
	blockMs := argIntDefault(args, "block_ms", 0)
	group := argStringDefault(args, "consumer_group", bus.DefaultGroup(agentID))

	_, endSpan := telemetry.StartSpan(ctx, "bus.receive", tc.TraceID, tc.SpanID, attribute.String("fabric.agent_id", agentID))
	msgs, err := p.Bus.Receive(ctx, agentID, group, count, time.Duration(blockMs)*time.Millisecond)
	endSpan()
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
		"agent_id": agentID,
	})
}

func (p *Pipeline) handleMessageAcknowledge(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	agentID, ok := argString(args, "agent_id")
	if !ok || agentID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id is required"))
	}
	ids := argStringSlice(args, "message_ids")
	if len(ids) == 0 {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "message_ids is required"))
	}
	group := argStringDefault(args, "consumer_group", bus.DefaultGroup(agentID))

	_, endSpan := telemetry.StartSpan(ctx, "bus.acknowledge", tc.TraceID, tc.SpanID, attribute.String("fabric.agent_id", agentID))
	results, err := p.Bus.Acknowledge(ctx, agentID, group, ids)
	endSpan()
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{"acknowledged": results})
}

func (p *Pipeline) handleMessagePublish(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	topic, ok := argString(args, "topic")
	if !ok || topic == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "topic is required"))
	}
	fromAgent, _ := argString(args, "from_agent")
	message := argMap(args, "message")

	_, endSpan := telemetry.StartSpan(ctx, "bus.publish", tc.TraceID, tc.SpanID, attribute.String("fabric.topic", topic))
	recipients, err := p.Bus.Publish(ctx, topic, message, fromAgent)
	endSpan()
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{
		"topic":      topic,
		"recipients": recipients,
		"published":  true,
	})
}

func (p *Pipeline) handleMessageQueueStatus(ctx context.Context, tc fabric.TraceContext, args map[string]interface{}) *fabric.Response {
	agentID, ok := argString(args, "agent_id")
	if !ok || agentID == "" {
		return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "agent_id is required"))
	}
	group := argStringDefault(args, "consumer_group", bus.DefaultGroup(agentID))

	_, endSpan := telemetry.StartSpan(ctx, "bus.queue_status", tc.TraceID, tc.SpanID, attribute.String("fabric.agent_id", agentID))
	status, err := p.Bus.QueueStatus(ctx, agentID, group)
	endSpan()
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err))
	}
	return fabric.Success(tc, map[string]interface{}{
		"agent_id":    status.AgentID,
		"queue_depth": status.QueueDepth,
		"stream_info": map[string]interface{}{
			"pending_count":     status.PendingCount,
			"last_delivered_id": status.LastDeliveredID,
		},
	})
}
