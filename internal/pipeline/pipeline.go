// Package pipeline is the front controller of the gateway (C7): parse,
// authenticate, trace, classify the dotted operation name, validate
// arguments, build the canonical envelope, resolve and route to the
// right subsystem, execute, and shape the response or event stream.
//
// The dotted-name classification mirrors vanducng-goclaw's pkg/protocol
// constant organization; the dispatch itself generalizes the teacher's
// JSON-RPC method-switch in internal/mcpgw/gateway.go.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fabricgw/gateway/internal/adapter"
	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/bus"
	"github.com/fabricgw/gateway/internal/registry"
	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/internal/trace"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// Dotted operation names (§6).
const (
	OpHealth             = "fabric.health"
	OpAgentList          = "fabric.agent.list"
	OpAgentDescribe      = "fabric.agent.describe"
	OpRoutePreview       = "fabric.route.preview"
	OpCall               = "fabric.call"
	OpToolList           = "fabric.tool.list"
	OpToolDescribe       = "fabric.tool.describe"
	OpToolCall           = "fabric.tool.call"
	OpMessageSend        = "fabric.message.send"
	OpMessageReceive     = "fabric.message.receive"
	OpMessageAcknowledge = "fabric.message.acknowledge"
	OpMessagePublish     = "fabric.message.publish"
	OpMessageQueueStatus = "fabric.message.queue_status"
	toolShorthandPrefix  = "fabric.tool."
)

// Config holds the pipeline's runtime policy knobs.
type Config struct {
	// FallbackEnabled opts into the fallback-chain policy for fabric.call:
	// on a retryable upstream failure, retry against the next
	// capability-ranked agent before giving up (§9 Open Questions).
	FallbackEnabled bool
	// RateLimit is the per-principal sustained request rate; <= 0 disables
	// rate limiting.
	RateLimit rate.Limit
	RateBurst int
	Version   string
}

// Pipeline wires the gateway's core subsystems into one dispatcher.
type Pipeline struct {
	Registry registry.Registry
	Adapters *adapter.Factory
	Tools    *toolhost.Host
	Bus      bus.Bus
	Auth     *authn.Chain
	Config   Config

	logger    zerolog.Logger
	limiters  *limiterSet
	startedAt time.Time
}

// New builds a Pipeline. startedAt is recorded immediately for the
// fabric.health uptime_seconds field.
func New(reg registry.Registry, adapters *adapter.Factory, tools *toolhost.Host, b bus.Bus, auth *authn.Chain, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Registry:  reg,
		Adapters:  adapters,
		Tools:     tools,
		Bus:       b,
		Auth:      auth,
		Config:    cfg,
		logger:    logger,
		limiters:  newLimiterSet(cfg.RateLimit, cfg.RateBurst),
		startedAt: time.Now(),
	}
}

// trustTierFor maps an authenticated principal's credential mode onto the
// tool host's trust tiers (§4.5 safety gating). The local front's NoneProvider
// authenticates as AuthModeNone and is granted the highest trust tier since
// its caller is co-located and out-of-band trusted.
func trustTierFor(actx fabric.AuthContext) fabric.TrustTier {
	switch actx.Mode {
	case fabric.AuthModeNone:
		return fabric.TrustLocal
	case fabric.AuthModePSK, fabric.AuthModePassport, fabric.AuthModeMTLS:
		return fabric.TrustOrg
	default:
		return fabric.TrustPublic
	}
}

// Dispatch runs one request through the full pipeline. Exactly one of the
// two return values is non-nil: a *fabric.Response for every operation
// except a streaming fabric.call, which instead returns an event channel
// whose terminal element always has Kind == fabric.EventFinal.
func (p *Pipeline) Dispatch(ctx context.Context, req fabric.Request, cred authn.Credential, callerTraceID string) (*fabric.Response, <-chan fabric.Event) {
	tc := trace.New(callerTraceID)

	actx, err := p.Auth.Authenticate(ctx, cred)
	if err != nil {
		return fabric.Failure(tc, fabric.AsFabricError(err)), nil
	}

	if !p.limiters.allow(actx.PrincipalID) {
		return fabric.Failure(tc, fabric.NewError(fabric.RateLimited, "rate limit exceeded")), nil
	}

	tier := trustTierFor(*actx)
	args := req.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	switch req.Name {
	case OpHealth:
		return p.handleHealth(ctx, tc), nil
	case OpAgentList:
		return p.handleAgentList(ctx, tc, args), nil
	case OpAgentDescribe:
		return p.handleAgentDescribe(ctx, tc, args), nil
	case OpRoutePreview:
		return p.handleRoutePreview(ctx, tc, args), nil
	case OpCall:
		return p.handleCall(ctx, tc, args, *actx)
	case OpToolList:
		return p.handleToolList(tc, args), nil
	case OpToolDescribe:
		return p.handleToolDescribe(tc, args), nil
	case OpToolCall:
		return p.handleToolCall(ctx, tc, args, tier), nil
	case OpMessageSend:
		return p.handleMessageSend(ctx, tc, args), nil
	case OpMessageReceive:
		return p.handleMessageReceive(ctx, tc, args), nil
	case OpMessageAcknowledge:
		return p.handleMessageAcknowledge(ctx, tc, args), nil
	case OpMessagePublish:
		return p.handleMessagePublish(ctx, tc, args), nil
	case OpMessageQueueStatus:
		return p.handleMessageQueueStatus(ctx, tc, args), nil
	}

	if strings.HasPrefix(req.Name, toolShorthandPrefix) {
		return p.handleToolShorthand(ctx, tc, req.Name, args, tier), nil
	}

	return fabric.Failure(tc, fabric.NewError(fabric.BadInput, "unknown operation: "+req.Name)), nil
}
