// Package adapter translates a canonical envelope into an agent-specific
// protocol and back (C4 of the gateway core). Three variants — native,
// zero-style, custom-HTTP — implement one contract.
package adapter

import (
	"context"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// Adapter is the contract every runtime variant implements.
type Adapter interface {
	Call(ctx context.Context, env fabric.CanonicalEnvelope) (*fabric.Response, error)
	// CallStream returns a channel of events; the terminal element always has
	// Kind == fabric.EventFinal. The channel is closed after the terminal
	// event or when ctx is canceled.
	CallStream(ctx context.Context, env fabric.CanonicalEnvelope) (<-chan fabric.Event, error)
	ProbeHealth(ctx context.Context) error
	Describe() fabric.AgentManifest
}

// StreamingCapable is an OPTIONAL interface an Adapter may implement to
// signal genuine streaming support (as opposed to CallStream's default
// single-synthetic-event degradation). Checked at runtime via type
// assertion, mirroring the teacher's StreamingProviderDriver pattern.
type StreamingCapable interface {
	Adapter
	SupportsStreaming() bool
}

// Factory builds the correct Adapter variant for a manifest's runtime_kind.
type Factory struct {
	httpClient HTTPDoer
}

// NewFactory builds an adapter Factory sharing one HTTP client across
// adapter instances.
func NewFactory(client HTTPDoer) *Factory {
	return &Factory{httpClient: client}
}

// Build constructs the Adapter variant named by manifest.RuntimeKind.
func (f *Factory) Build(manifest fabric.AgentManifest) (Adapter, error) {
	switch manifest.RuntimeKind {
	case fabric.RuntimeNative:
		return NewNativeAdapter(manifest, f.httpClient), nil
	case fabric.RuntimeZeroStyle:
		return NewZeroStyleAdapter(manifest, f.httpClient), nil
	case fabric.RuntimeCustomHTTP:
		return NewCustomHTTPAdapter(manifest, f.httpClient), nil
	default:
		return nil, fabric.NewError(fabric.InternalError, "unknown runtime_kind: "+string(manifest.RuntimeKind))
	}
}

// synthesizeStream wraps a sync Call result into a single-event stream; the
// CallStream of adapters without genuine streaming support uses it.
// trace is passed separately since resp is nil on the error path.
func synthesizeStream(trace fabric.TraceContext, resp *fabric.Response, err error) <-chan fabric.Event {
	ch := make(chan fabric.Event, 1)
	if err != nil {
		ch <- fabric.FinalFailure(trace, fabric.AsFabricError(err))
	} else if resp.OK {
		ch <- fabric.FinalSuccess(trace, resp.Result)
	} else {
		ch <- fabric.FinalFailure(trace, resp.Error)
	}
	close(ch)
	return ch
}
