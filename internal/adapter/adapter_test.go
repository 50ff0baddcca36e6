package adapter

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

type fakeDoer struct {
	status int
	body   string
	err    error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}

func nativeManifest() fabric.AgentManifest {
	return fabric.AgentManifest{
		AgentID:     "a1",
		DisplayName: "A1",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://agent.local/call"},
		Capabilities: []fabric.CapabilityDescriptor{
			{Name: "reason", MaxTimeoutMs: 5000},
		},
	}
}

func envelopeFor(m fabric.AgentManifest, capability string) fabric.CanonicalEnvelope {
	return fabric.CanonicalEnvelope{
		Trace:  fabric.TraceContext{TraceID: "t1", SpanID: "s1"},
		Target: fabric.Target{Kind: fabric.TargetAgent, ID: m.AgentID, Capability: capability},
		Input:  fabric.Input{Task: "do it"},
	}
}

func TestNativeAdapterCallSuccess(t *testing.T) {
	m := nativeManifest()
	a := NewNativeAdapter(m, &fakeDoer{status: 200, body: `{"ok":true,"result":{"answer":42}}`})
	resp, err := a.Call(context.Background(), envelopeFor(m, "reason"))
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestNativeAdapterUnknownCapability(t *testing.T) {
	m := nativeManifest()
	a := NewNativeAdapter(m, &fakeDoer{})
	_, err := a.Call(context.Background(), envelopeFor(m, "nope"))
	require.Error(t, err)
	ferr := err.(*fabric.Error)
	assert.Equal(t, fabric.CapabilityNotFound, ferr.Code)
}

func TestNativeAdapterUpstreamFailure(t *testing.T) {
	m := nativeManifest()
	a := NewNativeAdapter(m, &fakeDoer{status: 200, body: `{"ok":false,"error":{"code":"TOOL_EXECUTION_ERROR","message":"boom"}}`})
	resp, err := a.Call(context.Background(), envelopeFor(m, "reason"))
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, fabric.ToolExecutionError, resp.Error.Code)
}
