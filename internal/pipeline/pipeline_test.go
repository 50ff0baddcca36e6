package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/internal/adapter"
	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/bus"
	"github.com/fabricgw/gateway/internal/registry"
	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return testPipelineWithClient(t, http.DefaultClient)
}

func testPipelineWithClient(t *testing.T, client adapter.HTTPDoer) *Pipeline {
	t.Helper()
	reg := registry.NewMemoryRegistry("")
	factory := adapter.NewFactory(client)
	tools := toolhost.NewHost()
	b := bus.NewMemoryBus()
	auth := authn.NewChain(authn.NewPSKProvider("secret"))
	return New(reg, factory, tools, b, auth, Config{Version: "test"}, zerolog.Nop())
}

// fakeDoer responds to every request with a fixed body, letting tests drive
// adapter behavior without a real agent endpoint.
type fakeDoer struct {
	status int
	body   string
}

func (f fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
		Header:     make(http.Header),
	}, nil
}

func authedCred() authn.Credential {
	return authn.Credential{Scheme: "Bearer", Value: "secret"}
}

func TestHealthOnEmptyGateway(t *testing.T) {
	p := testPipeline(t)
	resp, stream := p.Dispatch(context.Background(), fabric.Request{Name: OpHealth}, authedCred(), "")
	require.Nil(t, stream)
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.Trace.TraceID)

	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "ok", result["registry"])
	runtimes := result["runtimes"].(map[string]int)
	assert.Equal(t, 0, runtimes["online"])
	assert.Equal(t, 0, runtimes["degraded"])
	assert.Equal(t, 0, runtimes["offline"])
}

func TestCallUnknownAgent(t *testing.T) {
	p := testPipeline(t)
	req := fabric.Request{Name: OpCall, Arguments: map[string]interface{}{
		"agent_id": "nobody", "capability": "reason", "task": "hi",
	}}
	resp, stream := p.Dispatch(context.Background(), req, authedCred(), "")
	require.Nil(t, stream)
	require.False(t, resp.OK)
	assert.Equal(t, fabric.AgentNotFound, resp.Error.Code)
}

func TestCallCapabilityMismatch(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()
	require.NoError(t, p.Registry.Register(ctx, fabric.AgentManifest{
		AgentID:     "agent-a",
		DisplayName: "Agent A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://example.invalid"},
		Capabilities: []fabric.CapabilityDescriptor{
			{Name: "reason"},
		},
		Status: fabric.StatusOnline,
	}))

	req := fabric.Request{Name: OpCall, Arguments: map[string]interface{}{
		"agent_id": "agent-a", "capability": "summarize", "task": "hi",
	}}
	resp, stream := p.Dispatch(ctx, req, authedCred(), "")
	require.Nil(t, stream)
	require.False(t, resp.OK)
	assert.Equal(t, fabric.CapabilityNotFound, resp.Error.Code)
}

func TestMessageSendReceiveAckRoundTrip(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	sendReq := fabric.Request{Name: OpMessageSend, Arguments: map[string]interface{}{
		"to_agent": "agent-b", "from_agent": "agent-a", "message_type": "task",
		"payload": map[string]interface{}{"k": float64(1)},
	}}
	sendResp, _ := p.Dispatch(ctx, sendReq, authedCred(), "")
	require.True(t, sendResp.OK)
	sendResult := sendResp.Result.(map[string]interface{})
	msgID := sendResult["message_id"].(string)
	require.NotEmpty(t, msgID)

	recvReq := fabric.Request{Name: OpMessageReceive, Arguments: map[string]interface{}{
		"agent_id": "agent-b", "count": float64(1), "block_ms": float64(1000),
	}}
	recvResp, _ := p.Dispatch(ctx, recvReq, authedCred(), "")
	require.True(t, recvResp.OK)
	recvResult := recvResp.Result.(map[string]interface{})
	assert.Equal(t, 1, recvResult["count"])
	msgs := recvResult["messages"].([]fabric.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(1), msgs[0].Payload["k"])
	require.NotEmpty(t, msgs[0].StreamEntryID)

	ackReq := fabric.Request{Name: OpMessageAcknowledge, Arguments: map[string]interface{}{
		"agent_id": "agent-b", "message_ids": []interface{}{msgs[0].StreamEntryID},
	}}
	ackResp, _ := p.Dispatch(ctx, ackReq, authedCred(), "")
	require.True(t, ackResp.OK)
	ackResult := ackResp.Result.(map[string]interface{})
	acked := ackResult["acknowledged"].([]bus.AckResult)
	require.Len(t, acked, 1)
	assert.True(t, acked[0].Acked)

	recvReq2 := fabric.Request{Name: OpMessageReceive, Arguments: map[string]interface{}{
		"agent_id": "agent-b", "count": float64(1), "block_ms": float64(100),
	}}
	recvResp2, _ := p.Dispatch(ctx, recvReq2, authedCred(), "")
	require.True(t, recvResp2.OK)
	recvResult2 := recvResp2.Result.(map[string]interface{})
	assert.Equal(t, 0, recvResult2["count"])
}

func TestAuthRejection(t *testing.T) {
	p := testPipeline(t)
	resp, stream := p.Dispatch(context.Background(), fabric.Request{Name: OpHealth}, authn.Credential{Scheme: "Bearer", Value: "wrong"}, "")
	require.Nil(t, stream)
	require.False(t, resp.OK)
	assert.Equal(t, fabric.AuthDenied, resp.Error.Code)
	assert.NotEmpty(t, resp.Trace.TraceID)
}

func TestCallStreamEmitsTerminalFinalEvent(t *testing.T) {
	p := testPipelineWithClient(t, fakeDoer{status: 200, body: `{"ok":true,"result":{"answer":42}}`})
	ctx := context.Background()
	require.NoError(t, p.Registry.Register(ctx, fabric.AgentManifest{
		AgentID:     "agent-a",
		DisplayName: "Agent A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://example.invalid"},
		Capabilities: []fabric.CapabilityDescriptor{
			{Name: "reason", Streaming: true},
		},
		Status: fabric.StatusOnline,
	}))

	req := fabric.Request{Name: OpCall, Arguments: map[string]interface{}{
		"agent_id": "agent-a", "capability": "reason", "task": "hi", "stream": true,
	}}
	resp, stream := p.Dispatch(ctx, req, authedCred(), "")
	require.Nil(t, resp)
	require.NotNil(t, stream)

	var events []fabric.Event
	for ev := range stream {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, fabric.EventFinal, last.Kind)
	require.NotNil(t, last.OK)
	assert.True(t, *last.OK)
}

func TestUnknownOperation(t *testing.T) {
	p := testPipeline(t)
	resp, stream := p.Dispatch(context.Background(), fabric.Request{Name: "fabric.bogus"}, authedCred(), "")
	require.Nil(t, stream)
	require.False(t, resp.OK)
	assert.Equal(t, fabric.BadInput, resp.Error.Code)
}

// TestCallOnNonStreamingCapabilityDegradesToSync covers §4.7: requesting
// stream:true against a capability that isn't declared streaming returns a
// plain Response rather than an event channel.
func TestCallOnNonStreamingCapabilityDegradesToSync(t *testing.T) {
	p := testPipelineWithClient(t, fakeDoer{status: 200, body: `{"ok":true,"result":{"answer":42}}`})
	ctx := context.Background()
	require.NoError(t, p.Registry.Register(ctx, fabric.AgentManifest{
		AgentID:     "agent-a",
		DisplayName: "Agent A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://example.invalid"},
		Capabilities: []fabric.CapabilityDescriptor{
			{Name: "reason", Streaming: false},
		},
		Status: fabric.StatusOnline,
	}))

	req := fabric.Request{Name: OpCall, Arguments: map[string]interface{}{
		"agent_id": "agent-a", "capability": "reason", "task": "hi", "stream": true,
	}}
	resp, stream := p.Dispatch(ctx, req, authedCred(), "")
	require.Nil(t, stream)
	require.NotNil(t, resp)
	assert.True(t, resp.OK)
}

// TestCallAgainstDurableRegistryWritesAuditRow covers the durable variant's
// call_logs audit surface (Part B decision #4): fabric.call against a
// SQLiteRegistry must leave a row behind.
func TestCallAgainstDurableRegistryWritesAuditRow(t *testing.T) {
	reg, err := registry.NewSQLiteRegistry(":memory:")
	require.NoError(t, err)
	defer reg.Close()

	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, fabric.AgentManifest{
		AgentID:     "agent-a",
		DisplayName: "Agent A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://example.invalid"},
		Capabilities: []fabric.CapabilityDescriptor{
			{Name: "reason", Streaming: false},
		},
		Status: fabric.StatusOnline,
	}))

	factory := adapter.NewFactory(fakeDoer{status: 200, body: `{"ok":true,"result":{"answer":42}}`})
	tools := toolhost.NewHost()
	b := bus.NewMemoryBus()
	auth := authn.NewChain(authn.NewPSKProvider("secret"))
	p := New(reg, factory, tools, b, auth, Config{Version: "test"}, zerolog.Nop())

	req := fabric.Request{Name: OpCall, Arguments: map[string]interface{}{
		"agent_id": "agent-a", "capability": "reason", "task": "hi",
	}}
	resp, stream := p.Dispatch(ctx, req, authedCred(), "")
	require.Nil(t, stream)
	require.True(t, resp.OK)

	var count int
	row := reg.DB().QueryRowContext(ctx, `SELECT count(*) FROM call_logs WHERE target_id = ?`, "agent-a")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}
