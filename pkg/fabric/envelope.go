package fabric

import "time"

// TraceContext is stamped on every inbound call and carried on every
// response, success or failure.
type TraceContext struct {
	TraceID      string  `json:"trace_id"`
	SpanID       string  `json:"span_id"`
	ParentSpanID *string `json:"parent_span_id"`
}

// AuthMode identifies which credential scheme produced an AuthContext.
type AuthMode string

const (
	AuthModePSK      AuthMode = "psk"
	AuthModePassport AuthMode = "passport"
	AuthModeMTLS     AuthMode = "mtls"
	AuthModeNone     AuthMode = "none"
)

// AuthContext is the result of successful credential verification.
type AuthContext struct {
	Mode            AuthMode `json:"mode"`
	PrincipalID     string   `json:"principal_id"`
	AgentPassportID string   `json:"agent_passport_id,omitempty"`
}

// TargetKind names what a CanonicalEnvelope's target resolves to.
type TargetKind string

const (
	TargetAgent   TargetKind = "agent"
	TargetTool    TargetKind = "tool"
	TargetMessage TargetKind = "message"
)

// Target names the resolved destination of a call.
type Target struct {
	Kind       TargetKind `json:"kind"`
	ID         string     `json:"id"`
	Capability string     `json:"capability,omitempty"`
	TimeoutMs  int        `json:"timeout_ms,omitempty"`
}

// Input is the normalized payload carried by a CanonicalEnvelope.
type Input struct {
	Task        string                 `json:"task,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Attachments []string               `json:"attachments,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ResponseShape declares how the caller wants the result delivered.
type ResponseShape struct {
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

// CanonicalEnvelope is the normalized in-process form of every dispatched
// call, built by the Request Pipeline once a request has been classified
// and validated.
type CanonicalEnvelope struct {
	Trace    TraceContext  `json:"trace"`
	Auth     AuthContext   `json:"auth"`
	Target   Target        `json:"target"`
	Input    Input         `json:"input"`
	Response ResponseShape `json:"response"`
}

// Request is the raw wire envelope accepted by every transport front.
type Request struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Response is the wire envelope returned for a non-streaming call.
type Response struct {
	OK     bool         `json:"ok"`
	Trace  TraceContext `json:"trace"`
	Result interface{}  `json:"result"`
	Error  *Error       `json:"error,omitempty"`
}

// Success builds a success Response.
func Success(trace TraceContext, result interface{}) *Response {
	return &Response{OK: true, Trace: trace, Result: result}
}

// Failure builds a failure Response.
func Failure(trace TraceContext, err *Error) *Response {
	return &Response{OK: false, Trace: trace, Error: err}
}

// EventKind names a streamed event's role within a call_stream sequence.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventToken    EventKind = "token"
	EventToolCall EventKind = "tool_call"
	EventProgress EventKind = "progress"
	EventFinal    EventKind = "final"
)

// Event is one element of a streamed call's lazy event sequence. The
// terminal element in every sequence MUST have Kind == EventFinal.
type Event struct {
	Kind      EventKind    `json:"kind"`
	Trace     TraceContext `json:"trace"`
	Data      interface{}  `json:"data,omitempty"`
	OK        *bool        `json:"ok,omitempty"`
	Result    interface{}  `json:"result,omitempty"`
	Error     *Error       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// FinalSuccess builds a terminal success event.
func FinalSuccess(trace TraceContext, result interface{}) Event {
	ok := true
	return Event{Kind: EventFinal, Trace: trace, OK: &ok, Result: result, Timestamp: time.Now()}
}

// FinalFailure builds a terminal failure event.
func FinalFailure(trace TraceContext, err *Error) Event {
	ok := false
	return Event{Kind: EventFinal, Trace: trace, OK: &ok, Error: err, Timestamp: time.Now()}
}
