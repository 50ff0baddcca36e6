package httpfront

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/pipeline"
	"github.com/fabricgw/gateway/internal/trace"
	"github.com/fabricgw/gateway/pkg/fabric"
)

type handler struct {
	pipeline *pipeline.Pipeline
	version  string
}

func (h *handler) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "fabric-gateway", "version": h.version})
}

// call is the canonical entry point: POST /mcp/call with {name, arguments}.
func (h *handler) call(w http.ResponseWriter, r *http.Request) {
	var req fabric.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fabric.Failure(trace.New(r.Header.Get("X-Trace-Id")), fabric.NewError(fabric.BadInput, "malformed request body")))
		return
	}
	h.dispatch(w, r, req)
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request, req fabric.Request) {
	scheme, value := extractCredential(r)
	cred := authn.Credential{Scheme: scheme, Value: value}
	callerTraceID := r.Header.Get("X-Trace-Id")

	resp, stream := h.pipeline.Dispatch(r.Context(), req, cred, callerTraceID)
	if stream != nil {
		streamSSE(w, stream)
		return
	}
	writeJSON(w, statusForResponse(resp), resp)
}

func (h *handler) listAgents(w http.ResponseWriter, r *http.Request) {
	args := map[string]interface{}{}
	filter := map[string]interface{}{}
	if c := r.URL.Query().Get("capability"); c != "" {
		filter["capability"] = c
	}
	if t := r.URL.Query().Get("tag"); t != "" {
		filter["tag"] = t
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter["status"] = s
	}
	if len(filter) > 0 {
		args["filter"] = filter
	}
	h.dispatch(w, r, fabric.Request{Name: pipeline.OpAgentList, Arguments: args})
}

func (h *handler) registerAgent(w http.ResponseWriter, r *http.Request) {
	tc := trace.New(r.Header.Get("X-Trace-Id"))
	var manifest fabric.AgentManifest
	if err := json.NewDecoder(r.Body).Decode(&manifest); err != nil {
		writeJSON(w, http.StatusBadRequest, fabric.Failure(tc, fabric.NewError(fabric.BadInput, "malformed manifest")))
		return
	}
	scheme, value := extractCredential(r)
	if _, err := h.pipeline.Auth.Authenticate(r.Context(), authn.Credential{Scheme: scheme, Value: value}); err != nil {
		writeJSON(w, http.StatusUnauthorized, fabric.Failure(tc, fabric.AsFabricError(err)))
		return
	}
	if err := h.pipeline.Registry.Register(r.Context(), manifest); err != nil {
		writeJSON(w, http.StatusInternalServerError, fabric.Failure(tc, fabric.AsFabricError(err)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "agent_id": manifest.AgentID})
}

func (h *handler) describeAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	h.dispatch(w, r, fabric.Request{Name: pipeline.OpAgentDescribe, Arguments: map[string]interface{}{"agent_id": agentID}})
}

func (h *handler) listTools(w http.ResponseWriter, r *http.Request) {
	args := map[string]interface{}{}
	if c := r.URL.Query().Get("category"); c != "" {
		args["category"] = c
	}
	if p := r.URL.Query().Get("provider"); p != "" {
		args["provider"] = p
	}
	h.dispatch(w, r, fabric.Request{Name: pipeline.OpToolList, Arguments: args})
}

// topicLister is satisfied by the in-memory bus, which tracks subscriber
// presence directly.
type topicLister interface{ Topics() []string }

// topicListerCtx is satisfied by the Redis bus, whose topic enumeration
// requires a round trip (PUBSUB CHANNELS).
type topicListerCtx interface {
	TopicsCtx(ctx context.Context) ([]string, error)
}

func (h *handler) listTopics(w http.ResponseWriter, r *http.Request) {
	var topics []string
	switch lister := h.pipeline.Bus.(type) {
	case topicLister:
		topics = lister.Topics()
	case topicListerCtx:
		if t, err := lister.TopicsCtx(r.Context()); err == nil {
			topics = t
		}
	}
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, fabric.Request{Name: pipeline.OpHealth})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusForResponse maps a canonical error code onto the matching HTTP
// status, per §6's wire contract and the auth-rejection scenario (§8.6).
func statusForResponse(resp *fabric.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case fabric.AuthDenied, fabric.AuthInvalid, fabric.AuthExpired:
		return http.StatusUnauthorized
	case fabric.BadInput:
		return http.StatusBadRequest
	case fabric.AgentNotFound, fabric.ToolNotFound, fabric.CapabilityNotFound:
		return http.StatusNotFound
	case fabric.AgentOffline, fabric.BusUnavailable:
		return http.StatusServiceUnavailable
	case fabric.Timeout:
		return http.StatusGatewayTimeout
	case fabric.RateLimited:
		return http.StatusTooManyRequests
	case fabric.UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// streamSSE relays a fabric.Event channel as text/event-stream framing: one
// `data: <json>\n\n` per event, flushing after each (§6 HTTP front).
func streamSSE(w http.ResponseWriter, events <-chan fabric.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(data)
		_, _ = w.Write([]byte("\n\n"))
		if ok {
			flusher.Flush()
		}
	}
}
