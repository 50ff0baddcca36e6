package httpfront

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/internal/adapter"
	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/bus"
	"github.com/fabricgw/gateway/internal/pipeline"
	"github.com/fabricgw/gateway/internal/registry"
	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.NewMemoryRegistry("")
	factory := adapter.NewFactory(http.DefaultClient)
	tools := toolhost.NewHost()
	b := bus.NewMemoryBus()
	auth := authn.NewChain(authn.NewPSKProvider("secret"))
	p := pipeline.New(reg, factory, tools, b, auth, pipeline.Config{Version: "test"}, zerolog.Nop())
	return NewRouter(p, zerolog.Nop(), Options{Version: "test"})
}

func TestLivenessEndpoint(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCallWithoutCredentialReturns401AuthDenied(t *testing.T) {
	router := testRouter(t)
	payload, _ := json.Marshal(fabric.Request{Name: pipeline.OpHealth})
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp fabric.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.OK)
	assert.Equal(t, fabric.AuthDenied, resp.Error.Code)
}

func TestCallWithValidPSKSucceeds(t *testing.T) {
	router := testRouter(t)
	payload, _ := json.Marshal(fabric.Request{Name: pipeline.OpHealth})
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp fabric.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
}

func TestMalformedBodyReturns400(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTopicsEmpty(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp/list_topics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["topics"])
}
