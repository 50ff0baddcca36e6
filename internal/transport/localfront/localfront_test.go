package localfront

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
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

func testFront(t *testing.T) *Front {
	t.Helper()
	reg := registry.NewMemoryRegistry("")
	factory := adapter.NewFactory(http.DefaultClient)
	tools := toolhost.NewHost()
	b := bus.NewMemoryBus()
	auth := authn.NewChain(authn.NoneProvider{})
	p := pipeline.New(reg, factory, tools, b, auth, pipeline.Config{Version: "test"}, zerolog.Nop())
	return New(p, zerolog.Nop())
}

func TestServeRoundTripsHealth(t *testing.T) {
	f := testFront(t)
	in := strings.NewReader(`{"name":"fabric.health"}` + "\n")
	var out bytes.Buffer

	err := f.Serve(context.Background(), in, &out)
	require.NoError(t, err)

	var resp fabric.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.OK)
}

func TestServeReportsMalformedLine(t *testing.T) {
	f := testFront(t)
	in := strings.NewReader("{not json}\n")
	var out bytes.Buffer

	err := f.Serve(context.Background(), in, &out)
	require.NoError(t, err)

	var resp fabric.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, fabric.BadInput, resp.Error.Code)
}

func TestServeHandlesMultipleLines(t *testing.T) {
	f := testFront(t)
	in := strings.NewReader(`{"name":"fabric.health"}` + "\n" + `{"name":"fabric.bogus"}` + "\n")
	var out bytes.Buffer

	err := f.Serve(context.Background(), in, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first, second fabric.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.True(t, first.OK)
	assert.False(t, second.OK)
	assert.Equal(t, fabric.BadInput, second.Error.Code)
}
