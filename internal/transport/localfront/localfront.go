// Package localfront is the local JSON transport front (C8): line-delimited
// {name, arguments} requests over stdio, answered with a single JSON
// response per line. No authentication is performed — the caller is
// co-located and out-of-band trusted — so every request authenticates via
// authn.NoneProvider.
package localfront

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/pipeline"
	"github.com/fabricgw/gateway/internal/trace"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// Front reads one {name, arguments} JSON object per line from in and writes
// one response JSON object per line to out, until in is exhausted or ctx is
// canceled. Streaming calls are flattened to their final event, since a
// line-delimited transport has no framing for partial events.
type Front struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// New builds a local front bound to p.
func New(p *pipeline.Pipeline, logger zerolog.Logger) *Front {
	return &Front{pipeline: p, logger: logger}
}

// Serve runs the read-dispatch-write loop until ctx is canceled or in
// reaches EOF.
func (f *Front) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req fabric.Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = encoder.Encode(fabric.Failure(trace.New(""), fabric.NewError(fabric.BadInput, "malformed request line")))
			continue
		}

		resp, stream := f.pipeline.Dispatch(ctx, req, authn.Credential{}, "")
		if stream != nil {
			resp = f.drainToFinal(stream)
		}
		if err := encoder.Encode(resp); err != nil {
			f.logger.Error().Err(err).Msg("failed to write local front response")
			return err
		}
	}
	return scanner.Err()
}

// drainToFinal reads a streamed call to completion and converts its
// terminal event into an equivalent non-streaming Response.
func (f *Front) drainToFinal(events <-chan fabric.Event) *fabric.Response {
	var final fabric.Event
	for ev := range events {
		final = ev
	}
	if final.OK != nil && *final.OK {
		return fabric.Success(final.Trace, final.Result)
	}
	if final.Error != nil {
		return fabric.Failure(final.Trace, final.Error)
	}
	return fabric.Failure(final.Trace, fabric.NewError(fabric.InternalError, "stream produced no terminal event"))
}
