// Package httpfront is the HTTP transport front (C8): a chi router exposing
// POST /mcp/call as the canonical entry point, plus thin REST convenience
// wrappers that synthesize the equivalent fabric.* call, grounded on the
// teacher's internal/api/router.go middleware chain and route layout.
package httpfront

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fabricgw/gateway/internal/pipeline"
)

// Options configures the HTTP front.
type Options struct {
	CORSOrigins []string
	Version     string
}

// NewRouter builds the full chi router: standard chi middleware, then the
// gateway's own request logger, then CORS, then routes. Authentication is
// not middleware here — it happens inside pipeline.Dispatch per the
// canonical envelope's own auth stage, so a rejected credential gets a
// structured AUTH_DENIED envelope from the pipeline rather than a bare 401
// from middleware. A malformed body never reaches the pipeline: the handler
// answers it directly with a BAD_INPUT envelope.
func NewRouter(p *pipeline.Pipeline, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(requestLogger(logger))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	isWildcard := len(origins) == 1 && origins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	h := &handler{pipeline: p, version: opts.Version}

	r.Get("/health", h.liveness)
	r.Post("/mcp/call", h.call)
	r.Get("/mcp/list_agents", h.listAgents)
	r.Post("/mcp/register_agent", h.registerAgent)
	r.Get("/mcp/agent/{id}", h.describeAgent)
	r.Get("/mcp/list_tools", h.listTools)
	r.Get("/mcp/list_topics", h.listTopics)
	r.Get("/mcp/metrics", h.metrics)

	return r
}

// Serve runs an http.Server bound to addr until ctx is canceled, then drains
// in-flight requests for up to 15s before returning (teacher's graceful
// shutdown shape in cmd/server/main.go).
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("shutting down http front")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
