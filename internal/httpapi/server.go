// Package httpapi exposes the Query Orchestrator over HTTP: a single
// POST /v1/query endpoint that accepts a tenant-scoped SQL query and
// returns the federated result set or a typed wire error.
//
// Grounded on the teacher's internal/ui/server.go: chi router, the same
// middleware stack (Logger/Recoverer/Compress), errgroup-driven graceful
// shutdown bound to the server's context.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/omniquery/internal/apperr"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/orchestrator"
)

// Server is the HTTP front end for the orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	port   int
	logger *slog.Logger
}

// Config configures a Server.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Port         int
	Logger       *slog.Logger
}

// NewServer builds a Server. cfg.Logger defaults to a discard handler.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{orch: cfg.Orchestrator, port: cfg.Port, logger: logger}
}

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting query server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	r.Post("/v1/query", s.handleQuery)
	r.Get("/healthz", s.handleHealth)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("query server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down query server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// queryRequest is the POST /v1/query request body.
type queryRequest struct {
	TenantID       string         `json:"tenant_id"`
	SQL            string         `json:"sql"`
	MaxStalenessMS int64          `json:"max_staleness_ms"`
	Principal      principalInput `json:"principal"`
}

type principalInput struct {
	UserID     string         `json:"user_id"`
	Attributes map[string]any `json:"attributes"`
}

// queryResponse is the successful POST /v1/query response shape.
type queryResponse struct {
	Columns         []string                  `json:"columns"`
	Rows            [][]any                   `json:"rows"`
	FreshnessMS     int64                     `json:"freshness_ms"`
	FromCache       bool                      `json:"from_cache"`
	RateLimitStatus map[string]rateLimitState `json:"rate_limit_status"`
	Timing          timingResponse            `json:"timing"`
	Warnings        []string                  `json:"warnings"`
	TraceID         string                    `json:"trace_id"`
}

type rateLimitState struct {
	Tokens   float64 `json:"tokens"`
	Capacity float64 `json:"capacity"`
}

type timingResponse struct {
	TotalMS    int64 `json:"total_ms"`
	PlanningMS int64 `json:"planning_ms"`
	FetchMS    int64 `json:"fetch_ms"`
	DuckDBMS   int64 `json:"duckdb_ms"`
}

// errorResponse is the wire shape for a failed query, per the closed set
// of apperr.Code values.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code         apperr.Code `json:"code"`
	Message      string      `json:"message"`
	RetryAfterMS *int64      `json:"retry_after_ms,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.CodePlanFailed, "malformed request body: %v", err))
		return
	}
	if req.TenantID == "" || req.SQL == "" {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.CodePlanFailed, "tenant_id and sql are required"))
		return
	}

	principal := model.Principal{
		TenantID:   req.TenantID,
		UserID:     req.Principal.UserID,
		Attributes: req.Principal.Attributes,
	}

	resp, err := s.orch.Execute(r.Context(), orchestrator.Request{
		TenantID:       req.TenantID,
		Principal:      principal,
		SQL:            req.SQL,
		MaxStalenessMS: req.MaxStalenessMS,
		TraceID:        middleware.GetReqID(r.Context()),
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}

	rateStatus := make(map[string]rateLimitState, len(resp.RateLimitStatus))
	for source, st := range resp.RateLimitStatus {
		rateStatus[source] = rateLimitState{Tokens: st.Tokens, Capacity: st.Capacity}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:         resp.Columns,
		Rows:            resp.Rows,
		FreshnessMS:     resp.FreshnessMS,
		FromCache:       resp.FromCache,
		RateLimitStatus: rateStatus,
		Timing: timingResponse{
			TotalMS:    resp.Timing.TotalMS,
			PlanningMS: resp.Timing.PlanningMS,
			FetchMS:    resp.Timing.FetchMS,
			DuckDBMS:   resp.Timing.DuckDBMS,
		},
		Warnings: resp.Warnings,
		TraceID:  resp.TraceID,
	})
}

func writeAppErr(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.New(apperr.CodeInternal, "%v", err)
	}
	status := http.StatusInternalServerError
	switch ae.Code {
	case apperr.CodePlanFailed:
		status = http.StatusBadRequest
	case apperr.CodeEntitlementDenied:
		status = http.StatusForbidden
	case apperr.CodeSourceTimeout:
		status = http.StatusGatewayTimeout
	case apperr.CodeRateLimitExhausted:
		status = http.StatusTooManyRequests
	case apperr.CodeConnectorError:
		status = http.StatusBadGateway
	}
	writeError(w, status, ae)
}

func writeError(w http.ResponseWriter, status int, ae *apperr.Error) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:         ae.Code,
		Message:      ae.Message,
		RetryAfterMS: ae.RetryAfterMS,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
