package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"PerpCore/internal/ingestion"
	"PerpCore/internal/observability"
	"PerpCore/internal/persistence"
	"PerpCore/internal/projection"
	"PerpCore/internal/query"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON API mux.
// The HTTP side is served from a gRPC-Gateway runtime mux with hand-wired
// routes; service stubs generated from proto definitions can replace the
// HandlePath wiring without changing the route shapes.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

// ServerDeps holds all dependencies needed by the API services.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates a new gRPC server with health and reflection
// services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
		log:           observability.NewLogger("server"),
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking).
// HTTP/JSON is served for tooling, dashboards and curl.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerQueryRoutes(mux); err != nil {
		return fmt.Errorf("register query routes: %w", err)
	}
	if err := s.registerIngestRoutes(mux); err != nil {
		return fmt.Errorf("register ingest routes: %w", err)
	}
	if err := s.registerAdminRoutes(mux); err != nil {
		return fmt.Errorf("register admin routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Query routes
// ============================================================================

func (s *GRPCServer) registerQueryRoutes(mux *runtime.ServeMux) error {
	qs := s.deps.QueryService

	err := mux.HandlePath("GET", "/v1/users/{user_id}/balances/{asset}",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			userID, err := uuid.Parse(pathParams["user_id"])
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid user_id: %v", err)
				return
			}

			bal, err := qs.GetBalance(r.Context(), userID, pathParams["asset"])
			if err != nil {
				writeError(w, http.StatusInternalServerError, "get balance: %v", err)
				return
			}
			writeJSON(w, bal)
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("GET", "/v1/markets/{market_id}/activity",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			activity, err := qs.GetMarketActivity(r.Context(), pathParams["market_id"])
			if err != nil {
				writeError(w, http.StatusInternalServerError, "get market activity: %v", err)
				return
			}
			writeJSON(w, activity)
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("GET", "/v1/users/{user_id}/activity",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			userID, err := uuid.Parse(pathParams["user_id"])
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid user_id: %v", err)
				return
			}

			limit := queryInt(r, "limit", 50, 500)
			entries := qs.GetRecentActivity(userID, limit)
			writeJSON(w, map[string]interface{}{
				"user_id": userID.String(),
				"entries": entries,
			})
		})
	if err != nil {
		return err
	}

	return mux.HandlePath("GET", "/v1/users/{user_id}/journals",
		func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			userID, err := uuid.Parse(pathParams["user_id"])
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid user_id: %v", err)
				return
			}

			limit := queryInt(r, "limit", 100, 500)

			var afterSeq *int64
			if v := r.URL.Query().Get("from_sequence"); v != "" {
				seq, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid from_sequence: %v", err)
					return
				}
				afterSeq = &seq
			}

			entries, err := qs.GetJournalHistory(r.Context(), userID, limit, afterSeq)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "get journals: %v", err)
				return
			}
			writeJSON(w, map[string]interface{}{
				"user_id":  userID.String(),
				"journals": entries,
			})
		})
}

// ============================================================================
// Ingest routes (admin-injected events)
// ============================================================================

type injectFundsRequest struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type injectPriceRequest struct {
	PriceKey      string `json:"price_key"`
	MinPrice      uint64 `json:"min_price"`
	MaxPrice      uint64 `json:"max_price"`
	PriceSequence int64  `json:"price_sequence"`
}

type injectFundingTickRequest struct {
	MarketID string `json:"market_id"`
	TickID   int64  `json:"tick_id"`
}

type injectParamUpdateRequest struct {
	MarketID             string `json:"market_id"`
	SkewFactor           uint64 `json:"skew_factor"`
	MaxFundingVelocity   uint64 `json:"max_funding_velocity"`
	RolloverFeePerSecond uint64 `json:"rollover_fee_per_second"`
	MakerFeeRate         uint64 `json:"maker_fee_rate"`
	TakerFeeRate         uint64 `json:"taker_fee_rate"`
	EffectiveSequence    int64  `json:"effective_sequence"`
}

func (s *GRPCServer) registerIngestRoutes(mux *runtime.ServeMux) error {
	svc := s.deps.IngestService

	err := mux.HandlePath("POST", "/v1/ingest/deposit",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			var req injectFundsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "decode request: %v", err)
				return
			}
			userID, err := uuid.Parse(req.UserID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid user_id: %v", err)
				return
			}
			if err := svc.InjectFundsDeposit(r.Context(), userID, req.Asset, req.Amount); err != nil {
				writeError(w, http.StatusBadRequest, "inject deposit: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"accepted": true})
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("POST", "/v1/ingest/withdraw",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			var req injectFundsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "decode request: %v", err)
				return
			}
			userID, err := uuid.Parse(req.UserID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid user_id: %v", err)
				return
			}
			if err := svc.InjectFundsWithdraw(r.Context(), userID, req.Asset, req.Amount); err != nil {
				writeError(w, http.StatusBadRequest, "inject withdraw: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"accepted": true})
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("POST", "/v1/ingest/price",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			var req injectPriceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "decode request: %v", err)
				return
			}
			if err := svc.InjectPrice(r.Context(), req.PriceKey, req.MinPrice, req.MaxPrice, req.PriceSequence); err != nil {
				writeError(w, http.StatusBadRequest, "inject price: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"accepted": true})
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("POST", "/v1/ingest/funding-tick",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			var req injectFundingTickRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "decode request: %v", err)
				return
			}
			if err := svc.InjectFundingTick(r.Context(), req.MarketID, req.TickID); err != nil {
				writeError(w, http.StatusBadRequest, "inject funding tick: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"accepted": true})
		})
	if err != nil {
		return err
	}

	return mux.HandlePath("POST", "/v1/ingest/params",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			var req injectParamUpdateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "decode request: %v", err)
				return
			}
			err := svc.InjectParamUpdate(r.Context(), req.MarketID,
				req.SkewFactor, req.MaxFundingVelocity, req.RolloverFeePerSecond,
				req.MakerFeeRate, req.TakerFeeRate, req.EffectiveSequence)
			if err != nil {
				writeError(w, http.StatusBadRequest, "inject param update: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"accepted": true})
		})
}

// ============================================================================
// Admin routes
// ============================================================================

func (s *GRPCServer) registerAdminRoutes(mux *runtime.ServeMux) error {
	err := mux.HandlePath("GET", "/v1/admin/integrity",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "verify integrity: %v", err)
				return
			}
			writeJSON(w, report)
		})
	if err != nil {
		return err
	}

	err = mux.HandlePath("POST", "/v1/admin/projections/rebuild",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
				writeError(w, http.StatusInternalServerError, "rebuild failed: %v", err)
				return
			}
			writeJSON(w, map[string]bool{"rebuilt": true})
		})
	if err != nil {
		return err
	}

	return mux.HandlePath("GET", "/v1/admin/eventlog",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "get latest sequence: %v", err)
				return
			}
			writeJSON(w, map[string]interface{}{
				"last_sequence":  latestSeq,
				"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
			})
		})
}

// ============================================================================
// Helpers
// ============================================================================

var httpLog = observability.NewLogger("http")

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		httpLog.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}

func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}
