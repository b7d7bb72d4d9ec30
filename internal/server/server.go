package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/wasteloop/internal/agrisense"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	"github.com/smallbiznis/wasteloop/internal/cache"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion"
	"github.com/smallbiznis/wasteloop/internal/observability"
	obsmiddleware "github.com/smallbiznis/wasteloop/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/wasteloop/internal/observability/metrics"
	obstracing "github.com/smallbiznis/wasteloop/internal/observability/tracing"
	"github.com/smallbiznis/wasteloop/internal/pickup"
	pickupdomain "github.com/smallbiznis/wasteloop/internal/pickup/domain"
	"github.com/smallbiznis/wasteloop/internal/profile"
	"github.com/smallbiznis/wasteloop/internal/providers"
	"github.com/smallbiznis/wasteloop/internal/ratelimit"
	"github.com/smallbiznis/wasteloop/internal/userlock"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"github.com/smallbiznis/wasteloop/internal/wasteledger"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	cache.Module,
	userlock.Module,
	ratelimit.Module,
	authorization.Module,
	providers.Module,
	profile.Module,
	valuation.Module,
	inference.Module,
	wasteledger.Module,
	agrisense.Module,
	wasteintel.Module,
	pickup.Module,
	ingestion.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

// WasteService is the analysis surface of the ledger pipeline.
type WasteService interface {
	Analyze(ctx context.Context, event inference.UsageEvent) (ledgerdomain.ReconcileResult, error)
	ListLedger(ctx context.Context, userID snowflake.ID) ([]*ledgerdomain.Entry, error)
	Estimations(ctx context.Context, userID snowflake.ID) (wasteintel.Estimations, error)
}

type AgrisenseService interface {
	Status(ctx context.Context, userID snowflake.ID) (agrisense.Status, error)
	Toggle(ctx context.Context, userID snowflake.ID, enabled *bool) (agrisense.Status, error)
}

type UsageSubmitter interface {
	Submit(ctx context.Context, sub ingestion.Submission) (ingestion.Receipt, error)
}

type AnalyzeLimiter interface {
	Allow(ctx context.Context, userID snowflake.ID) error
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	log       *zap.Logger
	waste     WasteService
	agrisense AgrisenseService
	pickups   pickupdomain.Service
	usage     UsageSubmitter
	limiter   AnalyzeLimiter
}

type ServerParams struct {
	fx.In

	Engine    *gin.Engine
	Log       *zap.Logger
	Waste     *wasteintel.Service
	Agrisense *agrisense.Service
	Pickups   pickupdomain.Service
	Trigger   *ingestion.Trigger
	Limiter   *ratelimit.AnalyzeLimiter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Engine,
		log:       p.Log.Named("http.server"),
		waste:     p.Waste,
		agrisense: p.Agrisense,
		pickups:   p.Pickups,
		usage:     p.Trigger,
		limiter:   p.Limiter,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorRequired())

	waste := api.Group("/waste")
	{
		waste.GET("/ledger", s.ListLedger)
		waste.POST("/analyze", s.AnalyzeRateLimit(), s.Analyze)
		waste.GET("/estimations", s.Estimations)
		waste.GET("/agrisense", s.AgrisenseStatus)
		waste.PUT("/agrisense", s.ToggleAgrisense)
		waste.GET("/pickups", s.ListPickups)
		waste.POST("/pickups", s.CreatePickup)
		waste.GET("/pickups/:id/slip", s.PickupSlip)
	}

	admin := api.Group("/admin/waste")
	{
		admin.GET("/pickups", s.AdminListPickups)
		admin.PATCH("/pickups/:id", s.AdminUpdatePickup)
	}

	internal := s.engine.Group("/internal")
	internal.POST("/usage-events", s.IngestUsageEvent)
}
