package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openfleet/tally/internal/audit"
	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	"github.com/openfleet/tally/internal/changefeed"
	"github.com/openfleet/tally/internal/claim"
	claimdomain "github.com/openfleet/tally/internal/claim/domain"
	"github.com/openfleet/tally/internal/config"
	"github.com/openfleet/tally/internal/delivery"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	"github.com/openfleet/tally/internal/driver"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	changefeed.Module,
	audit.Module,
	driver.Module,
	delivery.Module,
	claim.Module,
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParams struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Engine      *gin.Engine
	DriverSvc   driverdomain.Service
	DeliverySvc deliverydomain.Service
	ClaimSvc    claimdomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
	Feed        *changefeed.Hub     `optional:"true"`
}

type Server struct {
	cfg         config.Config
	log         *zap.Logger
	engine      *gin.Engine
	driverSvc   driverdomain.Service
	deliverySvc deliverydomain.Service
	claimSvc    claimdomain.Service
	auditSvc    auditdomain.Service
	feed        *changefeed.Hub
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		engine:      p.Engine,
		driverSvc:   p.DriverSvc,
		deliverySvc: p.DeliverySvc,
		claimSvc:    p.ClaimSvc,
		auditSvc:    p.AuditSvc,
		feed:        p.Feed,
	}
}

func RegisterRoutes(s *Server) {
	v1 := s.engine.Group("/v1")

	v1.POST("/drivers", s.CreateDriver)
	v1.GET("/drivers", s.ListDrivers)
	v1.GET("/drivers/:id", s.GetDriverByID)
	v1.DELETE("/drivers/:id", s.DeleteDriver)

	v1.POST("/drivers/:id/deliveries", s.RecordDelivery)
	v1.GET("/drivers/:id/deliveries", s.GetDeliveryHistory)
	v1.GET("/drivers/:id/reconciliation", s.GetReconciliation)

	v1.POST("/drivers/:id/claims", s.ClaimPoints)

	v1.GET("/changefeed/:entity", s.StreamChangefeed)

	v1.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.log.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}
