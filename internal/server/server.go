package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/authorization"
	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	"github.com/fleetpass/fleetpass/internal/config"
	documenttypedomain "github.com/fleetpass/fleetpass/internal/documenttype/domain"
	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	vehicledomain "github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(TenantContext())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	tenantSvc       tenantdomain.Service
	vehicleSvc      vehicledomain.Service
	documentTypeSvc documenttypedomain.Service
	authzSvc        authorization.Service
	balanceSvc      balancedomain.Service
	subscriptionSvc subscriptiondomain.Service
	attestationSvc  attestationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	TenantSvc       tenantdomain.Service
	VehicleSvc      vehicledomain.Service
	DocumentTypeSvc documenttypedomain.Service
	AuthzSvc        authorization.Service
	BalanceSvc      balancedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AttestationSvc  attestationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		tenantSvc:       p.TenantSvc,
		vehicleSvc:      p.VehicleSvc,
		documentTypeSvc: p.DocumentTypeSvc,
		authzSvc:        p.AuthzSvc,
		balanceSvc:      p.BalanceSvc,
		subscriptionSvc: p.SubscriptionSvc,
		attestationSvc:  p.AttestationSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Tenants --------
	v1.POST("/tenants", s.CreateTenant)
	v1.GET("/tenants", s.ListTenants)
	v1.GET("/tenants/:id", s.GetTenantByID)
	v1.PUT("/tenants/:id/payment-model", s.SetTenantPaymentModel)
	v1.GET("/tenants/:id/vehicles", s.ListTenantVehicles)
	v1.GET("/tenants/:id/balance", s.GetTenantBalance)
	v1.GET("/tenants/:id/transactions", s.ListTenantTransactions)
	v1.GET("/tenants/:id/attestations", s.ListTenantAttestations)

	// -------- Vehicles --------
	v1.POST("/vehicles", s.CreateVehicle)
	v1.GET("/vehicles/:id", s.GetVehicleByID)
	v1.POST("/vehicles/:id/retire", s.RetireVehicle)

	// -------- Document types --------
	v1.POST("/document-types", s.CreateDocumentType)
	v1.GET("/document-types", s.ListDocumentTypes)
	v1.GET("/document-types/:id", s.GetDocumentTypeByID)
	v1.PUT("/document-types/:id/price", s.UpdateDocumentTypePrice)

	// -------- Authorizations --------
	v1.POST("/authorizations/grant", s.GrantAuthorization)
	v1.POST("/authorizations/revoke", s.RevokeAuthorization)
	v1.POST("/authorizations/bulk", s.BulkUpdateAuthorizations)
	v1.POST("/authorizations/request", s.RequestAuthorization)

	// -------- Balances --------
	v1.POST("/balances", s.OpenBalance)
	v1.POST("/balances/credit", s.CreditBalance)
	v1.POST("/balances/debit", s.DebitBalance)

	// -------- Subscriptions --------
	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.POST("/subscriptions/:id/status", s.ChangeSubscriptionStatus)
	v1.GET("/subscriptions/:id/status-logs", s.ListSubscriptionStatusLogs)

	// -------- Attestations --------
	v1.POST("/attestations/batch", s.IssueAttestationBatch)
	v1.POST("/attestations/expire", s.ExpireAttestations)
	v1.GET("/attestations/:id", s.GetAttestationByID)
	v1.POST("/attestations/:id/cancel", s.CancelAttestation)
	v1.POST("/attestations/:id/render", s.RenderAttestationDocument)
	v1.GET("/verify/:reference", s.VerifyAttestation)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
