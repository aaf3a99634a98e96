package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
)

// Server is the public HTTP API.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	service    LeadService
	ingestion  config.IngestionConfig
	logger     *zap.Logger
}

// NewServer builds the router. Call gin.SetMode before this in production.
func NewServer(service LeadService, httpCfg config.HTTPConfig, ingestionCfg config.IngestionConfig, logger *zap.Logger) *Server {
	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(), Recovery())

	s := &Server{
		engine:    engine,
		service:   service,
		ingestion: ingestionCfg,
		logger:    logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", httpCfg.Port),
			Handler:           engine,
			ReadTimeout:       httpCfg.ReadTimeout,
			WriteTimeout:      httpCfg.WriteTimeout,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.routes(httpCfg)
	return s
}

func (s *Server) routes(httpCfg config.HTTPConfig) {
	api := s.engine.Group("/api")

	crm := api.Group("/crm", RequireOwner())
	crm.GET("/leads", s.listLeads)
	crm.POST("/leads", s.createLead)
	crm.GET("/leads/:id", s.getLead)
	crm.PATCH("/leads/:id", s.updateLead)
	crm.PUT("/leads/:id/stage", s.setStage)
	crm.GET("/leads/:id/events", s.listEvents)
	crm.POST("/leads/:id/events", s.recordEvent)
	crm.GET("/leads/:id/messages", s.listMessages)
	crm.GET("/leads/:id/conversations", s.listConversations)
	crm.GET("/pipeline/stats", s.pipelineStats)
	crm.GET("/webhooks", s.listWebhookLogs)

	analytics := api.Group("/analytics", RequireOwner())
	analytics.GET("/kpis", s.computeKPIs)

	integrations := api.Group("/integrations", RateLimit(httpCfg.InboundRPS, httpCfg.InboundBurst), FixedOwner(s.ingestion.OwnerID))
	integrations.POST("/whatsapp/inbound", s.ingestWhatsApp)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP API", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP API server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API")
	return s.httpServer.Shutdown(ctx)
}
