// Package server exposes the pipeline and invoice store over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

// HealthFunc reports readiness of a downstream dependency.
type HealthFunc func(ctx context.Context) error

type API struct {
	orc      *pipeline.Orchestrator
	queue    async.Queue
	invoices repository.InvoiceRepository
	exporter *export.Service
	health   HealthFunc
	logger   *slog.Logger
	router   *gin.Engine
}

func NewAPI(
	orc *pipeline.Orchestrator,
	queue async.Queue,
	invoices repository.InvoiceRepository,
	exporter *export.Service,
	health HealthFunc,
	logger *slog.Logger,
) *API {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	a := &API{
		orc:      orc,
		queue:    queue,
		invoices: invoices,
		exporter: exporter,
		health:   health,
		logger:   logger,
		router:   r,
	}
	a.registerRoutes()
	return a
}

func (a *API) Router() *gin.Engine { return a.router }

func (a *API) registerRoutes() {
	a.router.GET("/healthz", a.Healthz)

	v1 := a.router.Group("/v1")
	v1.POST("/invoices/process", a.ProcessInvoice)
	v1.POST("/invoices/batch", a.BatchProcess)
	v1.GET("/invoices/:id/status", a.InvoiceStatus)
	v1.GET("/invoices/:id/cleaned", a.CleanedData)
	v1.POST("/invoices/:id/reprocess", a.Reprocess)

	v1.GET("/invoices", a.ListInvoices)
	v1.GET("/invoices/search", a.SearchInvoices)
	v1.GET("/invoices/export", a.ExportInvoices)
	v1.GET("/invoices/:id", a.GetInvoice)
	v1.PATCH("/invoices/:id", a.UpdateInvoice)
	v1.DELETE("/invoices/:id", a.DeleteInvoice)
}

func (a *API) Healthz(c *gin.Context) {
	if a.health != nil {
		if err := a.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
