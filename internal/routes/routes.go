package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fieldservice-invoicing-backend/internal/auth"
	handler "fieldservice-invoicing-backend/internal/handlers"
	"fieldservice-invoicing-backend/internal/logger"
	"fieldservice-invoicing-backend/internal/repository"
	"fieldservice-invoicing-backend/internal/services/idempotency"
	"fieldservice-invoicing-backend/internal/services/invoicing"
)

type Options struct {
	Invoicing             invoicing.Config
	IdempotencyPendingTTL time.Duration
	// Sessions defaults to auth.HeaderResolver.
	Sessions auth.SessionResolver
}

func RegisterRoutes(r *gin.Engine, db *gorm.DB, opts Options) {
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)

	invoiceService := invoicing.NewService(invoicing.Dependencies{
		Customers: repository.NewCustomerRepository(db),
		Jobs:      repository.NewJobRepository(db),
		Payments:  paymentRepo,
		Invoices:  invoiceRepo,
		Numbers:   repository.NewSequenceRepository(db),
	}, opts.Invoicing)
	gate := idempotency.NewGate(repository.NewIdempotencyRepository(db), opts.IdempotencyPendingTTL)

	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	paymentHandler := handler.NewPaymentHandler(invoiceService)

	sessions := opts.Sessions
	if sessions == nil {
		sessions = auth.HeaderResolver{}
	}

	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{SkipPaths: []string{"/api/health"}}))

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := api.Group("")
	authed.Use(auth.RequireUser(sessions), auth.RequireCompany(membershipRepo))

	// Invoice routes
	invoices := authed.Group("/invoices")
	{
		invoices.POST("", idempotency.Middleware(gate), invoiceHandler.Create)
		invoices.GET("", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.Get)
	}

	authed.GET("/payments/:id/balance", paymentHandler.Balance)
}
