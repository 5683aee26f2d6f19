// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"net/http"

	"github.com/edusuite/backend/internal/infrastructure/logger"
	"github.com/edusuite/backend/internal/infrastructure/telemetry"
	"github.com/edusuite/backend/internal/interfaces/http/handler"
	"github.com/edusuite/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies carries everything the router needs to build the route tree
type Dependencies struct {
	BillingHandler *handler.BillingHandler
	Tracker        *middleware.Tracker
	Gate           middleware.SubscriptionGate
	Metrics        *telemetry.MeteringMetrics
	CORS           middleware.CORSConfig
	Logger         *zap.Logger
}

// Setup builds the route tree on the given engine.
//
// Read-only billing routes sit behind organization resolution and metering but
// not the gate: an organization must always be able to see its own bill, even
// when it is being denied metered functionality. The returned group is where
// metered domain features mount; denied requests never reach their handlers.
func Setup(engine *gin.Engine, deps Dependencies) *gin.RouterGroup {
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORSWithConfig(deps.CORS))
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(logger.Recovery(deps.Logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api/v1")
	api.Use(middleware.OrganizationID())
	api.Use(deps.Tracker.Metering())

	billingGroup := api.Group("/billing")
	{
		billingGroup.GET("/ledger/current", deps.BillingHandler.GetCurrentLedger)
		billingGroup.GET("/ledger/:period", deps.BillingHandler.GetLedgerByPeriod)
		billingGroup.GET("/usage/summary", deps.BillingHandler.GetUsageSummary)
	}

	admin := api.Group("/admin/billing")
	{
		admin.POST("/allocate/:period", deps.BillingHandler.AllocatePeriod)
		admin.POST("/close/:period", deps.BillingHandler.ClosePeriod)
	}

	// Metered domain features mount on the returned group, behind the gate.
	gated := api.Group("")
	gated.Use(middleware.RequireSubscription(deps.Gate, deps.Metrics, deps.Logger))
	return gated
}
