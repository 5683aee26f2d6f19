package middleware

import (
	"context"
	"net/http"

	appbilling "github.com/edusuite/backend/internal/application/billing"
	"github.com/edusuite/backend/internal/infrastructure/telemetry"
	"github.com/edusuite/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionGate decides whether an organization may run metered operations.
type SubscriptionGate interface {
	Evaluate(ctx context.Context, organizationID uuid.UUID) (appbilling.GateDecision, error)
}

// RequireSubscription returns a middleware that gates access to metered
// functionality. Denied requests are answered with the decision's HTTP status
// and remediation message; the gate runs before the handler so denied requests
// do no metered work.
func RequireSubscription(gate SubscriptionGate, metrics *telemetry.MeteringMetrics, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		orgID, ok := GetOrganizationID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				dto.NewErrorResponse("MISSING_ORGANIZATION", "X-Organization-ID header is required"))
			return
		}

		decision, err := gate.Evaluate(c.Request.Context(), orgID)
		if err != nil {
			logger.Error("Subscription gate evaluation failed",
				zap.String("organization_id", orgID.String()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponse("GATE_ERROR", "Unable to evaluate subscription status"))
			return
		}

		metrics.RecordGateDecision(c.Request.Context(), string(decision.State))

		if !decision.Allowed {
			c.AbortWithStatusJSON(decision.HTTPStatus,
				dto.NewErrorResponse(decision.Code, decision.Message))
			return
		}

		c.Next()
	}
}
