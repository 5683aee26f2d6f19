package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appbilling "github.com/edusuite/backend/internal/application/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGate struct {
	decision appbilling.GateDecision
	err      error
	lastOrg  uuid.UUID
}

func (g *stubGate) Evaluate(_ context.Context, organizationID uuid.UUID) (appbilling.GateDecision, error) {
	g.lastOrg = organizationID
	return g.decision, g.err
}

func setupGateRouter(gate *stubGate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(OrganizationID())
	router.Use(RequireSubscription(gate, nil, zap.NewNop()))
	router.GET("/gated", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func gatedRequest(router *gin.Engine, orgID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	if orgID != "" {
		req.Header.Set(OrganizationIDHeader, orgID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireSubscriptionAllows(t *testing.T) {
	gate := &stubGate{decision: appbilling.GateDecision{
		Allowed:    true,
		State:      appbilling.GatePremiumClear,
		HTTPStatus: http.StatusOK,
	}}
	router := setupGateRouter(gate)

	w := gatedRequest(router, testOrgID().String())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testOrgID(), gate.lastOrg)
}

func TestRequireSubscriptionDenies(t *testing.T) {
	gate := &stubGate{decision: appbilling.GateDecision{
		Allowed:    false,
		State:      appbilling.GateFreemiumExpired,
		HTTPStatus: http.StatusPaymentRequired,
		Code:       "FREEMIUM_EXPIRED",
		Message:    "Your free period has ended. Visit billing to upgrade to premium.",
	}}
	router := setupGateRouter(gate)

	w := gatedRequest(router, testOrgID().String())

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "FREEMIUM_EXPIRED", body.Error.Code)
	assert.Contains(t, body.Error.Message, "upgrade")
}

func TestRequireSubscriptionEvaluationError(t *testing.T) {
	gate := &stubGate{err: errors.New("store unavailable")}
	router := setupGateRouter(gate)

	w := gatedRequest(router, testOrgID().String())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireSubscriptionMissingOrganization(t *testing.T) {
	gate := &stubGate{decision: appbilling.GateDecision{Allowed: true}}
	router := setupGateRouter(gate)

	w := gatedRequest(router, "")

	// The organization middleware rejects before the gate runs.
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, uuid.Nil, gate.lastOrg)
}
