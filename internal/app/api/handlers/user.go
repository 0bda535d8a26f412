package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/api/middleware"
	"github.com/fatflowers/donations/pkg/response"
)

// @Summary      List My Subscriptions
// @Description  Recurring donations owned by the caller.
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSubscriptions
// @Router       /api/v1/me/subscriptions [get]
func ApiListMySubscriptions(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ListMySubscriptions(c.Request.Context(), middleware.Identity(c))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Cancel Subscription
// @Description  Asks the payment gateway to stop future charges. The subscription moves to cancelled once the gateway confirms.
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/me/subscriptions/{id}/cancel [post]
func ApiCancelSubscription(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.CancelSubscription(c.Request.Context(), c.Param("id"), middleware.Identity(c))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterUserRoutes(r gin.IRouter, svc DonationService, log *zap.SugaredLogger) {
	r.GET("/subscriptions", ApiListMySubscriptions(svc, log))
	r.POST("/subscriptions/:id/cancel", ApiCancelSubscription(svc, log))
}
