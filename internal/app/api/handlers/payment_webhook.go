package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	nh "github.com/fatflowers/donations/internal/app/service/notification_handler"
	"github.com/fatflowers/donations/internal/app/service/reconciler"
	"github.com/fatflowers/donations/internal/platform/stripe/stripe_notification"
	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/response"
)

const maxWebhookBody = 65536

type WebhookHandler interface {
	HandleNotification(ctx context.Context, provider string, payload []byte, header http.Header) (reconciler.Outcome, error)
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe events signed with the Stripe-Signature header. Every reconciled or ignored event is acknowledged with 200; 400 means the delivery could not be authenticated or decoded; 500 asks Stripe to redeliver.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Stripe event"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v2/payment/webhook/stripe [post]
func ApiStripeWebhook(h WebhookHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return apiWebhook(h, stripe_notification.Provider, log)
}

func apiWebhook(h WebhookHandler, provider string, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Message: "unreadable body"}))
			return
		}

		out, err := h.HandleNotification(c.Request.Context(), provider, payload, c.Request.Header)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, response.OKT(gin.H{"outcome": out}))
		case errors.Is(err, gateway.ErrInvalidSignature), errors.Is(err, gateway.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Message: err.Error()}))
		case errors.Is(err, nh.ErrUnsupportedProvider):
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
		default:
			logctx.FromGin(c, log).Errorw("webhook_handle_error", "provider", provider, "err", err)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		}
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h WebhookHandler, log *zap.SugaredLogger) {
	r.POST("/webhook/stripe", ApiStripeWebhook(h, log))
}
