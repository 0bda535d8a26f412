package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/donation"
	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/internal/app/service/statistics"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/response"
)

// ErrorData is the data field of a rejected request.
type ErrorData struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// respondError maps service errors onto the response envelope. Like every
// other API response it is sent with HTTP 200; the envelope code carries the
// outcome.
func respondError(c *gin.Context, log *zap.SugaredLogger, err error) {
	var (
		ve    *donation.ValidationError
		gwErr *gateway.Error
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Reason: ve.Reason, Message: ve.Message}))
	case errors.Is(err, statistics.ErrInvalidRequest):
		c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Message: err.Error()}))
	case errors.Is(err, donation.ErrAuthenticationRequired):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeAuthRequired, nil))
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
	case errors.As(err, &gwErr):
		logctx.FromGin(c, log).Errorw("payment gateway error", "op", gwErr.Op, "err", gwErr.Err)
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeGateway, nil))
	default:
		logctx.FromGin(c, log).Errorw("request failed", "err", err)
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Message: err.Error()}))
}
