package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/api/middleware"
	"github.com/fatflowers/donations/internal/app/service/donation"
	"github.com/fatflowers/donations/pkg/response"
	"github.com/fatflowers/donations/pkg/types"
)

// DonationService is the part of the donation orchestrator the HTTP layer uses.
type DonationService interface {
	InitiateDonation(ctx context.Context, req donation.InitiateRequest, who types.Identity) (*donation.InitiateResult, error)
	GetDonation(ctx context.Context, id string) (*donation.DonationView, error)
	ListCauseDonations(ctx context.Context, causeID string, limit, offset int) (*donation.CauseDonations, error)
	ListMySubscriptions(ctx context.Context, who types.Identity) ([]donation.SubscriptionView, error)
	CancelSubscription(ctx context.Context, subscriptionID string, who types.Identity) (*donation.SubscriptionView, error)
	AdminListDonations(ctx context.Context, filters []*types.CommonFilter, limit, offset int) (*donation.AdminDonationList, error)
}

// @Summary      Initiate Donation
// @Description  Creates a pending donation (or, with frequency set, a pending recurring donation) and returns the payment page to redirect to. Recurring donations require a bearer token.
// @Tags         Donations
// @Accept       json
// @Produce      json
// @Param        request body donation.InitiateRequest true "Donation intent"
// @Success      200  {object}  handlers.RespInitiate
// @Router       /api/v1/donations [post]
func ApiInitiateDonation(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req donation.InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.InitiateDonation(c.Request.Context(), req, middleware.Identity(c))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Donation
// @Description  Public view of a donation. Donor email is never included; anonymous donations omit the donor name.
// @Tags         Donations
// @Produce      json
// @Param        id   path      string  true  "Donation ID"
// @Success      200  {object}  handlers.RespDonation
// @Router       /api/v1/donations/{id} [get]
func ApiGetDonation(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.GetDonation(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(v))
	}
}

// @Summary      List Cause Donations
// @Description  Completed donations for a cause, newest first, with the total raised.
// @Tags         Donations
// @Produce      json
// @Param        id    path      string  true   "Cause ID"
// @Param        from  query     int     false  "Offset"
// @Param        size  query     int     false  "Page size (max 100)"
// @Success      200   {object}  handlers.RespCauseDonations
// @Router       /api/v1/causes/{id}/donations [get]
func ApiListCauseDonations(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, size := 0, 20
		if v := c.Query("from"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				from = n
			}
		}
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Message: "invalid size"}))
				return
			}
			size = n
		}
		res, err := svc.ListCauseDonations(c.Request.Context(), c.Param("id"), size, from)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// RegisterDonationRoutes mounts the public donation API; initiate is rate
// limited when limiter is set.
func RegisterDonationRoutes(r gin.IRouter, svc DonationService, limiter gin.HandlerFunc, log *zap.SugaredLogger) {
	initiate := []gin.HandlerFunc{ApiInitiateDonation(svc, log)}
	if limiter != nil {
		initiate = append([]gin.HandlerFunc{limiter}, initiate...)
	}
	r.POST("/donations", initiate...)
	r.GET("/donations/:id", ApiGetDonation(svc, log))
	r.GET("/causes/:id/donations", ApiListCauseDonations(svc, log))
}
