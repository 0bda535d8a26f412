package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/statistics"
	"github.com/fatflowers/donations/pkg/response"
	"github.com/fatflowers/donations/pkg/types"
)

type StatisticsService interface {
	GetStatistics(ctx context.Context, r *statistics.Request) (*statistics.Response, error)
}

type ListDonationsRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	From    int                   `json:"from"`
	Size    int                   `json:"size"`
}

// @Summary      List Donations (Admin)
// @Description  Retrieves a paginated and filterable list of donation records, donor contact included.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListDonationsRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespAdminDonations
// @Router       /api/v1/admin/donations/list [post]
func ApiAdminListDonations(svc DonationService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListDonationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.AdminListDonations(c.Request.Context(), req.Filters, req.Size, req.From)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Donation Statistics (Admin)
// @Description  Totals raised per cause, counts per state and active recurring volume.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/statistics [post]
func ApiGetStatistics(svc StatisticsService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, svc DonationService, stats StatisticsService, log *zap.SugaredLogger) {
	r.POST("/donations/list", ApiAdminListDonations(svc, log))
	r.POST("/statistics", ApiGetStatistics(stats, log))
}
