package handlers

import (
	"github.com/fatflowers/donations/internal/app/service/donation"
	"github.com/fatflowers/donations/internal/app/service/statistics"
	"github.com/fatflowers/donations/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespInitiate struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    donation.InitiateResult  `json:"data"`
}

type RespDonation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    donation.DonationView    `json:"data"`
}

type RespCauseDonations struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    donation.CauseDonations  `json:"data"`
}

type RespSubscription struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    donation.SubscriptionView `json:"data"`
}

type RespSubscriptions struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    []donation.SubscriptionView `json:"data"`
}

type RespAdminDonations struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    donation.AdminDonationList `json:"data"`
}

// RespStatistics wraps statistics.Response in the standard envelope.
type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}
