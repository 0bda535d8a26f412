package donation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/types"
)

// MinimumGatewayAmount is the smallest amount the gateway accepts, in major
// units of the configured currency.
var MinimumGatewayAmount = decimal.NewFromInt(100)

const (
	MaxMessageLength   = 500
	maxDonorNameLength = 128
	defaultReturnPath  = "/donations/thanks"
)

// InitiateRequest is a donor's declared intent. Frequency set means recurring.
type InitiateRequest struct {
	CauseID          string                 `json:"cause_id"`
	Amount           types.AmountInput      `json:"amount" swaggertype:"string" example:"2500"`
	DonorName        string                 `json:"donor_name"`
	DonorEmail       string                 `json:"donor_email"`
	IsAnonymous      bool                   `json:"is_anonymous"`
	Message          string                 `json:"message"`
	ReturnPath       string                 `json:"return_path" example:"/donations/thanks"`
	Frequency        types.Frequency        `json:"frequency,omitempty" example:"monthly"`
	SubscriptionType types.SubscriptionType `json:"subscription_type,omitempty"`
}

func (r *InitiateRequest) Recurring() bool { return r.Frequency != "" }

// validated is an InitiateRequest that passed every check.
type validated struct {
	req    InitiateRequest
	amount decimal.Decimal
	cause  *models.Cause
}

// validate applies the checks in order; the first failure wins.
func (s *Service) validate(ctx context.Context, req InitiateRequest, who types.Identity) (*validated, error) {
	req.CauseID = strings.TrimSpace(req.CauseID)
	req.DonorName = strings.TrimSpace(req.DonorName)
	req.DonorEmail = strings.TrimSpace(req.DonorEmail)
	req.Message = strings.TrimSpace(req.Message)
	if req.DonorEmail == "" && who.Email != "" {
		req.DonorEmail = who.Email
	}

	places := types.CurrencyExponent(s.cfg.Payment.Currency)
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil || !amount.IsPositive() || !amount.Equal(amount.Round(places)) {
		return nil, invalid(ReasonInvalidAmount,
			fmt.Sprintf("amount must be a positive number with at most %d decimal places", places))
	}
	amount = amount.Round(places)
	if amount.LessThan(MinimumGatewayAmount) {
		return nil, invalid(ReasonBelowGatewayMinimum, fmt.Sprintf("minimum donation is %s", MinimumGatewayAmount))
	}

	if req.CauseID == "" {
		return nil, invalid(ReasonUnknownCause, "cause not found")
	}
	cause, err := s.repos.Causes.Get(ctx, req.CauseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid(ReasonUnknownCause, "cause not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load cause: %w", err)
	}
	if cause.MinimumDonation.Valid && amount.LessThan(cause.MinimumDonation.Decimal) {
		return nil, invalid(ReasonBelowCauseMinimum,
			fmt.Sprintf("minimum donation for this cause is %s", cause.MinimumDonation.Decimal))
	}

	if !req.IsAnonymous {
		if req.DonorName == "" {
			return nil, invalid(ReasonMissingDonorName, "donor name is required")
		}
		if req.DonorEmail == "" {
			return nil, invalid(ReasonMissingDonorEmail, "donor email is required")
		}
	}
	if utf8.RuneCountInString(req.DonorName) > maxDonorNameLength {
		return nil, invalid(ReasonMissingDonorName, "donor name is too long")
	}
	if req.DonorEmail != "" && s.checker.Var(req.DonorEmail, "email") != nil {
		return nil, invalid(ReasonInvalidEmail, "invalid email")
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return nil, invalid(ReasonMessageTooLong, fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}
	if req.ReturnPath == "" {
		req.ReturnPath = defaultReturnPath
	}
	if !relativePath(req.ReturnPath) {
		return nil, invalid(ReasonInvalidReturnPath, "return path must be a relative path")
	}

	if req.Recurring() {
		if !who.Authenticated() {
			return nil, ErrAuthenticationRequired
		}
		if !req.Frequency.Valid() {
			return nil, invalid(ReasonInvalidFrequency, "frequency must be one of weekly, monthly, quarterly, annually")
		}
		if minimum := s.cfg.Payment.SubscriptionMinimumAmount(); amount.LessThan(minimum) {
			return nil, invalid(ReasonBelowSubscriptionMinimum, fmt.Sprintf("minimum recurring donation is %s", minimum))
		}
		if req.SubscriptionType == "" {
			req.SubscriptionType = types.SubscriptionTypeRecurringDonation
		}
	}
	return &validated{req: req, amount: amount, cause: cause}, nil
}

// relativePath accepts "/thanks?x=1" and rejects anything naming a host.
func relativePath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
