package donation

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

// DonationView is the public face of a donation. Donor email is never part of
// it, and anonymous donations carry no donor name.
type DonationView struct {
	ID          string              `json:"id"`
	CauseID     string              `json:"cause_id"`
	Amount      decimal.Decimal     `json:"amount" swaggertype:"string"`
	Currency    string              `json:"currency"`
	DonorName   *string             `json:"donor_name,omitempty"`
	IsAnonymous bool                `json:"is_anonymous"`
	Message     *string             `json:"message,omitempty"`
	State       types.DonationState `json:"state"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func NewDonationView(d *models.Donation) DonationView {
	v := DonationView{
		ID:          d.ID,
		CauseID:     d.CauseID,
		Amount:      d.Amount,
		Currency:    d.Currency,
		IsAnonymous: d.IsAnonymous,
		Message:     d.Message,
		State:       d.State,
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}
	if !d.IsAnonymous {
		v.DonorName = d.DonorName
	}
	return v
}

// SubscriptionView is shown to the subscription's owner.
type SubscriptionView struct {
	ID                string                  `json:"id"`
	CauseID           string                  `json:"cause_id"`
	Amount            decimal.Decimal         `json:"amount" swaggertype:"string"`
	Currency          string                  `json:"currency"`
	Frequency         types.Frequency         `json:"frequency"`
	SubscriptionType  types.SubscriptionType  `json:"subscription_type"`
	State             types.SubscriptionState `json:"state"`
	CreatedAt         time.Time               `json:"created_at"`
	ActivatedAt       *time.Time              `json:"activated_at,omitempty"`
	CancelRequestedAt *time.Time              `json:"cancel_requested_at,omitempty"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
}

func newSubscriptionView(s *models.Subscription) SubscriptionView {
	return SubscriptionView{
		ID:                s.ID,
		CauseID:           s.CauseID,
		Amount:            s.Amount,
		Currency:          s.Currency,
		Frequency:         s.Frequency,
		SubscriptionType:  s.SubscriptionType,
		State:             s.State,
		CreatedAt:         s.CreatedAt,
		ActivatedAt:       s.ActivatedAt,
		CancelRequestedAt: s.CancelRequestedAt,
		CancelledAt:       s.CancelledAt,
	}
}

type CauseDonations struct {
	CauseID     string          `json:"cause_id"`
	TotalRaised decimal.Decimal `json:"total_raised" swaggertype:"string"`
	Total       int64           `json:"total"`
	Items       []DonationView  `json:"items"`
}

func (s *Service) GetDonation(ctx context.Context, id string) (*DonationView, error) {
	if !tool.IsUUID(id) {
		return nil, repository.ErrNotFound
	}
	d, err := s.repos.Donations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := NewDonationView(d)
	return &v, nil
}

// ListCauseDonations returns completed donations for a cause, newest first,
// with the total raised.
func (s *Service) ListCauseDonations(ctx context.Context, causeID string, limit, offset int) (*CauseDonations, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, total, err := s.repos.Donations.ListCompletedByCause(ctx, causeID, limit, offset)
	if err != nil {
		return nil, err
	}
	raised, err := s.repos.Donations.SumCompletedByCause(ctx, causeID)
	if err != nil {
		return nil, err
	}
	out := &CauseDonations{CauseID: causeID, TotalRaised: raised, Total: total, Items: make([]DonationView, 0, len(list))}
	for i := range list {
		out.Items = append(out.Items, NewDonationView(&list[i]))
	}
	return out, nil
}

func (s *Service) ListMySubscriptions(ctx context.Context, who types.Identity) ([]SubscriptionView, error) {
	if !who.Authenticated() {
		return nil, ErrAuthenticationRequired
	}
	list, err := s.repos.Subscriptions.ListByUser(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]SubscriptionView, 0, len(list))
	for i := range list {
		out = append(out, newSubscriptionView(&list[i]))
	}
	return out, nil
}

type AdminDonationList struct {
	Total int64             `json:"total"`
	Items []models.Donation `json:"items"`
}

// AdminListDonations returns full records, donor contact included.
func (s *Service) AdminListDonations(ctx context.Context, filters []*types.CommonFilter, limit, offset int) (*AdminDonationList, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	list, total, err := s.repos.Donations.List(ctx, filters, limit, offset)
	if errors.Is(err, repository.ErrUnsupportedFilter) {
		return nil, invalid("invalid_filter", err.Error())
	}
	if err != nil {
		return nil, err
	}
	return &AdminDonationList{Total: total, Items: list}, nil
}
