package stripe_checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/pkg/types"
)

// MetadataReferenceID is the metadata key carrying the local record id on
// sessions, payment intents, subscriptions and their invoices.
const MetadataReferenceID = "reference_id"

// MetadataSubscriptionType tags recurring products sharing the account.
const MetadataSubscriptionType = "subscription_type"

type checkoutSessions interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

type subscriptions interface {
	Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

type Options struct {
	SecretKey string
	Currency  string
	// ReturnBaseURL is joined with the request's return path for success_url.
	ReturnBaseURL string
	CancelPath    string
}

// Client creates Stripe Checkout sessions for donations.
type Client struct {
	sessions      checkoutSessions
	subscriptions subscriptions
	opts          Options
}

func New(opts Options) (*Client, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("stripe secret key is empty")
	}
	sc := stripe.NewClient(opts.SecretKey)
	return newClient(sc.V1CheckoutSessions, sc.V1Subscriptions, opts), nil
}

func newClient(sessions checkoutSessions, subs subscriptions, opts Options) *Client {
	opts.Currency = strings.ToLower(opts.Currency)
	opts.ReturnBaseURL = strings.TrimRight(opts.ReturnBaseURL, "/")
	return &Client{sessions: sessions, subscriptions: subs, opts: opts}
}

func (c *Client) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Redirect, error) {
	params, err := c.baseParams(req, stripe.CheckoutSessionModePayment)
	if err != nil {
		return nil, &gateway.Error{Op: "create_charge", Err: err}
	}
	params.SubmitType = stripe.String(string(stripe.CheckoutSessionSubmitTypeDonate))
	params.PaymentIntentData = &stripe.CheckoutSessionCreatePaymentIntentDataParams{
		Description: stripe.String(req.Description),
		Metadata:    map[string]string{MetadataReferenceID: req.ReferenceID},
	}
	return c.create(ctx, "create_charge", params)
}

func (c *Client) CreateSubscription(ctx context.Context, req gateway.SubscriptionRequest) (*gateway.Redirect, error) {
	interval, count, ok := recurringInterval(req.Frequency)
	if !ok {
		return nil, &gateway.Error{Op: "create_subscription", Err: fmt.Errorf("unsupported frequency %q", req.Frequency)}
	}
	params, err := c.baseParams(req.ChargeRequest, stripe.CheckoutSessionModeSubscription)
	if err != nil {
		return nil, &gateway.Error{Op: "create_subscription", Err: err}
	}
	params.LineItems[0].PriceData.Recurring = &stripe.CheckoutSessionCreateLineItemPriceDataRecurringParams{
		Interval:      stripe.String(interval),
		IntervalCount: stripe.Int64(count),
	}
	params.Metadata[MetadataSubscriptionType] = string(req.SubscriptionType)
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{
		Description: stripe.String(req.Description),
		Metadata: map[string]string{
			MetadataReferenceID:      req.ReferenceID,
			MetadataSubscriptionType: string(req.SubscriptionType),
		},
	}
	return c.create(ctx, "create_subscription", params)
}

func (c *Client) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	if externalSubscriptionID == "" {
		return &gateway.Error{Op: "cancel_subscription", Err: errors.New("missing subscription id")}
	}
	if _, err := c.subscriptions.Cancel(ctx, externalSubscriptionID, &stripe.SubscriptionCancelParams{}); err != nil {
		return &gateway.Error{Op: "cancel_subscription", Err: describe(err)}
	}
	return nil
}

func (c *Client) baseParams(req gateway.ChargeRequest, mode stripe.CheckoutSessionMode) (*stripe.CheckoutSessionCreateParams, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = c.opts.Currency
	}
	unit, err := ToMinorUnits(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(mode)),
		ClientReferenceID: stripe.String(req.ReferenceID),
		SuccessURL:        stripe.String(c.opts.ReturnBaseURL + req.ReturnPath),
		CancelURL:         stripe.String(c.opts.ReturnBaseURL + c.opts.CancelPath),
		Metadata:          map[string]string{MetadataReferenceID: req.ReferenceID},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(unit),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.CustomerName != "" {
		params.Metadata["donor_name"] = req.CustomerName
	}
	// the reference id is unique per record, so a replayed create returns
	// the first session instead of opening a second one
	params.SetIdempotencyKey(req.ReferenceID)
	return params, nil
}

func (c *Client) create(ctx context.Context, op string, params *stripe.CheckoutSessionCreateParams) (*gateway.Redirect, error) {
	s, err := c.sessions.Create(ctx, params)
	if err != nil {
		return nil, &gateway.Error{Op: op, Err: describe(err)}
	}
	if s == nil || s.URL == "" {
		return nil, &gateway.Error{Op: op, Err: errors.New("checkout session has no url")}
	}
	return &gateway.Redirect{URL: s.URL, SessionID: s.ID}, nil
}

func recurringInterval(f types.Frequency) (string, int64, bool) {
	switch f {
	case types.FrequencyWeekly:
		return string(stripe.PriceRecurringIntervalWeek), 1, true
	case types.FrequencyMonthly:
		return string(stripe.PriceRecurringIntervalMonth), 1, true
	case types.FrequencyQuarterly:
		return string(stripe.PriceRecurringIntervalMonth), 3, true
	case types.FrequencyAnnually:
		return string(stripe.PriceRecurringIntervalYear), 1, true
	}
	return "", 0, false
}

// describe keeps the provider's message and code, dropping request details.
func describe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code != "" {
			return fmt.Errorf("%s: %s", se.Code, se.Msg)
		}
		return errors.New(se.Msg)
	}
	return err
}
