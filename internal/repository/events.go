package repository

import (
	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/types"
)

// DonationEvent describes a donation reaching state. The payload carries no
// donor contact details.
func DonationEvent(d *models.Donation, state types.DonationState, reason string) OutboxEvent {
	payload := map[string]interface{}{
		"record_id": d.ID,
		"cause_id":  d.CauseID,
		"state":     string(state),
		"amount":    d.Amount.String(),
		"currency":  d.Currency,
	}
	if d.UserID != nil {
		payload["user_id"] = *d.UserID
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return OutboxEvent{RecordType: types.RecordTypeDonation, RecordID: d.ID, State: string(state), Payload: payload}
}

// SubscriptionEvent is deduplicated per trigger (usually the gateway event
// id) because active and past_due can recur over a subscription's life.
func SubscriptionEvent(s *models.Subscription, state types.SubscriptionState, reason, trigger string) OutboxEvent {
	payload := map[string]interface{}{
		"record_id":         s.ID,
		"cause_id":          s.CauseID,
		"user_id":           s.UserID,
		"state":             string(state),
		"amount":            s.Amount.String(),
		"currency":          s.Currency,
		"frequency":         string(s.Frequency),
		"subscription_type": string(s.SubscriptionType),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	ev := OutboxEvent{RecordType: types.RecordTypeSubscription, RecordID: s.ID, State: string(state), Payload: payload}
	if trigger != "" {
		ev.DedupeKey = string(types.RecordTypeSubscription) + ":" + s.ID + ":" + string(state) + ":" + trigger
	}
	return ev
}

// ChargeEvent is keyed by the charge id, so each recurring charge notifies once.
func ChargeEvent(s *models.Subscription, c *models.SubscriptionCharge) OutboxEvent {
	payload := map[string]interface{}{
		"record_id":          c.ID,
		"subscription_id":    s.ID,
		"cause_id":           s.CauseID,
		"user_id":            s.UserID,
		"state":              string(c.State),
		"amount":             c.Amount.String(),
		"currency":           c.Currency,
		"external_reference": c.ExternalReference,
	}
	return OutboxEvent{RecordType: types.RecordTypeCharge, RecordID: c.ID, State: string(c.State), Payload: payload}
}
