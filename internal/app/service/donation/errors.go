package donation

import "errors"

// Validation reasons, stable for clients to branch on.
const (
	ReasonInvalidAmount            = "invalid_amount"
	ReasonBelowGatewayMinimum      = "below_gateway_minimum"
	ReasonUnknownCause             = "unknown_cause"
	ReasonBelowCauseMinimum        = "below_cause_minimum"
	ReasonMissingDonorName         = "missing_donor_name"
	ReasonMissingDonorEmail        = "missing_donor_email"
	ReasonInvalidEmail             = "invalid_email"
	ReasonMessageTooLong           = "message_too_long"
	ReasonInvalidReturnPath        = "invalid_return_path"
	ReasonInvalidFrequency         = "invalid_frequency"
	ReasonBelowSubscriptionMinimum = "below_subscription_minimum"
	ReasonNotCancellable           = "not_cancellable"
)

// ValidationError rejects a request before any record is created.
type ValidationError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// ErrAuthenticationRequired is returned for recurring donations from an
// anonymous caller and for owner-only operations.
var ErrAuthenticationRequired = errors.New("authentication required")
