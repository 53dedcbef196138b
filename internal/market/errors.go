package market

import "errors"

// Validation errors: rejected before any state mutation.
var (
	ErrInvalidKind         = errors.New("market: unknown market kind")
	ErrInvalidSide         = errors.New("market: side must be YES or NO")
	ErrQuestionRequired    = errors.New("market: question must not be empty")
	ErrTargetNotPositive   = errors.New("market: target value must be positive")
	ErrDurationTooShort    = errors.New("market: duration below minimum")
	ErrBlockWindowTooShort = errors.New("market: block window below minimum")
	ErrSeedMismatch        = errors.New("market: seed collateral must equal the fixed seed amount")
	ErrParticipantRequired = errors.New("market: participant must not be empty")
	ErrAmountNotPositive   = errors.New("market: amount must be positive")
)

// Balance and authorization errors.
var (
	ErrInsufficientBalance = errors.New("market: insufficient collateral balance")
	ErrInsufficientShares  = errors.New("market: insufficient outcome shares")
	ErrUnauthorized        = errors.New("market: caller not authorized for this resolution path")
)

// State-conflict errors: the action no longer (or does not yet) apply.
// Direct callers should treat these as terminal for the attempted
// action; keepers treat them as benign races and move on.
var (
	ErrMarketNotFound    = errors.New("market: not found")
	ErrMarketNotActive   = errors.New("market: already in a terminal status")
	ErrMarketExpired     = errors.New("market: trading closed at expiry")
	ErrMarketNotExpired  = errors.New("market: expiry not reached")
	ErrMarketNotResolved = errors.New("market: not resolved")
	ErrMarketNotVoided   = errors.New("market: not voided")
	ErrKindMismatch      = errors.New("market: resolution path does not match market kind")
	ErrFeedMismatch      = errors.New("market: feed key not mapped for this market")
	ErrVoidNotAllowed    = errors.New("market: void conditions not met")
)
