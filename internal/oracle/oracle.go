// Package oracle provides the two value caches that turn external
// truth into resolvable numbers: a price adapter fed by keeper pushes
// and a chain-metric adapter that samples its own execution context.
// Both answer the same question — current value for a feed key, with
// freshness — behind the Adapter interface.
package oracle

import (
	"errors"
	"time"

	"github.com/forecastlab/settle-engine/internal/model"
)

var (
	// ErrFeedNotFound is returned for reads against unregistered keys.
	ErrFeedNotFound = errors.New("oracle: feed not registered")

	// ErrFeedInactive is returned when a feed exists but has been
	// deactivated; resolution must refuse rather than guess.
	ErrFeedInactive = errors.New("oracle: feed inactive")

	// ErrStaleValue is returned when a value is older than the
	// staleness window and therefore untrustworthy for resolution.
	ErrStaleValue = errors.New("oracle: value older than staleness window")
)

// Adapter is the uniform read surface over both oracle caches.
type Adapter interface {
	// Value returns the cached reading for feedKey, rejecting
	// unregistered keys.
	Value(feedKey string) (model.OracleValue, error)

	// FreshValue returns the value only if it is active and no older
	// than the staleness window.
	FreshValue(feedKey string, window time.Duration) (int64, error)
}
