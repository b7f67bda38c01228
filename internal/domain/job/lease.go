// Package job holds queue-side policies shared by the job runner: lease sizing,
// wake-up fan-out and progress bookkeeping.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeasePolicy turns lease durations into the whole seconds the queue stores.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// Seconds resolves request to lease seconds. Zero selects the default, anything
// else is rounded down to whole seconds with a floor of one.
func (p *LeasePolicy) Seconds(request time.Duration) int {
	if request == 0 && p != nil {
		request = p.defaultLease
	}
	s := int64(request / time.Second)
	switch {
	case s < 1:
		return 1
	case s > math.MaxInt32:
		return math.MaxInt32
	default:
		return int(s)
	}
}

// HeartbeatInterval is how often a runner should renew a lease of leaseSeconds.
func HeartbeatInterval(leaseSeconds int) time.Duration {
	iv := time.Duration(leaseSeconds) * time.Second / 2
	if iv < time.Second {
		return time.Second
	}
	return iv
}
