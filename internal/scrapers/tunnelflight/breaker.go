package tunnelflight

import (
	"context"
	"errors"
	"fmt"
	"time"
	"tunnelflight/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
)

const report_breaker_state = "breaker.state"

type BreakerOptions struct {
	// FailureThreshold is the number of consecutive transport failures or 5xx
	// responses that open the breaker, zero means 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a probe
	// request through, zero means 30 seconds.
	OpenTimeout time.Duration
}

// serverError marks a 5xx response so that the breaker counts it.
type serverError struct {
	status int
}

func (e serverError) Error() string {
	return fmt.Sprintf("server error %d", e.status)
}

func newBreaker(opts BreakerOptions, tel telemetry.API) *gobreaker.CircuitBreaker[*resty.Response] {
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "tunnelflight",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about the portal
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				tel.ReportWarning(report_breaker_state, from.String(), to.String())
				return
			}
			tel.ReportDebug("breaker state changed", from.String(), to.String())
		},
	})
}
