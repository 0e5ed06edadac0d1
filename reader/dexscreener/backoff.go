package dexscreener

import (
	"github.com/cenkalti/backoff/v4"

	appconfig "dexflow/config"
)

// newBackOff builds the reconnect schedule: base delay doubling per attempt,
// capped at the configured maximum, with jitter so a fleet of collectors does
// not reconnect in lockstep. Successful connects reset the schedule.
func newBackOff(cfg appconfig.RetryConfig) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = 2
	bo.MaxInterval = cfg.MaxDelay
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
