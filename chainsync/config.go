package chainsync

import "time"

const (
	DefaultPollInterval = 10 * time.Second
	DefaultRetryBackoff = 10 * time.Second

	MinTickerDuration = 100 * time.Millisecond
)

type Config struct {
	// PollInterval is the pause between successful sync ticks.
	PollInterval time.Duration
	// RetryBackoff is the pause after a failed tick before the same block
	// range is attempted again.
	RetryBackoff time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{PollInterval: DefaultPollInterval, RetryBackoff: DefaultRetryBackoff}
	if c == nil {
		return out
	}
	if c.PollInterval >= MinTickerDuration {
		out.PollInterval = c.PollInterval
	}
	if c.RetryBackoff >= MinTickerDuration {
		out.RetryBackoff = c.RetryBackoff
	}
	return out
}
