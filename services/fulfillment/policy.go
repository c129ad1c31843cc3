package fulfillment

import (
	"time"

	"demobook/config"
)

// Policy bounds how long and how often the pipeline talks to its collaborators.
type Policy struct {
	StageTimeout   time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RunLease       time.Duration
	ResumeDelay    time.Duration
	Location       *time.Location
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		StageTimeout:   10 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  4 * time.Second,
		RunLease:       2 * time.Minute,
		ResumeDelay:    5 * time.Minute,
		Location:       time.UTC,
	}
}

// PolicyFromConfig reads the pipeline knobs out of cfg.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		StageTimeout:   cfg.StageTimeout,
		MaxAttempts:    cfg.RetryMaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		RunLease:       cfg.RunLease,
		ResumeDelay:    cfg.ResumeDelay,
		Location:       cfg.Location(),
	}
}

// backoff returns the wait before the attempt following attempt n (1-based).
func (p Policy) backoff(n int) time.Duration {
	d := p.RetryBaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.RetryMaxDelay > 0 && d >= p.RetryMaxDelay {
			return p.RetryMaxDelay
		}
	}
	if p.RetryMaxDelay > 0 && d > p.RetryMaxDelay {
		return p.RetryMaxDelay
	}
	return d
}

// commitBudget bounds one attempt cycle: every call at StageTimeout plus the
// backoff between them.
func (p Policy) commitBudget() time.Duration {
	timeout := p.StageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	budget := time.Duration(attempts) * timeout
	for n := 1; n < attempts; n++ {
		budget += p.backoff(n)
	}
	return budget
}
