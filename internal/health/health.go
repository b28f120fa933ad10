package health

import (
	"context"
	"time"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a plain function to the Checker interface.
type CheckerFunc func(ctx context.Context) CheckResult

func (f CheckerFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// ProbeRunner drives the registered readiness checks with an overall and
// a per-check timeout.
type ProbeRunner struct {
	timeout      time.Duration
	checkTimeout time.Duration
	checkers     []Checker
}

func NewProbeRunner(timeout, checkTimeout time.Duration) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, checkTimeout: checkTimeout}
}

func (p *ProbeRunner) Register(c Checker) {
	p.checkers = append(p.checkers, c)
}

// Ready runs every check and reports overall readiness with the
// individual results.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, checker := range p.checkers {
		checkCtx, checkCancel := context.WithTimeout(ctx, p.checkTimeout)
		result := checker.Check(checkCtx)
		checkCancel()
		if !result.Healthy {
			ready = false
		}
		results = append(results, result)
	}
	return ready, results
}

// DatabaseChecker verifies the credential store answers a ping.
type DatabaseChecker struct {
	ping func(ctx context.Context) error
}

func NewDatabaseChecker(ping func(ctx context.Context) error) *DatabaseChecker {
	return &DatabaseChecker{ping: ping}
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Name: "database", Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: "database", Healthy: true}
}
