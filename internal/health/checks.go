// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
)

// BundleChecker reports whether a bundle is cached.
type BundleChecker struct {
	info func() (cache.Info, error)
}

func NewBundleChecker(info func() (cache.Info, error)) *BundleChecker {
	return &BundleChecker{info: info}
}

func (c *BundleChecker) Name() string { return "bundle" }

func (c *BundleChecker) Check(context.Context) CheckResult {
	info, err := c.info()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.HasBundle {
		return CheckResult{Status: StatusUnhealthy, Message: "no cached bundle"}
	}
	if info.Size == 0 {
		return CheckResult{Status: StatusDegraded, Message: "cached bundle is empty"}
	}
	msg := fmt.Sprintf("%d bytes", info.Size)
	if info.Token != "" {
		msg += ", etag " + info.Token
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// RetryChecker reports a pending update failure as degraded.
type RetryChecker struct {
	pending func() error
}

func NewRetryChecker(pending func() error) *RetryChecker {
	return &RetryChecker{pending: pending}
}

func (c *RetryChecker) Name() string { return "update" }

func (c *RetryChecker) Check(context.Context) CheckResult {
	if err := c.pending(); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   err.Error(),
			Message: "last update failed, retry pending on next activity",
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// LastRunChecker reports when the updater last finished and how.
type LastRunChecker struct {
	last   func() (time.Time, string)
	maxAge time.Duration
}

// NewLastRunChecker builds a checker over a function returning the time of the
// last finished run and its outcome. Runs older than maxAge are degraded; zero
// disables the age check.
func NewLastRunChecker(last func() (time.Time, string), maxAge time.Duration) *LastRunChecker {
	return &LastRunChecker{last: last, maxAge: maxAge}
}

func (c *LastRunChecker) Name() string { return "last_update" }

func (c *LastRunChecker) Check(context.Context) CheckResult {
	at, outcome := c.last()
	if at.IsZero() {
		return CheckResult{Status: StatusHealthy, Message: "no update run finished yet"}
	}
	if c.maxAge > 0 && time.Since(at) > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last update %s ago (%s)", time.Since(at).Round(time.Second), outcome),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: outcome}
}
