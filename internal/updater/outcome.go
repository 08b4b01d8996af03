// SPDX-License-Identifier: MIT

package updater

import (
	"fmt"
	"time"
)

// Kind classifies the result of one update run.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpdated
	KindUnchanged
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindUpdated:
		return "updated"
	case KindUnchanged:
		return "unchanged"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what a run produced.
type Outcome struct {
	Kind      Kind          `json:"-"`
	Bytes     int64         `json:"bytes,omitempty"`
	Err       error         `json:"-"`
	URL       string        `json:"url,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	UserRetry bool          `json:"user_retry"`
	JobID     string        `json:"job_id,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Trigger names what started the run: "retry" for user retries, else "load".
func (o Outcome) Trigger() string {
	if o.UserRetry {
		return "retry"
	}
	return "load"
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindUpdated:
		return fmt.Sprintf("updated(%d bytes)", o.Bytes)
	case KindFailed:
		return fmt.Sprintf("failed(%v)", o.Err)
	default:
		return o.Kind.String()
	}
}
