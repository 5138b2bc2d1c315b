package queue

import (
	"fmt"
	"math"
	"time"
)

// Policy decides when the queued papers should be flushed as a digest.
type Policy struct {
	DigestThreshold       int
	MaxDaysBetweenDigests int
}

// Trigger names the threshold that fired.
type Trigger string

const (
	TriggerNone   Trigger = ""
	TriggerCount  Trigger = "count"
	TriggerTime   Trigger = "time"
	TriggerManual Trigger = "manual"
)

// Decision is the outcome of a trigger evaluation.
type Decision struct {
	ShouldTrigger bool    `json:"shouldTrigger"`
	Reason        string  `json:"reason"`
	Trigger       Trigger `json:"trigger,omitempty"`
}

// Evaluate is pure: the count threshold wins over the time threshold, and the
// time threshold only fires for a non-empty queue that has seen a digest before.
func (p Policy) Evaluate(count int, lastDigestSentAt *time.Time, now time.Time) Decision {
	if count >= p.DigestThreshold {
		return Decision{
			ShouldTrigger: true,
			Reason:        fmt.Sprintf("Paper threshold reached (%d/%d)", count, p.DigestThreshold),
			Trigger:       TriggerCount,
		}
	}

	if lastDigestSentAt != nil {
		days := now.Sub(*lastDigestSentAt).Hours() / 24
		if days >= float64(p.MaxDaysBetweenDigests) && count > 0 {
			return Decision{
				ShouldTrigger: true,
				Reason: fmt.Sprintf("Time threshold reached (%d days since last digest, max %d days)",
					int(math.Floor(days)), p.MaxDaysBetweenDigests),
				Trigger: TriggerTime,
			}
		}
	}

	return Decision{
		ShouldTrigger: false,
		Reason: fmt.Sprintf("Waiting for more papers (%d/%d) or %d days",
			count, p.DigestThreshold, p.MaxDaysBetweenDigests),
	}
}
