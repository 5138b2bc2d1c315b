package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyEvaluate(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	daysAgo := func(d float64) *time.Time {
		ts := now.Add(-time.Duration(d * 24 * float64(time.Hour)))
		return &ts
	}
	policy := Policy{DigestThreshold: 5, MaxDaysBetweenDigests: 7}

	tests := []struct {
		name     string
		count    int
		lastSent *time.Time
		want     Decision
	}{
		{
			name:  "count threshold reached without prior digest",
			count: 5,
			want:  Decision{ShouldTrigger: true, Reason: "Paper threshold reached (5/5)", Trigger: TriggerCount},
		},
		{
			name:     "count threshold wins regardless of elapsed time",
			count:    6,
			lastSent: daysAgo(0.1),
			want:     Decision{ShouldTrigger: true, Reason: "Paper threshold reached (6/5)", Trigger: TriggerCount},
		},
		{
			name:     "time threshold reached",
			count:    2,
			lastSent: daysAgo(8.5),
			want:     Decision{ShouldTrigger: true, Reason: "Time threshold reached (8 days since last digest, max 7 days)", Trigger: TriggerTime},
		},
		{
			name:     "time threshold exactly at limit",
			count:    1,
			lastSent: daysAgo(7),
			want:     Decision{ShouldTrigger: true, Reason: "Time threshold reached (7 days since last digest, max 7 days)", Trigger: TriggerTime},
		},
		{
			name:     "time threshold with empty queue",
			count:    0,
			lastSent: daysAgo(30),
			want:     Decision{ShouldTrigger: false, Reason: "Waiting for more papers (0/5) or 7 days"},
		},
		{
			name:  "no prior digest never triggers on time",
			count: 4,
			want:  Decision{ShouldTrigger: false, Reason: "Waiting for more papers (4/5) or 7 days"},
		},
		{
			name:     "recent digest",
			count:    3,
			lastSent: daysAgo(2),
			want:     Decision{ShouldTrigger: false, Reason: "Waiting for more papers (3/5) or 7 days"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Evaluate(tt.count, tt.lastSent, now))
		})
	}
}

func TestPolicyEvaluateDoesNotMutateInput(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	copyOf := last

	Policy{DigestThreshold: 1, MaxDaysBetweenDigests: 1}.Evaluate(0, &last, last.Add(48*time.Hour))

	assert.Equal(t, copyOf, last)
}
