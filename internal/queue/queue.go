// Package queue holds scored papers between digests and decides when to flush them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/metrics"
	"ArxivIntel/internal/ports"
)

// ErrPersist wraps storage failures. The in-memory change that preceded it still stands.
var ErrPersist = errors.New("queue not persisted")

// Config enumerates the queue thresholds.
type Config struct {
	MinRelevance          float64
	DigestThreshold       int
	MaxDaysBetweenDigests int
}

// Deps wires the queue to its storage, logger and clock.
type Deps struct {
	Storage ports.QueueStorage
	Logger  *slog.Logger
	Now     func() time.Time
}

// Queue is an ordered, identifier-deduplicated list of scored papers.
// It is not safe for concurrent mutation; callers enqueue sequentially.
type Queue struct {
	cfg     Config
	storage ports.QueueStorage
	logger  *slog.Logger
	now     func() time.Time

	papers           []domain.Paper
	ids              map[string]struct{}
	lastDigestSentAt *time.Time
	createdAt        time.Time
}

// Stats is a read-only aggregate of the queue.
type Stats struct {
	TotalPapers      int                        `json:"totalPapers"`
	ThreatCounts     map[domain.ThreatLevel]int `json:"threatCounts"`
	AvgScore         float64                    `json:"avgScore"`
	TripleMatchCount int                        `json:"tripleMatchCount"`
	OldestPaper      *time.Time                 `json:"oldestPaper"`
	LastDigestSentAt *time.Time                 `json:"lastDigestSentAt"`
}

// New restores the queue from storage. A load failure is logged and yields an
// empty queue; a missing snapshot initializes and saves a fresh one.
func New(ctx context.Context, cfg Config, deps Deps) *Queue {
	q := &Queue{
		cfg:     cfg,
		storage: deps.Storage,
		logger:  deps.Logger,
		now:     deps.Now,
		ids:     map[string]struct{}{},
	}
	if q.logger == nil {
		q.logger = slog.New(slog.DiscardHandler)
	}
	if q.now == nil {
		q.now = time.Now
	}

	q.load(ctx)
	metrics.QueueSize.Set(float64(len(q.papers)))
	return q
}

func (q *Queue) load(ctx context.Context) {
	q.createdAt = q.stamp()
	if q.storage == nil {
		return
	}

	snapshot, err := q.storage.Load(ctx)
	if err != nil {
		metrics.PersistFailures.Inc()
		q.logger.Error("load queue failed, starting empty", "error", err)
		return
	}

	if snapshot == nil {
		if err := q.persist(ctx); err != nil {
			q.logger.Warn("initial queue save failed", "error", err)
		}
		return
	}

	for _, p := range snapshot.Papers {
		if _, dup := q.ids[p.ID]; dup {
			q.logger.Warn("dropping duplicate paper from stored queue", "paper_id", p.ID)
			continue
		}
		q.ids[p.ID] = struct{}{}
		q.papers = append(q.papers, p)
	}
	q.lastDigestSentAt = snapshot.LastDigestSentAt
	if !snapshot.CreatedAt.IsZero() {
		q.createdAt = snapshot.CreatedAt
	}
	q.logger.Debug("queue restored", "papers", len(q.papers))
}

// Add appends the paper with its scoring unless the identifier is already queued
// or the score is below the configured minimum. A non-nil error with a true result
// means the paper was queued in memory but not persisted.
func (q *Queue) Add(ctx context.Context, paper domain.Paper, scoring domain.ScoringResult) (bool, error) {
	if _, dup := q.ids[paper.ID]; dup {
		metrics.QueueAdds.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		q.logger.Info("paper already queued, skipping", "paper_id", paper.ID)
		return false, nil
	}

	if scoring.Score < q.cfg.MinRelevance {
		metrics.QueueAdds.WithLabelValues(metrics.OutcomeBelowThreshold).Inc()
		q.logger.Info("paper below minimum score, not queued",
			"paper_id", paper.ID, "score", scoring.Score, "min_score", q.cfg.MinRelevance)
		return false, nil
	}

	result := scoring
	paper.Scoring = &result
	paper.AddedAt = q.stamp()
	q.papers = append(q.papers, paper)
	q.ids[paper.ID] = struct{}{}

	metrics.QueueAdds.WithLabelValues(metrics.OutcomeAdded).Inc()
	metrics.QueueSize.Set(float64(len(q.papers)))
	q.logger.Info("paper queued", "paper_id", paper.ID, "title", paper.Title, "score", scoring.Score)

	return true, q.persist(ctx)
}

// RemoveStale drops papers added more than maxAgeDays ago and returns how many were removed.
func (q *Queue) RemoveStale(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := q.now().AddDate(0, 0, -maxAgeDays)

	kept := make([]domain.Paper, 0, len(q.papers))
	for _, p := range q.papers {
		if p.AddedAt.Before(cutoff) {
			delete(q.ids, p.ID)
			continue
		}
		kept = append(kept, p)
	}

	removed := len(q.papers) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	q.papers = kept
	metrics.QueueSize.Set(float64(len(q.papers)))
	q.logger.Info("removed stale papers", "removed", removed, "max_age_days", maxAgeDays)
	return removed, q.persist(ctx)
}

// Clear empties the queue after a digest and restarts the time-threshold clock.
func (q *Queue) Clear(ctx context.Context) error {
	sentAt := q.stamp()
	q.papers = nil
	q.ids = map[string]struct{}{}
	q.lastDigestSentAt = &sentAt

	metrics.QueueSize.Set(0)
	q.logger.Info("queue cleared")
	return q.persist(ctx)
}

// Count returns the number of queued papers.
func (q *Queue) Count() int {
	return len(q.papers)
}

// All returns the queued papers in insertion order.
func (q *Queue) All() []domain.Paper {
	return slices.Clone(q.papers)
}

// SortedByScore returns papers best first; equal scores keep insertion order.
func (q *Queue) SortedByScore() []domain.Paper {
	sorted := slices.Clone(q.papers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scoreOf(sorted[i]) > scoreOf(sorted[j])
	})
	return sorted
}

// LastDigestSentAt returns when the queue was last flushed, if ever.
func (q *Queue) LastDigestSentAt() *time.Time {
	return copyTime(q.lastDigestSentAt)
}

// CreatedAt returns when the queue was first initialized.
func (q *Queue) CreatedAt() time.Time {
	return q.createdAt
}

// Stats aggregates the queue without mutating it.
func (q *Queue) Stats() Stats {
	stats := Stats{
		TotalPapers: len(q.papers),
		ThreatCounts: map[domain.ThreatLevel]int{
			domain.ThreatHigh:   0,
			domain.ThreatMedium: 0,
			domain.ThreatLow:    0,
		},
		LastDigestSentAt: copyTime(q.lastDigestSentAt),
	}

	var total float64
	for i, p := range q.papers {
		if i == 0 || p.AddedAt.Before(*stats.OldestPaper) {
			added := p.AddedAt
			stats.OldestPaper = &added
		}
		if p.Scoring == nil {
			continue
		}
		stats.ThreatCounts[p.Scoring.ThreatLevel]++
		total += p.Scoring.Score
		if p.Scoring.TripleMatch {
			stats.TripleMatchCount++
		}
	}

	if len(q.papers) > 0 {
		stats.AvgScore = math.Round(total/float64(len(q.papers))*10) / 10
	}
	return stats
}

// ShouldTriggerDigest evaluates the digest policy against the current queue.
func (q *Queue) ShouldTriggerDigest() Decision {
	policy := Policy{DigestThreshold: q.cfg.DigestThreshold, MaxDaysBetweenDigests: q.cfg.MaxDaysBetweenDigests}
	return policy.Evaluate(len(q.papers), q.lastDigestSentAt, q.now())
}

// Snapshot returns the persisted view of the queue.
func (q *Queue) Snapshot() domain.QueueSnapshot {
	return domain.QueueSnapshot{
		Papers:           slices.Clone(q.papers),
		LastDigestSentAt: copyTime(q.lastDigestSentAt),
		CreatedAt:        q.createdAt,
	}
}

func (q *Queue) persist(ctx context.Context) error {
	if q.storage == nil {
		return nil
	}
	if err := q.storage.Save(ctx, q.Snapshot()); err != nil {
		metrics.PersistFailures.Inc()
		q.logger.Error("save queue failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func scoreOf(p domain.Paper) float64 {
	if p.Scoring == nil {
		return 0
	}
	return p.Scoring.Score
}

// stamp is the current time at microsecond precision, the finest a Postgres
// TIMESTAMPTZ column keeps, so persisted timestamps round-trip exactly.
func (q *Queue) stamp() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
