package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/infrastructure/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingStorage struct {
	loadErr error
	saveErr error
	saves   int
}

func (f *failingStorage) Load(context.Context) (*domain.QueueSnapshot, error) {
	return nil, f.loadErr
}

func (f *failingStorage) Save(context.Context, domain.QueueSnapshot) error {
	f.saves++
	return f.saveErr
}

var testConfig = Config{MinRelevance: 5.0, DigestThreshold: 5, MaxDaysBetweenDigests: 7}

func newTestQueue(t *testing.T, store *storage.MemoryStorage, clock *fakeClock) *Queue {
	t.Helper()
	return New(context.Background(), testConfig, Deps{Storage: store, Now: clock.Now})
}

func startClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func paper(id string) domain.Paper {
	return domain.Paper{ID: id, Title: "Paper " + id}
}

func scoring(score float64, level domain.ThreatLevel, triple bool) domain.ScoringResult {
	return domain.ScoringResult{Score: score, ThreatLevel: level, TripleMatch: triple, IsRelevant: score >= 5}
}

func TestNewInitializesAndPersistsFreshQueue(t *testing.T) {
	store := storage.NewMemoryStorage()
	clock := startClock()

	q := newTestQueue(t, store, clock)

	assert.Equal(t, 0, q.Count())
	assert.Nil(t, q.LastDigestSentAt())
	assert.Equal(t, clock.now, q.CreatedAt())
	assert.Equal(t, 1, store.Saves())
}

func TestAddStampsAndPersists(t *testing.T) {
	store := storage.NewMemoryStorage()
	clock := startClock()
	q := newTestQueue(t, store, clock)

	added, err := q.Add(context.Background(), paper("a"), scoring(7, domain.ThreatHigh, true))
	require.NoError(t, err)
	require.True(t, added)

	all := q.All()
	require.Len(t, all, 1)
	assert.Equal(t, clock.now, all[0].AddedAt)
	require.NotNil(t, all[0].Scoring)
	assert.Equal(t, 7.0, all[0].Scoring.Score)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Papers, 1)
	assert.Equal(t, "a", snap.Papers[0].ID)
}

func TestAddRejectsDuplicateIdentifier(t *testing.T) {
	store := storage.NewMemoryStorage()
	q := newTestQueue(t, store, startClock())
	ctx := context.Background()

	added, err := q.Add(ctx, paper("a"), scoring(8, domain.ThreatLow, false))
	require.NoError(t, err)
	require.True(t, added)
	saves := store.Saves()

	dup := paper("a")
	dup.Title = "different content, same id"
	added, err = q.Add(ctx, dup, scoring(9, domain.ThreatHigh, true))
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, q.Count())
	assert.Equal(t, saves, store.Saves())
	assert.Equal(t, "Paper a", q.All()[0].Title)
}

func TestAddThresholdGate(t *testing.T) {
	q := newTestQueue(t, storage.NewMemoryStorage(), startClock())
	ctx := context.Background()

	added, err := q.Add(ctx, paper("below"), scoring(testConfig.MinRelevance-1, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = q.Add(ctx, paper("barely-below"), scoring(4.9, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = q.Add(ctx, paper("at"), scoring(testConfig.MinRelevance, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Add(ctx, paper("above"), scoring(testConfig.MinRelevance+1, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, 2, q.Count())
}

func TestAddSurvivesSaveFailure(t *testing.T) {
	store := &failingStorage{saveErr: assert.AnError}
	q := New(context.Background(), testConfig, Deps{Storage: store, Now: startClock().Now})

	added, err := q.Add(context.Background(), paper("a"), scoring(6, domain.ThreatLow, false))

	assert.True(t, added)
	require.ErrorIs(t, err, ErrPersist)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, q.Count())
}

func TestLoadFailureFallsBackToEmptyQueue(t *testing.T) {
	store := &failingStorage{loadErr: assert.AnError}

	q := New(context.Background(), testConfig, Deps{Storage: store, Now: startClock().Now})

	assert.Equal(t, 0, q.Count())
	assert.Nil(t, q.LastDigestSentAt())
	assert.Zero(t, store.saves)
}

func TestCorruptFileFallsBackToEmptyQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	q := New(context.Background(), testConfig, Deps{Storage: storage.NewFileStorage(path), Now: startClock().Now})

	assert.Equal(t, 0, q.Count())
}

func TestRemoveStale(t *testing.T) {
	store := storage.NewMemoryStorage()
	clock := startClock()
	q := newTestQueue(t, store, clock)
	ctx := context.Background()

	_, err := q.Add(ctx, paper("old"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)
	clock.Advance(20 * 24 * time.Hour)
	_, err = q.Add(ctx, paper("recent"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)
	clock.Advance(15 * 24 * time.Hour)

	saves := store.Saves()
	removed, err := q.RemoveStale(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, saves+1, store.Saves())
	require.Len(t, q.All(), 1)
	assert.Equal(t, "recent", q.All()[0].ID)

	// removed identifiers can be queued again
	added, err := q.Add(ctx, paper("old"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.True(t, added)

	saves = store.Saves()
	removed, err = q.RemoveStale(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, saves, store.Saves())
}

func TestClearResetsQueueAndStampsDigestTime(t *testing.T) {
	store := storage.NewMemoryStorage()
	clock := startClock()
	q := newTestQueue(t, store, clock)
	ctx := context.Background()

	_, err := q.Add(ctx, paper("a"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	require.NoError(t, q.Clear(ctx))

	assert.Equal(t, 0, q.Count())
	require.NotNil(t, q.LastDigestSentAt())
	assert.Equal(t, clock.now, *q.LastDigestSentAt())

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Papers)
	require.NotNil(t, snap.LastDigestSentAt)
}

func TestStats(t *testing.T) {
	clock := startClock()
	q := newTestQueue(t, storage.NewMemoryStorage(), clock)
	ctx := context.Background()

	empty := q.Stats()
	assert.Equal(t, 0, empty.TotalPapers)
	assert.Equal(t, 0.0, empty.AvgScore)
	assert.Nil(t, empty.OldestPaper)
	assert.Equal(t, 0, empty.ThreatCounts[domain.ThreatHigh])

	first := clock.now
	_, _ = q.Add(ctx, paper("a"), scoring(9.0, domain.ThreatHigh, true))
	clock.Advance(time.Minute)
	_, _ = q.Add(ctx, paper("b"), scoring(6.0, domain.ThreatMedium, false))
	clock.Advance(time.Minute)
	_, _ = q.Add(ctx, paper("c"), scoring(5.5, domain.ThreatMedium, true))

	before := q.All()
	stats := q.Stats()

	assert.Equal(t, 3, stats.TotalPapers)
	assert.Equal(t, 1, stats.ThreatCounts[domain.ThreatHigh])
	assert.Equal(t, 2, stats.ThreatCounts[domain.ThreatMedium])
	assert.Equal(t, 0, stats.ThreatCounts[domain.ThreatLow])
	assert.Equal(t, 6.8, stats.AvgScore)
	assert.Equal(t, 2, stats.TripleMatchCount)
	require.NotNil(t, stats.OldestPaper)
	assert.Equal(t, first, *stats.OldestPaper)
	assert.Nil(t, stats.LastDigestSentAt)
	assert.Equal(t, before, q.All())
}

func TestSortedByScoreIsStableAndNonMutating(t *testing.T) {
	q := newTestQueue(t, storage.NewMemoryStorage(), startClock())
	ctx := context.Background()

	for _, tc := range []struct {
		id    string
		score float64
	}{
		{"first-6", 6}, {"top-9", 9}, {"second-6", 6}, {"mid-7", 7}, {"third-6", 6},
	} {
		_, err := q.Add(ctx, paper(tc.id), scoring(tc.score, domain.ThreatLow, false))
		require.NoError(t, err)
	}

	sorted := q.SortedByScore()
	ids := make([]string, 0, len(sorted))
	for _, p := range sorted {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"top-9", "mid-7", "first-6", "second-6", "third-6"}, ids)

	original := make([]string, 0, q.Count())
	for _, p := range q.All() {
		original = append(original, p.ID)
	}
	assert.Equal(t, []string{"first-6", "top-9", "second-6", "mid-7", "third-6"}, original)
}

func TestDigestTriggersOnlyAfterFifthAdd(t *testing.T) {
	q := newTestQueue(t, storage.NewMemoryStorage(), startClock())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		added, err := q.Add(ctx, paper(fmt.Sprintf("p%d", i)), scoring(6, domain.ThreatLow, false))
		require.NoError(t, err)
		require.True(t, added)

		decision := q.ShouldTriggerDigest()
		if i < 5 {
			assert.False(t, decision.ShouldTrigger, "triggered after %d adds", i)
		} else {
			assert.True(t, decision.ShouldTrigger)
			assert.Equal(t, "Paper threshold reached (5/5)", decision.Reason)
		}
	}
}

func TestTimeTriggerAfterClear(t *testing.T) {
	clock := startClock()
	q := newTestQueue(t, storage.NewMemoryStorage(), clock)
	ctx := context.Background()

	require.NoError(t, q.Clear(ctx))
	_, err := q.Add(ctx, paper("a"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)

	clock.Advance(6 * 24 * time.Hour)
	assert.False(t, q.ShouldTriggerDigest().ShouldTrigger)

	clock.Advance(24 * time.Hour)
	decision := q.ShouldTriggerDigest()
	assert.True(t, decision.ShouldTrigger)
	assert.Contains(t, decision.Reason, "7 days since last digest")
}

func TestRoundTripThroughFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	clock := startClock()
	ctx := context.Background()

	q := New(ctx, testConfig, Deps{Storage: storage.NewFileStorage(path), Now: clock.Now})
	_, err := q.Add(ctx, paper("a"), scoring(9, domain.ThreatHigh, true))
	require.NoError(t, err)
	clock.Advance(time.Hour)
	require.NoError(t, q.Clear(ctx))
	clock.Advance(time.Hour)
	_, err = q.Add(ctx, paper("b"), scoring(6, domain.ThreatMedium, false))
	require.NoError(t, err)
	_, err = q.Add(ctx, paper("c"), scoring(7.5, domain.ThreatLow, true))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	restored := New(ctx, testConfig, Deps{Storage: storage.NewFileStorage(path), Now: clock.Now})

	if diff := cmp.Diff(q.Snapshot(), restored.Snapshot()); diff != "" {
		t.Fatalf("restored queue differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, q.CreatedAt(), restored.CreatedAt())
	assert.Equal(t, *q.LastDigestSentAt(), *restored.LastDigestSentAt())
}

func TestTimestampsKeepMicrosecondPrecision(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 123456789, time.UTC)}
	q := newTestQueue(t, storage.NewMemoryStorage(), clock)
	ctx := context.Background()
	want := time.Date(2024, time.March, 1, 12, 0, 0, 123456000, time.UTC)

	_, err := q.Add(ctx, paper("a"), scoring(6, domain.ThreatLow, false))
	require.NoError(t, err)
	assert.Equal(t, want, q.CreatedAt())
	assert.Equal(t, want, q.All()[0].AddedAt)

	require.NoError(t, q.Clear(ctx))
	require.NotNil(t, q.LastDigestSentAt())
	assert.Equal(t, want, *q.LastDigestSentAt())
}
