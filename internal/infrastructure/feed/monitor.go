package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/metrics"
	"ArxivIntel/internal/ports"
)

var arxivIDExpr = regexp.MustCompile(`(?i)arxiv\.org/abs/(\d{4}\.\d{4,5})`)

// ErrAllFeedsFailed is returned when none of the configured feeds could be parsed.
var ErrAllFeedsFailed = errors.New("all feed sources failed")

// Monitor polls RSS mirrors of a social account for arXiv links.
type Monitor struct {
	urls   []string
	parser *gofeed.Parser
	state  ports.StateStore
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.MentionSource = (*Monitor)(nil)

// NewMonitor tries urls in order on every check; the first one that parses wins.
func NewMonitor(urls []string, client *http.Client, state ports.StateStore, logger *slog.Logger) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "ArxivIntel/1.0"

	return &Monitor{
		urls:   urls,
		parser: parser,
		state:  state,
		logger: logger,
		now:    time.Now,
	}
}

// Check returns mentions from items newer than the stored bookmark, newest first.
// The first run returns every item in the feed.
func (m *Monitor) Check(ctx context.Context) ([]domain.Mention, error) {
	items, err := m.fetch(ctx)
	if err != nil {
		metrics.FeedChecks.WithLabelValues("error").Inc()
		return nil, err
	}

	st, err := m.state.LoadState(ctx)
	if err != nil {
		m.logger.Warn("load monitor state failed, treating as first run", "error", err)
		st = ports.MonitorState{}
	}

	fresh := newerThan(items, st.LastSeenItemID)
	m.logger.Info("feed checked", "items", len(items), "new_items", len(fresh))

	mentions := make([]domain.Mention, 0, len(fresh))
	for _, item := range fresh {
		id := ExtractArxivID(item)
		if id == "" {
			continue
		}
		mentions = append(mentions, domain.Mention{
			ArxivID:   id,
			ItemTitle: item.Title,
			ItemDate:  item.Published,
			ItemLink:  itemID(item),
			ArxivURL:  "https://arxiv.org/abs/" + id,
		})
	}

	if len(fresh) > 0 {
		checked := m.now().UTC()
		next := ports.MonitorState{LastSeenItemID: itemID(items[0]), LastCheckedAt: &checked}
		if err := m.state.SaveState(ctx, next); err != nil {
			m.logger.Error("save monitor state failed", "error", err)
		}
	}

	metrics.FeedChecks.WithLabelValues("ok").Inc()
	m.logger.Info("extracted arxiv mentions", "count", len(mentions))
	return mentions, nil
}

func (m *Monitor) fetch(ctx context.Context) ([]*gofeed.Item, error) {
	var errs []error
	for _, u := range m.urls {
		m.logger.Debug("fetching feed", "url", u)
		parsed, err := m.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			m.logger.Warn("feed source failed", "url", u, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		m.logger.Debug("feed fetched", "url", u, "items", len(parsed.Items))
		return parsed.Items, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFeedsFailed, errors.Join(errs...))
}

// newerThan keeps the items in front of the bookmark. An unknown bookmark
// (rotated out of the feed, or first run) yields every item.
func newerThan(items []*gofeed.Item, lastSeen string) []*gofeed.Item {
	if lastSeen == "" {
		return items
	}
	for i, item := range items {
		if itemID(item) == lastSeen {
			return items[:i]
		}
	}
	return items
}

func itemID(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	return item.GUID
}

// ExtractArxivID looks for an arxiv.org/abs link in content, description, then title.
func ExtractArxivID(item *gofeed.Item) string {
	for _, text := range []string{item.Content, item.Description, item.Title} {
		if match := arxivIDExpr.FindStringSubmatch(text); match != nil {
			return match[1]
		}
	}
	return ""
}
