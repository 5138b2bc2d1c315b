package arxiv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/ports"
)

const (
	defaultBaseURL = "https://arxiv.org"
	batchSize      = 10
	batchPause     = time.Second
)

var (
	dateExpr     = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	subjectExpr  = regexp.MustCompile(`\(([a-z\-]+(?:\.[A-Za-z\-]+)?)\)`)
	identityExpr = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
)

// ErrInvalidID rejects identifiers that are not new-style arXiv ids.
var ErrInvalidID = errors.New("invalid arxiv id")

// Fetcher scrapes arXiv abstract pages into paper records.
type Fetcher struct {
	client  *http.Client
	baseURL string
	pause   time.Duration
	logger  *slog.Logger
}

var _ ports.PaperFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; baseURL defaults to arxiv.org.
func NewFetcher(client *http.Client, baseURL string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		pause:   batchPause,
		logger:  logger,
	}
}

// Fetch loads https://arxiv.org/abs/<id> and extracts its metadata.
func (f *Fetcher) Fetch(ctx context.Context, arxivID string) (domain.Paper, error) {
	arxivID = strings.TrimSpace(arxivID)
	if !identityExpr.MatchString(arxivID) {
		return domain.Paper{}, fmt.Errorf("%w: %q", ErrInvalidID, arxivID)
	}

	doc, err := f.fetchDocument(ctx, f.baseURL+"/abs/"+arxivID)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", arxivID, err)
	}

	paper := parseAbstractPage(doc, arxivID)
	if paper.Title == "" {
		return domain.Paper{}, fmt.Errorf("paper %s: page has no title", arxivID)
	}
	paper.ArxivURL = "https://arxiv.org/abs/" + arxivID
	paper.PDFURL = "https://arxiv.org/pdf/" + arxivID

	f.logger.Debug("paper fetched", "paper_id", arxivID, "categories", paper.Categories)
	return paper, nil
}

// FetchMany fetches papers in batches of ten with a pause between batches.
// Each fetch fails on its own: a failed paper is logged and left out, and its
// batch siblings carry on. The result keeps the input order.
func (f *Fetcher) FetchMany(ctx context.Context, ids []string) []domain.Paper {
	results := make([]*domain.Paper, len(ids))
	var mu sync.Mutex

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				paper, err := f.Fetch(ctx, ids[i])
				if err != nil {
					f.logger.Warn("fetch paper failed", "paper_id", ids[i], "error", err)
					return nil
				}
				mu.Lock()
				results[i] = &paper
				mu.Unlock()
				return nil
			})
		}
		// Workers never return an error, so Wait only joins them.
		_ = g.Wait()

		if end < len(ids) {
			select {
			case <-ctx.Done():
				return collect(results)
			case <-time.After(f.pause):
			}
		}
	}

	return collect(results)
}

func collect(results []*domain.Paper) []domain.Paper {
	papers := make([]domain.Paper, 0, len(results))
	for _, p := range results {
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers
}

func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ArxivIntel/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func parseAbstractPage(doc *goquery.Document, arxivID string) domain.Paper {
	title := withoutDescriptor(doc.Find("h1.title").First().Text(), "Title:")
	abstract := withoutDescriptor(doc.Find("blockquote.abstract").First().Text(), "Abstract:")

	var authors []string
	doc.Find("div.authors a").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	var categories []string
	seen := map[string]struct{}{}
	subjects := doc.Find("td.subjects").First().Text()
	for _, m := range subjectExpr.FindAllStringSubmatch(subjects, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		categories = append(categories, m[1])
	}

	var published time.Time
	if match := dateExpr.FindString(doc.Find("div.dateline").First().Text()); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			published = parsed
		}
	}

	return domain.Paper{
		ID:         arxivID,
		Title:      title,
		Abstract:   abstract,
		Authors:    authors,
		Categories: categories,
		Published:  published,
	}
}

func withoutDescriptor(text, descriptor string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, descriptor)
	return strings.Join(strings.Fields(text), " ")
}
