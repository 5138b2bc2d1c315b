package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ArxivIntel/internal/digest"
	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/metrics"
	"ArxivIntel/internal/ports"
	"ArxivIntel/internal/queue"
	"ArxivIntel/internal/scoring"
)

// ErrEmptyQueue is returned when a digest is requested with nothing queued.
var ErrEmptyQueue = errors.New("no papers in queue")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.MentionSource
	Fetcher    ports.PaperFetcher
	Scorer     *scoring.Scorer
	Summarizer ports.Summarizer
	Queue      *queue.Queue
	Formatter  *digest.Formatter
	Mailer     ports.Mailer
	Notifiers  []ports.Notifier

	OutputDir      string
	StaleAfterDays int

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline implements the mention → paper → score → queue → digest workflow.
type Pipeline struct {
	source     ports.MentionSource
	fetcher    ports.PaperFetcher
	scorer     *scoring.Scorer
	summarizer ports.Summarizer
	queue      *queue.Queue
	formatter  *digest.Formatter
	mailer     ports.Mailer
	notifiers  []ports.Notifier

	outputDir      string
	staleAfterDays int

	logger *slog.Logger
	now    func() time.Time
}

// Result reports what happened to a single paper.
type Result struct {
	Paper      domain.Paper
	Relevant   bool
	Queued     bool
	DigestSent bool
}

// DigestReport describes a delivered digest.
type DigestReport struct {
	ID         string
	Trigger    queue.Trigger
	PaperCount int
	HighCount  int
	Path       string
	Emailed    bool
}

// batchFetcher is implemented by fetchers that can pace bulk requests.
type batchFetcher interface {
	FetchMany(ctx context.Context, ids []string) []domain.Paper
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:         deps.Source,
		fetcher:        deps.Fetcher,
		scorer:         deps.Scorer,
		summarizer:     deps.Summarizer,
		queue:          deps.Queue,
		formatter:      deps.Formatter,
		mailer:         deps.Mailer,
		notifiers:      deps.Notifiers,
		outputDir:      deps.OutputDir,
		staleAfterDays: deps.StaleAfterDays,
		logger:         deps.Logger,
		now:            deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// PollOnce checks the feed, processes every new mention in order, prunes stale
// papers and finally evaluates the digest trigger so the time threshold fires
// even on quiet days.
func (p *Pipeline) PollOnce(ctx context.Context) error {
	if p.source == nil {
		return nil
	}

	mentions, err := p.source.Check(ctx)
	if err != nil {
		return fmt.Errorf("check feed: %w", err)
	}

	for _, res := range p.handleMentions(ctx, mentions) {
		if res.DigestSent {
			p.logger.Info("digest sent during poll", "paper_id", res.Paper.ID)
		}
	}

	if p.staleAfterDays > 0 {
		if _, err := p.queue.RemoveStale(ctx, p.staleAfterDays); err != nil {
			p.logger.Warn("prune stale papers", "error", err)
		}
	}

	if _, err := p.CheckAndSendDigest(ctx); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) handleMentions(ctx context.Context, mentions []domain.Mention) []Result {
	if len(mentions) == 0 {
		return nil
	}

	byID := make(map[string]domain.Mention, len(mentions))
	ids := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if _, dup := byID[m.ArxivID]; dup {
			continue
		}
		byID[m.ArxivID] = m
		ids = append(ids, m.ArxivID)
	}

	var papers []domain.Paper
	if bf, ok := p.fetcher.(batchFetcher); ok {
		papers = bf.FetchMany(ctx, ids)
	} else {
		for _, id := range ids {
			paper, err := p.fetcher.Fetch(ctx, id)
			if err != nil {
				p.logger.Warn("fetch paper failed", "paper_id", id, "error", err)
				continue
			}
			papers = append(papers, paper)
		}
	}

	results := make([]Result, 0, len(papers))
	for _, paper := range papers {
		res, err := p.Process(ctx, withMention(paper, byID[paper.ID]))
		if err != nil {
			p.logger.Error("process paper", "paper_id", paper.ID, "error", err)
		}
		results = append(results, res)
	}
	return results
}

// HandleMention fetches the paper a feed item points at and processes it.
func (p *Pipeline) HandleMention(ctx context.Context, m domain.Mention) (Result, error) {
	paper, err := p.fetcher.Fetch(ctx, m.ArxivID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch paper %s: %w", m.ArxivID, err)
	}
	return p.Process(ctx, withMention(paper, m))
}

// AddPaper runs the pipeline for a manually supplied arXiv identifier.
func (p *Pipeline) AddPaper(ctx context.Context, arxivID string) (Result, error) {
	return p.HandleMention(ctx, domain.Mention{ArxivID: arxivID})
}

// Process scores the paper and, when relevant, summarizes and enqueues it. A
// digest is sent when the enqueue makes the trigger fire. Summarizer failures
// are not fatal: the paper is queued with a placeholder summary.
func (p *Pipeline) Process(ctx context.Context, paper domain.Paper) (Result, error) {
	log := p.logger.With("paper_id", paper.ID)

	result := p.scorer.Score(scoring.InputFromPaper(paper))
	paper.Scoring = &result
	metrics.PapersScored.WithLabelValues(string(result.ThreatLevel)).Inc()
	log.Info("paper scored",
		"score", result.Score, "threat_level", result.ThreatLevel, "triple_match", result.TripleMatch)

	res := Result{Paper: paper, Relevant: result.IsRelevant}
	if !result.IsRelevant {
		log.Info("paper below relevance threshold", "score", result.Score)
		return res, nil
	}

	if p.summarizer != nil {
		summary, err := p.summarizer.Summarize(ctx, paper)
		if err != nil {
			log.Warn("summarize paper failed", "error", err)
			summary = "Error generating summary: " + err.Error()
		}
		generated := p.now().UTC()
		paper.AISummary = summary
		paper.SummaryGeneratedAt = &generated
	}

	added, addErr := p.queue.Add(ctx, paper, result)
	res.Paper = paper
	res.Queued = added
	if addErr != nil {
		addErr = fmt.Errorf("enqueue paper %s: %w", paper.ID, addErr)
	}
	if !added {
		return res, addErr
	}
	if addErr != nil {
		log.Warn("paper queued in memory only", "error", addErr)
	} else {
		log.Info("paper queued", "queue_size", p.queue.Count())
	}

	// A queued paper counts towards the trigger even if the save failed.
	sent, err := p.CheckAndSendDigest(ctx)
	res.DigestSent = sent
	return res, errors.Join(addErr, err)
}

// CheckAndSendDigest sends a digest when the queue's trigger policy says so.
func (p *Pipeline) CheckAndSendDigest(ctx context.Context) (bool, error) {
	decision := p.queue.ShouldTriggerDigest()
	p.logger.Info("queue status", "reason", decision.Reason, "queued", p.queue.Count())
	if !decision.ShouldTrigger {
		return false, nil
	}

	if _, err := p.SendDigest(ctx, decision.Trigger); err != nil {
		return false, err
	}
	return true, nil
}

// SendDigest renders the queue, archives the HTML, emails it when a mailer is
// configured, notifies chat channels and clears the queue. The queue is kept
// when rendering, archiving or email delivery fails.
func (p *Pipeline) SendDigest(ctx context.Context, trigger queue.Trigger) (DigestReport, error) {
	papers := p.queue.SortedByScore()
	if len(papers) == 0 {
		return DigestReport{}, ErrEmptyQueue
	}

	id := uuid.NewString()
	log := p.logger.With("digest_id", id, "trigger", string(trigger))

	d := p.formatter.Build(papers)
	html, err := p.formatter.HTML(d)
	if err != nil {
		return DigestReport{}, err
	}
	text, err := p.formatter.Text(d)
	if err != nil {
		return DigestReport{}, err
	}

	report := DigestReport{ID: id, Trigger: trigger, PaperCount: d.Total, HighCount: d.High}

	if p.outputDir != "" {
		path, err := p.archive(html)
		if err != nil {
			return DigestReport{}, err
		}
		report.Path = path
		log.Info("digest saved", "path", path)
	}

	if p.mailer != nil {
		email := ports.Email{Subject: digest.Subject(d), HTML: html, Text: text}
		if err := p.mailer.Send(ctx, email); err != nil {
			return DigestReport{}, fmt.Errorf("send digest email: %w", err)
		}
		report.Emailed = true
		log.Info("digest emailed", "subject", email.Subject)
	} else {
		log.Info("email delivery disabled, digest saved to file only")
	}

	notice := digest.Notice(d)
	for _, n := range p.notifiers {
		if err := n.PublishDigest(ctx, notice); err != nil {
			log.Warn("publish digest notice failed", "error", err)
		}
	}

	if err := p.queue.Clear(ctx); err != nil {
		log.Warn("queue cleared in memory only", "error", err)
	}
	metrics.DigestsSent.WithLabelValues(string(trigger)).Inc()
	log.Info("digest delivered", "papers", report.PaperCount, "high", report.HighCount)
	return report, nil
}

func (p *Pipeline) archive(html string) (string, error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(p.outputDir, fmt.Sprintf("digest_%s.html", p.now().UTC().Format("2006-01-02")))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write digest: %w", err)
	}
	return path, nil
}

func withMention(paper domain.Paper, m domain.Mention) domain.Paper {
	paper.MentionLink = m.ItemLink
	paper.MentionTitle = m.ItemTitle
	paper.MentionDate = m.ItemDate
	if paper.ArxivURL == "" && m.ArxivURL != "" {
		paper.ArxivURL = m.ArxivURL
	}
	return paper
}
