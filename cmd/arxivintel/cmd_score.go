package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ArxivIntel/internal/app"
	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/queue"
	"ArxivIntel/internal/scoring"
)

var scoreFlags struct {
	title      string
	abstract   string
	categories []string
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a title and abstract without touching the queue",
	RunE:  runScore,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics and the digest trigger decision",
	RunE:  runStats,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreFlags.title, "title", "", "paper title (required)")
	f.StringVar(&scoreFlags.abstract, "abstract", "", "paper abstract")
	f.StringSliceVar(&scoreFlags.categories, "categories", nil, "arXiv categories, e.g. cs.SD,eess.AS")

	_ = scoreCmd.MarkFlagRequired("title")
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	scorer, err := app.NewScorer(cfg)
	if err != nil {
		return err
	}

	result := scorer.Score(scoring.Input{
		Title:      scoreFlags.title,
		Abstract:   scoreFlags.abstract,
		Categories: scoreFlags.categories,
	})
	fmt.Fprintln(cmd.OutOrStdout(), renderScore(result))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderStats(a.Queue.Stats()))
	fmt.Fprintln(out, a.Queue.ShouldTriggerDigest().Reason)
	if papers := a.Queue.SortedByScore(); len(papers) > 0 {
		fmt.Fprintln(out, renderQueue(papers))
	}
	return nil
}

func newTable() table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	return w
}

func renderScore(r domain.ScoringResult) string {
	w := newTable()
	w.AppendHeader(table.Row{"Component", "Points"})
	w.AppendRows([]table.Row{
		{"Domain", r.Breakdown.Domain},
		{"Generative", r.Breakdown.Generative},
		{"Data edge", r.Breakdown.DataEdge},
		{"Commercial", r.Breakdown.Commercial},
		{"Category boost", r.Breakdown.CategoryBoost},
		{"Raw", r.RawScore},
	})
	w.AppendFooter(table.Row{"Score", fmt.Sprintf("%.1f / 10", r.Score)})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})

	var b strings.Builder
	b.WriteString(w.Render())
	fmt.Fprintf(&b, "\nThreat: %s  Triple match: %t  Relevant: %t", r.ThreatLevel, r.TripleMatch, r.IsRelevant)
	return b.String()
}

func renderStats(s queue.Stats) string {
	w := newTable()
	w.AppendHeader(table.Row{"Metric", "Value"})
	w.AppendRows([]table.Row{
		{"Papers", s.TotalPapers},
		{"HIGH", s.ThreatCounts[domain.ThreatHigh]},
		{"MEDIUM", s.ThreatCounts[domain.ThreatMedium]},
		{"LOW", s.ThreatCounts[domain.ThreatLow]},
		{"Average score", fmt.Sprintf("%.1f", s.AvgScore)},
		{"Triple matches", s.TripleMatchCount},
		{"Oldest paper", formatTime(s.OldestPaper)},
		{"Last digest", formatTime(s.LastDigestSentAt)},
	})
	return w.Render()
}

func renderQueue(papers []domain.Paper) string {
	w := newTable()
	w.AppendHeader(table.Row{"#", "ID", "Score", "Threat", "Title"})
	for i, p := range papers {
		var score float64
		var threat domain.ThreatLevel
		if p.Scoring != nil {
			score, threat = p.Scoring.Score, p.Scoring.ThreatLevel
		}
		w.AppendRow(table.Row{i + 1, p.ID, fmt.Sprintf("%.1f", score), threat, p.Title})
	}
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 60}})
	return w.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
