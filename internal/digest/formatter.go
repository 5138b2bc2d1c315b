// Package digest renders queued papers into HTML, plain-text and chat digests.
package digest

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"regexp"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/dustin/go-humanize"

	"ArxivIntel/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	defaultMaxPapers = 10
	noSummary        = "Summary not available"
)

// Digest is the render model shared by all output formats.
type Digest struct {
	Papers      []domain.Paper
	Total       int
	High        int
	Medium      int
	Low         int
	Period      string
	GeneratedAt time.Time
}

// Formatter renders digests. It is safe for concurrent use.
type Formatter struct {
	maxPapers int
	now       func() time.Time
	html      *htmltemplate.Template
	text      *texttemplate.Template
}

// NewFormatter parses the embedded templates. maxPapers caps the listed papers;
// counts always cover the whole queue.
func NewFormatter(maxPapers int, now func() time.Time) (*Formatter, error) {
	if maxPapers <= 0 {
		maxPapers = defaultMaxPapers
	}
	if now == nil {
		now = time.Now
	}
	f := &Formatter{maxPapers: maxPapers, now: now}

	funcs := map[string]any{
		"inc":         func(i int) int { return i + 1 },
		"authors":     FormatAuthors,
		"score":       scoreOf,
		"threatLabel": threatLabel,
		"threatClass": func(p domain.Paper) string { return strings.ToLower(threatLabel(p)) },
		"threatEmoji": threatEmoji,
		"added":       func(p domain.Paper) string { return humanize.RelTime(p.AddedAt, f.now(), "ago", "from now") },
		"rule":        func(ch string) string { return strings.Repeat(ch, 80) },
		"summaryText": SummaryText,
		"summaryHTML": SummaryHTML,
	}

	html, err := htmltemplate.New("digest.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := texttemplate.New("digest.txt.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/digest.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	f.html, f.text = html, text
	return f, nil
}

// Build sorts papers by score (stable), counts threat levels and caps the listing.
func (f *Formatter) Build(papers []domain.Paper) Digest {
	sorted := make([]domain.Paper, len(papers))
	copy(sorted, papers)
	sort.SliceStable(sorted, func(i, j int) bool { return scoreOf(sorted[i]) > scoreOf(sorted[j]) })

	d := Digest{Total: len(papers), GeneratedAt: f.now()}
	for _, p := range papers {
		switch threatLabel(p) {
		case string(domain.ThreatHigh):
			d.High++
		case string(domain.ThreatMedium):
			d.Medium++
		default:
			d.Low++
		}
	}
	if len(sorted) > f.maxPapers {
		sorted = sorted[:f.maxPapers]
	}
	d.Papers = sorted
	d.Period = collectionPeriod(papers)
	return d
}

// HTML renders the email body.
func (f *Formatter) HTML(d Digest) (string, error) {
	var buf bytes.Buffer
	if err := f.html.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render html digest: %w", err)
	}
	return buf.String(), nil
}

// Text renders the plain-text alternative.
func (f *Formatter) Text(d Digest) (string, error) {
	var buf bytes.Buffer
	if err := f.text.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render text digest: %w", err)
	}
	return buf.String(), nil
}

// Subject is the email subject line.
func Subject(d Digest) string {
	return fmt.Sprintf("ArXiv Intelligence Digest - %d Papers (%d HIGH priority)", d.Total, d.High)
}

// Notice is a short Markdown summary for chat channels.
func Notice(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*ArXiv Intelligence Digest*\n%d papers: %d high, %d medium, %d low\n", d.Total, d.High, d.Medium, d.Low)
	for i, p := range d.Papers {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%s %s/10 [%s](%s)\n", threatEmoji(p), scoreOf(p), escapeMarkdown(p.Title), p.ArxivURL)
	}
	return b.String()
}

// FormatAuthors lists the first three authors followed by "et al.".
func FormatAuthors(authors []string) string {
	if len(authors) <= 3 {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:3], ", ") + " et al."
}

var (
	headingExpr = regexp.MustCompile(`(?m)^##\s*(.+)$`)
	boldExpr    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	bulletExpr  = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
)

// SummaryHTML converts the light Markdown of generated summaries into safe HTML.
func SummaryHTML(summary string) htmltemplate.HTML {
	if strings.TrimSpace(summary) == "" {
		summary = noSummary
	}

	var b strings.Builder
	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}

	for _, block := range strings.Split(strings.ReplaceAll(summary, "\r\n", "\n"), "\n\n") {
		for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case headingExpr.MatchString(line):
				closeList()
				b.WriteString("<h4>" + inline(headingExpr.FindStringSubmatch(line)[1]) + "</h4>")
			case bulletExpr.MatchString(line):
				if !inList {
					b.WriteString("<ul>")
					inList = true
				}
				b.WriteString("<li>" + inline(bulletExpr.FindStringSubmatch(line)[1]) + "</li>")
			default:
				closeList()
				b.WriteString("<p>" + inline(line) + "</p>")
			}
		}
	}
	closeList()
	return htmltemplate.HTML(b.String())
}

func inline(s string) string {
	return boldExpr.ReplaceAllString(htmltemplate.HTMLEscapeString(s), "<strong>$1</strong>")
}

// SummaryText strips Markdown markers for the plain-text digest.
func SummaryText(summary string) string {
	summary = headingExpr.ReplaceAllString(summary, "$1")
	return strings.TrimSpace(strings.ReplaceAll(summary, "**", ""))
}

func collectionPeriod(papers []domain.Paper) string {
	if len(papers) == 0 {
		return ""
	}
	oldest, newest := papers[0].AddedAt, papers[0].AddedAt
	for _, p := range papers[1:] {
		if p.AddedAt.Before(oldest) {
			oldest = p.AddedAt
		}
		if p.AddedAt.After(newest) {
			newest = p.AddedAt
		}
	}
	const layout = "Jan 2, 2006"
	start, end := oldest.Format(layout), newest.Format(layout)
	if start == end {
		return start
	}
	return start + " - " + end
}

func scoreOf(p domain.Paper) string {
	if p.Scoring == nil {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", p.Scoring.Score)
}

func threatLabel(p domain.Paper) string {
	if p.Scoring == nil || p.Scoring.ThreatLevel == "" {
		return string(domain.ThreatLow)
	}
	return string(p.Scoring.ThreatLevel)
}

func threatEmoji(p domain.Paper) string {
	switch threatLabel(p) {
	case string(domain.ThreatHigh):
		return "🔴"
	case string(domain.ThreatMedium):
		return "🟡"
	default:
		return "🟢"
	}
}

var markdownEscaper = strings.NewReplacer("[", "(", "]", ")", "*", "", "_", " ", "`", "'")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
