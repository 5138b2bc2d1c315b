package domain

import "time"

// Paper is the core entity: arXiv metadata enriched by scoring and queueing.
type Paper struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Authors    []string  `json:"authors"`
	Categories []string  `json:"categories"`
	Published  time.Time `json:"published"`
	ArxivURL   string    `json:"arxivUrl,omitempty"`
	PDFURL     string    `json:"pdfUrl,omitempty"`

	// Feed mention that surfaced the paper.
	MentionLink  string `json:"tweetLink,omitempty"`
	MentionTitle string `json:"tweetTitle,omitempty"`
	MentionDate  string `json:"tweetDate,omitempty"`

	AISummary          string     `json:"aiSummary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summaryGeneratedAt,omitempty"`

	Scoring *ScoringResult `json:"scoring,omitempty"`
	AddedAt time.Time      `json:"addedAt"`
}

// Mention is a feed item that links to an arXiv paper.
type Mention struct {
	ArxivID   string
	ItemTitle string
	ItemDate  string
	ItemLink  string
	ArxivURL  string
}

// ThreatLevel is the coarse competitive-risk classification of a paper.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// Breakdown holds the five capped sub-scores.
type Breakdown struct {
	Domain        float64 `json:"domain"`
	Generative    float64 `json:"generative"`
	DataEdge      float64 `json:"dataEdge"`
	Commercial    float64 `json:"commercial"`
	CategoryBoost float64 `json:"categoryBoost"`
}

// ScoringResult is produced once per paper and never mutated afterwards.
type ScoringResult struct {
	Score       float64     `json:"score"`
	Breakdown   Breakdown   `json:"breakdown"`
	TripleMatch bool        `json:"tripleMatch"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	RawScore    float64     `json:"rawScore"`
	IsRelevant  bool        `json:"isRelevant"`
}

// QueueSnapshot is the persisted layout of the paper queue.
type QueueSnapshot struct {
	Papers           []Paper    `json:"papers"`
	LastDigestSentAt *time.Time `json:"lastDigestSentAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}
