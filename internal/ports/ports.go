package ports

import (
	"context"
	"time"

	"ArxivIntel/internal/domain"
)

// MentionSource yields feed items that reference arXiv papers, newest first.
type MentionSource interface {
	Check(ctx context.Context) ([]domain.Mention, error)
}

// PaperFetcher resolves an arXiv identifier into paper metadata.
type PaperFetcher interface {
	Fetch(ctx context.Context, arxivID string) (domain.Paper, error)
}

// Summarizer produces competitive-intelligence prose for a scored paper.
type Summarizer interface {
	Summarize(ctx context.Context, paper domain.Paper) (string, error)
}

// QueueStorage persists the paper queue. Load returns a nil snapshot when nothing was saved yet.
type QueueStorage interface {
	Load(ctx context.Context) (*domain.QueueSnapshot, error)
	Save(ctx context.Context, snapshot domain.QueueSnapshot) error
}

// MonitorState is the feed monitor's bookmark.
type MonitorState struct {
	LastSeenItemID string     `json:"lastSeenTweetId"`
	LastCheckedAt  *time.Time `json:"lastCheckedAt"`
}

// StateStore persists the feed monitor bookmark between runs.
type StateStore interface {
	LoadState(ctx context.Context) (MonitorState, error)
	SaveState(ctx context.Context, state MonitorState) error
}

// Email is a rendered digest ready for delivery.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers digest emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Notifier streams short digest notices to chat channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
