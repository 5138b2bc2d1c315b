package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ArxivIntel/internal/digest"
	"ArxivIntel/internal/domain"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotType string
		got     sendMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer server.Close()

	f, err := digest.NewFormatter(10, func() time.Time { return time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC) })
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	notice := digest.Notice(f.Build([]domain.Paper{{
		ID:       "2401.00001",
		Title:    "Licensed music diffusion",
		ArxivURL: "https://arxiv.org/abs/2401.00001",
		Scoring:  &domain.ScoringResult{Score: 8.2, ThreatLevel: domain.ThreatHigh},
	}}))

	n := NewNotifier(server.URL+"/", "123:abc", "-100")
	if err := n.PublishDigest(context.Background(), notice); err != nil {
		t.Fatalf("PublishDigest error: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotType != "application/json" {
		t.Fatalf("unexpected content type: %s", gotType)
	}
	if got.ChatID != "-100" || got.ParseMode != "Markdown" || !got.DisableWebPagePreview {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Text != notice || !strings.Contains(got.Text, "(https://arxiv.org/abs/2401.00001)") {
		t.Fatalf("notice not forwarded verbatim: %q", got.Text)
	}
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"bad request", http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, "chat not found"},
		{"ok false with 200", http.StatusOK, `{"ok":false,"error_code":429,"description":"Too Many Requests"}`, "Too Many Requests"},
		{"non json body", http.StatusBadGateway, `upstream down`, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewNotifier(server.URL, "t", "c").PublishDigest(context.Background(), "x")
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestPublishDigestMisconfigured(t *testing.T) {
	t.Parallel()

	for _, n := range []*Notifier{NewNotifier("", "", "c"), NewNotifier("", "t", "")} {
		if err := n.PublishDigest(context.Background(), "x"); !errors.Is(err, ErrMisconfigured) {
			t.Fatalf("expected ErrMisconfigured, got %v", err)
		}
	}
}
