package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/queue"
)

func TestRenderScore(t *testing.T) {
	out := renderScore(domain.ScoringResult{
		Score:       9.0,
		RawScore:    20,
		Breakdown:   domain.Breakdown{Domain: 5, Generative: 4},
		TripleMatch: true,
		ThreatLevel: domain.ThreatHigh,
		IsRelevant:  true,
	})

	assert.Contains(t, out, "9.0 / 10")
	assert.Contains(t, out, "Generative")
	assert.Contains(t, out, "Threat: HIGH  Triple match: true  Relevant: true")
}

func TestRenderStats(t *testing.T) {
	oldest := time.Date(2024, time.April, 1, 8, 30, 0, 0, time.UTC)
	out := renderStats(queue.Stats{
		TotalPapers:  2,
		ThreatCounts: map[domain.ThreatLevel]int{domain.ThreatHigh: 1, domain.ThreatMedium: 1},
		AvgScore:     7.4,
		OldestPaper:  &oldest,
	})

	assert.Contains(t, out, "2024-04-01 08:30")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "7.4")
}

func TestRenderQueueHandlesUnscoredPaper(t *testing.T) {
	out := renderQueue([]domain.Paper{{ID: "2401.00001", Title: "Unscored"}})
	assert.Contains(t, out, "2401.00001")
	assert.Contains(t, out, "0.0")
}

func TestScoreCommand(t *testing.T) {
	t.Setenv("ARXIV_INTEL_CONFIG", "")
	configPath = ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{
		"score",
		"--title", "Proprietary Music Generation Using Diffusion Models",
		"--abstract", "We present a novel approach to music generation using proprietary datasets and diffusion transformers. " +
			"Our method leverages exclusive licensed catalogs to train generative models for commercial audio production.",
		"--categories", "cs.SD,cs.LG",
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "9.0 / 10")
	assert.Contains(t, buf.String(), "Threat: HIGH")
}
