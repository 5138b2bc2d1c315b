// Package scoring rates papers against the competitive-intelligence rubric:
// five keyword-driven sub-scores, a triple-match bonus and a threat level.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"

	"ArxivIntel/internal/domain"
)

// ErrInvalidWeights reports a combination weight table that cannot produce scores.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Sub-score ceilings.
const (
	DomainCap        = 3.0
	GenerativeCap    = 3.0
	DataEdgeCap      = 4.0
	CommercialCap    = 3.0
	CategoryBoostCap = 2.0

	TripleMatchBonus = 2.0

	domainKeywordCap   = 1.5
	dataEdgeKeywordCap = 2.0
	audioCategoryBonus = 1.0
)

// Weights multiplies each sub-score before summation.
type Weights struct {
	Domain        float64 `yaml:"domain"`
	Generative    float64 `yaml:"generative"`
	DataEdge      float64 `yaml:"dataEdge"`
	Commercial    float64 `yaml:"commercial"`
	CategoryBoost float64 `yaml:"categoryBoost"`
}

// DefaultWeights favours the data-edge signal.
func DefaultWeights() Weights {
	return Weights{Domain: 1.0, Generative: 1.0, DataEdge: 1.5, Commercial: 1.0, CategoryBoost: 0.5}
}

// ThresholdPair is a minimum pair of sub-scores used by threat classification.
type ThresholdPair struct {
	DataEdge   float64 `yaml:"dataEdge"`
	Commercial float64 `yaml:"commercial"`
	Generative float64 `yaml:"generative"`
}

// ThreatThresholds holds the HIGH (data edge + generative) and MEDIUM (commercial + generative) rules.
type ThreatThresholds struct {
	High   ThresholdPair `yaml:"high"`
	Medium ThresholdPair `yaml:"medium"`
}

// DefaultThreatThresholds returns the stock classification thresholds.
func DefaultThreatThresholds() ThreatThresholds {
	return ThreatThresholds{
		High:   ThresholdPair{DataEdge: 2.0, Generative: 1.5},
		Medium: ThresholdPair{Commercial: 1.5, Generative: 1.0},
	}
}

// Config enumerates everything the scorer consumes.
type Config struct {
	Rules        RuleSet
	Weights      Weights
	Thresholds   ThreatThresholds
	MinRelevance float64
}

// Input is the slice of a paper the scorer reads.
type Input struct {
	Title      string
	Abstract   string
	Categories []string
}

// InputFromPaper projects a paper onto scorer input.
func InputFromPaper(p domain.Paper) Input {
	return Input{Title: p.Title, Abstract: p.Abstract, Categories: p.Categories}
}

// Independent pattern families for the triple-match test. They may overlap with
// the tiered keyword lists and are never mutated after init.
var (
	tripleDomainPattern = regexp.MustCompile(`(?i)\b(music|audio|sound|waveform|symbolic|midi|stems|harmonic|timbre|melody|rhythm)\b`)
	tripleModelPattern  = regexp.MustCompile(`(?i)\b(generative|diffusion|transformer|autoregressive|latent|flow|foundation)\b`)
	tripleDataPattern   = regexp.MustCompile(`(?i)\b(proprietary|private|in[-\s]house|internal|owned|rights|licens(e|ing|ed)|consent|commercial|dataset|corpus|curation|synthetic data|copyright|watermark|attribution|compliance)\b`)
	exclusivityPattern  = regexp.MustCompile(`(?i)\b(proprietary|exclusive|private|in[-\s]house)\b`)
)

// Scorer is safe for concurrent use; it holds only immutable compiled rules.
type Scorer struct {
	weights      Weights
	thresholds   ThreatThresholds
	minRelevance float64
	maxRaw       float64

	audioCats  []string
	highCats   []string
	mediumCats []string

	domainT1, domainT2       compiledTier
	genT1, genT2             compiledTier
	dataT1, dataT2           compiledTier
	dataT3, dataT4           compiledTier
	industry, commT1, commT2 compiledTier
}

// NewScorer compiles the rule set. Malformed weights are reported as ErrInvalidWeights.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := validateWeights(cfg.Weights); err != nil {
		return nil, err
	}

	r := cfg.Rules
	s := &Scorer{
		weights:      cfg.Weights,
		thresholds:   cfg.Thresholds,
		minRelevance: cfg.MinRelevance,
		maxRaw:       MaxRawScore(cfg.Weights),
		audioCats:    slices.Clone(r.Categories.Audio),
		highCats:     slices.Clone(r.Categories.High),
		mediumCats:   slices.Clone(r.Categories.Medium),
		domainT1:     compileTier(r.Domain.Tier1),
		domainT2:     compileTier(r.Domain.Tier2),
		genT1:        compileTier(r.Generative.Tier1),
		genT2:        compileTier(r.Generative.Tier2),
		dataT1:       compileTier(r.DataEdge.Critical),
		dataT2:       compileTier(r.DataEdge.Licensing),
		dataT3:       compileTier(r.DataEdge.Commercial),
		dataT4:       compileTier(r.DataEdge.Compliance),
		industry:     compileTier(r.Industry),
		commT1:       compileTier(r.Commercial.Tier1),
		commT2:       compileTier(r.Commercial.Tier2),
	}
	return s, nil
}

func validateWeights(w Weights) error {
	all := []float64{w.Domain, w.Generative, w.DataEdge, w.Commercial, w.CategoryBoost}
	var sum float64
	for _, v := range all {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidWeights)
		}
		sum += v
	}
	if sum == 0 {
		return fmt.Errorf("%w: weight table is empty", ErrInvalidWeights)
	}
	return nil
}

// MaxRawScore is the ceiling of the raw score: every sub-score at its cap plus the triple bonus.
// With the default weights this is 3 + 3 + 6 + 3 + 1 + 2 = 18.
func MaxRawScore(w Weights) float64 {
	return DomainCap*w.Domain +
		GenerativeCap*w.Generative +
		DataEdgeCap*w.DataEdge +
		CommercialCap*w.Commercial +
		CategoryBoostCap*w.CategoryBoost +
		TripleMatchBonus
}

// MaxRawScore reports the normalization ceiling this scorer was built with.
func (s *Scorer) MaxRawScore() float64 {
	return s.maxRaw
}

// Score rates a single paper. It never fails on well-formed input.
func (s *Scorer) Score(in Input) domain.ScoringResult {
	text := in.Title + " " + in.Abstract

	b := domain.Breakdown{
		Domain:        s.domainScore(text, in.Categories),
		Generative:    s.generativeScore(text),
		DataEdge:      s.dataEdgeScore(text),
		Commercial:    s.commercialScore(text),
		CategoryBoost: s.categoryBoost(in.Categories),
	}

	weighted := b.Domain*s.weights.Domain +
		b.Generative*s.weights.Generative +
		b.DataEdge*s.weights.DataEdge +
		b.Commercial*s.weights.Commercial +
		b.CategoryBoost*s.weights.CategoryBoost

	triple := HasTripleMatch(text)
	raw := weighted
	if triple {
		raw += TripleMatchBonus
	}

	score := round1(min(raw/s.maxRaw, 1) * 10)

	return domain.ScoringResult{
		Score:       score,
		Breakdown:   b,
		TripleMatch: triple,
		ThreatLevel: s.classify(b, text),
		RawScore:    raw,
		IsRelevant:  score >= s.minRelevance,
	}
}

// ScorePaper scores p and returns a copy carrying the result.
func (s *Scorer) ScorePaper(p domain.Paper) domain.Paper {
	result := s.Score(InputFromPaper(p))
	p.Scoring = &result
	return p
}

// ScoreAll scores every paper in order.
func (s *Scorer) ScoreAll(papers []domain.Paper) []domain.Paper {
	out := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		out = append(out, s.ScorePaper(p))
	}
	return out
}

// FilterResult is the outcome of a batch relevance filter.
type FilterResult struct {
	Relevant      []domain.Paper
	FilteredOut   int
	TotalAnalyzed int
}

// FilterRelevant scores papers and keeps the relevant ones, best first.
func (s *Scorer) FilterRelevant(papers []domain.Paper) FilterResult {
	scored := s.ScoreAll(papers)
	relevant := make([]domain.Paper, 0, len(scored))
	for _, p := range scored {
		if p.Scoring.IsRelevant {
			relevant = append(relevant, p)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Scoring.Score > relevant[j].Scoring.Score
	})
	return FilterResult{
		Relevant:      relevant,
		FilteredOut:   len(papers) - len(relevant),
		TotalAnalyzed: len(papers),
	}
}

func (s *Scorer) domainScore(text string, categories []string) float64 {
	score := s.domainT1.counted(text, domainKeywordCap) + s.domainT2.flat(text)
	if anyIn(categories, s.audioCats) {
		score += audioCategoryBonus
	}
	return min(score, DomainCap)
}

func (s *Scorer) generativeScore(text string) float64 {
	return min(s.genT1.flat(text)+s.genT2.flat(text), GenerativeCap)
}

func (s *Scorer) dataEdgeScore(text string) float64 {
	score := s.dataT1.counted(text, dataEdgeKeywordCap) +
		s.dataT2.counted(text, dataEdgeKeywordCap) +
		s.dataT3.flat(text) +
		s.dataT4.flat(text)
	return min(score, DataEdgeCap)
}

func (s *Scorer) commercialScore(text string) float64 {
	return min(s.industry.flat(text)+s.commT1.flat(text)+s.commT2.flat(text), CommercialCap)
}

func (s *Scorer) categoryBoost(categories []string) float64 {
	switch {
	case anyIn(categories, s.highCats):
		return 2
	case anyIn(categories, s.mediumCats):
		return 1
	default:
		return 0
	}
}

// classify applies the HIGH rule before the MEDIUM rule; the first match wins.
func (s *Scorer) classify(b domain.Breakdown, text string) domain.ThreatLevel {
	high := s.thresholds.High
	if b.DataEdge >= high.DataEdge && b.Generative >= high.Generative {
		if exclusivityPattern.MatchString(text) {
			return domain.ThreatHigh
		}
		return domain.ThreatMedium
	}

	medium := s.thresholds.Medium
	if b.Commercial >= medium.Commercial && b.Generative >= medium.Generative {
		return domain.ThreatMedium
	}

	return domain.ThreatLow
}

// HasTripleMatch reports whether text mentions domain, model and data-rights terms.
// Each family is a fresh search; nothing carries over between calls.
func HasTripleMatch(text string) bool {
	return tripleDomainPattern.MatchString(text) &&
		tripleModelPattern.MatchString(text) &&
		tripleDataPattern.MatchString(text)
}

func anyIn(values, set []string) bool {
	for _, v := range values {
		if slices.Contains(set, v) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
