package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRules reports a keyword rule set that cannot drive the scorer.
var ErrInvalidRules = errors.New("invalid keyword rules")

// Tier is a weighted keyword list.
type Tier struct {
	Weight   float64  `yaml:"weight" json:"weight"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DomainKeywords carries the music/audio vocabulary.
type DomainKeywords struct {
	Tier1 Tier `yaml:"tier1" json:"tier1"`
	Tier2 Tier `yaml:"tier2" json:"tier2"`
}

// GenerativeKeywords carries generative-model vocabulary.
type GenerativeKeywords struct {
	Tier1 Tier `yaml:"tier1" json:"tier1"`
	Tier2 Tier `yaml:"tier2" json:"tier2"`
}

// DataEdgeKeywords carries proprietary-data and rights vocabulary.
type DataEdgeKeywords struct {
	Critical   Tier `yaml:"tier1_critical" json:"tier1_critical"`
	Licensing  Tier `yaml:"tier2_licensing" json:"tier2_licensing"`
	Commercial Tier `yaml:"tier3_commercial" json:"tier3_commercial"`
	Compliance Tier `yaml:"tier4_compliance" json:"tier4_compliance"`
}

// CommercialKeywords carries product and go-to-market vocabulary.
type CommercialKeywords struct {
	Tier1 Tier `yaml:"tier1" json:"tier1"`
	Tier2 Tier `yaml:"tier2" json:"tier2"`
}

// CategorySets lists arXiv category codes that feed the domain bonus and category boost.
type CategorySets struct {
	Audio  []string `yaml:"audio" json:"audio"`
	High   []string `yaml:"high" json:"high"`
	Medium []string `yaml:"medium" json:"medium"`
}

// RuleSet is the full keyword rule data consumed by the scorer.
type RuleSet struct {
	Domain     DomainKeywords     `yaml:"domainKeywords" json:"domainKeywords"`
	Generative GenerativeKeywords `yaml:"generativeKeywords" json:"generativeKeywords"`
	DataEdge   DataEdgeKeywords   `yaml:"dataEdgeKeywords" json:"dataEdgeKeywords"`
	Industry   Tier               `yaml:"industryKeywords" json:"industryKeywords"`
	Commercial CommercialKeywords `yaml:"commercialKeywords" json:"commercialKeywords"`
	Categories CategorySets       `yaml:"categories" json:"categories"`
}

const ruleSetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "tier": {
      "type": "object",
      "required": ["weight", "keywords"],
      "properties": {
        "weight": {"type": "number", "minimum": 0},
        "keywords": {"type": "array", "items": {"type": "string", "minLength": 1}}
      }
    },
    "twoTier": {
      "type": "object",
      "required": ["tier1", "tier2"],
      "properties": {
        "tier1": {"$ref": "#/definitions/tier"},
        "tier2": {"$ref": "#/definitions/tier"}
      }
    }
  },
  "type": "object",
  "required": ["domainKeywords", "generativeKeywords", "dataEdgeKeywords", "industryKeywords", "commercialKeywords"],
  "properties": {
    "domainKeywords": {"$ref": "#/definitions/twoTier"},
    "generativeKeywords": {"$ref": "#/definitions/twoTier"},
    "commercialKeywords": {"$ref": "#/definitions/twoTier"},
    "industryKeywords": {"$ref": "#/definitions/tier"},
    "dataEdgeKeywords": {
      "type": "object",
      "required": ["tier1_critical", "tier2_licensing", "tier3_commercial", "tier4_compliance"],
      "properties": {
        "tier1_critical": {"$ref": "#/definitions/tier"},
        "tier2_licensing": {"$ref": "#/definitions/tier"},
        "tier3_commercial": {"$ref": "#/definitions/tier"},
        "tier4_compliance": {"$ref": "#/definitions/tier"}
      }
    },
    "categories": {
      "type": "object",
      "properties": {
        "audio": {"type": "array", "items": {"type": "string"}},
        "high": {"type": "array", "items": {"type": "string"}},
        "medium": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

// LoadRuleSet reads a YAML (or JSON) rule file and validates it against the rule schema.
// Category sets absent from the file fall back to the defaults.
func LoadRuleSet(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRuleSet(raw)
}

// ParseRuleSet decodes and validates rule data. YAML is a superset of JSON so both work.
func ParseRuleSet(raw []byte) (RuleSet, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return RuleSet{}, fmt.Errorf("%w: decode: %v", ErrInvalidRules, err)
	}
	if doc == nil {
		return RuleSet{}, fmt.Errorf("%w: empty document", ErrInvalidRules)
	}

	// Round-trip through JSON so the schema sees plain JSON types.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: normalize: %v", ErrInvalidRules, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(ruleSetSchema),
		gojsonschema.NewBytesLoader(asJSON),
	)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: schema: %v", ErrInvalidRules, err)
	}
	if !result.Valid() {
		msg := ""
		for i, desc := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += desc.String()
		}
		return RuleSet{}, fmt.Errorf("%w: %s", ErrInvalidRules, msg)
	}

	var rules RuleSet
	if err := json.Unmarshal(asJSON, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("%w: decode: %v", ErrInvalidRules, err)
	}

	defaults := DefaultRuleSet()
	if len(rules.Categories.Audio) == 0 {
		rules.Categories.Audio = defaults.Categories.Audio
	}
	if len(rules.Categories.High) == 0 {
		rules.Categories.High = defaults.Categories.High
	}
	if len(rules.Categories.Medium) == 0 {
		rules.Categories.Medium = defaults.Categories.Medium
	}

	return rules, nil
}

// DefaultRuleSet returns the built-in competitive-intelligence vocabulary.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Domain: DomainKeywords{
			Tier1: Tier{Weight: 0.5, Keywords: []string{
				"music", "audio", "song", "songs", "singing", "vocal", "vocals", "melody", "sound",
			}},
			Tier2: Tier{Weight: 0.3, Keywords: []string{
				"midi", "stems", "timbre", "harmony", "rhythm", "waveform", "symbolic music",
				"instrument", "instruments", "accompaniment", "tempo", "genre", "musical",
			}},
		},
		Generative: GenerativeKeywords{
			Tier1: Tier{Weight: 1.0, Keywords: []string{
				"generative", "generation", "diffusion", "text-to-music", "text-to-audio", "synthesis",
			}},
			Tier2: Tier{Weight: 0.5, Keywords: []string{
				"transformer", "transformers", "autoregressive", "latent", "foundation model",
				"language model", "vae", "gan", "flow matching", "codec",
			}},
		},
		DataEdge: DataEdgeKeywords{
			Critical: Tier{Weight: 0.75, Keywords: []string{
				"proprietary", "exclusive", "in-house", "private dataset", "internal dataset", "curated dataset",
			}},
			Licensing: Tier{Weight: 0.5, Keywords: []string{
				"licensed", "licensing", "license", "copyright", "copyrighted", "rights", "royalty", "royalties", "consent",
			}},
			Commercial: Tier{Weight: 0.5, Keywords: []string{
				"catalog", "catalogs", "commercial", "record label", "production music", "stock music",
			}},
			Compliance: Tier{Weight: 0.25, Keywords: []string{
				"attribution", "watermark", "watermarking", "compliance", "opt-out", "provenance",
			}},
		},
		Industry: Tier{Weight: 0.75, Keywords: []string{
			"record label", "production music", "sync", "sample library", "splice", "catalog", "catalogs",
			"a&r", "advertising", "film", "tv",
		}},
		Commercial: CommercialKeywords{
			Tier1: Tier{Weight: 0.75, Keywords: []string{
				"commercial", "product", "deployed", "deployment", "startup", "platform",
			}},
			Tier2: Tier{Weight: 0.5, Keywords: []string{
				"production", "creators", "users", "market", "real-world", "scalable",
			}},
		},
		Categories: CategorySets{
			Audio:  []string{"cs.SD", "eess.AS", "cs.MM"},
			High:   []string{"cs.SD", "eess.AS"},
			Medium: []string{"cs.LG", "cs.MM", "cs.HC", "cs.CL"},
		},
	}
}

// matcher is an immutable whole-word, case-insensitive keyword predicate.
// Compiled regexps carry no cursor state, so every call is an independent search.
type matcher struct {
	keyword string
	re      *regexp.Regexp
}

func newMatcher(keyword string) matcher {
	return matcher{
		keyword: keyword,
		re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
	}
}

func (m matcher) count(text string) int {
	return len(m.re.FindAllStringIndex(text, -1))
}

func (m matcher) present(text string) bool {
	return m.re.MatchString(text)
}

type compiledTier struct {
	weight   float64
	matchers []matcher
}

func compileTier(t Tier) compiledTier {
	ct := compiledTier{weight: t.Weight, matchers: make([]matcher, 0, len(t.Keywords))}
	for _, kw := range t.Keywords {
		ct.matchers = append(ct.matchers, newMatcher(kw))
	}
	return ct
}

// counted sums occurrences × weight per keyword, capping each keyword's contribution.
func (t compiledTier) counted(text string, perKeywordCap float64) float64 {
	var total float64
	for _, m := range t.matchers {
		if n := m.count(text); n > 0 {
			total += min(float64(n)*t.weight, perKeywordCap)
		}
	}
	return total
}

// flat adds the tier weight once per keyword present.
func (t compiledTier) flat(text string) float64 {
	var total float64
	for _, m := range t.matchers {
		if m.present(text) {
			total += t.weight
		}
	}
	return total
}
