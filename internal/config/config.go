package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ArxivIntel/internal/scoring"
)

const (
	configPathEnv     = "ARXIV_INTEL_CONFIG"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	emailHostEnv      = "EMAIL_HOST"
	emailPortEnv      = "EMAIL_PORT"
	emailUserEnv      = "EMAIL_USER"
	emailPassEnv      = "EMAIL_PASS"
	emailToEnv        = "EMAIL_TO"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Storage and transport backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Arxiv         ArxivConfig        `yaml:"arxiv"`
	Redis         RedisConfig        `yaml:"redis"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Queue         QueueConfig        `yaml:"queue"`
	Database      DatabaseConfig     `yaml:"database"`
	AI            AIConfig           `yaml:"ai"`
	Email         EmailConfig        `yaml:"email"`
	Notifications NotificationConfig `yaml:"notifications"`
	Output        OutputConfig       `yaml:"output"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MonitorConfig describes the feed mirrors polled for paper mentions.
type MonitorConfig struct {
	FeedURLs     []string      `yaml:"feedUrls"`
	PollInterval time.Duration `yaml:"pollInterval"`
	StateBackend string        `yaml:"stateBackend"`
	StatePath    string        `yaml:"statePath"`
}

// ArxivConfig points the paper fetcher at arXiv or a mirror.
type ArxivConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig is used by the redis monitor state backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ScoringConfig carries the rubric tables. An empty RulesPath uses the built-in rule set.
type ScoringConfig struct {
	RulesPath  string                   `yaml:"rulesPath"`
	Weights    scoring.Weights          `yaml:"weights"`
	Thresholds scoring.ThreatThresholds `yaml:"thresholds"`
}

// QueueConfig describes queue thresholds and persistence.
type QueueConfig struct {
	MinRelevanceScore     float64 `yaml:"minRelevanceScore"`
	DigestThreshold       int     `yaml:"digestThreshold"`
	MaxDaysBetweenDigests int     `yaml:"maxDaysBetweenDigests"`
	StaleAfterDays        int     `yaml:"staleAfterDays"`
	Backend               string  `yaml:"backend"`
	Path                  string  `yaml:"path"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AIConfig defines how to contact the Anthropic Messages API.
type AIConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	MaxTokens  int           `yaml:"maxTokens"`
	RateLimit  time.Duration `yaml:"rateLimit"`
	PromptPath string        `yaml:"promptPath"`
}

// EmailConfig selects the digest transport and its credentials.
type EmailConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Transport          string `yaml:"transport"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	From               string `yaml:"from"`
	To                 string `yaml:"to"`
	Region             string `yaml:"region"`
	MaxPapersPerDigest int    `yaml:"maxPapersPerDigest"`
}

// NotificationConfig encapsulates outbound chat channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	SNS      SNSConfig      `yaml:"sns"`
}

// SNSConfig publishes digest notices to an SNS topic when TopicARN is set.
type SNSConfig struct {
	TopicARN string `yaml:"topicArn"`
	Region   string `yaml:"region"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIURL   string `yaml:"apiUrl"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// OutputConfig is where rendered digests are archived.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads defaults, the YAML file named by ARXIV_INTEL_CONFIG, a .env file and
// environment overrides, in that order, and validates the result.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit config path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(emailHostEnv); v != "" {
		c.Email.Host = v
	}
	if v := os.Getenv(emailPortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", emailPortEnv, err)
		}
		c.Email.Port = port
	}
	if v := os.Getenv(emailUserEnv); v != "" {
		c.Email.User = v
		if c.Email.From == "" {
			c.Email.From = v
		}
	}
	if v := os.Getenv(emailPassEnv); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv(emailToEnv); v != "" {
		c.Email.To = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// normalize lowercases the enum-like settings so adapters can compare them directly.
func (c *Config) normalize() {
	c.Email.Transport = strings.ToLower(strings.TrimSpace(c.Email.Transport))
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	c.Monitor.StateBackend = strings.ToLower(strings.TrimSpace(c.Monitor.StateBackend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	w := c.Scoring.Weights
	for _, weight := range []struct {
		name  string
		value float64
	}{
		{"domain", w.Domain},
		{"generative", w.Generative},
		{"dataEdge", w.DataEdge},
		{"commercial", w.Commercial},
		{"categoryBoost", w.CategoryBoost},
	} {
		if weight.value < 0 {
			errs = append(errs, fmt.Errorf("scoring.weights.%s must not be negative", weight.name))
		}
	}
	if w.Domain+w.Generative+w.DataEdge+w.Commercial+w.CategoryBoost <= 0 {
		errs = append(errs, errors.New("scoring.weights must not all be zero"))
	}

	if c.Queue.DigestThreshold <= 0 {
		errs = append(errs, errors.New("queue.digestThreshold must be positive"))
	}
	if c.Queue.MaxDaysBetweenDigests <= 0 {
		errs = append(errs, errors.New("queue.maxDaysBetweenDigests must be positive"))
	}
	if c.Queue.MinRelevanceScore < 0 || c.Queue.MinRelevanceScore > 10 {
		errs = append(errs, errors.New("queue.minRelevanceScore must be within [0, 10]"))
	}
	switch c.Queue.Backend {
	case BackendFile, BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres queue backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend))
	}

	switch c.Monitor.StateBackend {
	case BackendFile:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis state backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("monitor.stateBackend %q is not supported", c.Monitor.StateBackend))
	}
	if len(c.Monitor.FeedURLs) == 0 {
		errs = append(errs, errors.New("monitor.feedUrls must not be empty"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.pollInterval must be positive"))
	}

	if c.Email.Enabled {
		switch strings.ToLower(c.Email.Transport) {
		case TransportSMTP:
			if c.Email.Host == "" || c.Email.Port == 0 {
				errs = append(errs, errors.New("email.host and email.port are required for smtp"))
			}
		case TransportSES:
			if c.Email.Region == "" {
				errs = append(errs, errors.New("email.region is required for ses"))
			}
		default:
			errs = append(errs, fmt.Errorf("email.transport %q is not supported", c.Email.Transport))
		}
		if c.Email.To == "" || c.Email.From == "" {
			errs = append(errs, errors.New("email.from and email.to are required"))
		}
	}

	if c.Notifications.SNS.TopicARN != "" && c.Notifications.SNS.Region == "" {
		errs = append(errs, errors.New("notifications.sns.region is required with a topic"))
	}

	if c.AI.Enabled && c.AI.APIKey == "" {
		errs = append(errs, fmt.Errorf("ai.apiKey (or %s) is required when ai is enabled", anthropicKeyEnv))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Monitor: MonitorConfig{
			FeedURLs: []string{
				"https://nitter.net/arxivsound/rss",
				"https://nitter.privacydev.net/arxivsound/rss",
				"https://nitter.poast.org/arxivsound/rss",
			},
			PollInterval: 30 * time.Minute,
			StateBackend: BackendFile,
			StatePath:    "data/last-seen.json",
		},
		Arxiv: ArxivConfig{BaseURL: "https://arxiv.org", Timeout: 20 * time.Second},
		Redis: RedisConfig{Addr: "", Key: "arxivintel:monitor:state"},
		Scoring: ScoringConfig{
			Weights:    scoring.DefaultWeights(),
			Thresholds: scoring.DefaultThreatThresholds(),
		},
		Queue: QueueConfig{
			MinRelevanceScore:     5.0,
			DigestThreshold:       5,
			MaxDaysBetweenDigests: 7,
			StaleAfterDays:        30,
			Backend:               BackendFile,
			Path:                  "data/paper-queue.json",
		},
		AI: AIConfig{
			Enabled:   false,
			Endpoint:  "https://api.anthropic.com/v1/messages",
			Model:     "claude-3-5-sonnet-20241022",
			MaxTokens: 1024,
			RateLimit: time.Second,
		},
		Email: EmailConfig{
			Enabled:            false,
			Transport:          TransportSMTP,
			Port:               587,
			MaxPapersPerDigest: 20,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
		Output:  OutputConfig{Dir: "output"},
		Metrics: MetricsConfig{Addr: ""},
	}
}
