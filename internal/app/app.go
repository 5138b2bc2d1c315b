package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ArxivIntel/internal/config"
	"ArxivIntel/internal/digest"
	"ArxivIntel/internal/infrastructure/arxiv"
	"ArxivIntel/internal/infrastructure/feed"
	"ArxivIntel/internal/infrastructure/llm"
	"ArxivIntel/internal/infrastructure/mail"
	"ArxivIntel/internal/infrastructure/scheduler"
	"ArxivIntel/internal/infrastructure/sns"
	"ArxivIntel/internal/infrastructure/state"
	"ArxivIntel/internal/infrastructure/storage"
	"ArxivIntel/internal/infrastructure/telegram"
	"ArxivIntel/internal/logging"
	"ArxivIntel/internal/ports"
	"ArxivIntel/internal/queue"
	"ArxivIntel/internal/scoring"
	"ArxivIntel/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	Scorer   *scoring.Scorer
	Queue    *queue.Queue
	Pipeline *usecase.Pipeline

	scheduler *usecase.Scheduler
	closers   []func() error
}

// New builds every adapter named by cfg. Close releases database and redis
// connections opened here.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	scorer, err := NewScorer(cfg)
	if err != nil {
		return nil, err
	}
	a.Scorer = scorer

	queueStorage, err := a.newQueueStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = queue.New(ctx, queue.Config{
		MinRelevance:          cfg.Queue.MinRelevanceScore,
		DigestThreshold:       cfg.Queue.DigestThreshold,
		MaxDaysBetweenDigests: cfg.Queue.MaxDaysBetweenDigests,
	}, queue.Deps{
		Storage: queueStorage,
		Logger:  logging.Component(baseLogger, "queue"),
	})

	httpClient := &http.Client{Timeout: cfg.Arxiv.Timeout}
	monitor := feed.NewMonitor(cfg.Monitor.FeedURLs, httpClient, a.newStateStore(), logging.Component(baseLogger, "monitor"))
	fetcher := arxiv.NewFetcher(httpClient, cfg.Arxiv.BaseURL, logging.Component(baseLogger, "fetcher"))

	var summarizer ports.Summarizer
	if cfg.AI.Enabled {
		client, err := llm.NewAnthropicClient(cfg.AI)
		if err != nil {
			a.Close()
			return nil, err
		}
		summarizer = client
	}

	mailer, err := newMailer(ctx, cfg.Email)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifiers, err := newNotifiers(ctx, cfg.Notifications)
	if err != nil {
		a.Close()
		return nil, err
	}

	formatter, err := digest.NewFormatter(cfg.Email.MaxPapersPerDigest, nil)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:         monitor,
		Fetcher:        fetcher,
		Scorer:         scorer,
		Summarizer:     summarizer,
		Queue:          a.Queue,
		Formatter:      formatter,
		Mailer:         mailer,
		Notifiers:      notifiers,
		OutputDir:      cfg.Output.Dir,
		StaleAfterDays: cfg.Queue.StaleAfterDays,
		Logger:         logging.Component(baseLogger, "pipeline"),
	})
	a.scheduler = usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Monitor.PollInterval),
		a.Pipeline,
		logging.Component(baseLogger, "scheduler"),
	)
	return a, nil
}

// Run polls on the configured interval and serves metrics until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("metrics server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		a.logger.Info("monitor started", "interval", a.cfg.Monitor.PollInterval.String(), "feeds", len(a.cfg.Monitor.FeedURLs))

		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.scheduler.Stop(stopCtx)
	})

	err := g.Wait()
	a.logger.Info("monitor stopped")
	return err
}

// Close releases connections held by storage backends.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewScorer compiles the configured rule set, falling back to the built-in rules.
func NewScorer(cfg config.Config) (*scoring.Scorer, error) {
	rules := scoring.DefaultRuleSet()
	if cfg.Scoring.RulesPath != "" {
		loaded, err := scoring.LoadRuleSet(cfg.Scoring.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	return scoring.NewScorer(scoring.Config{
		Rules:        rules,
		Weights:      cfg.Scoring.Weights,
		Thresholds:   cfg.Scoring.Thresholds,
		MinRelevance: cfg.Queue.MinRelevanceScore,
	})
}

func (a *Application) newQueueStorage(ctx context.Context) (ports.QueueStorage, error) {
	switch a.cfg.Queue.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStorage(), nil
	case config.BackendPostgres:
		db, err := sql.Open("postgres", a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		repo := storage.NewPostgresStorage(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return storage.NewFileStorage(a.cfg.Queue.Path), nil
	}
}

func (a *Application) newStateStore() ports.StateStore {
	if a.cfg.Monitor.StateBackend != config.BackendRedis {
		return state.NewFileStore(a.cfg.Monitor.StatePath)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	return state.NewRedisStore(client, a.cfg.Redis.Key)
}

func newMailer(ctx context.Context, cfg config.EmailConfig) (ports.Mailer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case config.TransportSES:
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		return mail.NewSESMailer(ses.NewFromConfig(awsCfg), cfg.From, cfg.To), nil
	case config.TransportSMTP:
		return mail.NewSMTPMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported email transport %q", cfg.Transport)
	}
}

func newNotifiers(ctx context.Context, cfg config.NotificationConfig) ([]ports.Notifier, error) {
	var out []ports.Notifier
	if cfg.Telegram.Enabled() {
		out = append(out, telegram.NewNotifier(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.SNS.TopicARN != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg.SNS.Region)
		if err != nil {
			return nil, err
		}
		out = append(out, sns.NewNotifier(awssns.NewFromConfig(awsCfg), cfg.SNS.TopicARN))
	}
	return out, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
