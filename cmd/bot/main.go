package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/alina-bot/internal/bot"
	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/chat"
	"github.com/Proton-105/alina-bot/internal/database"
	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/health"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/idempotency"
	"github.com/Proton-105/alina-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/alina-bot/internal/jobs/handlers"
	"github.com/Proton-105/alina-bot/internal/lifecycle"
	"github.com/Proton-105/alina-bot/internal/llm"
	"github.com/Proton-105/alina-bot/internal/middleware"
	"github.com/Proton-105/alina-bot/internal/payment"
	"github.com/Proton-105/alina-bot/internal/persona"
	"github.com/Proton-105/alina-bot/internal/ratelimit"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/internal/scheduler"
	"github.com/Proton-105/alina-bot/internal/server"
	"github.com/Proton-105/alina-bot/internal/session"
	"github.com/Proton-105/alina-bot/internal/state"
	"github.com/Proton-105/alina-bot/internal/user"
	"github.com/Proton-105/alina-bot/internal/usercache"
	"github.com/Proton-105/alina-bot/pkg/config"
	"github.com/Proton-105/alina-bot/pkg/graceful"
	"github.com/Proton-105/alina-bot/pkg/logger"
	"github.com/Proton-105/alina-bot/pkg/metrics"
	"github.com/Proton-105/alina-bot/pkg/redis"
)

const (
	userCacheTTL          = 15 * time.Minute
	sessionSweepInterval  = 10 * time.Minute
	rateLimitSweepEvery   = 5 * time.Minute
	rateLimitMaxAge       = 10 * time.Minute
	idempotencySweepEvery = time.Hour
	idempotencyMaxTTL     = 24 * time.Hour
	promptTTL             = 30 * time.Minute
	stateMetricsInterval  = 30 * time.Second
	workerConcurrency     = 10
	llmBreakerOpen        = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: sentryEnvironment(cfg),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init sentry: %v\n", err)
			return 1
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(cfg.Log, cfg.Sentry.Enabled)
	slog.SetDefault(log)

	log.Info("starting alina bot",
		slog.String("env", cfg.AppEnv),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("session_backend", cfg.Session.Backend),
	)

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("config file changed, restart to apply", slog.String("file", e.Name))
		})
		v.WatchConfig()
	}

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("bot stopped with error", slog.Any("error", err))
		return 1
	}

	log.Info("alina bot stopped")
	return 0
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	if err := database.Migrate(db, cfg.Database.Driver, log); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		MaxRetries:   3,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			log.Warn("failed to close redis client", slog.Any("error", cerr))
		}
	}()
	kv := redis.NewMetricsClient(redisClient)

	locales, err := i18n.Load(cfg.Persona.LocalesDir, cfg.Persona.Locale)
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}
	texts := locales.Translator(cfg.Persona.Locale)

	tables, err := persona.NewStore(cfg.Persona.KeywordsFile, log)
	if err != nil {
		return err
	}

	var (
		sessions      session.Store
		memorySession *session.MemoryStore
	)
	switch cfg.Session.Backend {
	case "redis":
		sessions = session.NewRedisStore(kv, cfg.Session.TTL)
	default:
		memorySession = session.NewMemoryStore(cfg.Session.TTL, cfg.Session.MaxUsers, log)
		sessions = memorySession
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}
	completer := llm.NewClient(provider, llm.ClientOptions{
		Timeout:     cfg.LLM.Timeout,
		RetryDelay:  cfg.LLM.RetryDelay,
		OpenTimeout: llmBreakerOpen,
	}, log)

	userRepo := repository.NewUserRepository(db, log)
	messageRepo := repository.NewMessageRepository(db, log)
	paymentRepo := repository.NewPaymentRepository(db, log)
	reminderRepo := repository.NewReminderRepository(db, log)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	jobManager := jobs.NewManager(redisOpt, cfg.Subscription.RenewalLead, log)
	defer func() {
		if cerr := jobManager.Close(); cerr != nil {
			log.Warn("failed to close job manager", slog.Any("error", cerr))
		}
	}()

	users := user.NewService(userRepo, usercache.NewCache(kv, userCacheTTL), cfg.Subscription.FreeMessages, log)
	rnd := chat.NewRand(time.Now().UnixNano())
	conversation := chat.NewService(chat.Deps{
		Users:      users,
		Messages:   messageRepo,
		Sessions:   sessions,
		Classifier: persona.NewClassifier(tables),
		Assembler:  persona.NewAssembler(tables),
		LLM:        completer,
		Trimmer:    jobManager,
		Rand:       rnd,
	}, chat.Options{
		HistoryLimit:  cfg.LLM.HistoryLimit,
		MaxReplyChars: cfg.LLM.MaxReplyChars,
	}, log)

	tb, err := bot.NewTelebot(cfg.Telegram)
	if err != nil {
		return err
	}
	keyboards := keyboard.NewBuilder(texts)
	plans := payment.PlansFromConfig(cfg.Subscription)
	notifier := bot.NewNotifier(tb, texts, keyboards, plans, log)

	reminders, err := scheduler.New(reminderRepo, notifier, func(t domain.ReminderType) string {
		return texts.T("reminder." + string(t))
	}, log)
	if err != nil {
		return err
	}
	restored, err := reminders.RestoreAll(ctx)
	if err != nil {
		return err
	}
	log.Info("reminders restored", slog.Int("count", restored))

	worker := jobs.NewWorker(redisOpt, jobs.Queues, workerConcurrency, log)
	worker.RegisterHandler(jobs.TaskTypeRenewalNudge, jobhandlers.NewRenewalNudgeHandler(users, notifier, log))
	worker.RegisterHandler(jobs.TaskTypeHistoryTrim, jobhandlers.NewHistoryTrimHandler(messageRepo, log))
	worker.RegisterHandler(jobs.TaskTypeHistorySweep, jobhandlers.NewHistorySweepHandler(messageRepo, log))
	worker.RegisterHandler(jobs.TaskTypePaymentsExpire, jobhandlers.NewPaymentsExpireHandler(paymentRepo, log))

	periodic := jobs.NewScheduler(redisOpt, log)
	if err := periodic.RegisterTasks(); err != nil {
		return fmt.Errorf("register periodic tasks: %w", err)
	}

	stars := payment.NewStars(paymentRepo, users, jobManager, plans, log)
	redsys := payment.NewRedsys(cfg.Redsys, paymentRepo, users, jobManager, log)

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(redisClient.Client, log), memoryLimiter, log)
	rules := ratelimit.NewRules(cfg.RateLimit, cfg.Debug.UserIDs)
	rateLimitCleaner := ratelimit.NewCleaner(redisClient.Client, memoryLimiter, log, rateLimitSweepEvery, rateLimitMaxAge)

	idemStore := idempotency.NewRedisStore(redisClient.Client, log)
	idemCleaner := idempotency.NewCleaner(redisClient.Client, log, idempotencySweepEvery, idempotencyMaxTTL)

	state.RegisterTransitionRecorder(metrics.RecordStateTransition)
	fsm := state.NewStateMachine(state.NewRedisStorage(redisClient.Client, log, promptTTL), log, redisClient.Client)

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.Database(db.DB))
	checker.AddCheck("redis", health.Redis(redisClient.Client))
	checker.AddCheck("telegram", health.Telegram(tb))
	probes := lifecycle.NewProbes(checker)

	httpServer := server.New(server.Deps{
		Gateway:  redsys,
		Probes:   probes,
		Notifier: notifier,
		Errors:   errHandler,
	}, log).HTTPServer(cfg.Server.Port, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	alina := bot.New(tb, bot.Deps{
		Handlers: handlers.Deps{
			Users:     users,
			Chat:      conversation,
			Reminders: reminders,
			Stars:     stars,
			Card:      redsys,
			Plans:     plans,
			FSM:       fsm,
			Keyboards: keyboards,
			Texts:     texts,
			Typing:    cfg.Typing,
			Debug:     cfg.Debug,
			Rand:      rnd,
			Log:       log,
		},
		Users:       users,
		Idempotency: idempotency.NewManager(idemStore, log),
		RateLimit:   middleware.NewRateLimitMiddleware(limiter, rules, texts.T("common.rate_limited"), log),
		Errors:      errHandler,
	}, log)

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("telegram", func(context.Context) error {
		alina.Stop()
		return nil
	})
	shutdown.Register("reminders", func(context.Context) error {
		return reminders.Shutdown()
	})
	shutdown.Register("jobs_worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})
	shutdown.Register("jobs_scheduler", func(context.Context) error {
		periodic.Shutdown()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tables.Watch(gctx)
	})
	if memorySession != nil {
		g.Go(func() error {
			memorySession.Run(gctx, sessionSweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		rateLimitCleaner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		idemCleaner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		metrics.NewStateCollector(fsm, stateMetricsInterval).Run(gctx)
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return periodic.Start()
	})
	g.Go(func() error {
		return graceful.NewServer(log, httpServer, cfg.Server.ShutdownTimeout).ListenAndServe(gctx)
	})
	g.Go(func() error {
		reminders.Start()
		alina.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		probes.Drain()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return shutdown.Execute(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}

func closeDB(db *sqlx.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("error closing database", slog.Any("error", err))
	}
}
