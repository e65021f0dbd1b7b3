package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/soulart-temple/backend/internal/billing"
	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/config"
	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/guide"
	"github.com/soulart-temple/backend/internal/handlers"
	"github.com/soulart-temple/backend/internal/httpserver"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/migrations"
	"github.com/soulart-temple/backend/internal/session"
	"github.com/soulart-temple/backend/internal/store"
	stripeClient "github.com/soulart-temple/backend/internal/stripe"
	"github.com/soulart-temple/backend/internal/validator"
	"github.com/soulart-temple/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fatal(log, "failed to open database: %v", err)
	}
	defer db.Close()

	logDBTarget(log, "primary", cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fatal(log, "failed to ping database: %v", err)
	}

	if err := runMigrationsWithDirtyFix(db, "primary", log); err != nil {
		fatal(log, "failed to apply database migrations: %v", err)
	}

	st, err := store.New(db)
	if err != nil {
		fatal(log, "failed to create store: %v", err)
	}

	sessions, err := session.NewManager(cfg.SessionSecret, session.WithSecureCookie(strings.HasPrefix(cfg.PublicBaseURL, "https://")))
	if err != nil {
		fatal(log, "failed to create session manager: %v", err)
	}

	cat := catalog.New(catalog.Options{
		GuideDailyLimit:      cfg.GuideDailyLimit,
		DecoderLifetimeLimit: cfg.DecoderLifetimeLimit,
		MembersOnly:          catalog.DefaultOptions().MembersOnly,
	})
	evaluator := entitlement.New(cat, st, log)

	stripe := stripeClient.NewClient(cfg.StripeSecretKey, cfg.StripeProductApp, log)
	if !stripe.Configured() {
		log.Warnf("[stripe] STRIPE_SECRET_KEY not set, billing routes will report unavailable")
	}
	processor := billing.NewProcessor(st, stripe, log, cfg.BillingLookupTimeout)

	guideClient := guide.NewClient(guide.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.GuideTimeout,
	}, log)
	if !guideClient.Configured() {
		log.Warnf("[guide] OPENAI_API_KEY not set, guide chat will report unavailable")
	}

	v := validator.New()
	stripeHandler := handlers.NewStripeHandler(stripe, st, evaluator, processor, v, handlers.StripeOptions{
		PublishableKey: cfg.StripePublishableKey,
		WebhookSecret:  cfg.StripeWebhookSecret,
		BaseURL:        cfg.PublicBaseURL,
	}, log)
	if cfg.StripeWebhookSecret == "" {
		log.Warnf("[webhook] STRIPE_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		DB:           st,
		Sessions:     sessions,
		Members:      st,
		Entitlements: evaluator,
		Guide:        guideClient,
		Stripe:       stripeHandler,
		Auth:         handlers.NewAuthHandler(st, sessions, v, log),
		Journal:      handlers.NewJournalHandler(st, evaluator, v, log),
		Validator:    v,
		Log:          log,
	})

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var janitor *worker.Janitor
	if cfg.UsagePruneSchedule != config.ScheduleOff {
		janitor, err = worker.New(worker.Config{
			Schedule:  cfg.UsagePruneSchedule,
			Retention: cfg.UsageRetention,
		}, st, log)
		if err != nil {
			fatal(log, "failed to create usage janitor: %v", err)
		}
		if err := janitor.Start(shutdownCtx); err != nil {
			fatal(log, "failed to start usage janitor: %v", err)
		}
	}

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if janitor != nil {
			if err := janitor.Stop(ctx); err != nil {
				log.Errorf("janitor shutdown failed: %v", err)
			}
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}
	}()

	log.Infof("backend starting on %s", cfg.ServerAddress)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(log, "server exited with error: %v", err)
	}
}

func fatal(log *logger.Logger, format string, v ...interface{}) {
	log.Errorf(format, v...)
	os.Exit(1)
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, name string, log *logger.Logger) error {
	if err := migrations.Up(db, log); err != nil {
		log.Warnf("migrations(%s): error detected: %v (type: %T)", name, err, err)
		if strings.Contains(err.Error(), "Dirty database version") {
			log.Warnf("migrations(%s): dirty database detected, attempting to fix...", name)
			if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
				log.Errorf("migrations(%s): failed to fix dirty database: %v", name, fixErr)
				return err
			}
			return migrations.Up(db, log)
		}
		return err
	}
	return nil
}

func logDBTarget(log *logger.Logger, name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Infof("db(%s): configured (dsn parse error: %v)", name, err)
		return
	}
	log.Infof("db(%s): host=%s db=%s", name, u.Hostname(), strings.TrimPrefix(u.Path, "/"))
}
