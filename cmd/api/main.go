package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/heydoc/booking-platform/cmd/mainconfig"
	"github.com/heydoc/booking-platform/internal/api/router"
	"github.com/heydoc/booking-platform/internal/appointments"
	"github.com/heydoc/booking-platform/internal/archive"
	"github.com/heydoc/booking-platform/internal/catalog"
	appconfig "github.com/heydoc/booking-platform/internal/config"
	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/dates"
	"github.com/heydoc/booking-platform/internal/http/handlers"
	"github.com/heydoc/booking-platform/internal/messaging"
	"github.com/heydoc/booking-platform/internal/nlu"
	"github.com/heydoc/booking-platform/internal/notify"
	"github.com/heydoc/booking-platform/internal/observability/metrics"
	"github.com/heydoc/booking-platform/internal/resolve"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/internal/transcribe"
	"github.com/heydoc/booking-platform/internal/webchat"
	"github.com/heydoc/booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	cat, err := catalog.Load(cfg.DoctorsFile)
	if err != nil {
		logger.Error("failed to load doctor directory", "error", err, "path", cfg.DoctorsFile)
		os.Exit(1)
	}
	logger.Info("doctor directory loaded", "doctors", len(cat.Doctors()))

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	botMetrics := metrics.NewConversationMetrics(nil)

	resolver := resolve.NewEngine(cat, logger,
		resolve.WithSearchWindow(time.Duration(cfg.SearchWindowDays)*24*time.Hour),
		resolve.WithMaxResults(cfg.MaxSuggestions),
		resolve.WithMetrics(botMetrics),
	)

	store := buildSessionStore(cfg, awsCfg, logger)
	extractor := buildExtractor(ctx, cfg, cat, logger)

	engineOpts := []conversation.EngineOption{
		conversation.WithFieldPolicy(cfg.FieldPolicy),
		conversation.WithEngineMetrics(botMetrics),
	}

	var history *session.PostgresHistory
	var apptService *appointments.Service
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		history = session.NewPostgresHistory(db)
		engineOpts = append(engineOpts, conversation.WithHistoryRecorder(history))

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		apptService = appointments.NewService(appointments.NewRepository(pool), logger)
	}

	if cfg.ArchiveBucket != "" {
		s3Client := s3.NewFromConfig(awsCfg)
		engineOpts = append(engineOpts,
			conversation.WithArchiver(archive.NewStore(s3Client, cfg.ArchiveBucket, logger)))
	}

	if notifier := buildNotifier(cfg, logger); notifier != nil {
		engineOpts = append(engineOpts, conversation.WithNotifier(notifier))
	}

	engine := conversation.NewEngine(store, resolver, extractor, logger, engineOpts...)

	dispatcher := buildDispatcher(cfg, awsCfg, engine, logger)
	defer func() { _ = dispatcher.Shutdown(context.Background()) }()

	var transcriber transcribe.Transcriber
	if cfg.OpenAIAPIKey != "" {
		whisper, err := transcribe.NewWhisperClient(cfg.OpenAIAPIKey, cfg.WhisperModel, logger)
		if err != nil {
			logger.Error("failed to create whisper client", "error", err)
			os.Exit(1)
		}
		transcriber = whisper
	}

	botHandler := conversation.NewHandler(dispatcher, transcriber, logger)

	var twilioHandler *messaging.Handler
	if cfg.TwilioAuthToken != "" {
		sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
		twilioHandler = messaging.NewHandler(cfg.TwilioAuthToken, dispatcher, transcriber, sender, logger)
	}

	adminHandler := buildAdminHandler(history, apptService, logger)
	webchatHandler := webchat.NewHandler(dispatcher, store, webchat.WidgetJS, logger)

	r := router.New(router.Config{
		Logger:           logger,
		Bot:              botHandler,
		Twilio:           twilioHandler,
		Admin:            adminHandler,
		WebChat:          webchatHandler,
		Metrics:          promhttp.Handler(),
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		BotRatePerSecond: 5,
		BotRateBurst:     10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildSessionStore(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) session.Store {
	switch cfg.SessionBackend {
	case "redis":
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
		return session.NewRedisStore(redis.NewClient(opts),
			session.WithRedisIdleTimeout(cfg.SessionIdleTimeout))
	case "dynamo", "dynamodb":
		logger.Info("using dynamodb session store", "table", cfg.SessionsTable)
		return session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionsTable, logger,
			session.WithDynamoIdleTimeout(cfg.SessionIdleTimeout))
	default:
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(session.WithIdleTimeout(cfg.SessionIdleTimeout))
	}
}

func buildExtractor(ctx context.Context, cfg *appconfig.Config, cat *catalog.Catalog, logger *logging.Logger) nlu.Extractor {
	var clients []nlu.LLMClient

	if cfg.MistralAPIKey != "" {
		client, err := nlu.NewMistralClient(cfg.MistralAPIKey, cfg.MistralModel, logger)
		if err != nil {
			logger.Error("failed to create mistral client", "error", err)
		} else {
			clients = append(clients, client)
		}
	}
	if cfg.GeminiAPIKey != "" {
		client, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			clients = append(clients, client)
		}
	}

	switch len(clients) {
	case 0:
		logger.Warn("no LLM provider configured, using rule-based extractor")
		return nlu.NewRuleExtractor(dates.NewParser(time.Now()), cat)
	case 1:
		return newLLMExtractor(clients[0], cfg, logger)
	default:
		return newLLMExtractor(nlu.NewFallbackLLMClient(clients[0], clients[1], logger), cfg, logger)
	}
}

func newLLMExtractor(client nlu.LLMClient, cfg *appconfig.Config, logger *logging.Logger) nlu.Extractor {
	return nlu.NewLLMExtractor(client, logger,
		nlu.WithExtractorMaxTokens(int32(cfg.LLMMaxTokens)),
		nlu.WithExtractorTemperature(float32(cfg.LLMTemperature)),
	)
}

func buildNotifier(cfg *appconfig.Config, logger *logging.Logger) *notify.ConfirmationNotifier {
	if cfg.SendGridAPIKey == "" || cfg.ContactsFile == "" {
		return nil
	}
	directory, err := notify.LoadDirectory(cfg.ContactsFile)
	if err != nil {
		logger.Warn("failed to load contacts file, email confirmations disabled", "error", err)
		return nil
	}
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return nil
	}
	return notify.NewConfirmationNotifier(sender, directory, logger)
}

func buildDispatcher(cfg *appconfig.Config, awsCfg aws.Config, engine conversation.Service, logger *logging.Logger) conversation.Dispatcher {
	if cfg.UseMemoryQueue || cfg.BookingQueueURL == "" {
		logger.Info("using in-memory job queue")
		return conversation.NewQueueDispatcher(engine, conversation.NewMemoryQueue(64), logger,
			conversation.WithWorkerCount(cfg.WorkerCount))
	}
	logger.Info("using SQS job queue", "queue_url", cfg.BookingQueueURL)
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.BookingQueueURL)
	return conversation.NewQueueDispatcher(engine, queue, logger,
		conversation.WithWorkerCount(cfg.WorkerCount))
}

func buildAdminHandler(history *session.PostgresHistory, appts *appointments.Service, logger *logging.Logger) *handlers.AdminHandler {
	var h handlers.SessionHistory
	if history != nil {
		h = history
	}
	var a handlers.AppointmentManager
	if appts != nil {
		a = appts
	}
	return handlers.NewAdminHandler(h, a, logger)
}
