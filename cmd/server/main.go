package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/listing-market/internal/config"
	"github.com/iliyamo/listing-market/internal/database"
	"github.com/iliyamo/listing-market/internal/ephemeral"
	"github.com/iliyamo/listing-market/internal/handler"
	"github.com/iliyamo/listing-market/internal/logging"
	"github.com/iliyamo/listing-market/internal/mail"
	"github.com/iliyamo/listing-market/internal/middleware"
	"github.com/iliyamo/listing-market/internal/queue"
	"github.com/iliyamo/listing-market/internal/realtime"
	"github.com/iliyamo/listing-market/internal/repository"
	"github.com/iliyamo/listing-market/internal/router"
	"github.com/iliyamo/listing-market/internal/service"
	"github.com/iliyamo/listing-market/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger) // packages logging through slog.Default share the process handler

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server.exit", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	mq, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return err
	}
	defer mq.Close()
	jobs, err := queue.NewPublisher(mq, cfg.MailQueue)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var identity service.IdentityVerifier
	if cfg.FirebaseProjectID != "" {
		fv, err := service.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
		if err != nil {
			return err
		}
		identity = fv
	}

	store := ephemeral.NewRedisStore(rdb)
	codec := utils.NewTokenCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	users := repository.NewUserRepo(db)
	creds := service.NewCredentialService(
		users,
		repository.NewSessionRepo(db),
		store,
		codec,
		service.NewChallengeFlow(store, cfg.ChallengeTTL),
		jobs,
		identity,
		service.CredentialConfig{CodeTTL: cfg.CodeTTL, BcryptCost: cfg.BcryptCost},
		logger,
	)
	tokens := &middleware.TokenAuthenticator{Codec: codec, Blacklist: creds}

	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.PostmarkServerToken != "" {
		if sender, err = mail.NewPostmarkSender(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.MailSender); err != nil {
			return err
		}
	} else {
		logger.Warn("mail.postmark_disabled", "reason", "POSTMARK_SERVER_TOKEN not set")
	}
	consumer := queue.NewConsumer(mail.NewMailer(sender, cfg.CodeTTL), jobs, logger,
		queue.ConsumerConfig{Workers: cfg.MailWorkers})

	comments := realtime.NewCommentHub(realtime.NewHub(logger), repository.NewCommentRepo(db), logger)
	gateway := realtime.NewGateway(logger, comments, tokens,
		realtime.GatewayConfig{OriginPatterns: cfg.WSAllowedOrigins})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID(), logging.RequestLogger(logger), echomw.Recover())

	router.RegisterRoutes(e, handler.NewHealthHandler(db, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(creds),
		middleware.RequireAuth(tokens, creds),
		middleware.RateLimit(config.LoadRateLimitConfig(), rdb, logger),
	)
	router.RegisterRealtime(e, gateway)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx, cfg.RabbitURL, cfg.MailQueue)
	})
	g.Go(func() error {
		logger.Info("server.listen", "addr", ":"+cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
