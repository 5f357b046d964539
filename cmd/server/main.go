package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/api"
	"mailtriage/internal/classifier"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/mailbox"
	"mailtriage/internal/poller"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/config"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/mq"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)

	// Init RabbitMQ Publisher (optional: no MQ URL means no events)
	var publisher triage.EventPublisher
	if cfg.MQ.URL != "" {
		pub, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("failed to init publisher", zap.Error(err))
		}
		defer pub.Close()
		publisher = pub
	} else {
		log.Info("No MQ URL configured, event publishing disabled")
	}

	secrets, err := util.NewSecretCodec(cfg.Secrets.AppCodeKey)
	if err != nil {
		log.Fatal("Invalid app code key", zap.Error(err))
	}
	if secrets == nil {
		log.Warn("No app code key configured, treating stored app codes as plaintext")
	}

	// Init Repositories
	accountRepo := repository.NewMailAccountRepository(dbConn)
	inquiryRepo := repository.NewSalesInquiryRepository(dbConn)
	otherRepo := repository.NewOtherMessageRepository(dbConn)

	// Init pipeline
	fetcher := mailbox.NewFetcher(cfg.IMAP, log)
	classifierClient := classifier.NewClient(cfg.Classifier)

	triageService := triage.NewService(
		accountRepo,
		fetcher,
		classifierClient,
		inquiryRepo,
		otherRepo,
		deduper,
		publisher,
		secrets,
		log,
	)

	// Optional interval trigger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.New(triageService, cfg.Poller.Interval(), log).Start(ctx)

	// Init Handlers
	triageHandler := api.NewTriageHandler(triageService, log)
	queryHandler := api.NewQueryHandler(inquiryRepo, otherRepo)

	// Router
	router := httpserver.NewRouter(triageHandler, queryHandler, cfg.JWT.Secret)

	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("server start failed", zap.Error(err))
	}
}
