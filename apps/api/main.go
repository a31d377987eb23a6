package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/eminingcampus/campus/apps/api/echo"
	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/notify"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
	cachesvc "github.com/eminingcampus/campus/services/cache"
	docsvc "github.com/eminingcampus/campus/services/document"
	emailsvc "github.com/eminingcampus/campus/services/email"
	eventsvc "github.com/eminingcampus/campus/services/events"
	"github.com/eminingcampus/campus/services/jobs"
	logsvc "github.com/eminingcampus/campus/services/logger"
	"github.com/eminingcampus/campus/services/payment/paystack"
	searchsvc "github.com/eminingcampus/campus/services/search"
	"github.com/eminingcampus/campus/storage/database"
	"github.com/eminingcampus/campus/storage/database/ledger"
	sqlxrepos "github.com/eminingcampus/campus/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("API"), conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("DB"), conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	ledgerConf := conf.Ledger
	if ledgerConf.Driver == "postgres" && ledgerConf.DSN == "" {
		ledgerConf.DSN = database.DSN(conf)
	}
	paymentLedger, err := ledger.Open(ledgerConf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening payment ledger: %v", err), err)
	}
	defer func() {
		if err = paymentLedger.Close(); err != nil {
			dbLogger.Error("closing payment ledger", err)
		}
	}()

	// set up infrastructure services
	templates, err := core.ParseEmailTemplates(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(templates, conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(templates, conf, logger)
	}

	var deduper order.Deduper = cachesvc.NewMemoryDeduper(conf.Redis.WebhookTTL)
	if conf.Redis.Addr != "" {
		rdb, err := cachesvc.NewRedisClient(context.Background(), conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer rdb.Close()
		deduper = cachesvc.NewRedisDeduper(rdb, conf.Redis.WebhookTTL)
	}

	var events core.EventPublisher = eventsvc.NewLogPublisher(logger)
	if len(conf.Kafka.Brokers) > 0 {
		producer, err := eventsvc.NewKafkaProducer(conf.Kafka)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to kafka: %v", err), err)
		}
		publisher := eventsvc.NewKafkaPublisher(producer, conf.Kafka, logger)
		defer publisher.Close()
		events = publisher
	}

	var searchIndex catalog.SearchIndex
	if len(conf.Search.ElasticURLs) > 0 {
		es, err := searchsvc.NewElasticClient(conf.Search)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to elasticsearch: %v", err), err)
		}
		index := searchsvc.NewElasticIndex(es, conf.Search)
		if err = index.EnsureIndex(context.Background()); err != nil {
			logger.Error("ensuring course index", err)
		}
		searchIndex = index
	}

	// set up domain services
	notifier := notify.NewDispatcher(mailSvc, nil, conf, logger)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), notifier, conf)
	notifier.SetUsers(usrSvc)

	catalogSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), searchIndex, logger)
	learnSvc := learning.NewService(sqlxrepos.NewLearningRepository(db), learning.Deps{
		Catalog:  catalogSvc,
		Students: usrSvc,
		Notifier: notifier,
		Events:   events,
		Renderer: docsvc.NewCertificateRenderer(conf.AppName),
		Store:    docsvc.NewLocalStore(conf.Media.Root),
		Logger:   logger,
		SiteURL:  conf.SiteURL,
	})
	cartSvc := cart.NewService(sqlxrepos.NewCartRepository(db), catalogSvc, learnSvc)
	orderSvc := order.NewService(sqlxrepos.NewOrderRepository(db), order.Deps{
		Tx:          sqlxrepos.NewTransactor(db),
		Carts:       cartSvc,
		Enroller:    learnSvc,
		Gateway:     paystack.NewClient(conf.Paystack),
		Ledger:      paymentLedger,
		Deduper:     deduper,
		Notifier:    notifier,
		Events:      events,
		Logger:      logger,
		CallbackURL: conf.Paystack.CallbackURL,
		Currency:    conf.Paystack.Currency,
	})
	reviewSvc := review.NewService(sqlxrepos.NewReviewRepository(db), learnSvc)
	discussionSvc := discussion.NewService(sqlxrepos.NewDiscussionRepository(db), catalogSvc, learnSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)

	// =========================================================================
	// Start Background Jobs

	scheduler := jobs.NewScheduler(logger)
	if conf.Jobs.StaleOrderSchedule != "" {
		if err = scheduler.ScheduleStaleOrderExpiry(conf.Jobs.StaleOrderSchedule, orderSvc, conf.Jobs.StaleOrderAfter); err != nil {
			logger.Fatal(err.Error(), err)
		}
	}
	scheduler.Start()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		CatalogSvc:    catalogSvc,
		LearningSvc:   learnSvc,
		CartSvc:       cartSvc,
		OrderSvc:      orderSvc,
		ReviewSvc:     reviewSvc,
		DiscussionSvc: discussionSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		jobsCtx, jobsCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer jobsCancel()
		scheduler.Stop(jobsCtx)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
