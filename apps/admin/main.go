package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/order"
	eventsvc "github.com/eminingcampus/campus/services/events"
	logsvc "github.com/eminingcampus/campus/services/logger"
	searchsvc "github.com/eminingcampus/campus/services/search"
	"github.com/eminingcampus/campus/storage/database"
	sqlxrepos "github.com/eminingcampus/campus/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("ADMIN"), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = db.Ping(); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: sqlxrepos.NewUserRepository(db),
		orders: order.NewService(sqlxrepos.NewOrderRepository(db), order.Deps{
			Tx:       sqlxrepos.NewTransactor(db),
			Events:   eventsvc.NewLogPublisher(logger),
			Logger:   logger,
			Currency: conf.Paystack.Currency,
		}),
	}
	if len(conf.Search.ElasticURLs) > 0 {
		es, err := searchsvc.NewElasticClient(conf.Search)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to elasticsearch: %v", err), err)
		}
		index := searchsvc.NewElasticIndex(es, conf.Search)
		if err = index.EnsureIndex(context.Background()); err != nil {
			logger.Fatal(fmt.Sprintf("ensuring course index: %v", err), err)
		}
		cli.courses = catalog.NewService(sqlxrepos.NewCatalogRepository(db), index, logger)
	}

	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
