// HTTP API - начисление, обмен, погашение кодов, балансы, каталог
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/loyalty/rewards/internal/api"
	db "github.com/glkeru/loyalty/rewards/internal/db"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	otel "github.com/glkeru/loyalty/rewards/observability/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("LOYALTY_PORT")
	if port == "" {
		panic("env LOYALTY_PORT is not set")
	}

	// tracing
	ctx := context.Background()
	shutdown := otel.InitTracer(ctx)
	defer shutdown()

	// database
	var storage interf.LedgerStore
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		panic(err)
	}
	storage = dt

	// rewards catalog
	var catalog interf.RewardStorage
	catalog, err = db.NewRewardsDB()
	if err != nil {
		panic(err)
	}

	// cache
	var redis interf.CacheStorage
	redis, err = db.NewCacheService()
	if err != nil {
		logger.Error(err.Error())
		redis = nil
	}

	// services
	accounts := services.NewAccountService(logger, storage, redis)
	recorder := services.NewRecorder(logger, storage, accounts)
	codes := services.NewCodeGenerator(nil)
	serv := services.NewRedemptionService(logger, storage, catalog, accounts, recorder, codes)

	// api handlers
	r := api.NewHandler(serv, logger)
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(r, "loyalty"),
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
