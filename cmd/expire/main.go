// Job - просрочка кодов с истекшим сроком и сверка балансов
// Просрочка на чтении тоже есть, job чистит то, что никто не читал
package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	db "github.com/glkeru/loyalty/rewards/internal/db"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	services "github.com/glkeru/loyalty/rewards/internal/services"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// database
	var storage interf.LedgerStore
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		panic(err)
	}
	storage = dt

	// cache
	var redis interf.CacheStorage
	redis, err = db.NewCacheService()
	if err != nil {
		logger.Error(err.Error())
		redis = nil
	}

	accounts := services.NewAccountService(logger, storage, redis)
	recorder := services.NewRecorder(logger, storage, accounts)
	codes := services.NewCodeGenerator(nil)
	serv := services.NewRedemptionService(logger, storage, nil, accounts, recorder, codes)

	// чистка и сверка независимы, выполняются параллельно
	var expired int64
	var mismatched []uuid.UUID
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		expired, err = serv.SweepExpired(ctx)
		return err
	})
	g.Go(func() (err error) {
		mismatched, err = serv.Reconcile(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error(err.Error())
		return
	}

	logger.Info("Job redemption sweep is finished", zap.Int64("expired", expired))
	if len(mismatched) != 0 {
		logger.Error("Job reconcile found mismatched accounts", zap.Int("count", len(mismatched)))
		return
	}
	logger.Info("Job reconcile is finished")
}
