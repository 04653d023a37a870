// Job - обработка запросов на обмен баллов
// RabbitMQ redeems -> выдача кода -> подтверждение в confirms
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	db "github.com/glkeru/loyalty/rewards/internal/db"
	rabbit "github.com/glkeru/loyalty/rewards/internal/external/rabbitmq"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.Close()

	// database
	var storage interf.LedgerStore
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	storage = dt

	// rewards catalog
	var catalog interf.RewardStorage
	catalog, err = db.NewRewardsDB()
	if err != nil {
		logger.Error(err.Error())
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

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TODO: default
	var semcount int
	semenv := os.Getenv("LOYALTY_REDEEM_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}
	if semcount == 0 {
		semcount = 1
	}

	// os signals
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(semcount)
	for i := 0; i < semcount; i++ {
		go worker(ctx, serv, wg, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.RedemptionService, wg *sync.WaitGroup, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := <-reader.Msg
			if !ok {
				return
			}
			redeemId, code, err := serv.RedeemFromRequest(ctx, string(msg.Body))
			if err != nil {
				serv.Log(err)
				if redeemId != "" {
					_ = reader.Processed(ctx, redeemId, "", false)
				}
				continue
			}
			err = reader.Processed(ctx, redeemId, code, true)
			if err != nil {
				serv.Log(err)
				continue
			}
		}
	}
}
