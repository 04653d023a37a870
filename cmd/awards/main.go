// Job - обработка событий начисления
// Опрос Kafka -> начисление баллов на счет (идемпотентно по reference)
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	db "github.com/glkeru/loyalty/rewards/internal/db"
	kafka "github.com/glkeru/loyalty/rewards/internal/external/kafka"
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

	// kafka
	reader, err := kafka.GetNewReader("bookings")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

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

	// services
	accounts := services.NewAccountService(logger, storage, redis)
	recorder := services.NewRecorder(logger, storage, accounts)
	codes := services.NewCodeGenerator(nil)
	serv := services.NewRedemptionService(logger, storage, nil, accounts, recorder, codes)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TODO: default
	var semcount int
	semenv := os.Getenv("LOYALTY_AWARDS_COUNT")
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

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, semcount)

loop:
	for {
		select {
		case <-interrupt:
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		default:

			event, err := reader.GetNewMessage(ctx)
			if err != nil {
				logger.Error(err.Error())
				return
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(event string) {
				defer wg.Done()
				defer func() { <-semaphore }()
				err = serv.AwardFromEvent(ctx, event)
				if err != nil {
					logger.Error(err.Error())
					return
				}
			}(event)
		}
	}
	wg.Wait()
}
