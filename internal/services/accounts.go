package rewards

import (
	"context"
	"errors"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"go.uber.org/zap"
)

// Сервис счетов: чтение и ленивое создание
type AccountService struct {
	logger *zap.Logger
	db     interf.LedgerStore
	cache  interf.CacheStorage
}

func NewAccountService(logger *zap.Logger, db interf.LedgerStore, cache interf.CacheStorage) *AccountService {
	return &AccountService{logger, db, cache}
}

// Получить счет, при отсутствии создать пустой (bronze, нулевой баланс)
func (a *AccountService) GetOrCreate(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	account, err := a.db.AccountGet(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.LoyaltyAccount{}, err
	}
	return a.db.AccountCreate(ctx, userID)
}

// Текущий снимок счета: баланс, накопленные баллы, уровень
func (a *AccountService) GetAccount(ctx context.Context, userID string) (account model.LoyaltyAccount, err error) {
	// cache
	if a.cache != nil {
		account, err = a.cache.AccountGet(ctx, userID)
		if err == nil {
			return account, nil
		}
	}
	// database
	account, err = a.db.AccountGet(ctx, userID)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	if a.cache != nil {
		_ = a.cache.AccountSet(ctx, account)
	}
	return account, nil
}

// Инвалидировать кэш счета
func (a *AccountService) Invalidate(ctx context.Context, userID string) {
	if a.cache == nil {
		return
	}
	err := a.cache.AccountInvalidate(ctx, userID)
	if err != nil {
		a.logger.Error("cache invalidate",
			zap.String("user", userID),
			zap.Error(err),
		)
	}
}
