package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	redis "github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Кэш снимков счетов
type CacheService struct {
	client *redis.Client
}

func NewCacheService() (serv *CacheService, err error) {

	// config
	addr := os.Getenv("LOYALTY_CACHE_URL")
	if addr == "" {
		return nil, fmt.Errorf("env LOYALTY_CACHE_URL is not set")
	}
	user := os.Getenv("LOYALTY_CACHE_USER")
	pwd := os.Getenv("LOYALTY_CACHE_PWD")

	// redis
	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return &CacheService{db}, nil
}

func cacheKey(userID string) string {
	return "loyalty:account:" + userID
}

func (c *CacheService) AccountGet(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	val, err := c.client.Get(ctx, cacheKey(userID)).Result()
	if err == redis.Nil {
		return model.LoyaltyAccount{}, fmt.Errorf("account cache %w", model.ErrNotFound)
	} else if err != nil {
		return model.LoyaltyAccount{}, err
	}

	var account model.LoyaltyAccount
	err = json.Unmarshal([]byte(val), &account)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return account, nil
}

func (c *CacheService) AccountSet(ctx context.Context, account model.LoyaltyAccount) (err error) {
	val, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(account.UserID), val, cacheTTL).Err()
}

func (c *CacheService) AccountInvalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, cacheKey(userID)).Err()
}
