package rewards

import (
	"context"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
)

// Хранилище счетов, транзакций и выданных кодов.
// Баланс меняется только через TnxCredit/TnxDebit/TnxRedeem:
// запись транзакции и изменение баланса - один коммит.
type LedgerStore interface {
	AccountGet(ctx context.Context, userID string) (model.LoyaltyAccount, error)
	// Создание счета, insert-if-absent: при гонке проигравший читает победителя
	AccountCreate(ctx context.Context, userID string) (model.LoyaltyAccount, error)

	// Начисление: вставка транзакции + безусловное увеличение баланса.
	// Повтор reference -> ErrDuplicateAward
	TnxCredit(ctx context.Context, tnx model.PointsTransaction) (model.LoyaltyAccount, error)
	// Списание: вставка транзакции + условное уменьшение баланса.
	// Недостаточно баллов на момент коммита -> ErrInsufficientPoints
	TnxDebit(ctx context.Context, tnx model.PointsTransaction) (model.LoyaltyAccount, error)
	// Списание с выдачей кода одним коммитом.
	// Коллизия кода -> ErrCodeTaken, ничего не применяется
	TnxRedeem(ctx context.Context, tnx model.PointsTransaction, red model.RewardRedemption) (model.LoyaltyAccount, error)
	TnxGet(ctx context.Context, userID string, from time.Time, to time.Time) ([]model.PointsTransaction, error)

	RedemptionGet(ctx context.Context, code string) (model.RewardRedemption, error)
	// available -> used, условный переход; проигравший получает ErrNotFound
	RedemptionConsume(ctx context.Context, code string) (model.RewardRedemption, error)
	// available -> expired, условный переход; проигрыш гонки не ошибка
	RedemptionExpire(ctx context.Context, code string) error
	RedemptionSweep(ctx context.Context, now time.Time) (int64, error)

	// Сверка балансов со суммой транзакций
	Reconcile(ctx context.Context) ([]uuid.UUID, error)
}

// Каталог вознаграждений (админка управляет, здесь чтение + сохранение)
type RewardStorage interface {
	RewardGet(ctx context.Context, id uuid.UUID) (model.Reward, error)
	RewardsActive(ctx context.Context) ([]model.Reward, error)
	RewardSave(ctx context.Context, reward model.Reward) error
}

type CacheStorage interface {
	AccountGet(ctx context.Context, userID string) (model.LoyaltyAccount, error)
	AccountSet(ctx context.Context, account model.LoyaltyAccount) error
	AccountInvalidate(ctx context.Context, userID string) error
}
