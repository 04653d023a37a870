package rewards

import (
	"time"

	"github.com/google/uuid"
)

// Уровни лояльности
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Порядок уровней для сравнения
func (t Tier) Order() int {
	switch t {
	case TierBronze:
		return 0
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	}
	return -1
}

// Типы транзакций
type TxKind string

const (
	KindEarned   TxKind = "earned"
	KindBonus    TxKind = "bonus"
	KindRedeemed TxKind = "redeemed"
	KindExpired  TxKind = "expired"
)

// Положительные типы увеличивают lifetime
func (k TxKind) CountsLifetime() bool {
	return k == KindEarned || k == KindBonus
}

// Типы вознаграждений
type RewardType string

const (
	RewardDiscountPercent RewardType = "discount_percent"
	RewardDiscountFixed   RewardType = "discount_fixed"
	RewardFreeGear        RewardType = "free_gear"
	RewardFreeDay         RewardType = "free_day"
)

// Статусы кода вознаграждения
type RedemptionStatus string

const (
	StatusAvailable RedemptionStatus = "available"
	StatusUsed      RedemptionStatus = "used"
	StatusExpired   RedemptionStatus = "expired"
)

// Счет лояльности
type LoyaltyAccount struct {
	UUID            uuid.UUID
	UserID          string // ID пользователя
	SpendablePoints int64  // баланс для списания, не может быть отрицательным
	LifetimePoints  int64  // накопленные баллы за все время, только растут
	Tier            Tier   // уровень, производная от LifetimePoints
	CreatedAt       time.Time
}

// Транзакции - append-only, источник правды для баланса
type PointsTransaction struct {
	UUID          uuid.UUID
	Account       uuid.UUID // UUID счета
	Delta         int64     // изменение баланса со знаком
	Kind          TxKind    // тип операции
	Description   string
	ReferenceID   string // ID внешнего документа (заказ, бронирование)
	ReferenceType string // тип внешнего документа
	CreatedAt     time.Time
}

// Вознаграждение - каталог, управляется админкой
type Reward struct {
	ID             uuid.UUID  `bson:"id" json:"id"`
	Name           string     `bson:"name" json:"name"`
	Description    string     `bson:"description" json:"description"`
	PointsRequired int64      `bson:"points_required" json:"points_required"`
	RewardType     RewardType `bson:"reward_type" json:"reward_type"`
	RewardValue    int64      `bson:"reward_value" json:"reward_value"`
	MinTier        Tier       `bson:"min_tier" json:"min_tier"`
	Active         bool       `bson:"active" json:"active"`
}

// Выданный код вознаграждения
type RewardRedemption struct {
	UUID      uuid.UUID
	Account   uuid.UUID // UUID счета
	UserID    string
	RewardID  uuid.UUID
	Code      string // глобально уникальный код
	Status    RedemptionStatus
	IssuedAt  time.Time
	ExpiresAt time.Time // IssuedAt + 30 дней
}
