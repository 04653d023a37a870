package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Срок жизни выданного кода
const RedemptionTTL = 30 * 24 * time.Hour

// Кол-во попыток вставки уникального кода
const codeAttempts = 5

// Оркестрация: начисления, обмен баллов на коды, погашение кодов
type RedemptionService struct {
	logger   *zap.Logger
	db       interf.LedgerStore
	rewards  interf.RewardStorage
	accounts *AccountService
	recorder *Recorder
	codes    *CodeGenerator
	now      func() time.Time
}

func NewRedemptionService(logger *zap.Logger, db interf.LedgerStore, rewards interf.RewardStorage, accounts *AccountService, recorder *Recorder, codes *CodeGenerator) *RedemptionService {
	return &RedemptionService{logger, db, rewards, accounts, recorder, codes, time.Now}
}

// Начисление баллов за внешнее событие (завершенное бронирование,
// бонус администратора, промо-кампания)
func (s *RedemptionService) AwardPoints(ctx context.Context, userID string, points int64, kind model.TxKind, description, referenceID, referenceType string) (model.LoyaltyAccount, error) {
	if !kind.CountsLifetime() {
		return model.LoyaltyAccount{}, fmt.Errorf("award kind must be %s or %s, got %q", model.KindEarned, model.KindBonus, kind)
	}
	if points <= 0 {
		return model.LoyaltyAccount{}, fmt.Errorf("award points must be positive, got %d", points)
	}
	account, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return s.recorder.Record(ctx, account, points, kind, description, referenceID, referenceType)
}

// Обмен баллов на код вознаграждения.
// Единственная точка сериализации - условное списание в хранилище:
// два одновременных обмена не могут оба пройти, если баллов хватает
// только на один
func (s *RedemptionService) Redeem(ctx context.Context, userID string, rewardID uuid.UUID) (model.RewardRedemption, error) {
	reward, err := s.rewards.RewardGet(ctx, rewardID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.RewardRedemption{}, model.ErrRewardNotFound
		}
		return model.RewardRedemption{}, err
	}
	if !reward.Active {
		return model.RewardRedemption{}, model.ErrRewardInactive
	}

	account, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return model.RewardRedemption{}, err
	}
	if account.Tier.Order() < reward.MinTier.Order() {
		return model.RewardRedemption{}, model.ErrTierNotMet
	}

	// списание + транзакция + код одним коммитом;
	// при коллизии кода попытка откатывается целиком и повторяется
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return model.RewardRedemption{}, err
		}
		_, red, err := s.recorder.RecordRedemption(ctx, account, reward, code, s.now())
		if errors.Is(err, model.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return model.RewardRedemption{}, err
		}
		return red, nil
	}
	s.logger.Error("code space exhausted",
		zap.String("user", userID),
		zap.String("reward", rewardID.String()),
	)
	return model.RewardRedemption{}, model.ErrCodeSpaceExhausted
}

// Погашение кода на точке обслуживания.
// Переход available -> used условный, два одновременных погашения
// не могут оба пройти
func (s *RedemptionService) ValidateAndConsume(ctx context.Context, code string) (model.RewardRedemption, error) {
	red, err := s.db.RedemptionGet(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.RewardRedemption{}, model.ErrCodeNotFound
		}
		return model.RewardRedemption{}, err
	}

	switch red.Status {
	case model.StatusUsed:
		return model.RewardRedemption{}, model.ErrCodeAlreadyUsed
	case model.StatusExpired:
		return model.RewardRedemption{}, model.ErrCodeExpired
	}

	// ленивая проверка срока, фоновая чистка не обязательна
	if s.now().After(red.ExpiresAt) {
		err = s.db.RedemptionExpire(ctx, code)
		if err != nil {
			s.logger.Error("redemption expire",
				zap.String("code", code),
				zap.Error(err),
			)
		}
		return model.RewardRedemption{}, model.ErrCodeExpired
	}

	red, err = s.db.RedemptionConsume(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// проигранная гонка: статус уже сменили
			red, err = s.db.RedemptionGet(ctx, code)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return model.RewardRedemption{}, err
			}
			if err == nil && red.Status == model.StatusExpired {
				return model.RewardRedemption{}, model.ErrCodeExpired
			}
			return model.RewardRedemption{}, model.ErrCodeAlreadyUsed
		}
		return model.RewardRedemption{}, err
	}
	return red, nil
}

// Активные вознаграждения по возрастанию стоимости
func (s *RedemptionService) ListActiveRewards(ctx context.Context) ([]model.Reward, error) {
	return s.rewards.RewardsActive(ctx)
}

// Снимок счета
func (s *RedemptionService) GetAccount(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	return s.accounts.GetAccount(ctx, userID)
}

// История транзакций
func (s *RedemptionService) GetTnx(ctx context.Context, userID string, from time.Time, to time.Time) ([]model.PointsTransaction, error) {
	return s.db.TnxGet(ctx, userID, from, to)
}

// Чистка просроченных кодов (available -> expired)
func (s *RedemptionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.db.RedemptionSweep(ctx, s.now())
}

// Сверка балансов со суммой транзакций
func (s *RedemptionService) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	return s.db.Reconcile(ctx)
}

type AwardEvent struct {
	UserID        string `json:"userId"`
	Points        int64  `json:"points"`
	Kind          string `json:"kind"`
	Description   string `json:"description"`
	ReferenceID   string `json:"referenceId"`
	ReferenceType string `json:"referenceType"`
}

// Обработка события начисления из Kafka
func (s *RedemptionService) AwardFromEvent(ctx context.Context, event string) error {
	award := &AwardEvent{}
	err := json.Unmarshal([]byte(event), award)
	if err != nil {
		return err
	}
	if award.UserID == "" {
		return fmt.Errorf("invalid award event: userId field is required")
	}
	if award.ReferenceID == "" {
		return fmt.Errorf("invalid award event: referenceId field is required")
	}
	_, err = s.AwardPoints(ctx, award.UserID, award.Points, model.TxKind(award.Kind), award.Description, award.ReferenceID, award.ReferenceType)
	return err
}

type RedeemRequest struct {
	UserID   string `json:"userId"`
	RewardID string `json:"rewardId"`
	RedeemID string `json:"redeemId"`
}

// Обработка запроса на обмен из RabbitMQ
func (s *RedemptionService) RedeemFromRequest(ctx context.Context, request string) (redeemID string, code string, err error) {
	redeem := &RedeemRequest{}
	err = json.Unmarshal([]byte(request), redeem)
	if err != nil {
		return "", "", err
	}
	rewardID, err := uuid.Parse(redeem.RewardID)
	if err != nil {
		return redeem.RedeemID, "", fmt.Errorf("invalid redeem request: %w", err)
	}
	red, err := s.Redeem(ctx, redeem.UserID, rewardID)
	if err != nil {
		return redeem.RedeemID, "", err
	}
	return redeem.RedeemID, red.Code, nil
}

func (s *RedemptionService) Log(err error) {
	s.logger.Error(err.Error())
}
