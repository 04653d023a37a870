package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Единственный путь изменения баланса: запись транзакции и изменение
// счета применяются хранилищем одним коммитом
type Recorder struct {
	logger   *zap.Logger
	db       interf.LedgerStore
	accounts *AccountService
}

func NewRecorder(logger *zap.Logger, db interf.LedgerStore, accounts *AccountService) *Recorder {
	return &Recorder{logger, db, accounts}
}

// Проверка знака дельты по типу транзакции
func checkDelta(delta int64, kind model.TxKind) error {
	switch kind {
	case model.KindEarned, model.KindBonus:
		if delta <= 0 {
			return fmt.Errorf("kind %s requires positive delta, got %d", kind, delta)
		}
	case model.KindRedeemed, model.KindExpired:
		if delta >= 0 {
			return fmt.Errorf("kind %s requires negative delta, got %d", kind, delta)
		}
	default:
		return fmt.Errorf("unknown transaction kind %q", kind)
	}
	return nil
}

// Записать транзакцию и применить дельту к счету.
// Для положительных типов повтор reference - no-op, возвращается
// текущий счет. Для отрицательных списание условное: при нехватке
// баллов на момент коммита - ErrInsufficientPoints
func (r *Recorder) Record(ctx context.Context, account model.LoyaltyAccount, delta int64, kind model.TxKind, description, referenceID, referenceType string) (model.LoyaltyAccount, error) {
	err := checkDelta(delta, kind)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}

	tnx := model.PointsTransaction{
		UUID:          uuid.New(),
		Account:       account.UUID,
		Delta:         delta,
		Kind:          kind,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now(),
	}

	var updated model.LoyaltyAccount
	if kind.CountsLifetime() {
		updated, err = r.db.TnxCredit(ctx, tnx)
		if errors.Is(err, model.ErrDuplicateAward) {
			// повторная доставка события, баланс не меняем
			r.logger.Info("duplicate award reference",
				zap.String("user", account.UserID),
				zap.String("reference", referenceID),
			)
			return r.db.AccountGet(ctx, account.UserID)
		}
	} else {
		updated, err = r.db.TnxDebit(ctx, tnx)
	}
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	r.accounts.Invalidate(ctx, account.UserID)
	return updated, nil
}

// Записать списание и выдать код одним коммитом.
// Коллизия кода -> ErrCodeTaken, попытка не оставляет следов
func (r *Recorder) RecordRedemption(ctx context.Context, account model.LoyaltyAccount, reward model.Reward, code string, issued time.Time) (model.LoyaltyAccount, model.RewardRedemption, error) {
	tnx := model.PointsTransaction{
		UUID:          uuid.New(),
		Account:       account.UUID,
		Delta:         -reward.PointsRequired,
		Kind:          model.KindRedeemed,
		Description:   reward.Name,
		ReferenceID:   reward.ID.String(),
		ReferenceType: "reward",
		CreatedAt:     issued,
	}
	red := model.RewardRedemption{
		UUID:      uuid.New(),
		Account:   account.UUID,
		UserID:    account.UserID,
		RewardID:  reward.ID,
		Code:      code,
		Status:    model.StatusAvailable,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(RedemptionTTL),
	}

	updated, err := r.db.TnxRedeem(ctx, tnx, red)
	if err != nil {
		return model.LoyaltyAccount{}, model.RewardRedemption{}, err
	}
	r.accounts.Invalidate(ctx, account.UserID)
	return updated, red, nil
}
