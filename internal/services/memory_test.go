package rewards

// Хранилище в памяти для тестов: mutex играет роль условных
// обновлений Postgres, проверки и применение - атомарны

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
)

type memStore struct {
	mu          sync.Mutex
	accounts    map[string]*model.LoyaltyAccount
	users       map[uuid.UUID]string
	tnxs        []model.PointsTransaction
	refs        map[string]struct{}
	redemptions map[string]*model.RewardRedemption
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[string]*model.LoyaltyAccount),
		users:       make(map[uuid.UUID]string),
		refs:        make(map[string]struct{}),
		redemptions: make(map[string]*model.RewardRedemption),
	}
}

func (m *memStore) AccountGet(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return model.LoyaltyAccount{}, fmt.Errorf("account %w", model.ErrNotFound)
	}
	return *account, nil
}

func (m *memStore) AccountCreate(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[userID]; ok {
		return *account, nil
	}
	account := &model.LoyaltyAccount{
		UUID:      uuid.New(),
		UserID:    userID,
		Tier:      model.TierBronze,
		CreatedAt: time.Now(),
	}
	m.accounts[userID] = account
	m.users[account.UUID] = userID
	return *account, nil
}

func (m *memStore) account(id uuid.UUID) (*model.LoyaltyAccount, error) {
	userID, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("account %w", model.ErrNotFound)
	}
	return m.accounts[userID], nil
}

func refKey(tnx model.PointsTransaction) string {
	return tnx.ReferenceID + "|" + tnx.ReferenceType + "|" + string(tnx.Kind)
}

func (m *memStore) TnxCredit(ctx context.Context, tnx model.PointsTransaction) (model.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, err := m.account(tnx.Account)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	if tnx.ReferenceID != "" {
		if _, ok := m.refs[refKey(tnx)]; ok {
			return model.LoyaltyAccount{}, model.ErrDuplicateAward
		}
		m.refs[refKey(tnx)] = struct{}{}
	}
	m.tnxs = append(m.tnxs, tnx)
	account.SpendablePoints += tnx.Delta
	account.LifetimePoints += tnx.Delta
	account.Tier = TierOf(account.LifetimePoints)
	return *account, nil
}

func (m *memStore) debit(tnx model.PointsTransaction) (*model.LoyaltyAccount, error) {
	account, err := m.account(tnx.Account)
	if err != nil {
		return nil, err
	}
	if account.SpendablePoints+tnx.Delta < 0 {
		return nil, model.ErrInsufficientPoints
	}
	m.tnxs = append(m.tnxs, tnx)
	account.SpendablePoints += tnx.Delta
	return account, nil
}

func (m *memStore) TnxDebit(ctx context.Context, tnx model.PointsTransaction) (model.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, err := m.debit(tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return *account, nil
}

func (m *memStore) TnxRedeem(ctx context.Context, tnx model.PointsTransaction, red model.RewardRedemption) (model.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// все проверки до применения: неудачная попытка не оставляет следов
	if _, ok := m.redemptions[red.Code]; ok {
		return model.LoyaltyAccount{}, model.ErrCodeTaken
	}
	account, err := m.debit(tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	saved := red
	m.redemptions[red.Code] = &saved
	return *account, nil
}

func (m *memStore) TnxGet(ctx context.Context, userID string, from time.Time, to time.Time) ([]model.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %w", model.ErrNotFound)
	}
	var tnxs []model.PointsTransaction
	for _, tnx := range m.tnxs {
		if tnx.Account == account.UUID && !tnx.CreatedAt.Before(from) && !tnx.CreatedAt.After(to) {
			tnxs = append(tnxs, tnx)
		}
	}
	return tnxs, nil
}

func (m *memStore) RedemptionGet(ctx context.Context, code string) (model.RewardRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	red, ok := m.redemptions[code]
	if !ok {
		return model.RewardRedemption{}, fmt.Errorf("redemption %w", model.ErrNotFound)
	}
	return *red, nil
}

func (m *memStore) RedemptionConsume(ctx context.Context, code string) (model.RewardRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	red, ok := m.redemptions[code]
	if !ok || red.Status != model.StatusAvailable {
		return model.RewardRedemption{}, fmt.Errorf("available redemption %w", model.ErrNotFound)
	}
	red.Status = model.StatusUsed
	return *red, nil
}

func (m *memStore) RedemptionExpire(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	red, ok := m.redemptions[code]
	if ok && red.Status == model.StatusAvailable {
		red.Status = model.StatusExpired
	}
	return nil
}

func (m *memStore) RedemptionSweep(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, red := range m.redemptions {
		if red.Status == model.StatusAvailable && now.After(red.ExpiresAt) {
			red.Status = model.StatusExpired
			count++
		}
	}
	return count, nil
}

func (m *memStore) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[uuid.UUID]int64)
	for _, tnx := range m.tnxs {
		totals[tnx.Account] += tnx.Delta
	}
	var mismatched []uuid.UUID
	for _, account := range m.accounts {
		if account.SpendablePoints != totals[account.UUID] {
			mismatched = append(mismatched, account.UUID)
		}
	}
	return mismatched, nil
}

// кол-во транзакций счета
func (m *memStore) tnxCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return 0
	}
	count := 0
	for _, tnx := range m.tnxs {
		if tnx.Account == account.UUID {
			count++
		}
	}
	return count
}

type memRewards struct {
	mu      sync.Mutex
	rewards map[uuid.UUID]model.Reward
}

func newMemRewards() *memRewards {
	return &memRewards{rewards: make(map[uuid.UUID]model.Reward)}
}

func (m *memRewards) RewardGet(ctx context.Context, id uuid.UUID) (model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reward, ok := m.rewards[id]
	if !ok {
		return model.Reward{}, fmt.Errorf("reward %w", model.ErrNotFound)
	}
	return reward, nil
}

func (m *memRewards) RewardsActive(ctx context.Context) ([]model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rewards []model.Reward
	for _, reward := range m.rewards {
		if reward.Active {
			rewards = append(rewards, reward)
		}
	}
	// по возрастанию стоимости, как хранилище каталога
	sort.Slice(rewards, func(i, j int) bool {
		return rewards[i].PointsRequired < rewards[j].PointsRequired
	})
	return rewards, nil
}

func (m *memRewards) RewardSave(ctx context.Context, reward model.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	m.rewards[reward.ID] = reward
	return nil
}
