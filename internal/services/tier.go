package rewards

import (
	model "github.com/glkeru/loyalty/rewards/internal/models"
)

// Пороги уровней по накопленным баллам, полуоткрытые интервалы
const (
	TierSilverMin   = 2500
	TierGoldMin     = 7500
	TierPlatinumMin = 15000
)

// Уровень по накопленным баллам
func TierOf(lifetime int64) model.Tier {
	switch {
	case lifetime >= TierPlatinumMin:
		return model.TierPlatinum
	case lifetime >= TierGoldMin:
		return model.TierGold
	case lifetime >= TierSilverMin:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}
