package rewards

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrRewardNotFound     = errors.New("reward not found")
	ErrRewardInactive     = errors.New("reward is not active")
	ErrTierNotMet         = errors.New("tier requirement is not met")
	ErrInsufficientPoints = errors.New("not enough points")
	ErrCodeSpaceExhausted = errors.New("unique code generation attempts exhausted")
	ErrCodeNotFound       = errors.New("code not found")
	ErrCodeExpired        = errors.New("code is expired")
	ErrCodeAlreadyUsed    = errors.New("code is already used")

	// Повторное начисление с тем же reference - не ошибка для вызывающего,
	// сервис возвращает текущий счет без изменений
	ErrDuplicateAward = errors.New("duplicate award reference")

	// Коллизия кода при вставке, сигнал для повторной генерации
	ErrCodeTaken = errors.New("code is already taken")

	ErrStoreUnavailable = errors.New("store is unavailable")
)
