package rewards

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	service "github.com/glkeru/loyalty/rewards/internal/services"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

// имена уникальных индексов из migrations/001_init.sql
const (
	constraintTnxReference   = "tnx_reference_idx"
	constraintRedemptionCode = "redemptions_code_key"
)

type LedgerDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ interf.LedgerStore = (*LedgerDB)(nil)

func NewLedgerDB(logger *zap.Logger) (db *LedgerDB, err error) {
	// config
	purl := os.Getenv("LOYALTY_DB")
	if purl == "" {
		return nil, fmt.Errorf("env LOYALTY_DB is not set")
	}
	port := os.Getenv("LOYALTY_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env LOYALTY_DB_PORT is not set")
	}
	user := os.Getenv("LOYALTY_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env LOYALTY_DB_USER is not set")
	}
	password := os.Getenv("LOYALTY_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env LOYALTY_DB_PASSWORD is not set")
	}
	database := os.Getenv("LOYALTY_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env LOYALTY_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	return &LedgerDB{pool, logger}, err
}

// Получить счет по пользователю
func (p *LedgerDB) AccountGet(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	return p.accountRead(ctx, conn, userID)
}

func (p *LedgerDB) accountRead(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, userID string) (model.LoyaltyAccount, error) {
	sql, args, err := sq.Select("uuid", "user_id", "spendable_points", "lifetime_points", "tier", "created_at").
		From("accounts").
		Where(sq.Eq{"user_id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.LoyaltyAccount{}, err
	}

	var account model.LoyaltyAccount
	var pguuid pgtype.UUID
	var tier string
	row := q.QueryRow(ctx, sql, args...)
	err = row.Scan(&pguuid, &account.UserID, &account.SpendablePoints, &account.LifetimePoints, &tier, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LoyaltyAccount{}, fmt.Errorf("account %w", model.ErrNotFound)
		}
		return model.LoyaltyAccount{}, err
	}
	account.UUID, _ = uuid.FromBytes(pguuid.Bytes[:])
	account.Tier = model.Tier(tier)
	return account, nil
}

// Создание счета: insert-if-absent, при гонке читаем победителя
func (p *LedgerDB) AccountCreate(ctx context.Context, userID string) (model.LoyaltyAccount, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO accounts (uuid, user_id, spendable_points, lifetime_points, tier, created_at)
		 VALUES ($1, $2, 0, 0, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID, string(model.TierBronze), time.Now())
	if err != nil {
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("service", "AccountCreate"),
			zap.String("user", userID),
		)
		return model.LoyaltyAccount{}, err
	}
	return p.accountRead(ctx, conn, userID)
}

func tnxInsert(tnx model.PointsTransaction) (string, []any, error) {
	return sq.Insert("tnx").
		Columns("id", "account", "delta", "kind", "descr", "reference_id", "reference_type", "created_at").
		Values(tnx.UUID, tnx.Account, tnx.Delta, string(tnx.Kind), tnx.Description, tnx.ReferenceID, tnx.ReferenceType, tnx.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return pgerr.Code == pgUniqueViolation && pgerr.ConstraintName == constraint
	}
	return false
}

// Начисление: транзакция + безусловное увеличение баланса и lifetime,
// пересчет уровня - один коммит
func (p *LedgerDB) TnxCredit(ctx context.Context, tnx model.PointsTransaction) (account model.LoyaltyAccount, err error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	sql, args, err := tnxInsert(tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err, constraintTnxReference) {
			return model.LoyaltyAccount{}, model.ErrDuplicateAward
		}
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return model.LoyaltyAccount{}, err
	}

	var pguuid pgtype.UUID
	var tier string
	row := tx.QueryRow(ctx,
		`UPDATE accounts
		 SET spendable_points = spendable_points + $1,
		     lifetime_points = lifetime_points + $1
		 WHERE uuid = $2
		 RETURNING uuid, user_id, spendable_points, lifetime_points, tier, created_at`,
		tnx.Delta, tnx.Account)
	err = row.Scan(&pguuid, &account.UserID, &account.SpendablePoints, &account.LifetimePoints, &tier, &account.CreatedAt)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	account.UUID, _ = uuid.FromBytes(pguuid.Bytes[:])

	// уровень всегда соответствует lifetime в том же коммите
	account.Tier = service.TierOf(account.LifetimePoints)
	if account.Tier != model.Tier(tier) {
		_, err = tx.Exec(ctx, "UPDATE accounts SET tier = $1 WHERE uuid = $2", string(account.Tier), tnx.Account)
		if err != nil {
			return model.LoyaltyAccount{}, err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return account, nil
}

// Списание: транзакция + условное уменьшение баланса одним коммитом.
// Достаточность проверяется на момент коммита, не по ранее
// прочитанному снимку
func (p *LedgerDB) TnxDebit(ctx context.Context, tnx model.PointsTransaction) (model.LoyaltyAccount, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	account, err := p.debit(ctx, tx, tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	err = tx.Commit(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return account, nil
}

func (p *LedgerDB) debit(ctx context.Context, tx pgx.Tx, tnx model.PointsTransaction) (account model.LoyaltyAccount, err error) {
	sql, args, err := tnxInsert(tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return model.LoyaltyAccount{}, err
	}

	// условное списание: ноль строк означает нехватку баллов
	var pguuid pgtype.UUID
	var tier string
	row := tx.QueryRow(ctx,
		`UPDATE accounts
		 SET spendable_points = spendable_points + $1
		 WHERE uuid = $2 AND spendable_points + $1 >= 0
		 RETURNING uuid, user_id, spendable_points, lifetime_points, tier, created_at`,
		tnx.Delta, tnx.Account)
	err = row.Scan(&pguuid, &account.UserID, &account.SpendablePoints, &account.LifetimePoints, &tier, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LoyaltyAccount{}, model.ErrInsufficientPoints
		}
		return model.LoyaltyAccount{}, err
	}
	account.UUID, _ = uuid.FromBytes(pguuid.Bytes[:])
	account.Tier = model.Tier(tier)
	return account, nil
}

// Списание с выдачей кода: транзакция, уменьшение баланса и вставка
// кода - один коммит. Коллизия кода откатывает все
func (p *LedgerDB) TnxRedeem(ctx context.Context, tnx model.PointsTransaction, red model.RewardRedemption) (model.LoyaltyAccount, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	account, err := p.debit(ctx, tx, tnx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}

	sql, args, err := sq.Insert("redemptions").
		Columns("id", "account", "user_id", "reward_id", "code", "status", "issued_at", "expires_at").
		Values(red.UUID, red.Account, red.UserID, red.RewardID, red.Code, string(red.Status), red.IssuedAt, red.ExpiresAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err, constraintRedemptionCode) {
			return model.LoyaltyAccount{}, model.ErrCodeTaken
		}
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return model.LoyaltyAccount{}, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	return account, nil
}

// Получить транзакции за период
func (p *LedgerDB) TnxGet(ctx context.Context, userID string, from time.Time, to time.Time) (tnxs []model.PointsTransaction, err error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	account, err := p.accountRead(ctx, conn, userID)
	if err != nil {
		return nil, err
	}

	sql, args, err := sq.Select("id", "account", "delta", "kind", "descr", "reference_id", "reference_type", "created_at").
		From("tnx").
		Where(sq.Eq{"account": account.UUID}).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.LtOrEq{"created_at": to}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tnx model.PointsTransaction
		var kind string
		var descr, referenceID, referenceType pgtype.Text
		err = rows.Scan(&tnx.UUID, &tnx.Account, &tnx.Delta, &kind, &descr, &referenceID, &referenceType, &tnx.CreatedAt)
		if err != nil {
			return nil, err
		}
		tnx.Kind = model.TxKind(kind)
		tnx.Description = descr.String
		tnx.ReferenceID = referenceID.String
		tnx.ReferenceType = referenceType.String
		tnxs = append(tnxs, tnx)
	}
	return tnxs, nil
}

func redemptionScan(row pgx.Row) (model.RewardRedemption, error) {
	var red model.RewardRedemption
	var status string
	err := row.Scan(&red.UUID, &red.Account, &red.UserID, &red.RewardID, &red.Code, &status, &red.IssuedAt, &red.ExpiresAt)
	if err != nil {
		return model.RewardRedemption{}, err
	}
	red.Status = model.RedemptionStatus(status)
	return red, nil
}

// Получить код
func (p *LedgerDB) RedemptionGet(ctx context.Context, code string) (model.RewardRedemption, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.RewardRedemption{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx,
		`SELECT id, account, user_id, reward_id, code, status, issued_at, expires_at
		 FROM redemptions WHERE code = $1`, code)
	red, err := redemptionScan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RewardRedemption{}, fmt.Errorf("redemption %w", model.ErrNotFound)
		}
		return model.RewardRedemption{}, err
	}
	return red, nil
}

// Погашение: available -> used, условный переход.
// Ноль строк - код уже погашен или просрочен параллельно
func (p *LedgerDB) RedemptionConsume(ctx context.Context, code string) (model.RewardRedemption, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.RewardRedemption{}, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx,
		`UPDATE redemptions SET status = $1
		 WHERE code = $2 AND status = $3
		 RETURNING id, account, user_id, reward_id, code, status, issued_at, expires_at`,
		string(model.StatusUsed), code, string(model.StatusAvailable))
	red, err := redemptionScan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RewardRedemption{}, fmt.Errorf("available redemption %w", model.ErrNotFound)
		}
		return model.RewardRedemption{}, err
	}
	return red, nil
}

// Просрочка: available -> expired, условный переход
func (p *LedgerDB) RedemptionExpire(ctx context.Context, code string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	sql, args, err := sq.Update("redemptions").
		Set("status", string(model.StatusExpired)).
		Where(sq.Eq{"code": code}).
		Where(sq.Eq{"status": string(model.StatusAvailable)}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, sql, args...)
	return err
}

// Массовая просрочка кодов с истекшим сроком
func (p *LedgerDB) RedemptionSweep(ctx context.Context, now time.Time) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	sql, args, err := sq.Update("redemptions").
		Set("status", string(model.StatusExpired)).
		Where(sq.Eq{"status": string(model.StatusAvailable)}).
		Where(sq.Lt{"expires_at": now}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Сверка: баланс каждого счета должен равняться сумме дельт его
// транзакций. Возвращает счета с расхождением
func (p *LedgerDB) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	defer conn.Release()

	// баланс и сумма дельт читаются одним снимком, параллельный
	// коммит между двумя чтениями не дает ложных расхождений
	rows, err := conn.Query(ctx,
		`SELECT a.uuid, a.spendable_points, COALESCE(t.total, 0)
		 FROM accounts a
		 LEFT JOIN (SELECT account, SUM(delta) AS total FROM tnx GROUP BY account) t
		   ON t.account = a.uuid
		 WHERE a.spendable_points <> COALESCE(t.total, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mismatched []uuid.UUID
	for rows.Next() {
		var pguuid pgtype.UUID
		var balance, total int64
		err = rows.Scan(&pguuid, &balance, &total)
		if err != nil {
			return nil, err
		}
		account, _ := uuid.FromBytes(pguuid.Bytes[:])
		p.logger.Error("balance mismatch",
			zap.String("account", account.String()),
			zap.Int64("balance", balance),
			zap.Int64("tnx_total", total),
		)
		mismatched = append(mismatched, account)
	}
	return mismatched, nil
}
