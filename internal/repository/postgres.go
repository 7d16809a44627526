// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mlebedeva/salonpos-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCardNotFound возвращается, если подарочная карта не найдена.
var (
	ErrCardNotFound = errors.New("gift card not found")
	// ErrSaleNotFound возвращается, если чек не найден.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrItemNotFound возвращается, если позиция чека не найдена.
	ErrItemNotFound = errors.New("line item not found")
	// ErrAdjustmentNotFound возвращается, если инструмент корректировки не найден.
	ErrAdjustmentNotFound = errors.New("adjustment not found")
	// ErrInvalidAmount возвращается при неположительной или недопустимой сумме.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс карты.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrIllegalStateTransition возвращается, если операция недопустима из текущего состояния карты.
	ErrIllegalStateTransition = errors.New("illegal state transition")
	// ErrLedgerIntegrity возвращается при расхождении баланса карты с журналом транзакций.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
	// ErrSaleFinalized возвращается при попытке изменить финализированный чек.
	ErrSaleFinalized = errors.New("sale already finalized")
	// ErrBasketLocked возвращается при попытке изменить позиции чека с прикреплёнными инструментами.
	ErrBasketLocked = errors.New("basket locked by attached adjustments")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках: сбоях сериализации,
// дедлоках и сетевых обрывах. Доменные ошибки не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const cardColumns = `id, code, state, initial_balance, current_balance,
	customer_id, branch_id, issued_by, expires_at, created_at, updated_at`

func scanCard(row pgx.Row) (*model.GiftCard, error) {
	var c model.GiftCard
	var state string
	err := row.Scan(&c.ID, &c.Code, &state, &c.InitialBalance, &c.CurrentBalance,
		&c.CustomerID, &c.BranchID, &c.IssuedBy, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("scan gift card: %w", err)
	}
	c.State = model.GiftCardState(state)
	return &c, nil
}

// IssueCardParams описывает параметры выпуска подарочной карты.
type IssueCardParams struct {
	Code           string
	InitialBalance decimal.Decimal
	CustomerID     *int64
	BranchID       *int64
	EmployeeID     int64
	ExpiresAt      *time.Time
	Activate       bool
}

// IssueCard выпускает подарочную карту и пишет запись ISSUE в журнал одной транзакцией.
// При p.Activate карта создаётся сразу активной с дополнительной записью ACTIVATE.
func (r *PostgresRepository) IssueCard(ctx context.Context, p IssueCardParams) (*model.GiftCard, error) {
	if !p.InitialBalance.IsPositive() {
		return nil, ErrInvalidAmount
	}

	state := model.GiftCardStatePending
	if p.Activate {
		state = model.GiftCardStateActive
	}

	var card *model.GiftCard
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			row := tx.QueryRow(ctx,
				`INSERT INTO gift_cards (code, state, initial_balance, current_balance,
				                         customer_id, branch_id, issued_by, expires_at)
				 VALUES ($1, $2, $3, $3, $4, $5, $6, $7)
				 RETURNING `+cardColumns,
				p.Code, string(state), p.InitialBalance,
				p.CustomerID, p.BranchID, p.EmployeeID, p.ExpiresAt,
			)

			var err error
			card, err = scanCard(row)
			if err != nil {
				return fmt.Errorf("insert gift card: %w", err)
			}

			if err := appendTransaction(ctx, tx, &model.GiftCardTransaction{
				GiftCardID:    card.ID,
				Kind:          model.TransactionKindIssue,
				Amount:        p.InitialBalance,
				BalanceBefore: decimal.Zero,
				BalanceAfter:  p.InitialBalance,
				EmployeeID:    p.EmployeeID,
			}); err != nil {
				return err
			}

			if p.Activate {
				return appendTransaction(ctx, tx, &model.GiftCardTransaction{
					GiftCardID:    card.ID,
					Kind:          model.TransactionKindActivate,
					Amount:        decimal.Zero,
					BalanceBefore: p.InitialBalance,
					BalanceAfter:  p.InitialBalance,
					EmployeeID:    p.EmployeeID,
				})
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return card, nil
}

// GetCardByCode возвращает подарочную карту по коду. Только чтение.
func (r *PostgresRepository) GetCardByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM gift_cards WHERE code = $1`,
		code,
	)
	return scanCard(row)
}

// lockCard блокирует строку карты до конца транзакции, сериализуя
// конкурирующие изменения баланса одной карты.
func lockCard(ctx context.Context, tx pgx.Tx, code string) (*model.GiftCard, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM gift_cards WHERE code = $1 FOR UPDATE`,
		code,
	)
	return scanCard(row)
}

// foldLedger сворачивает журнал карты в баланс: ISSUE и RECHARGE прибавляют,
// REDEEM вычитает, остальные виды записей денег не двигают.
func foldLedger(ctx context.Context, tx pgx.Tx, cardID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(
		     CASE kind
		         WHEN 'ISSUE' THEN amount
		         WHEN 'RECHARGE' THEN amount
		         WHEN 'REDEEM' THEN -amount
		         ELSE 0
		     END
		 ), 0)
		 FROM gift_card_transactions
		 WHERE gift_card_id = $1`,
		cardID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fold ledger: %w", err)
	}
	return balance, nil
}

// verifyLedger сверяет кэшированный баланс карты с журналом. Расхождение —
// фатальная ошибка целостности, операция прерывается без изменений.
func verifyLedger(ctx context.Context, tx pgx.Tx, card *model.GiftCard) error {
	reconstructed, err := foldLedger(ctx, tx, card.ID)
	if err != nil {
		return err
	}

	if !reconstructed.Equal(card.CurrentBalance) {
		return fmt.Errorf("%w: card %s stored %s reconstructed %s",
			ErrLedgerIntegrity, card.Code, card.CurrentBalance, reconstructed)
	}

	return nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, entry *model.GiftCardTransaction) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO gift_card_transactions
		     (gift_card_id, kind, amount, balance_before, balance_after, sale_id, employee_id, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		entry.GiftCardID, string(entry.Kind), entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.SaleID, entry.EmployeeID, entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func updateCardBalance(ctx context.Context, tx pgx.Tx, cardID int64, balance decimal.Decimal, state model.GiftCardState) error {
	_, err := tx.Exec(ctx,
		`UPDATE gift_cards SET current_balance = $2, state = $3, updated_at = now() WHERE id = $1`,
		cardID, balance, string(state),
	)
	if err != nil {
		return fmt.Errorf("update gift card: %w", err)
	}
	return nil
}

// ActivateCard переводит карту из PENDING в ACTIVE и пишет запись ACTIVATE.
func (r *PostgresRepository) ActivateCard(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error) {
	var card *model.GiftCard
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			var err error
			card, err = lockCard(ctx, tx, code)
			if err != nil {
				return err
			}

			if err := activateCheck(card); err != nil {
				return err
			}

			if err := verifyLedger(ctx, tx, card); err != nil {
				return err
			}

			card.State = model.GiftCardStateActive
			if err := updateCardBalance(ctx, tx, card.ID, card.CurrentBalance, card.State); err != nil {
				return err
			}

			return appendTransaction(ctx, tx, &model.GiftCardTransaction{
				GiftCardID:    card.ID,
				Kind:          model.TransactionKindActivate,
				Amount:        decimal.Zero,
				BalanceBefore: card.CurrentBalance,
				BalanceAfter:  card.CurrentBalance,
				EmployeeID:    employeeID,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	return card, nil
}

// redeemLocked списывает средства с уже заблокированной карты и пишет запись REDEEM.
// При достижении нулевого баланса карта переходит в DEPLETED той же транзакцией.
func redeemLocked(ctx context.Context, tx pgx.Tx, card *model.GiftCard, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error) {
	if err := verifyLedger(ctx, tx, card); err != nil {
		return nil, err
	}

	change, err := redeemChange(card, amount, time.Now())
	if err != nil {
		return nil, err
	}

	if err := updateCardBalance(ctx, tx, card.ID, change.after, change.state); err != nil {
		return nil, err
	}
	card.CurrentBalance = change.after
	card.State = change.state

	entry := &model.GiftCardTransaction{
		GiftCardID:    card.ID,
		Kind:          model.TransactionKindRedeem,
		Amount:        amount,
		BalanceBefore: change.before,
		BalanceAfter:  change.after,
		SaleID:        saleID,
		EmployeeID:    employeeID,
		Note:          note,
	}
	if err := appendTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// rechargeLocked пополняет уже заблокированную карту и пишет запись RECHARGE.
func rechargeLocked(ctx context.Context, tx pgx.Tx, card *model.GiftCard, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error) {
	if err := verifyLedger(ctx, tx, card); err != nil {
		return nil, err
	}

	change, err := rechargeChange(card, amount, time.Now())
	if err != nil {
		return nil, err
	}

	if err := updateCardBalance(ctx, tx, card.ID, change.after, change.state); err != nil {
		return nil, err
	}
	card.CurrentBalance = change.after
	card.State = change.state

	entry := &model.GiftCardTransaction{
		GiftCardID:    card.ID,
		Kind:          model.TransactionKindRecharge,
		Amount:        amount,
		BalanceBefore: change.before,
		BalanceAfter:  change.after,
		SaleID:        saleID,
		EmployeeID:    employeeID,
		Note:          note,
	}
	if err := appendTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// RedeemCard атомарно списывает средства с карты по коду.
func (r *PostgresRepository) RedeemCard(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error) {
	var entry *model.GiftCardTransaction
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			card, err := lockCard(ctx, tx, code)
			if err != nil {
				return err
			}

			entry, err = redeemLocked(ctx, tx, card, amount, employeeID, saleID, note)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// RechargeCard атомарно пополняет карту по коду.
func (r *PostgresRepository) RechargeCard(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error) {
	var entry *model.GiftCardTransaction
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			card, err := lockCard(ctx, tx, code)
			if err != nil {
				return err
			}

			entry, err = rechargeLocked(ctx, tx, card, amount, employeeID, saleID, note)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// CancelCard аннулирует карту. Допустимо из PENDING и ACTIVE.
func (r *PostgresRepository) CancelCard(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error) {
	var card *model.GiftCard
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			var err error
			card, err = lockCard(ctx, tx, code)
			if err != nil {
				return err
			}

			if err := cancelCheck(card, time.Now()); err != nil {
				return err
			}

			if err := verifyLedger(ctx, tx, card); err != nil {
				return err
			}

			card.State = model.GiftCardStateCancelled
			if err := updateCardBalance(ctx, tx, card.ID, card.CurrentBalance, card.State); err != nil {
				return err
			}

			return appendTransaction(ctx, tx, &model.GiftCardTransaction{
				GiftCardID:    card.ID,
				Kind:          model.TransactionKindCancel,
				Amount:        decimal.Zero,
				BalanceBefore: card.CurrentBalance,
				BalanceAfter:  card.CurrentBalance,
				EmployeeID:    employeeID,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	return card, nil
}

// GetTransactions возвращает журнал карты от старых записей к новым.
func (r *PostgresRepository) GetTransactions(ctx context.Context, cardID int64) ([]model.GiftCardTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, gift_card_id, kind, amount, balance_before, balance_after,
		        sale_id, employee_id, note, created_at
		 FROM gift_card_transactions
		 WHERE gift_card_id = $1
		 ORDER BY created_at, id`,
		cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.GiftCardTransaction
	for rows.Next() {
		var e model.GiftCardTransaction
		var kind string
		if err := rows.Scan(&e.ID, &e.GiftCardID, &kind, &e.Amount, &e.BalanceBefore,
			&e.BalanceAfter, &e.SaleID, &e.EmployeeID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		e.Kind = model.TransactionKind(kind)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReconcileCard возвращает кэшированный баланс карты и баланс, восстановленный
// из журнала. Оба значения читаются одним запросом, то есть из одного снимка
// данных: запись, закоммиченная между двумя отдельными чтениями, не может
// выдать ложное расхождение.
func (r *PostgresRepository) ReconcileCard(ctx context.Context, code string) (stored, reconstructed decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT c.current_balance, COALESCE(SUM(
		     CASE t.kind
		         WHEN 'ISSUE' THEN t.amount
		         WHEN 'RECHARGE' THEN t.amount
		         WHEN 'REDEEM' THEN -t.amount
		         ELSE 0
		     END
		 ), 0)
		 FROM gift_cards c
		 LEFT JOIN gift_card_transactions t ON t.gift_card_id = c.id
		 WHERE c.code = $1
		 GROUP BY c.id`,
		code,
	).Scan(&stored, &reconstructed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, ErrCardNotFound
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("reconcile card: %w", err)
	}
	return stored, reconstructed, nil
}

// CardDiscrepancy описывает карту, чей кэшированный баланс разошёлся с журналом.
type CardDiscrepancy struct {
	Code          string
	Stored        decimal.Decimal
	Reconstructed decimal.Decimal
}

// FindCorruptCards возвращает карты с расхождением баланса и журнала.
// При корректной работе всех мутаций список всегда пуст.
func (r *PostgresRepository) FindCorruptCards(ctx context.Context) ([]CardDiscrepancy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.code, c.current_balance, COALESCE(SUM(
		     CASE t.kind
		         WHEN 'ISSUE' THEN t.amount
		         WHEN 'RECHARGE' THEN t.amount
		         WHEN 'REDEEM' THEN -t.amount
		         ELSE 0
		     END
		 ), 0) AS reconstructed
		 FROM gift_cards c
		 LEFT JOIN gift_card_transactions t ON t.gift_card_id = c.id
		 GROUP BY c.id
		 HAVING c.current_balance <> COALESCE(SUM(
		     CASE t.kind
		         WHEN 'ISSUE' THEN t.amount
		         WHEN 'RECHARGE' THEN t.amount
		         WHEN 'REDEEM' THEN -t.amount
		         ELSE 0
		     END
		 ), 0)`,
	)
	if err != nil {
		return nil, fmt.Errorf("select corrupt cards: %w", err)
	}
	defer rows.Close()

	var res []CardDiscrepancy
	for rows.Next() {
		var d CardDiscrepancy
		if err := rows.Scan(&d.Code, &d.Stored, &d.Reconstructed); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
