package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mlebedeva/salonpos-system/internal/model"
)

// lockSale блокирует строку чека до конца транзакции.
func lockSale(ctx context.Context, tx pgx.Tx, saleID int64) (*model.Sale, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, opened_by, finalized_at, created_at FROM sales WHERE id = $1 FOR UPDATE`,
		saleID,
	)

	var s model.Sale
	if err := row.Scan(&s.ID, &s.OpenedBy, &s.FinalizedAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("lock sale: %w", err)
	}

	return &s, nil
}

// CreateSale открывает новый чек с начальным набором позиций.
func (r *PostgresRepository) CreateSale(ctx context.Context, openedBy int64, items []model.LineItem) (*model.Sale, error) {
	var sale *model.Sale
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			var s model.Sale
			err := tx.QueryRow(ctx,
				`INSERT INTO sales (opened_by) VALUES ($1) RETURNING id, opened_by, finalized_at, created_at`,
				openedBy,
			).Scan(&s.ID, &s.OpenedBy, &s.FinalizedAt, &s.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert sale: %w", err)
			}

			for _, it := range items {
				inserted, err := insertItem(ctx, tx, s.ID, it)
				if err != nil {
					return err
				}
				s.Items = append(s.Items, *inserted)
			}

			sale = &s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return sale, nil
}

func insertItem(ctx context.Context, tx pgx.Tx, saleID int64, it model.LineItem) (*model.LineItem, error) {
	if it.Quantity <= 0 || !it.UnitPrice.IsPositive() {
		return nil, ErrInvalidAmount
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO sale_items (sale_id, service_name, unit_price, quantity)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		saleID, it.ServiceName, it.UnitPrice, it.Quantity,
	).Scan(&it.ID)
	if err != nil {
		return nil, fmt.Errorf("insert sale item: %w", err)
	}
	it.SaleID = saleID

	return &it, nil
}

func countAdjustments(ctx context.Context, tx pgx.Tx, saleID int64) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM sale_adjustments WHERE sale_id = $1`,
		saleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count adjustments: %w", err)
	}
	return n, nil
}

// AddItem добавляет позицию в открытый чек. Позиции нельзя менять после
// финализации и после прикрепления первого инструмента корректировки.
func (r *PostgresRepository) AddItem(ctx context.Context, saleID int64, it model.LineItem) (*model.LineItem, error) {
	var item *model.LineItem
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return ErrSaleFinalized
			}

			n, err := countAdjustments(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrBasketLocked
			}

			item, err = insertItem(ctx, tx, saleID, it)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// RemoveItem удаляет позицию из открытого чека. Ограничения те же, что у AddItem.
func (r *PostgresRepository) RemoveItem(ctx context.Context, saleID, itemID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return ErrSaleFinalized
			}

			n, err := countAdjustments(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrBasketLocked
			}

			tag, err := tx.Exec(ctx,
				`DELETE FROM sale_items WHERE id = $1 AND sale_id = $2`,
				itemID, saleID,
			)
			if err != nil {
				return fmt.Errorf("delete sale item: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrItemNotFound
			}

			return nil
		})
	})
}

func insertAdjustment(ctx context.Context, tx pgx.Tx, adj *model.Adjustment) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO sale_adjustments
		     (sale_id, kind, value, is_percentage, deduction, gift_card_id, gift_card_tx_id, promotion_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		adj.SaleID, string(adj.Kind), adj.Value, adj.IsPercentage, adj.Deduction,
		adj.GiftCardID, adj.GiftCardTxID, adj.PromotionID,
	).Scan(&adj.ID, &adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// AddAdjustment прикрепляет к чеку инструмент без движения денег по картам
// (промоакция, ручная скидка, courtesy, warranty).
func (r *PostgresRepository) AddAdjustment(ctx context.Context, adj *model.Adjustment) (*model.Adjustment, error) {
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, adj.SaleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return ErrSaleFinalized
			}

			return insertAdjustment(ctx, tx, adj)
		})
	})
	if err != nil {
		return nil, err
	}

	return adj, nil
}

// AddGiftCardAdjustment списывает средства с карты и прикрепляет инструмент
// погашения к чеку одной транзакцией. Порядок блокировок: чек, затем карта.
func (r *PostgresRepository) AddGiftCardAdjustment(ctx context.Context, saleID int64, cardCode string, amount decimal.Decimal, employeeID int64) (*model.Adjustment, error) {
	var adj *model.Adjustment
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return ErrSaleFinalized
			}

			card, err := lockCard(ctx, tx, cardCode)
			if err != nil {
				return err
			}

			entry, err := redeemLocked(ctx, tx, card, amount, employeeID, &saleID,
				fmt.Sprintf("redeemed against sale %d", saleID))
			if err != nil {
				return err
			}

			adj = &model.Adjustment{
				SaleID:       saleID,
				Kind:         model.AdjustmentKindGiftCard,
				Value:        amount,
				IsPercentage: false,
				Deduction:    amount,
				GiftCardID:   &card.ID,
				GiftCardTxID: &entry.ID,
			}
			return insertAdjustment(ctx, tx, adj)
		})
	})
	if err != nil {
		return nil, err
	}

	return adj, nil
}

// RemoveAdjustment открепляет инструмент от чека. Для погашения подарочной
// карты возвращает средства компенсирующей записью RECHARGE, ссылающейся на
// исходную запись REDEEM; сам журнал не редактируется.
func (r *PostgresRepository) RemoveAdjustment(ctx context.Context, saleID, adjustmentID, employeeID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return ErrSaleFinalized
			}

			var (
				kind      string
				deduction decimal.Decimal
				cardID    *int64
				cardTxID  *int64
			)
			err = tx.QueryRow(ctx,
				`SELECT kind, deduction, gift_card_id, gift_card_tx_id
				 FROM sale_adjustments WHERE id = $1 AND sale_id = $2`,
				adjustmentID, saleID,
			).Scan(&kind, &deduction, &cardID, &cardTxID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrAdjustmentNotFound
				}
				return fmt.Errorf("select adjustment: %w", err)
			}

			if model.AdjustmentKind(kind) == model.AdjustmentKindGiftCard && cardID != nil {
				var code string
				if err := tx.QueryRow(ctx,
					`SELECT code FROM gift_cards WHERE id = $1`, *cardID,
				).Scan(&code); err != nil {
					return fmt.Errorf("select card code: %w", err)
				}

				card, err := lockCard(ctx, tx, code)
				if err != nil {
					return err
				}

				if _, err := rechargeLocked(ctx, tx, card, deduction, employeeID, &saleID, reversalNote(cardTxID)); err != nil {
					return err
				}
			}

			tag, err := tx.Exec(ctx,
				`DELETE FROM sale_adjustments WHERE id = $1 AND sale_id = $2`,
				adjustmentID, saleID,
			)
			if err != nil {
				return fmt.Errorf("delete adjustment: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrAdjustmentNotFound
			}

			return nil
		})
	})
}

// FinalizeSale замораживает чек. Повторный вызов ничего не меняет.
func (r *PostgresRepository) FinalizeSale(ctx context.Context, saleID int64, payable decimal.Decimal) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			sale, err := lockSale(ctx, tx, saleID)
			if err != nil {
				return err
			}
			if sale.Finalized() {
				return nil
			}

			_, err = tx.Exec(ctx,
				`UPDATE sales SET finalized_at = now(), payable_total = $2 WHERE id = $1`,
				saleID, payable,
			)
			if err != nil {
				return fmt.Errorf("finalize sale: %w", err)
			}

			return nil
		})
	})
}

// GetSale возвращает чек с позициями и инструментами.
func (r *PostgresRepository) GetSale(ctx context.Context, saleID int64) (*model.Sale, error) {
	var s model.Sale
	err := r.pool.QueryRow(ctx,
		`SELECT id, opened_by, finalized_at, created_at FROM sales WHERE id = $1`,
		saleID,
	).Scan(&s.ID, &s.OpenedBy, &s.FinalizedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("select sale: %w", err)
	}

	items, err := r.getSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	s.Items = items

	adjustments, err := r.getSaleAdjustments(ctx, saleID)
	if err != nil {
		return nil, err
	}
	s.Adjustments = adjustments

	return &s, nil
}

func (r *PostgresRepository) getSaleItems(ctx context.Context, saleID int64) ([]model.LineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, service_name, unit_price, quantity
		 FROM sale_items WHERE sale_id = $1 ORDER BY id`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	defer rows.Close()

	var res []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ServiceName, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) getSaleAdjustments(ctx context.Context, saleID int64) ([]model.Adjustment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, kind, value, is_percentage, deduction,
		        gift_card_id, gift_card_tx_id, promotion_id, created_at
		 FROM sale_adjustments WHERE sale_id = $1 ORDER BY id`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale adjustments: %w", err)
	}
	defer rows.Close()

	var res []model.Adjustment
	for rows.Next() {
		var a model.Adjustment
		var kind string
		if err := rows.Scan(&a.ID, &a.SaleID, &kind, &a.Value, &a.IsPercentage, &a.Deduction,
			&a.GiftCardID, &a.GiftCardTxID, &a.PromotionID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.Kind = model.AdjustmentKind(kind)
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
