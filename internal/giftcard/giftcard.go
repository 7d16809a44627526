// Package giftcard реализует жизненный цикл подарочных карт поверх хранилища.
package giftcard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mlebedeva/salonpos-system/internal/model"
	"github.com/mlebedeva/salonpos-system/internal/repository"
	"github.com/mlebedeva/salonpos-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом карт.
type Repository interface {
	IssueCard(ctx context.Context, p repository.IssueCardParams) (*model.GiftCard, error)
	GetCardByCode(ctx context.Context, code string) (*model.GiftCard, error)
	ActivateCard(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error)
	RedeemCard(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error)
	RechargeCard(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, saleID *int64, note string) (*model.GiftCardTransaction, error)
	CancelCard(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error)
	GetTransactions(ctx context.Context, cardID int64) ([]model.GiftCardTransaction, error)
	ReconcileCard(ctx context.Context, code string) (stored, reconstructed decimal.Decimal, err error)
	FindCorruptCards(ctx context.Context) ([]repository.CardDiscrepancy, error)
}

// Service содержит бизнес-логику подарочных карт.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService создаёт сервис подарочных карт.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// IssueParams описывает параметры выпуска карты.
type IssueParams struct {
	InitialBalance decimal.Decimal
	CustomerID     *int64
	BranchID       *int64
	ExpiresAt      *time.Time
	Activate       bool
}

// Issue выпускает новую карту в состоянии PENDING (или сразу ACTIVE).
func (s *Service) Issue(ctx context.Context, employeeID int64, p IssueParams) (*model.GiftCard, error) {
	if !p.InitialBalance.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	code, err := validation.GenerateCardCode()
	if err != nil {
		return nil, err
	}

	return s.repo.IssueCard(ctx, repository.IssueCardParams{
		Code:           code,
		InitialBalance: p.InitialBalance,
		CustomerID:     p.CustomerID,
		BranchID:       p.BranchID,
		EmployeeID:     employeeID,
		ExpiresAt:      p.ExpiresAt,
		Activate:       p.Activate,
	})
}

// Lookup возвращает карту по коду. Активная карта с прошедшим сроком действия
// отдаётся как EXPIRED; это производное представление, история не меняется.
func (s *Service) Lookup(ctx context.Context, code string) (*model.GiftCard, error) {
	card, err := s.repo.GetCardByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if card.IsExpiredAt(time.Now()) {
		card.State = model.GiftCardStateExpired
	}

	return card, nil
}

// Activate переводит карту из PENDING в ACTIVE.
func (s *Service) Activate(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error) {
	return s.repo.ActivateCard(ctx, code, employeeID)
}

// Redeem списывает с карты указанную сумму.
func (s *Service) Redeem(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, note string) (*model.GiftCardTransaction, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}
	return s.repo.RedeemCard(ctx, code, amount, employeeID, nil, note)
}

// Recharge пополняет карту на указанную сумму.
func (s *Service) Recharge(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, note string) (*model.GiftCardTransaction, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}
	return s.repo.RechargeCard(ctx, code, amount, employeeID, nil, note)
}

// Cancel аннулирует карту.
func (s *Service) Cancel(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error) {
	return s.repo.CancelCard(ctx, code, employeeID)
}

// Transactions возвращает журнал карты от старых записей к новым.
func (s *Service) Transactions(ctx context.Context, code string) ([]model.GiftCardTransaction, error) {
	card, err := s.repo.GetCardByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTransactions(ctx, card.ID)
}

// Reconciliation описывает результат сверки баланса карты с журналом.
type Reconciliation struct {
	Code          string
	Stored        decimal.Decimal
	Reconstructed decimal.Decimal
	Consistent    bool
}

// Reconcile сверяет кэшированный баланс карты с журналом транзакций.
// Расхождение логируется как ошибка и отдаётся вызывающему.
func (s *Service) Reconcile(ctx context.Context, code string) (*Reconciliation, error) {
	stored, reconstructed, err := s.repo.ReconcileCard(ctx, code)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		Code:          code,
		Stored:        stored,
		Reconstructed: reconstructed,
		Consistent:    reconstructed.Equal(stored),
	}

	if !rec.Consistent {
		s.logger.Error("gift card ledger integrity violation",
			zap.String("code", code),
			zap.String("stored", stored.String()),
			zap.String("reconstructed", reconstructed.String()),
		)
	}

	return rec, nil
}

// RunReconciliationSweep выполняет периодическую сверку всех карт до отмены
// контекста. Найденные расхождения логируются; автоматическая починка не
// выполняется. Блокирует вызывающую горутину.
func (s *Service) RunReconciliationSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	corrupt, err := s.repo.FindCorruptCards(ctx)
	if err != nil {
		s.logger.Warn("reconciliation sweep failed", zap.Error(err))
		return
	}

	for _, d := range corrupt {
		s.logger.Error("gift card ledger integrity violation",
			zap.String("code", d.Code),
			zap.String("stored", d.Stored.String()),
			zap.String("reconstructed", d.Reconstructed.String()),
		)
	}
}
