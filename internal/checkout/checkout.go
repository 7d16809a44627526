// Package checkout реализует корзину чека и алгоритм наложения скидок.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mlebedeva/salonpos-system/internal/authgate"
	"github.com/mlebedeva/salonpos-system/internal/model"
	"github.com/mlebedeva/salonpos-system/internal/money"
	"github.com/mlebedeva/salonpos-system/internal/promo"
	"github.com/mlebedeva/salonpos-system/internal/repository"
	"github.com/mlebedeva/salonpos-system/internal/validation"
)

// ErrEmptyBasket возвращается при операции над чеком без позиций.
var (
	ErrEmptyBasket = errors.New("empty basket")
	// ErrPromotionInactive возвращается, если промоакция сейчас не действует.
	ErrPromotionInactive = errors.New("promotion is not active")
	// ErrUnknownAdjustmentKind возвращается при неизвестном виде инструмента.
	ErrUnknownAdjustmentKind = errors.New("unknown adjustment kind")
)

// Repository описывает контракт доступа к данным, используемый сервисом чеков.
type Repository interface {
	CreateSale(ctx context.Context, openedBy int64, items []model.LineItem) (*model.Sale, error)
	GetSale(ctx context.Context, saleID int64) (*model.Sale, error)
	AddItem(ctx context.Context, saleID int64, it model.LineItem) (*model.LineItem, error)
	RemoveItem(ctx context.Context, saleID, itemID int64) error
	AddAdjustment(ctx context.Context, adj *model.Adjustment) (*model.Adjustment, error)
	AddGiftCardAdjustment(ctx context.Context, saleID int64, cardCode string, amount decimal.Decimal, employeeID int64) (*model.Adjustment, error)
	RemoveAdjustment(ctx context.Context, saleID, adjustmentID, employeeID int64) error
	FinalizeSale(ctx context.Context, saleID int64, payable decimal.Decimal) error
	GetCardByCode(ctx context.Context, code string) (*model.GiftCard, error)
}

// PromotionLookup описывает контракт сервиса промоакций.
type PromotionLookup interface {
	GetPromotion(ctx context.Context, id string) (*promo.Promotion, error)
}

// Service содержит бизнес-логику чеков и наложения скидок.
type Service struct {
	repo       Repository
	gate       *authgate.Gate
	promotions PromotionLookup
}

// NewService создаёт сервис чеков.
func NewService(repo Repository, gate *authgate.Gate, promotions PromotionLookup) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		promotions: promotions,
	}
}

// OpenSale открывает новый чек для кассира.
func (s *Service) OpenSale(ctx context.Context, employeeID int64, items []model.LineItem) (*model.Sale, error) {
	return s.repo.CreateSale(ctx, employeeID, items)
}

// GetSale возвращает чек с позициями и инструментами.
func (s *Service) GetSale(ctx context.Context, saleID int64) (*model.Sale, error) {
	return s.repo.GetSale(ctx, saleID)
}

// AddItem добавляет позицию в чек.
func (s *Service) AddItem(ctx context.Context, saleID int64, it model.LineItem) (*model.LineItem, error) {
	return s.repo.AddItem(ctx, saleID, it)
}

// RemoveItem удаляет позицию из чека.
func (s *Service) RemoveItem(ctx context.Context, saleID, itemID int64) error {
	return s.repo.RemoveItem(ctx, saleID, itemID)
}

// IssueChallenge выдаёт код авторизации ручной скидки для открытого чека.
func (s *Service) IssueChallenge(ctx context.Context, saleID int64) (string, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return "", err
	}
	if sale.Finalized() {
		return "", repository.ErrSaleFinalized
	}

	return s.gate.IssueChallenge(saleID)
}

// AdjustmentRequest описывает добавляемый инструмент корректировки.
type AdjustmentRequest struct {
	Kind              model.AdjustmentKind
	Value             decimal.Decimal
	IsPercentage      bool
	AuthorizationCode string
	PromotionID       string
	CardCode          string
}

// AddAdjustment применяет инструмент к чеку. Скидка каждого инструмента
// считается независимо от исходного subtotal, без последовательного
// компаундинга; итог к оплате не опускается ниже нуля.
func (s *Service) AddAdjustment(ctx context.Context, saleID, employeeID int64, req AdjustmentRequest) (*model.Adjustment, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Finalized() {
		return nil, repository.ErrSaleFinalized
	}
	if len(sale.Items) == 0 {
		return nil, ErrEmptyBasket
	}

	subtotal := sale.Subtotal()

	switch req.Kind {
	case model.AdjustmentKindPromotion:
		return s.addPromotion(ctx, sale, subtotal, req)

	case model.AdjustmentKindManualDiscount:
		return s.addManualDiscount(ctx, sale, subtotal, req)

	case model.AdjustmentKindCourtesy, model.AdjustmentKindWarranty:
		// Courtesy и warranty всегда списывают полный subtotal; введённая
		// величина сохраняется только для отчётности.
		return s.repo.AddAdjustment(ctx, &model.Adjustment{
			SaleID:    sale.ID,
			Kind:      req.Kind,
			Value:     req.Value,
			Deduction: subtotal,
		})

	case model.AdjustmentKindGiftCard:
		return s.addGiftCardRedemption(ctx, sale, employeeID, req)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdjustmentKind, req.Kind)
	}
}

func (s *Service) addPromotion(ctx context.Context, sale *model.Sale, subtotal decimal.Decimal, req AdjustmentRequest) (*model.Adjustment, error) {
	if s.promotions == nil {
		return nil, fmt.Errorf("promotions service not configured")
	}

	p, err := s.promotions.GetPromotion(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPromotionInactive
	}

	promotionID := p.ID
	return s.repo.AddAdjustment(ctx, &model.Adjustment{
		SaleID:       sale.ID,
		Kind:         model.AdjustmentKindPromotion,
		Value:        p.Value,
		IsPercentage: p.IsPercentage,
		Deduction:    money.Deduction(subtotal, p.Value, p.IsPercentage),
		PromotionID:  &promotionID,
	})
}

func (s *Service) addManualDiscount(ctx context.Context, sale *model.Sale, subtotal decimal.Decimal, req AdjustmentRequest) (*model.Adjustment, error) {
	if req.AuthorizationCode == "" {
		return nil, authgate.ErrAuthorizationRequired
	}
	if err := s.gate.Verify(sale.ID, req.AuthorizationCode); err != nil {
		return nil, err
	}

	if req.IsPercentage {
		if !money.IsValidPercent(req.Value) {
			return nil, repository.ErrInvalidAmount
		}
	} else if !money.IsValidAmount(req.Value) {
		return nil, repository.ErrInvalidAmount
	}

	return s.repo.AddAdjustment(ctx, &model.Adjustment{
		SaleID:       sale.ID,
		Kind:         model.AdjustmentKindManualDiscount,
		Value:        req.Value,
		IsPercentage: req.IsPercentage,
		Deduction:    money.Deduction(subtotal, req.Value, req.IsPercentage),
	})
}

func (s *Service) addGiftCardRedemption(ctx context.Context, sale *model.Sale, employeeID int64, req AdjustmentRequest) (*model.Adjustment, error) {
	if !validation.IsValidCardCode(req.CardCode) {
		return nil, repository.ErrCardNotFound
	}
	if !req.Value.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	card, err := s.repo.GetCardByCode(ctx, req.CardCode)
	if err != nil {
		return nil, err
	}

	// Сумма погашения не превышает ни остаток карты, ни остаток к оплате.
	amount := money.Min(req.Value, money.Min(card.CurrentBalance, sale.PayableTotal()))
	if !amount.IsPositive() {
		return nil, repository.ErrInsufficientBalance
	}

	return s.repo.AddGiftCardAdjustment(ctx, sale.ID, req.CardCode, amount, employeeID)
}

// RemoveAdjustment открепляет инструмент от чека до финализации. Для
// погашения подарочной карты средства возвращаются компенсирующей записью.
func (s *Service) RemoveAdjustment(ctx context.Context, saleID, adjustmentID, employeeID int64) error {
	return s.repo.RemoveAdjustment(ctx, saleID, adjustmentID, employeeID)
}

// Finalize замораживает чек и возвращает итог к оплате.
// Повторный вызов возвращает тот же итог.
func (s *Service) Finalize(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return decimal.Zero, err
	}

	if sale.Finalized() {
		return sale.PayableTotal(), nil
	}

	if len(sale.Items) == 0 {
		return decimal.Zero, ErrEmptyBasket
	}

	payable := sale.PayableTotal()
	if err := s.repo.FinalizeSale(ctx, saleID, payable); err != nil {
		return decimal.Zero, err
	}

	s.gate.Invalidate(saleID)

	return payable, nil
}
