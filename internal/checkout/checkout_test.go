package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlebedeva/salonpos-system/internal/authgate"
	"github.com/mlebedeva/salonpos-system/internal/model"
	"github.com/mlebedeva/salonpos-system/internal/promo"
	"github.com/mlebedeva/salonpos-system/internal/repository"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type stubRepo struct {
	sale    *model.Sale
	saleErr error

	card    *model.GiftCard
	cardErr error

	addedAdj  *model.Adjustment
	addAdjErr error

	gcCode   string
	gcAmount decimal.Decimal
	gcAdj    *model.Adjustment
	gcErr    error

	finalizedWith *decimal.Decimal
	removedAdjID  int64
	removeAdjErr  error
	createdSale   *model.Sale
	addedItem     *model.LineItem
	removedItemID int64
}

func (s *stubRepo) CreateSale(ctx context.Context, openedBy int64, items []model.LineItem) (*model.Sale, error) {
	return s.createdSale, nil
}

func (s *stubRepo) GetSale(ctx context.Context, saleID int64) (*model.Sale, error) {
	return s.sale, s.saleErr
}

func (s *stubRepo) AddItem(ctx context.Context, saleID int64, it model.LineItem) (*model.LineItem, error) {
	s.addedItem = &it
	return &it, nil
}

func (s *stubRepo) RemoveItem(ctx context.Context, saleID, itemID int64) error {
	s.removedItemID = itemID
	return nil
}

func (s *stubRepo) AddAdjustment(ctx context.Context, adj *model.Adjustment) (*model.Adjustment, error) {
	if s.addAdjErr != nil {
		return nil, s.addAdjErr
	}
	s.addedAdj = adj
	return adj, nil
}

func (s *stubRepo) AddGiftCardAdjustment(ctx context.Context, saleID int64, cardCode string, amount decimal.Decimal, employeeID int64) (*model.Adjustment, error) {
	if s.gcErr != nil {
		return nil, s.gcErr
	}
	s.gcCode = cardCode
	s.gcAmount = amount
	if s.gcAdj != nil {
		return s.gcAdj, nil
	}
	return &model.Adjustment{
		SaleID:    saleID,
		Kind:      model.AdjustmentKindGiftCard,
		Value:     amount,
		Deduction: amount,
	}, nil
}

func (s *stubRepo) RemoveAdjustment(ctx context.Context, saleID, adjustmentID, employeeID int64) error {
	s.removedAdjID = adjustmentID
	return s.removeAdjErr
}

func (s *stubRepo) FinalizeSale(ctx context.Context, saleID int64, payable decimal.Decimal) error {
	s.finalizedWith = &payable
	return nil
}

func (s *stubRepo) GetCardByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	return s.card, s.cardErr
}

type stubPromotions struct {
	promotion *promo.Promotion
	err       error
}

func (s *stubPromotions) GetPromotion(ctx context.Context, id string) (*promo.Promotion, error) {
	return s.promotion, s.err
}

func openSale(subtotal string) *model.Sale {
	return &model.Sale{
		ID:       1,
		OpenedBy: 10,
		Items: []model.LineItem{
			{ID: 1, SaleID: 1, ServiceName: "haircut", UnitPrice: dec(subtotal), Quantity: 1},
		},
	}
}

func newService(repo *stubRepo, promotions PromotionLookup) (*Service, *authgate.Gate) {
	gate := authgate.NewGate(time.Minute)
	return NewService(repo, gate, promotions), gate
}

func TestAddAdjustment_EmptyBasket(t *testing.T) {
	repo := &stubRepo{sale: &model.Sale{ID: 1}}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind: model.AdjustmentKindCourtesy,
	})
	if !errors.Is(err, ErrEmptyBasket) {
		t.Fatalf("AddAdjustment on empty basket = %v, want ErrEmptyBasket", err)
	}
}

func TestAddAdjustment_FinalizedSale(t *testing.T) {
	now := time.Now()
	sale := openSale("100.00")
	sale.FinalizedAt = &now

	repo := &stubRepo{sale: sale}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind: model.AdjustmentKindCourtesy,
	})
	if !errors.Is(err, repository.ErrSaleFinalized) {
		t.Fatalf("AddAdjustment on finalized sale = %v, want ErrSaleFinalized", err)
	}
}

func TestAddAdjustment_CourtesyIgnoresEnteredValue(t *testing.T) {
	repo := &stubRepo{sale: openSale("600.00")}
	svc, _ := newService(repo, nil)

	adj, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:  model.AdjustmentKindCourtesy,
		Value: dec("5.00"),
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !adj.Deduction.Equal(dec("600.00")) {
		t.Fatalf("courtesy deduction = %s, want 600.00", adj.Deduction)
	}
}

func TestAddAdjustment_WarrantyFullSubtotal(t *testing.T) {
	repo := &stubRepo{sale: openSale("250.00")}
	svc, _ := newService(repo, nil)

	adj, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind: model.AdjustmentKindWarranty,
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !adj.Deduction.Equal(dec("250.00")) {
		t.Fatalf("warranty deduction = %s, want 250.00", adj.Deduction)
	}
}

func TestAddAdjustment_ManualDiscountWithoutCode(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:         model.AdjustmentKindManualDiscount,
		Value:        dec("10"),
		IsPercentage: true,
	})
	if !errors.Is(err, authgate.ErrAuthorizationRequired) {
		t.Fatalf("manual discount without code = %v, want ErrAuthorizationRequired", err)
	}
	if repo.addedAdj != nil {
		t.Fatalf("adjustment must not be added without authorization")
	}
}

func TestAddAdjustment_ManualDiscountWrongCode(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	svc, gate := newService(repo, nil)

	code, err := gate.IssueChallenge(1)
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	_, err = svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:              model.AdjustmentKindManualDiscount,
		Value:             dec("10"),
		IsPercentage:      true,
		AuthorizationCode: wrong,
	})
	if !errors.Is(err, authgate.ErrAuthorizationFailed) {
		t.Fatalf("manual discount with wrong code = %v, want ErrAuthorizationFailed", err)
	}
	if repo.addedAdj != nil {
		t.Fatalf("adjustment must not be added after failed authorization")
	}
}

func TestAddAdjustment_ManualDiscountAuthorized(t *testing.T) {
	repo := &stubRepo{sale: openSale("200.00")}
	svc, gate := newService(repo, nil)

	code, err := gate.IssueChallenge(1)
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	adj, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:              model.AdjustmentKindManualDiscount,
		Value:             dec("25"),
		IsPercentage:      true,
		AuthorizationCode: code,
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !adj.Deduction.Equal(dec("50")) {
		t.Fatalf("manual discount deduction = %s, want 50", adj.Deduction)
	}

	// Код одноразовый: повторное применение требует нового
	_, err = svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:              model.AdjustmentKindManualDiscount,
		Value:             dec("5"),
		IsPercentage:      true,
		AuthorizationCode: code,
	})
	if !errors.Is(err, authgate.ErrAuthorizationRequired) {
		t.Fatalf("reused code = %v, want ErrAuthorizationRequired", err)
	}
}

func TestAddAdjustment_ManualDiscountInvalidPercent(t *testing.T) {
	repo := &stubRepo{sale: openSale("200.00")}
	svc, gate := newService(repo, nil)

	code, err := gate.IssueChallenge(1)
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	_, err = svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:              model.AdjustmentKindManualDiscount,
		Value:             dec("150"),
		IsPercentage:      true,
		AuthorizationCode: code,
	})
	if !errors.Is(err, repository.ErrInvalidAmount) {
		t.Fatalf("manual discount 150%% = %v, want ErrInvalidAmount", err)
	}
}

func TestAddAdjustment_PromotionInactive(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	promotions := &stubPromotions{promotion: &promo.Promotion{ID: "spring", Active: false}}
	svc, _ := newService(repo, promotions)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:        model.AdjustmentKindPromotion,
		PromotionID: "spring",
	})
	if !errors.Is(err, ErrPromotionInactive) {
		t.Fatalf("inactive promotion = %v, want ErrPromotionInactive", err)
	}
}

func TestAddAdjustment_PromotionPercentage(t *testing.T) {
	repo := &stubRepo{sale: openSale("1000.00")}
	promotions := &stubPromotions{promotion: &promo.Promotion{
		ID:           "spring",
		Active:       true,
		IsPercentage: true,
		Value:        dec("15"),
	}}
	svc, _ := newService(repo, promotions)

	adj, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:        model.AdjustmentKindPromotion,
		PromotionID: "spring",
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !adj.Deduction.Equal(dec("150")) {
		t.Fatalf("promotion deduction = %s, want 150", adj.Deduction)
	}
}

func TestAddAdjustment_GiftCardClampedToBalance(t *testing.T) {
	sale := openSale("1000.00")
	sale.Adjustments = []model.Adjustment{
		{Kind: model.AdjustmentKindPromotion, Deduction: dec("150.00")},
	}

	repo := &stubRepo{
		sale: sale,
		card: &model.GiftCard{
			Code:           "GC-ABCD-2345",
			State:          model.GiftCardStateActive,
			InitialBalance: dec("400.00"),
			CurrentBalance: dec("400.00"),
		},
	}
	svc, _ := newService(repo, nil)

	// Остаток к оплате 850, баланс карты 400, запрошено 900: клэмп к 400
	adj, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:     model.AdjustmentKindGiftCard,
		Value:    dec("900.00"),
		CardCode: "GC-ABCD-2345",
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !repo.gcAmount.Equal(dec("400.00")) {
		t.Fatalf("redeemed amount = %s, want 400.00", repo.gcAmount)
	}
	if !adj.Deduction.Equal(dec("400.00")) {
		t.Fatalf("deduction = %s, want 400.00", adj.Deduction)
	}
}

func TestAddAdjustment_GiftCardClampedToRemainingPayable(t *testing.T) {
	sale := openSale("100.00")

	repo := &stubRepo{
		sale: sale,
		card: &model.GiftCard{
			Code:           "GC-ABCD-2345",
			State:          model.GiftCardStateActive,
			InitialBalance: dec("500.00"),
			CurrentBalance: dec("500.00"),
		},
	}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:     model.AdjustmentKindGiftCard,
		Value:    dec("500.00"),
		CardCode: "GC-ABCD-2345",
	})
	if err != nil {
		t.Fatalf("AddAdjustment error: %v", err)
	}

	if !repo.gcAmount.Equal(dec("100.00")) {
		t.Fatalf("redeemed amount = %s, want 100.00", repo.gcAmount)
	}
}

func TestAddAdjustment_GiftCardBadCode(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:     model.AdjustmentKindGiftCard,
		Value:    dec("50.00"),
		CardCode: "not-a-code",
	})
	if !errors.Is(err, repository.ErrCardNotFound) {
		t.Fatalf("bad card code = %v, want ErrCardNotFound", err)
	}
}

func TestAddAdjustment_GiftCardNothingPayable(t *testing.T) {
	sale := openSale("100.00")
	sale.Adjustments = []model.Adjustment{
		{Kind: model.AdjustmentKindCourtesy, Deduction: dec("100.00")},
	}

	repo := &stubRepo{
		sale: sale,
		card: &model.GiftCard{
			Code:           "GC-ABCD-2345",
			State:          model.GiftCardStateActive,
			InitialBalance: dec("500.00"),
			CurrentBalance: dec("500.00"),
		},
	}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind:     model.AdjustmentKindGiftCard,
		Value:    dec("50.00"),
		CardCode: "GC-ABCD-2345",
	})
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("redemption with zero payable = %v, want ErrInsufficientBalance", err)
	}
}

func TestAddAdjustment_UnknownKind(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	svc, _ := newService(repo, nil)

	_, err := svc.AddAdjustment(context.Background(), 1, 10, AdjustmentRequest{
		Kind: model.AdjustmentKind("LOYALTY"),
	})
	if !errors.Is(err, ErrUnknownAdjustmentKind) {
		t.Fatalf("unknown kind = %v, want ErrUnknownAdjustmentKind", err)
	}
}

func TestFinalize_EmptyBasket(t *testing.T) {
	repo := &stubRepo{sale: &model.Sale{ID: 1}}
	svc, _ := newService(repo, nil)

	_, err := svc.Finalize(context.Background(), 1)
	if !errors.Is(err, ErrEmptyBasket) {
		t.Fatalf("Finalize on empty basket = %v, want ErrEmptyBasket", err)
	}
	if repo.finalizedWith != nil {
		t.Fatalf("empty sale must not be finalized")
	}
}

func TestFinalize_ComputesPayable(t *testing.T) {
	sale := openSale("1000.00")
	sale.Adjustments = []model.Adjustment{
		{Kind: model.AdjustmentKindPromotion, Deduction: dec("150.00")},
		{Kind: model.AdjustmentKindGiftCard, Deduction: dec("400.00")},
	}

	repo := &stubRepo{sale: sale}
	svc, _ := newService(repo, nil)

	payable, err := svc.Finalize(context.Background(), 1)
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	if !payable.Equal(dec("450.00")) {
		t.Fatalf("payable = %s, want 450.00", payable)
	}
	if repo.finalizedWith == nil || !repo.finalizedWith.Equal(dec("450.00")) {
		t.Fatalf("FinalizeSale called with %v, want 450.00", repo.finalizedWith)
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	now := time.Now()
	sale := openSale("300.00")
	sale.FinalizedAt = &now

	repo := &stubRepo{sale: sale}
	svc, _ := newService(repo, nil)

	payable, err := svc.Finalize(context.Background(), 1)
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	if !payable.Equal(dec("300.00")) {
		t.Fatalf("payable = %s, want 300.00", payable)
	}
	if repo.finalizedWith != nil {
		t.Fatalf("already finalized sale must not be finalized again")
	}
}

func TestFinalize_InvalidatesChallenge(t *testing.T) {
	repo := &stubRepo{sale: openSale("100.00")}
	svc, gate := newService(repo, nil)

	code, err := gate.IssueChallenge(1)
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	if _, err := svc.Finalize(context.Background(), 1); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	if err := gate.Verify(1, code); !errors.Is(err, authgate.ErrAuthorizationRequired) {
		t.Fatalf("challenge survived finalization: %v", err)
	}
}

func TestIssueChallenge_FinalizedSale(t *testing.T) {
	now := time.Now()
	sale := openSale("100.00")
	sale.FinalizedAt = &now

	repo := &stubRepo{sale: sale}
	svc, _ := newService(repo, nil)

	_, err := svc.IssueChallenge(context.Background(), 1)
	if !errors.Is(err, repository.ErrSaleFinalized) {
		t.Fatalf("IssueChallenge on finalized sale = %v, want ErrSaleFinalized", err)
	}
}
