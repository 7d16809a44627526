// Package handler содержит HTTP-обработчики API POS-сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mlebedeva/salonpos-system/internal/authgate"
	"github.com/mlebedeva/salonpos-system/internal/checkout"
	"github.com/mlebedeva/salonpos-system/internal/giftcard"
	"github.com/mlebedeva/salonpos-system/internal/middleware"
	"github.com/mlebedeva/salonpos-system/internal/model"
	"github.com/mlebedeva/salonpos-system/internal/promo"
	"github.com/mlebedeva/salonpos-system/internal/repository"
	"github.com/mlebedeva/salonpos-system/internal/validation"
)

// GiftCardService определяет контракт сервиса подарочных карт для HTTP-слоя.
type GiftCardService interface {
	Issue(ctx context.Context, employeeID int64, p giftcard.IssueParams) (*model.GiftCard, error)
	Lookup(ctx context.Context, code string) (*model.GiftCard, error)
	Activate(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error)
	Redeem(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, note string) (*model.GiftCardTransaction, error)
	Recharge(ctx context.Context, code string, amount decimal.Decimal, employeeID int64, note string) (*model.GiftCardTransaction, error)
	Cancel(ctx context.Context, code string, employeeID int64) (*model.GiftCard, error)
	Transactions(ctx context.Context, code string) ([]model.GiftCardTransaction, error)
	Reconcile(ctx context.Context, code string) (*giftcard.Reconciliation, error)
}

// CheckoutService определяет контракт сервиса чеков для HTTP-слоя.
type CheckoutService interface {
	OpenSale(ctx context.Context, employeeID int64, items []model.LineItem) (*model.Sale, error)
	GetSale(ctx context.Context, saleID int64) (*model.Sale, error)
	AddItem(ctx context.Context, saleID int64, it model.LineItem) (*model.LineItem, error)
	RemoveItem(ctx context.Context, saleID, itemID int64) error
	IssueChallenge(ctx context.Context, saleID int64) (string, error)
	AddAdjustment(ctx context.Context, saleID, employeeID int64, req checkout.AdjustmentRequest) (*model.Adjustment, error)
	RemoveAdjustment(ctx context.Context, saleID, adjustmentID, employeeID int64) error
	Finalize(ctx context.Context, saleID int64) (decimal.Decimal, error)
}

// Handler реализует HTTP-обработчики API POS-сервиса.
type Handler struct {
	giftcards      GiftCardService
	checkout       CheckoutService
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(giftcards GiftCardService, co CheckoutService, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		giftcards:      giftcards,
		checkout:       co,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeServiceError переводит доменную ошибку в HTTP-статус.
// Неожиданные ошибки и нарушения целостности журнала логируются.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var status int

	switch {
	case errors.Is(err, repository.ErrLedgerIntegrity):
		status = http.StatusInternalServerError
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	case errors.Is(err, repository.ErrCardNotFound),
		errors.Is(err, repository.ErrSaleNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrAdjustmentNotFound),
		errors.Is(err, promo.ErrPromotionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidAmount):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrEmptyBasket),
		errors.Is(err, checkout.ErrUnknownAdjustmentKind):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, repository.ErrIllegalStateTransition),
		errors.Is(err, repository.ErrSaleFinalized),
		errors.Is(err, repository.ErrBasketLocked),
		errors.Is(err, checkout.ErrPromotionInactive):
		status = http.StatusConflict
	case errors.Is(err, authgate.ErrAuthorizationRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, authgate.ErrAuthorizationFailed):
		status = http.StatusForbidden
	default:
		status = http.StatusInternalServerError
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}

	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type giftCardResponse struct {
	Code           string          `json:"code"`
	State          string          `json:"state"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	BranchID       *int64          `json:"branch_id,omitempty"`
	ExpiresAt      *string         `json:"expires_at,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

func toGiftCardResponse(c *model.GiftCard) giftCardResponse {
	resp := giftCardResponse{
		Code:           c.Code,
		State:          string(c.State),
		InitialBalance: c.InitialBalance,
		CurrentBalance: c.CurrentBalance,
		CustomerID:     c.CustomerID,
		BranchID:       c.BranchID,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
	if c.ExpiresAt != nil {
		v := c.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &v
	}
	return resp
}

type transactionResponse struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	SaleID        *int64          `json:"sale_id,omitempty"`
	EmployeeID    int64           `json:"employee_id"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func toTransactionResponse(e model.GiftCardTransaction) transactionResponse {
	return transactionResponse{
		ID:            e.ID,
		Kind:          string(e.Kind),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		SaleID:        e.SaleID,
		EmployeeID:    e.EmployeeID,
		Note:          e.Note,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}

type issueCardRequest struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CustomerID     *int64          `json:"customer_id"`
	BranchID       *int64          `json:"branch_id"`
	ExpiresAt      string          `json:"expires_at"`
	Activate       bool            `json:"activate"`
}

// IssueGiftCard выпускает новую подарочную карту.
func (h *Handler) IssueGiftCard(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req issueCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	params := giftcard.IssueParams{
		InitialBalance: req.InitialBalance,
		CustomerID:     req.CustomerID,
		BranchID:       req.BranchID,
		Activate:       req.Activate,
	}

	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		params.ExpiresAt = &t
	}

	card, err := h.giftcards.Issue(r.Context(), employeeID, params)
	if err != nil {
		h.writeServiceError(w, err, "issue gift card error")
		return
	}

	writeJSON(w, http.StatusCreated, toGiftCardResponse(card))
}

// LookupGiftCard возвращает карту по коду с ленивой переклассификацией в EXPIRED.
func (h *Handler) LookupGiftCard(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !validation.IsValidCardCode(code) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	card, err := h.giftcards.Lookup(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err, "lookup gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, toGiftCardResponse(card))
}

// ActivateGiftCard переводит карту из PENDING в ACTIVE.
func (h *Handler) ActivateGiftCard(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")

	card, err := h.giftcards.Activate(r.Context(), code, employeeID)
	if err != nil {
		h.writeServiceError(w, err, "activate gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, toGiftCardResponse(card))
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// RedeemGiftCard списывает средства с карты вне чека.
func (h *Handler) RedeemGiftCard(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entry, err := h.giftcards.Redeem(r.Context(), code, req.Amount, employeeID, req.Note)
	if err != nil {
		h.writeServiceError(w, err, "redeem gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(*entry))
}

// RechargeGiftCard пополняет карту.
func (h *Handler) RechargeGiftCard(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entry, err := h.giftcards.Recharge(r.Context(), code, req.Amount, employeeID, req.Note)
	if err != nil {
		h.writeServiceError(w, err, "recharge gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(*entry))
}

// CancelGiftCard аннулирует карту.
func (h *Handler) CancelGiftCard(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")

	card, err := h.giftcards.Cancel(r.Context(), code, employeeID)
	if err != nil {
		h.writeServiceError(w, err, "cancel gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, toGiftCardResponse(card))
}

// GetGiftCardTransactions возвращает журнал карты от старых записей к новым.
func (h *Handler) GetGiftCardTransactions(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	entries, err := h.giftcards.Transactions(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err, "get gift card transactions error", zap.String("code", code))
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toTransactionResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

type reconcileResponse struct {
	Code          string          `json:"code"`
	Stored        decimal.Decimal `json:"stored_balance"`
	Reconstructed decimal.Decimal `json:"reconstructed_balance"`
	Consistent    bool            `json:"consistent"`
}

// ReconcileGiftCard сверяет кэшированный баланс карты с журналом.
func (h *Handler) ReconcileGiftCard(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, err := h.giftcards.Reconcile(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err, "reconcile gift card error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		Code:          rec.Code,
		Stored:        rec.Stored,
		Reconstructed: rec.Reconstructed,
		Consistent:    rec.Consistent,
	})
}

type itemRequest struct {
	ServiceName string          `json:"service_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

type openSaleRequest struct {
	Items []itemRequest `json:"items"`
}

type itemResponse struct {
	ID          int64           `json:"id"`
	ServiceName string          `json:"service_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

type adjustmentResponse struct {
	ID           int64           `json:"id"`
	Kind         string          `json:"kind"`
	Value        decimal.Decimal `json:"value"`
	IsPercentage bool            `json:"is_percentage"`
	Deduction    decimal.Decimal `json:"deduction"`
	GiftCardID   *int64          `json:"gift_card_id,omitempty"`
	GiftCardTxID *int64          `json:"gift_card_tx_id,omitempty"`
	PromotionID  *string         `json:"promotion_id,omitempty"`
}

type saleResponse struct {
	ID              int64                `json:"id"`
	Items           []itemResponse       `json:"items"`
	Adjustments     []adjustmentResponse `json:"adjustments"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	TotalDeductions decimal.Decimal      `json:"total_deductions"`
	PayableTotal    decimal.Decimal      `json:"payable_total"`
	FinalizedAt     *string              `json:"finalized_at,omitempty"`
}

func toSaleResponse(s *model.Sale) saleResponse {
	resp := saleResponse{
		ID:              s.ID,
		Items:           make([]itemResponse, 0, len(s.Items)),
		Adjustments:     make([]adjustmentResponse, 0, len(s.Adjustments)),
		Subtotal:        s.Subtotal(),
		TotalDeductions: s.TotalDeductions(),
		PayableTotal:    s.PayableTotal(),
	}

	for _, it := range s.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          it.ID,
			ServiceName: it.ServiceName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}

	for _, a := range s.Adjustments {
		resp.Adjustments = append(resp.Adjustments, adjustmentResponse{
			ID:           a.ID,
			Kind:         string(a.Kind),
			Value:        a.Value,
			IsPercentage: a.IsPercentage,
			Deduction:    a.Deduction,
			GiftCardID:   a.GiftCardID,
			GiftCardTxID: a.GiftCardTxID,
			PromotionID:  a.PromotionID,
		})
	}

	if s.FinalizedAt != nil {
		v := s.FinalizedAt.Format(time.RFC3339)
		resp.FinalizedAt = &v
	}

	return resp
}

// OpenSale открывает новый чек.
func (h *Handler) OpenSale(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req openSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.LineItem{
			ServiceName: it.ServiceName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}

	sale, err := h.checkout.OpenSale(r.Context(), employeeID, items)
	if err != nil {
		h.writeServiceError(w, err, "open sale error")
		return
	}

	writeJSON(w, http.StatusCreated, toSaleResponse(sale))
}

func saleIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
}

// GetSale возвращает чек с позициями, инструментами и итогами.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sale, err := h.checkout.GetSale(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, err, "get sale error", zap.Int64("saleID", saleID))
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(sale))
}

// AddSaleItem добавляет позицию в чек.
func (h *Handler) AddSaleItem(w http.ResponseWriter, r *http.Request) {
	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item, err := h.checkout.AddItem(r.Context(), saleID, model.LineItem{
		ServiceName: req.ServiceName,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.writeServiceError(w, err, "add sale item error", zap.Int64("saleID", saleID))
		return
	}

	writeJSON(w, http.StatusCreated, itemResponse{
		ID:          item.ID,
		ServiceName: item.ServiceName,
		UnitPrice:   item.UnitPrice,
		Quantity:    item.Quantity,
	})
}

// RemoveSaleItem удаляет позицию из чека.
func (h *Handler) RemoveSaleItem(w http.ResponseWriter, r *http.Request) {
	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.checkout.RemoveItem(r.Context(), saleID, itemID); err != nil {
		h.writeServiceError(w, err, "remove sale item error", zap.Int64("saleID", saleID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type challengeResponse struct {
	Code string `json:"code"`
}

// IssueAuthorizationChallenge выдаёт одноразовый код авторизации ручной скидки.
func (h *Handler) IssueAuthorizationChallenge(w http.ResponseWriter, r *http.Request) {
	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	code, err := h.checkout.IssueChallenge(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, err, "issue challenge error", zap.Int64("saleID", saleID))
		return
	}

	writeJSON(w, http.StatusCreated, challengeResponse{Code: code})
}

type addAdjustmentRequest struct {
	Kind              string          `json:"kind"`
	Value             decimal.Decimal `json:"value"`
	IsPercentage      bool            `json:"is_percentage"`
	AuthorizationCode string          `json:"authorization_code"`
	PromotionID       string          `json:"promotion_id"`
	CardCode          string          `json:"card_code"`
}

// AddAdjustment применяет инструмент корректировки к чеку.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req addAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	adj, err := h.checkout.AddAdjustment(r.Context(), saleID, employeeID, checkout.AdjustmentRequest{
		Kind:              model.AdjustmentKind(req.Kind),
		Value:             req.Value,
		IsPercentage:      req.IsPercentage,
		AuthorizationCode: req.AuthorizationCode,
		PromotionID:       req.PromotionID,
		CardCode:          req.CardCode,
	})
	if err != nil {
		h.writeServiceError(w, err, "add adjustment error", zap.Int64("saleID", saleID), zap.String("kind", req.Kind))
		return
	}

	writeJSON(w, http.StatusCreated, adjustmentResponse{
		ID:           adj.ID,
		Kind:         string(adj.Kind),
		Value:        adj.Value,
		IsPercentage: adj.IsPercentage,
		Deduction:    adj.Deduction,
		GiftCardID:   adj.GiftCardID,
		GiftCardTxID: adj.GiftCardTxID,
		PromotionID:  adj.PromotionID,
	})
}

// RemoveAdjustment открепляет инструмент от чека.
func (h *Handler) RemoveAdjustment(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.GetEmployeeIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	adjustmentID, err := strconv.ParseInt(chi.URLParam(r, "adjustmentID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.checkout.RemoveAdjustment(r.Context(), saleID, adjustmentID, employeeID); err != nil {
		h.writeServiceError(w, err, "remove adjustment error", zap.Int64("saleID", saleID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type finalizeResponse struct {
	PayableTotal decimal.Decimal `json:"payable_total"`
}

// FinalizeSale замораживает чек и возвращает итог к оплате.
func (h *Handler) FinalizeSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := saleIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payable, err := h.checkout.Finalize(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, err, "finalize sale error", zap.Int64("saleID", saleID))
		return
	}

	writeJSON(w, http.StatusOK, finalizeResponse{PayableTotal: payable})
}
