package handler

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mlebedeva/salonpos-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware POS-сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(gziphandler.GzipHandler)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/giftcards", func(r chi.Router) {
				r.Post("/", h.IssueGiftCard)
				r.Get("/{code}", h.LookupGiftCard)
				r.Post("/{code}/activate", h.ActivateGiftCard)
				r.Post("/{code}/redeem", h.RedeemGiftCard)
				r.Post("/{code}/recharge", h.RechargeGiftCard)
				r.Post("/{code}/cancel", h.CancelGiftCard)
				r.Get("/{code}/transactions", h.GetGiftCardTransactions)
				r.Get("/{code}/reconcile", h.ReconcileGiftCard)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", h.OpenSale)
				r.Get("/{saleID}", h.GetSale)
				r.Post("/{saleID}/items", h.AddSaleItem)
				r.Delete("/{saleID}/items/{itemID}", h.RemoveSaleItem)
				r.Post("/{saleID}/authorization", h.IssueAuthorizationChallenge)
				r.Post("/{saleID}/adjustments", h.AddAdjustment)
				r.Delete("/{saleID}/adjustments/{adjustmentID}", h.RemoveAdjustment)
				r.Post("/{saleID}/finalize", h.FinalizeSale)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
