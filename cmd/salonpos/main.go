// Package main запускает HTTP-сервер POS-сервиса салона.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mlebedeva/salonpos-system/internal/authgate"
	"github.com/mlebedeva/salonpos-system/internal/checkout"
	"github.com/mlebedeva/salonpos-system/internal/config"
	"github.com/mlebedeva/salonpos-system/internal/giftcard"
	"github.com/mlebedeva/salonpos-system/internal/handler"
	"github.com/mlebedeva/salonpos-system/internal/middleware"
	"github.com/mlebedeva/salonpos-system/internal/promo"
	"github.com/mlebedeva/salonpos-system/internal/repository"
)

const reconciliationInterval = 5 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var promoClient *promo.Client
	if cfg.PromotionsAddress != "" {
		promoClient = promo.NewClient(cfg.PromotionsAddress)
	}

	cards := giftcard.NewService(repo, logger)
	gate := authgate.NewGate(cfg.ChallengeTTL)

	var promotions checkout.PromotionLookup
	if promoClient != nil {
		promotions = promoClient
	}
	sales := checkout.NewService(repo, gate, promotions)

	// Пустой секрет допустим: middleware сгенерирует случайный ключ,
	// но подписи не переживут перезапуск.
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(cards, sales, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки балансов карт с журналом
	g.Go(func() error {
		return cards.RunReconciliationSweep(ctx, reconciliationInterval)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting salonpos server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
