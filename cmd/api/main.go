package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/config"
	"github.com/sokoni/sokoni-api/internal/domain/credit"
	"github.com/sokoni/sokoni-api/internal/domain/listing"
	"github.com/sokoni/sokoni-api/internal/domain/pricing"
	"github.com/sokoni/sokoni-api/internal/domain/purchase"
	"github.com/sokoni/sokoni-api/internal/domain/reconciliation"
	"github.com/sokoni/sokoni-api/internal/middleware"
	"github.com/sokoni/sokoni-api/internal/pkg/database"
	"github.com/sokoni/sokoni-api/internal/pkg/jwt"
	"github.com/sokoni/sokoni-api/internal/pkg/logger"
	"github.com/sokoni/sokoni-api/internal/pkg/mobilemoney"
	pkgresponse "github.com/sokoni/sokoni-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.IsDevelopment())

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Sokoni API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	money := mobilemoney.NewAdapter(mobilemoney.Config{
		PaybillNumber: cfg.PaybillNumber,
		WebhookKey:    cfg.PaymentWebhookKey,
		SMSRelayKey:   cfg.SMSRelayKey,
		RefPrefix:     cfg.PaymentRefPrefix,
	})

	// ---------- Repositories ----------
	creditRepo := credit.NewRepository(db)
	purchaseRepo := purchase.NewRepository(db)
	pricingRepo := pricing.NewRepository(db)
	listingRepo := listing.NewRepository(db)

	// ---------- Services ----------
	creditService := credit.NewService(db, creditRepo)
	purchaseService := purchase.NewService(db, purchaseRepo, pricingRepo, creditService, money)
	listingService := listing.NewService(listingRepo, creditService)

	// ---------- Handlers ----------
	creditHandler := credit.NewHandler(creditService)
	purchaseHandler := purchase.NewHandler(purchaseService)
	webhookHandler := purchase.NewWebhookHandler(purchaseService, money)
	pricingHandler := pricing.NewHandler(pricingRepo)
	listingHandler := listing.NewHandler(listingService)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Reconciliation ----------
	reconciler := reconciliation.NewReconciler(db, redis, cfg.ReconcileChannel)
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	reconciler.Start(reconcileCtx, cfg.ReconcileInterval)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Route("/credits", func(r chi.Router) {
			r.Mount("/pricing", pricingHandler.Routes())

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Mount("/", creditHandler.Routes())
				r.Mount("/purchases", purchaseHandler.Routes())
			})
		})

		r.Mount("/listings", listingHandler.Routes(authMiddleware))
	})

	r.Mount("/webhooks", webhookHandler.WebhookRoutes())

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())
		r.Mount("/credits", creditHandler.AdminRoutes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopReconcile()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
