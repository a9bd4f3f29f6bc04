package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdship/internal/api"
	"crowdship/internal/config"
	"crowdship/internal/modules/admin"
	"crowdship/internal/modules/chat"
	"crowdship/internal/modules/deliveries"
	"crowdship/internal/modules/pricing"
	"crowdship/internal/modules/ratings"
	"crowdship/internal/modules/tracking"
	"crowdship/internal/modules/users"
	"crowdship/pkg/email"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	var notifier email.Notifier = email.NopNotifier{}
	if cfg.EmailFrom != "" {
		sender, err := email.NewSESV2Sender(ctx, cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			log.Printf("SES unavailable, notifications disabled: %v", err)
		} else {
			notifier = email.NewEmailNotifier(sender)
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	userSvc := users.NewService(users.NewRepository(dbpool), cfg.JWTSecret, oauthCfg)
	pricingSvc := pricing.NewService(pricing.NewRepository(dbpool))
	trackingSvc := tracking.NewService(tracking.NewRepository(dbpool),
		tracking.NewRedisLiveStore(rdb), userSvc, notifier)
	deliverySvc := deliveries.NewService(deliveries.NewRepository(dbpool),
		pricingSvc, userSvc, trackingSvc, deliveries.NewRedisCache(rdb), notifier)
	chatSvc := chat.NewService(chat.NewRepository(dbpool))
	ratingSvc := ratings.NewService(ratings.NewRepository(dbpool))
	adminSvc := admin.NewService(admin.NewRepository(dbpool),
		userSvc, pricingSvc, trackingSvc, notifier)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowCredentials: true,
	}))

	api.RegisterRoutes(e, api.Handlers{
		Users:      users.NewHandler(userSvc),
		Deliveries: deliveries.NewHandler(deliverySvc),
		Tracking:   tracking.NewHandler(trackingSvc),
		Chat:       chat.NewHandler(chatSvc),
		Ratings:    ratings.NewHandler(ratingSvc),
		Pricing:    pricing.NewHandler(pricingSvc),
		Admin:      admin.NewHandler(adminSvc),
	}, cfg.JWTSecret)

	// Maintenance loops: stalled-match sweep and carrier signal-loss scan.
	go runEvery(ctx, time.Duration(cfg.SweepIntervalSec)*time.Second, func() {
		if err := deliverySvc.SweepTimeouts(ctx, time.Now()); err != nil {
			log.Printf("sweep: %v", err)
		}
	})
	go runEvery(ctx, time.Duration(cfg.SignalScanIntervalSec)*time.Second, func() {
		if err := trackingSvc.DetectSignalLoss(ctx, time.Now()); err != nil {
			log.Printf("signal scan: %v", err)
		}
	})

	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
