package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/skorenev/marketplace/internal/audit"
	"github.com/skorenev/marketplace/internal/config"
	"github.com/skorenev/marketplace/internal/httpserver"
	"github.com/skorenev/marketplace/internal/logging"
	"github.com/skorenev/marketplace/internal/oauth"
	"github.com/skorenev/marketplace/internal/repo"
	"github.com/skorenev/marketplace/internal/service"
	"github.com/skorenev/marketplace/internal/tokens"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LogLevel)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	recorder := audit.NewRecorder(configuration.KAFKA_ADDRESS, configuration.AuditTopic, nil, configuration.AuditIndex)
	if configuration.ES_URL != "" {
		es, err := audit.NewESClient(configuration.ES_URL, configuration.ES_USER, configuration.ES_PASSWORD)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		recorder.ES = es
	}

	var rdb *redis.Client
	if configuration.REDIS_ADDR != "" {
		rdb = redis.NewClient(&redis.Options{Addr: configuration.REDIS_ADDR})
	}

	codec := tokens.NewCodec(
		[]byte(configuration.ACCESS_SECRET),
		[]byte(configuration.REFRESH_SECRET),
		configuration.AccessTTL,
		configuration.RefreshTTL,
	)

	svc := &service.AuthService{
		Repo:   repo.NewAuthRepo(db),
		Codec:  codec,
		Bridge: oauth.NewGoogleBridge(configuration.GOOGLE_CLIENT_ID, configuration.GOOGLE_CLIENT_SECRET, configuration.GOOGLE_REDIRECT_URL),
		States: oauth.NewStateSigner([]byte(configuration.STATE_SECRET), 10*time.Minute),
		Audit:  recorder,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHandler{
			Svc: svc,
			Cookies: httpserver.CookieOptions{
				Domain: configuration.CookieDomain,
				Secure: configuration.CookieSecure,
			},
		},
		Codec:           codec,
		Redis:           rdb,
		RateLimitWindow: configuration.RateLimitWindow,
		RateLimitMax:    configuration.RateLimitMax,
	})

	srv := &http.Server{
		Addr:         configuration.ListenAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := recorder.Close(); err != nil {
		log.Printf("audit close error: %v", err)
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
