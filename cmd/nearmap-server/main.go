package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nearmap/server/internal/api"
	"github.com/nearmap/server/internal/auth"
	"github.com/nearmap/server/internal/clusterindex"
	"github.com/nearmap/server/internal/config"
	"github.com/nearmap/server/internal/mapdata"
	"github.com/nearmap/server/internal/onlineindex"
	"github.com/nearmap/server/internal/rooms"
	"github.com/nearmap/server/internal/session"
	"github.com/nearmap/server/internal/storage"
	"github.com/nearmap/server/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := storage.NewPostgres(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	redis, err := storage.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redis.Close()

	st := store.New(db.Pool())
	cluster := clusterindex.New(redis.Client(), cfg.ZMin, cfg.ZMax)
	online := onlineindex.New(redis.Client())
	mapSvc := mapdata.New(cluster, online, st, cfg.ZMin, cfg.ZMax)
	roomReg := rooms.New()
	signer := auth.New(cfg.JWTSecret, time.Duration(cfg.TokenDuration)*time.Hour)

	sess := session.New(signer, st, mapSvc, online, roomReg)

	router := api.NewRouter(cfg, db, redis, sess)

	srv := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go mapSvc.RunScheduler(schedCtx, cfg.ReconcileHour)

	go func() {
		log.Printf("nearmap server starting on %s", cfg.BindAddr)
		var err error
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	cancelSched()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
