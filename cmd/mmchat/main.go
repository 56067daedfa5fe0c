package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/api"
	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/config"
	"github.com/ageniuscoder/mmchat/client/internal/history"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	migrate := flag.Bool("migrate", false, "create the cache schema and exit")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	//config part
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file, using environment only", "err", err)
	}
	cfg := config.MustLoad()

	//cache handling
	var cache *storage.Cache
	if cfg.CacheDSN != "" {
		c, err := storage.Open(cfg.CacheDSN, cfg.CacheRetention, logger)
		if err != nil {
			log.Fatalf("Error opening cache: %v", err)
		}
		defer c.Close()
		cache = c
	}
	if *migrate {
		if cache == nil {
			log.Fatalf("Migration needs CACHE_DSN")
		}
		slog.Info("Migration Completed")
		return
	}

	session, err := auth.SessionFromToken(cfg.AccessToken)
	if err != nil {
		log.Fatalf("Invalid ACCESS_TOKEN: %v", err)
	}

	hist, err := history.New(cfg.BaseURL, session.Token, &http.Client{Timeout: 15 * time.Second}, logger)
	if err != nil {
		log.Fatalf("Invalid BASE_URL: %v", err)
	}

	opts := chat.Options{
		Session:     session,
		WSBaseURL:   cfg.WSBaseURL,
		MediaBase:   hist.Base(),
		History:     hist,
		Location:    cfg.Location,
		PageSize:    cfg.HistoryPageSize,
		TypingQuiet: cfg.TypingQuiet,
		Log:         logger,
	}
	if cache != nil {
		opts.Cache = cache
	}
	manager := chat.NewManager(opts)
	defer manager.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.Register(r.Group("/api/v1"), manager, logger)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		slog.Info("local api listening", "addr", cfg.Addr, "user", session.UserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error serving api: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown", "err", err)
	}
}
