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

	"go.uber.org/zap"

	"chatclient/internal/config"
	"chatclient/internal/domain"
	"chatclient/internal/httpserver"
	"chatclient/internal/logger"
	"chatclient/internal/restclient"
	"chatclient/internal/security"
	"chatclient/internal/service"
	"chatclient/internal/store/sqlite"
	"chatclient/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg := logger.New(cfg.Debug).Named(cfg.AppName)
	defer func() { _ = lg.Sync() }()

	// Conversation preview cache (optional)
	var cache domain.PreviewCache
	if cfg.CachePath != "" {
		db, err := sqlite.Open(cfg.CachePath)
		if err != nil {
			lg.Fatal("failed to open cache", zap.Error(err))
		}
		defer db.Close()
		if err := sqlite.Migrate(db); err != nil {
			lg.Fatal("failed to run migrations", zap.Error(err))
		}
		cache = sqlite.NewPreviewRepo(db)
	}

	api, err := restclient.New(restclient.Options{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		Logger:  lg,
	})
	if err != nil {
		lg.Fatal("failed to build REST client", zap.Error(err))
	}

	session := ws.NewSession(ws.Options{
		URL:            cfg.WSURL,
		ReconnectDelay: cfg.ReconnectDelay,
		ReconnectMax:   cfg.ReconnectMax,
		PingInterval:   cfg.PingInterval,
		Logger:         lg,
	})
	session.Subscribe(func(st ws.State) {
		lg.Debug("session state", zap.Stringer("state", st))
	})

	var selfID int64
	if info, err := security.InspectToken(cfg.Token); err == nil {
		selfID = info.UserID
	}
	store := service.NewStore(api, session, service.StoreOptions{
		SelfID:          selfID,
		PageSize:        cfg.HistoryPage,
		MarkReadTimeout: cfg.RequestTimeout,
		Cache:           cache,
		Logger:          lg,
	})
	router := service.NewRouter(store, lg)
	session.OnFrame(router.Route)

	ctx := context.Background()
	if err := store.LoadCachedConversations(ctx); err != nil {
		lg.Warn("cached conversations unavailable", zap.Error(err))
	}
	if cfg.Token != "" {
		if err := session.Connect(ctx, cfg.Token); err != nil {
			lg.Warn("initial connect failed", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: httpserver.NewRouter(cfg, httpserver.Deps{
			Store:       store,
			Session:     session,
			Credentials: api,
			Logger:      lg,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		lg.Info("local API listening", zap.String("addr", cfg.HTTPAddr()), zap.String("push", cfg.WSURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("graceful shutdown failed", zap.Error(err))
	}
	session.Disconnect()
	store.Close()
}
