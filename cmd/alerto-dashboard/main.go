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
	"go.uber.org/zap/zapcore"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/api"
	"github.com/alerto-de-pin/dashboard-client/internal/config"
	"github.com/alerto-de-pin/dashboard-client/internal/dashboard"
	"github.com/alerto-de-pin/dashboard-client/internal/lifecycle"
	"github.com/alerto-de-pin/dashboard-client/internal/location"
	"github.com/alerto-de-pin/dashboard-client/internal/mapview"
	"github.com/alerto-de-pin/dashboard-client/internal/realtime"
	"github.com/alerto-de-pin/dashboard-client/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dashboard", zap.String("role", cfg.Role))

	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		sessionPath = session.DefaultPath()
	}
	sessions, err := session.NewStore(sessionPath)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.Error(err))
	}

	client := api.NewClient(cfg.APIBaseURL, sessions, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ensureLoggedIn(ctx, client, sessions); err != nil {
		logger.Fatal("Login failed", zap.Error(err))
	}
	user := sessions.Current().User
	logger.Info("Authenticated", zap.String("user", user.Name))

	locator := location.NewIPLocator(cfg.IPLocationURL, logger)
	geocoder := location.NewReverseGeocoder(cfg.GeocodeURL, logger)
	directions := location.NewDirectionsClient(cfg.DirectionsURL, cfg.DirectionsToken, logger)

	store := alert.NewStore()
	feed := alert.NewNotificationFeed()

	channel := realtime.NewChannel(realtime.Config{
		URL:          cfg.SocketURL,
		UserID:       user.ID,
		Name:         user.Name,
		UserType:     cfg.Role,
		RelevantType: cfg.RelevantType(),
		Store:        store,
		Notifier:     feed,
		Locator:      locator,
		Logger:       logger,
	})

	controller := lifecycle.NewController(lifecycle.Config{
		Backend:         client,
		Store:           store,
		Notifier:        feed,
		Locator:         locator,
		Geocoder:        geocoder,
		FallbackAddress: user.Address,
		SelfID:          user.ID,
		SelfName:        user.Name,
		RelevantType:    cfg.RelevantType(),
		Logger:          logger,
	})

	projection := mapview.NewProjection(mapview.Config{
		Store:    store,
		Presence: channel,
		Locator:  locator,
		Router:   directions,
		Logger:   logger,
	})
	controller.OnResolved(projection.DeselectAlert)

	d := dashboard.New(dashboard.Config{
		Role:            cfg.Role,
		Store:           store,
		Feed:            feed,
		Controller:      controller,
		Channel:         channel,
		Projection:      projection,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          logger,
	})

	if err := d.Run(ctx); err != nil {
		logger.Fatal("Failed to start dashboard", zap.Error(err))
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: d.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Serving UI surface", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}
	d.Close()

	logger.Info("Dashboard stopped")
}

// ensureLoggedIn reuses the persisted session when one exists, otherwise
// logs in with the credentials from the environment.
func ensureLoggedIn(ctx context.Context, client *api.Client, sessions *session.Store) error {
	if sessions.LoggedIn() {
		// The persisted token may have expired; verify against the server.
		if _, err := client.CurrentUser(ctx); err == nil {
			return nil
		}
		if err := sessions.Clear(); err != nil {
			return err
		}
	}

	email := os.Getenv("ALERTO_EMAIL")
	password := os.Getenv("ALERTO_PASSWORD")
	if email == "" || password == "" {
		return fmt.Errorf("no valid session; set ALERTO_EMAIL and ALERTO_PASSWORD to log in")
	}

	result, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	return sessions.Save(session.State{
		User:     result.User,
		Token:    result.Token,
		DarkMode: sessions.Current().DarkMode,
	})
}

func newLogger(level string, jsonFormat bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	if !jsonFormat {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapCfg.Build()
}
