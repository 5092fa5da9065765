package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fermentation_monitor/internal/handlers"
	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/mqttingress"
	"fermentation_monitor/internal/notify"
	"fermentation_monitor/internal/repository"
	"fermentation_monitor/internal/server"
	"fermentation_monitor/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// load config.yml first so the logger level is configurable
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(db)
	notifier := buildNotifier(log)
	services := service.NewService(repos, notifier, serviceConfig(), log)
	apiHandler := handlers.NewHandler(services, log)

	// optional MQTT ingress for floating hydrometers
	ingress := mqttingress.New(mqttConfig(), services, log.Named("mqtt"))
	if ingress.Enabled() {
		if err := ingress.Start(); err != nil {
			// The HTTP path stays up; hydrometers can still post directly.
			log.Errorw("mqtt ingress failed to start", "err", err)
		}
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, ingress, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "fermentation.db")
		dbPath = "fermentation.db"
	}
	return repository.InitDB(dbPath)
}

// serviceConfig maps the monitoring section of config.yml onto the service
// defaults. Unset keys keep the built-in values.
func serviceConfig() service.Config {
	cfg := service.DefaultConfig()
	if v := viper.GetFloat64("monitoring.tolerance_c"); v > 0 {
		cfg.ToleranceC = v
	}
	if v := viper.GetFloat64("monitoring.critical_tolerance_c"); v > 0 {
		cfg.CriticalToleranceC = v
	}
	if v := viper.GetDuration("monitoring.offline_after"); v > 0 {
		cfg.OfflineAfter = v
	}
	if v := viper.GetDuration("monitoring.hydrometer_stale_after"); v > 0 {
		cfg.HydrometerStaleAfter = v
	}
	if v := viper.GetDuration("monitoring.alert_cooldown"); v > 0 {
		cfg.Cooldown = v
	}
	if v := viper.GetInt("retention.readings_keep"); v > 0 {
		cfg.ReadingsKeep = v
	}
	if v := viper.GetInt("retention.controller_keep"); v > 0 {
		cfg.ControllerKeep = v
	}
	if v := viper.GetInt("retention.heartbeat_keep"); v > 0 {
		cfg.HeartbeatKeep = v
	}
	if v := viper.GetInt("retention.snapshot_keep"); v > 0 {
		cfg.SnapshotKeep = v
	}
	if v := viper.GetInt("retention.hydrometer_keep"); v > 0 {
		cfg.HydrometerKeep = v
	}
	if v := viper.GetDuration("retention.orphan_sweep_every"); v > 0 {
		cfg.OrphanSweepEvery = v
	}
	return cfg
}

// buildNotifier assembles the outbound channels that are configured. Zero
// channels is fine; alerts still persist and show in the dashboard.
func buildNotifier(log *logger.Logger) *notify.Dispatcher {
	var channels []notify.Channel
	if url := viper.GetString("notify.webhook_url"); url != "" {
		channels = append(channels, notify.NewWebhookChannel(url))
	}
	token := viper.GetString("notify.telegram_token")
	chatID := viper.GetString("notify.telegram_chat_id")
	if token != "" && chatID != "" {
		channels = append(channels, notify.NewTelegramChannel(token, chatID))
	}
	log.Infow("notification channels configured", "count", len(channels))
	return notify.NewDispatcher(log.Named("notify"), channels...)
}

func mqttConfig() mqttingress.Config {
	return mqttingress.Config{
		Broker:   viper.GetString("mqtt.broker"),
		ClientID: viper.GetString("mqtt.client_id"),
		Username: viper.GetString("mqtt.username"),
		Password: viper.GetString("mqtt.password"),
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, ingress *mqttingress.Ingress, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ingress.Stop()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
