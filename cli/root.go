// Package cli provides the main command-line interface for erpcache: a
// single long-running server command that wires the KV store, cache
// layer, change streams, webhook ingest, sync API, full-refresh runner,
// weekly scheduler, and user/message store into an Echo HTTP server,
// following the same Cobra + Viper configuration pattern used throughout
// the wider eve ecosystem.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/changestream"
	"erpcache.eve.dev/common"
	"erpcache.eve.dev/config"
	"erpcache.eve.dev/erp"
	"erpcache.eve.dev/httpapi"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/refresh"
	"erpcache.eve.dev/scheduler"
	"erpcache.eve.dev/syncapi"
	"erpcache.eve.dev/transform"
	"erpcache.eve.dev/users"
	"erpcache.eve.dev/webhook"
)

// cfgFile holds the path to the configuration file specified via
// command-line flag.
var cfgFile string

// RootCmd is the entry point for the erpcache server process.
var RootCmd = &cobra.Command{
	Use:   "erpcache",
	Short: "a read-optimized edge cache and sync bus in front of an ERP system",
	Long: `erpcache

Materializes ERP entities (products, prices, stock, hero/bundle images,
app home) into a Redis-backed cache, detects content change via hashing,
and publishes a monotonic change stream that clients replay via cursor.
Accepts webhook-driven updates, runs a weekly full refresh, and serves a
user/message subsystem on the same stream primitive.

Configuration is loaded from environment variables under the ERPCACHE
prefix, optionally overlaid with a config file.`,
	RunE: runServer,
}

// init registers the configuration file flag and Viper bindings.
func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.erpcache.yaml)")
}

// initConfig loads an optional config file into Viper; values still
// resolve primarily through config.Load's environment-variable reads.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".erpcache")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
		for _, key := range viper.AllKeys() {
			envKey := "ERPCACHE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			if os.Getenv(envKey) == "" {
				os.Setenv(envKey, viper.GetString(key))
			}
		}
	}
}

// runServer loads configuration, wires every service, starts the HTTP
// server and the weekly scheduler, and blocks until SIGINT/SIGTERM.
func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger := common.ServiceLogger(cfg.Service.Name, cfg.Service.Version)
	logger.WithFields(map[string]interface{}{
		"erp_api_key": common.MaskSecret(cfg.ERP.APIKey),
		"jwt_secret":  common.MaskSecret(cfg.Auth.JWTSecret),
	}).Info("configuration loaded")

	store, err := kv.New(cfg.KV.URL, cfg.KV.Timeout)
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}

	ttl := make(map[string]time.Duration, len(cfg.Cache.TTL))
	for family, d := range cfg.Cache.TTL {
		ttl[family] = d
	}
	layer := cache.NewLayer(store, ttl)
	streams := changestream.NewManager(store)

	fetcher := erp.NewClient(erp.Config{
		BaseURL:   cfg.ERP.BaseURL,
		APIKey:    cfg.ERP.APIKey,
		APISecret: cfg.ERP.APISecret,
		Timeout:   cfg.ERP.Timeout,
	})
	transformer := transform.NewTransformer(fetcher, layer, logger.WithField("component", "transform"))

	handler := webhook.NewHandler(layer, streams, logger.WithField("component", "webhook"))
	ingestor := webhook.NewIngestor(fetcher, transformer, handler, store)
	enumerator := refresh.NewEnumerator(fetcher, transformer, store, logger.WithField("component", "refresh"))
	runner := refresh.NewRunner(handler, cfg.Scheduler.BatchSize, logger.WithField("component", "refresh"))

	syncSvc := syncapi.NewService(layer, streams)

	userStore := users.NewStore(store, logger.WithField("component", "users"), cfg.Auth.BcryptCost)
	messages := users.NewMessages(store, layer, handler)

	weekly := scheduler.New(cfg.Scheduler, func(ctx context.Context) {
		items, err := enumerator.Items(ctx)
		if err != nil {
			logger.WithError(err).Error("full refresh: enumeration failed")
			return
		}
		summaries := runner.Run(ctx, items)
		runner.LogSummaries(summaries)
	}, logger.WithField("component", "scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	weekly.Start(ctx)
	defer weekly.Stop()

	e := httpapi.NewEchoServer(cfg.Server)
	httpapi.RegisterRoutes(e, httpapi.Dependencies{
		Ingestor:   ingestor,
		Sync:       syncSvc,
		Cache:      layer,
		Enumerator: enumerator,
		Runner:     runner,
		Users:      userStore,
		Messages:   messages,
		JWTSecret:  cfg.Auth.JWTSecret,
	})

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server starting")
		if err := httpapi.StartServer(e, cfg.Server); err != nil {
			logger.WithError(err).Error("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	return httpapi.GracefulShutdown(e, cfg.Server.ShutdownTimeout)
}
