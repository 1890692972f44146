package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/riscvbooks/eventrelay/internal/admission"
	"github.com/riscvbooks/eventrelay/internal/config"
	"github.com/riscvbooks/eventrelay/internal/database"
	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/files"
	"github.com/riscvbooks/eventrelay/internal/logging"
	"github.com/riscvbooks/eventrelay/internal/permission"
	"github.com/riscvbooks/eventrelay/internal/relay"
	"github.com/riscvbooks/eventrelay/internal/server"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
	"github.com/riscvbooks/eventrelay/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "eventrelay",
		Short: "Signed-event relay service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("admin-pubkey", "", "Admin public key (x-only hex)")
	cmd.PersistentFlags().String("admin-email", defaults.GetString("admin.email"), "Admin account email")
	cmd.PersistentFlags().Int64("default-permissions", defaults.GetInt64("relay.default_permissions"), "Capability mask seeded for new users (0 uses the built-in default)")
	cmd.PersistentFlags().Int64("time-tolerance-ms", defaults.GetInt64("relay.time_tolerance_ms"), "Accepted clock drift for inbound events in milliseconds")
	cmd.PersistentFlags().String("upload-dir", defaults.GetString("files.upload_dir"), "Directory for stored file uploads")
	cmd.PersistentFlags().Int64("shutdown-grace-s", defaults.GetInt64("relay.shutdown_grace_s"), "Graceful shutdown window in seconds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "admin.pubkey", "admin-pubkey")
	bindFlag(cmd, "admin.email", "admin-email")
	bindFlag(cmd, "relay.default_permissions", "default-permissions")
	bindFlag(cmd, "relay.time_tolerance_ms", "time-tolerance-ms")
	bindFlag(cmd, "files.upload_dir", "upload-dir")
	bindFlag(cmd, "relay.shutdown_grace_s", "shutdown-grace-s")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	eventStore := event.NewSQLStore(db)
	permissionStore := permission.NewStore(db)
	userStore := users.NewStore(db)

	fileStorage, err := files.NewDirStorage(appConfig.UploadDir)
	if err != nil {
		return err
	}

	if err := seedAdmin(ctx, appConfig, userStore, permissionStore); err != nil {
		return err
	}

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	registry := relay.NewRegistry(metrics)
	broadcaster := relay.NewBroadcaster(registry, logger, metrics)

	defaultMask := permission.DefaultUserMask
	if appConfig.DefaultPermissions != 0 {
		defaultMask = permission.Mask(appConfig.DefaultPermissions)
	}

	pipeline, err := admission.NewPipeline(admission.PipelineConfig{
		Events:      eventStore,
		Permissions: permissionStore,
		Users:       userStore,
		Files:       fileStorage,
		Fanout:      broadcaster,
		AdminPubkey: appConfig.AdminPubkey,
		DefaultMask: defaultMask,
		Tolerance:   appConfig.TimeTolerance,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	dispatcher := relay.NewDispatcher(relay.DispatcherConfig{
		Pipeline: pipeline,
		Registry: registry,
		Logger:   logger,
		Metrics:  metrics,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Files:      fileStorage,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(signalCtx, httpServer, nil, appConfig.ShutdownGrace, logger)
}

// seedAdmin makes the configured admin key resolvable by the admission
// pipeline's user-existence check on first boot.
func seedAdmin(ctx context.Context, cfg config.AppConfig, userStore *users.Store, permissionStore *permission.Store) error {
	adminMask := permission.CapCreateEvents | permission.CapManageEvents |
		permission.CapManageUsers | permission.CapManagePermissions |
		permission.CapReadOwnEvents | permission.CapReadPublicEvents |
		permission.CapUploadFiles

	if _, err := userStore.GetByPubkey(ctx, cfg.AdminPubkey); err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			return err
		}
		email := cfg.AdminEmail
		if email == "" {
			email = "admin@localhost.localdomain"
		}
		if _, err := userStore.Create(ctx, cfg.AdminPubkey, email); err != nil &&
			!errors.Is(err, users.ErrEmailTaken) && !errors.Is(err, users.ErrPubkeyTaken) {
			return err
		}
	}

	return permissionStore.Set(ctx, cfg.AdminPubkey, adminMask)
}
