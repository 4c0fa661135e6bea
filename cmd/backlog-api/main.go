package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"backlog/internal/auth"
	"backlog/internal/backlog"
	"backlog/internal/config"
	"backlog/internal/database"
	"backlog/internal/games"
	"backlog/internal/guest"
	"backlog/internal/logging"
	"backlog/internal/metadata"
	"backlog/internal/server"
	"backlog/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "backlog-api",
		Short: "Game backlog tracking service",
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
	cmd.PersistentFlags().String("guest-store-path", defaults.GetString("guest.store_path"), "Guest collection slot path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("rawg-api-key", "", "RAWG catalog API key (overrides env)")
	cmd.PersistentFlags().String("steamgriddb-api-key", "", "SteamGridDB API key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "guest.store_path", "guest-store-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "rawg.api_key", "rawg-api-key")
	bindFlag(cmd, "steamgriddb.api_key", "steamgriddb-api-key")
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

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "backlog-auth",
		Audience:      "backlog-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	gamesService, err := games.NewService(games.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: games.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	accountsService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: games.NewUUIDProvider(),
	})
	if err != nil {
		return err
	}

	guestStore, err := guest.NewStore(guest.StoreConfig{
		Path:   appConfig.GuestStorePath,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	selector, err := backlog.NewSelector(guestStore, gamesService, backlog.CapacityLimit)
	if err != nil {
		return err
	}

	migrator, err := backlog.NewMigrator(backlog.MigratorConfig{
		Local:  guestStore,
		Remote: gamesService,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	searcher := metadata.NewSearcher(
		metadata.NewCatalogClient(metadata.CatalogConfig{
			APIKey:  appConfig.CatalogAPIKey,
			BaseURL: appConfig.CatalogBaseURL,
			Logger:  logger,
		}),
		metadata.NewArtworkClient(metadata.ArtworkConfig{
			APIKey:  appConfig.ArtworkAPIKey,
			BaseURL: appConfig.ArtworkBaseURL,
			Logger:  logger,
		}),
		logger,
	)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Accounts:     accountsService,
		TokenManager: tokenManager,
		Selector:     selector,
		Migrator:     migrator,
		Searcher:     searcher,
		Logger:       logger,
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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
