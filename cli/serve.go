package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/convert"
	"github.com/danyguancha/soft-eps-v2-sub000/server/dataset"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/indicators"
	"github.com/danyguancha/soft-eps-v2-sub000/server/join"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
	httpserver "github.com/danyguancha/soft-eps-v2-sub000/server/protocols/http"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/recovery"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dataset server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	logger, err := config.SetupLogger(cfg)
	if err != nil {
		return err
	}

	pm := paths.NewManager(cfg.Storage.DataPath)
	if err := pm.EnsureDirectoryStructure(); err != nil {
		return err
	}

	gateway, err := engine.New(&cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer gateway.Close()

	cc := cache.New(pm, logger)
	pipeline := convert.New(cc, gateway, &cfg.Convert, logger)

	links, err := registry.NewLinkStore(cmd.Context(), pm.GetLinksDBPath())
	if err != nil {
		return err
	}
	defer links.Close()

	reg := registry.New(gateway, links, logger)

	coordinator := recovery.New(cc, reg, logger)
	if _, err := coordinator.Run(cmd.Context()); err != nil {
		logger.Error().Err(err).Msg("Startup recovery failed")
	}

	executor := query.NewExecutor(gateway, reg, pipeline, logger)
	joiner := join.New(gateway, reg, logger)
	service := dataset.NewService(cc, pipeline, reg, executor, joiner, logger)
	profiler := indicators.New(gateway, reg, logger)

	srv := httpserver.NewServer(&cfg.HTTP, service, profiler, gateway, pm, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info().Msg("Dataset server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down dataset server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Server stopped gracefully")
	return nil
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return config.LoadDefaultConfig()
	}
	return cfg
}
