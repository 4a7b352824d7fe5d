package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/holepunchto/blind-peer-cli/internal/debugrepl"
	"github.com/holepunchto/blind-peer-cli/internal/dhthost"
	"github.com/holepunchto/blind-peer-cli/internal/instrumentation"
	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/internal/supervisor"
	"github.com/holepunchto/blind-peer-cli/pkg/config"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the blind peer (default command)",
	RunE:  runPeer,
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, err := resolveStartup()
	if err != nil {
		// The configured logger does not exist yet; report on a
		// bootstrap logger so the fatal path is still a labeled line.
		boot := logger.NewStdout(logger.Config{Level: "INFO", Format: "text"})
		boot.Error("invalid startup configuration", logger.KeyError, err.Error())
		return err
	}

	log := logger.NewStdout(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	sup, err := supervisor.New(cfg, supervisor.Options{
		Logger: log,
		NewEngine: func(ctx context.Context, cfg *config.Config, log *slog.Logger) (engine.Engine, error) {
			return dhthost.New(cfg, log), nil
		},
		NewExporter: newExporter,
		NewConsole:  newConsole,
	})
	if err != nil {
		log.Error("failed to construct peer", logger.KeyError, err.Error())
		return err
	}

	if err := sup.Run(cmd.Context()); err != nil {
		log.Error("peer terminated", logger.KeyError, err.Error())
		return err
	}
	return nil
}

func newExporter(cfg *config.Config, eng engine.Engine, alias string, log *slog.Logger) (supervisor.Exporter, error) {
	return instrumentation.New(instrumentation.Options{
		ScraperPublicKey: cfg.Scraper.PublicKey,
		Secret:           cfg.Scraper.Secret,
		Alias:            alias,
		ServiceName:      "blind-peer",
		Version:          Version,
	}, log)
}

func newConsole(peer supervisor.ConsolePeer, cfg *config.Config, log *slog.Logger) (io.Closer, error) {
	return debugrepl.New(peer, *cfg.ReplSeed, log)
}

// resolveStartup reads the optional config file, then resolves the merged
// flag, environment and file values.
func resolveStartup() (*config.Config, error) {
	if err := loadConfigFile(v, v.GetString("config")); err != nil {
		return nil, err
	}
	return config.Resolve(rawFromFlags())
}

// rawFromFlags snapshots the flag and environment values for resolution.
func rawFromFlags() config.Raw {
	return config.Raw{
		Storage:              v.GetString("storage"),
		DHTPort:              v.GetString("dht-port"),
		TrustedPeers:         v.GetStringSlice("trusted-peer"),
		Debug:                v.GetBool("debug"),
		MaxStorageMB:         v.GetString("max-storage"),
		AutodiscoveryRPCKey:  v.GetString("autodiscovery-rpc-key"),
		AutodiscoverySeed:    v.GetString("autodiscovery-seed"),
		AutodiscoveryService: v.GetString("autodiscovery-service-name"),
		ScraperPublicKey:     v.GetString("scraper-public-key"),
		ScraperSecret:        v.GetString("scraper-secret"),
		ScraperAlias:         v.GetString("scraper-alias"),
		StreamLogging:        v.GetBool("stream-logging"),
		ReplSeed:             v.GetString("repl-seed"),
		AutoShutdownMinutes:  v.GetString("auto-shutdown"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
	}
}
