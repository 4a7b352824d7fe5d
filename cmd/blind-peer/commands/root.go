// Package commands implements the blind-peer CLI.
package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// v resolves flag and environment values. Every flag can also be supplied
// as BLIND_PEER_<FLAG> with dashes replaced by underscores, for example
// BLIND_PEER_MAX_STORAGE=50000.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "blind-peer",
	Short: "Run a blind storage peer on the DHT",
	Long: `blind-peer runs an always-on storage peer: it joins the DHT, accepts
replication requests from other peers and holds their data without being able
to read it. Trusted peers may additionally ask this node to announce cores on
their behalf.

All flags can be overridden with BLIND_PEER_* environment variables, for
example BLIND_PEER_STORAGE=/var/lib/blind-peer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPeer,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()

	f.String("config", "", "config file (default: ./blind-peer.yaml)")
	f.String("storage", "", "storage directory (default: ./blind-peer-data)")
	f.String("dht-port", "", "DHT bind port (default: ephemeral)")
	f.StringArray("trusted-peer", nil, "public key of a peer allowed to request announce (repeatable)")
	f.Bool("debug", false, "enable debug logging")
	f.String("max-storage", "", "storage budget in megabytes (default: 100000)")
	f.String("autodiscovery-rpc-key", "", "autodiscovery RPC server key (unsupported)")
	f.String("autodiscovery-seed", "", "autodiscovery registration seed (unsupported)")
	f.String("autodiscovery-service-name", "", "autodiscovery service name (unsupported)")
	f.String("scraper-public-key", "", "public key of the metrics scraper")
	f.String("scraper-secret", "", "shared secret authenticating the metrics scraper")
	f.String("scraper-alias", "", "alias reported to the metrics scraper (default: derived from the node key)")
	f.Bool("stream-logging", false, "periodically log transport stream health")
	f.String("repl-seed", "", "seed for the remote debug console (insecure, debug only)")
	f.String("auto-shutdown", "", "shut down after this many minutes, with jitter")
	f.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	f.String("log-format", "", "log format: text or json")

	v.SetEnvPrefix("BLIND_PEER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfigFile merges an optional YAML config file beneath the flag and
// environment values. Precedence stays flags > environment > file. A missing
// default file is fine; an explicitly named file that cannot be read is
// fatal.
func loadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("blind-peer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}
