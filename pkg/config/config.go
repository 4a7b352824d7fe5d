// Package config resolves raw startup parameters into the validated,
// immutable configuration the blind peer runs with.
//
// Resolution is pure: no network resource is opened and no file is touched.
// Any bad parameter fails the whole resolution before the engine exists, so
// a partially-applied configuration can never run.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (BLIND_PEER_*)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
)

// Raw carries the startup parameters exactly as supplied on the process
// boundary, before any decoding or validation.
type Raw struct {
	// Storage is the storage directory path.
	Storage string

	// DHTPort is the DHT bind port. Empty means the network layer picks
	// an ephemeral port.
	DHTPort string

	// TrustedPeers are the encoded public keys of peers allowed to
	// request announce.
	TrustedPeers []string

	// Debug enables debug logging.
	Debug bool

	// MaxStorageMB is the storage budget in megabytes.
	MaxStorageMB string

	// AutodiscoveryRPCKey, AutodiscoverySeed and AutodiscoveryService
	// belong to a feature that is intentionally disabled upstream.
	// Supplying any of them is a fatal error.
	AutodiscoveryRPCKey  string
	AutodiscoverySeed    string
	AutodiscoveryService string

	// ScraperPublicKey and ScraperSecret enable the instrumentation
	// exporter. Both must be supplied together.
	ScraperPublicKey string
	ScraperSecret    string

	// ScraperAlias names this node towards the scraper. When empty, a
	// default is derived from the node's own public key.
	ScraperAlias string

	// StreamLogging enables the periodic transport stream health sampler.
	StreamLogging bool

	// ReplSeed enables the remote debug console, bound to this seed.
	// Insecure, debug only.
	ReplSeed string

	// AutoShutdownMinutes arms the jittered auto-shutdown timer.
	AutoShutdownMinutes string

	// LogLevel and LogFormat control log output.
	LogLevel  string
	LogFormat string
}

// Scraper holds the resolved instrumentation exporter credentials.
type Scraper struct {
	PublicKey keys.PublicKey
	Secret    keys.Secret

	// Alias is the operator-supplied alias, or empty when the default
	// (derived from the node key once known) should be used.
	Alias string `validate:"max=99"`
}

// Logging controls log output behavior.
type Logging struct {
	Level  string `validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `validate:"oneof=text json"`
}

// Config is the resolved, validated runtime configuration. It is built once
// at startup and immutable thereafter.
type Config struct {
	// Storage is the storage directory path.
	Storage string `validate:"required"`

	// DHTPort is the DHT bind port, or 0 for a system-chosen port.
	DHTPort int `validate:"min=0,max=65535"`

	// TrustedPeers are the decoded trusted peer public keys.
	TrustedPeers []keys.PublicKey

	// MaxBytes is the storage budget in bytes.
	MaxBytes uint64 `validate:"required,gt=0"`

	// Debug enables debug logging.
	Debug bool

	// Scraper is nil unless scraper credentials were supplied.
	Scraper *Scraper

	// StreamLogging enables the stream health sampler.
	StreamLogging bool

	// ReplSeed is nil unless the debug console was requested.
	ReplSeed *keys.Seed

	// AutoShutdown is the base auto-shutdown interval, 0 when disabled.
	// Jitter is applied by the lifecycle manager, not here.
	AutoShutdown time.Duration

	// Logging controls log output.
	Logging Logging
}

// megabyte is the decimal factor used to derive the byte budget from the
// megabyte input.
const megabyte = 1_000_000

// maxAliasLen is the longest accepted scraper alias.
const maxAliasLen = 99

var validate = validator.New()

// Resolve validates and normalizes raw startup parameters into a Config.
//
// Failures wrap ErrInvalidConfiguration, except for the intentionally
// disabled autodiscovery flags which wrap ErrUnsupportedFeature.
func Resolve(raw Raw) (*Config, error) {
	if raw.AutodiscoveryRPCKey != "" || raw.AutodiscoverySeed != "" || raw.AutodiscoveryService != "" {
		return nil, fmt.Errorf("%w: autodiscovery registration is disabled", ErrUnsupportedFeature)
	}

	applyDefaults(&raw)

	cfg := &Config{
		Storage:       raw.Storage,
		Debug:         raw.Debug,
		StreamLogging: raw.StreamLogging,
		Logging: Logging{
			Level:  raw.LogLevel,
			Format: raw.LogFormat,
		},
	}

	if raw.DHTPort != "" {
		port, err := strconv.Atoi(raw.DHTPort)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: dht port %q is not a positive integer", ErrInvalidConfiguration, raw.DHTPort)
		}
		cfg.DHTPort = port
	}

	for _, raw := range raw.TrustedPeers {
		pk, err := keys.DecodePublic(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: trusted peer: %v", ErrInvalidConfiguration, err)
		}
		cfg.TrustedPeers = append(cfg.TrustedPeers, pk)
	}

	mb, err := strconv.ParseUint(raw.MaxStorageMB, 10, 64)
	if err != nil || mb == 0 {
		return nil, fmt.Errorf("%w: max storage %q is not a positive integer of megabytes", ErrInvalidConfiguration, raw.MaxStorageMB)
	}
	cfg.MaxBytes = mb * megabyte

	scraper, err := resolveScraper(raw)
	if err != nil {
		return nil, err
	}
	cfg.Scraper = scraper

	if raw.ReplSeed != "" {
		seed, err := keys.DecodeSeed(raw.ReplSeed)
		if err != nil {
			return nil, fmt.Errorf("%w: repl seed: %v", ErrInvalidConfiguration, err)
		}
		cfg.ReplSeed = &seed
	}

	if raw.AutoShutdownMinutes != "" {
		minutes, err := strconv.ParseUint(raw.AutoShutdownMinutes, 10, 32)
		if err != nil || minutes == 0 {
			return nil, fmt.Errorf("%w: auto shutdown %q is not a positive integer of minutes", ErrInvalidConfiguration, raw.AutoShutdownMinutes)
		}
		cfg.AutoShutdown = time.Duration(minutes) * time.Minute
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	return cfg, nil
}

// resolveScraper decodes the scraper credentials, or returns nil when the
// instrumentation exporter should not exist at all.
func resolveScraper(raw Raw) (*Scraper, error) {
	if raw.ScraperPublicKey == "" && raw.ScraperSecret == "" {
		if raw.ScraperAlias != "" {
			return nil, fmt.Errorf("%w: scraper alias supplied without scraper credentials", ErrInvalidConfiguration)
		}
		return nil, nil
	}
	if raw.ScraperPublicKey == "" || raw.ScraperSecret == "" {
		return nil, fmt.Errorf("%w: scraper public key and secret must be supplied together", ErrInvalidConfiguration)
	}

	pk, err := keys.DecodePublic(raw.ScraperPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: scraper public key: %v", ErrInvalidConfiguration, err)
	}
	secret, err := keys.DecodeSecret(raw.ScraperSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: scraper secret: %v", ErrInvalidConfiguration, err)
	}
	if len(raw.ScraperAlias) > maxAliasLen {
		return nil, fmt.Errorf("%w: scraper alias is %d characters, limit is %d", ErrInvalidConfiguration, len(raw.ScraperAlias), maxAliasLen)
	}

	return &Scraper{PublicKey: pk, Secret: secret, Alias: raw.ScraperAlias}, nil
}

// DefaultAlias derives the default scraper alias from the node's own public
// key: its canonical textual form, truncated to the alias limit. It is
// deterministic for a given key.
func DefaultAlias(pk keys.PublicKey) string {
	alias := pk.String()
	if len(alias) > maxAliasLen {
		alias = alias[:maxAliasLen]
	}
	return alias
}
