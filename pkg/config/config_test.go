package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/holepunchto/blind-peer-cli/pkg/keys"
)

// encodedKey returns a valid z-base-32 encoded test key.
func encodedKey(fill byte) string {
	b := make([]byte, keys.Size)
	for i := range b {
		b[i] = fill
	}
	return keys.Format(b)
}

func TestResolve_Defaults(t *testing.T) {
	cfg, err := Resolve(Raw{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.Storage != DefaultStorage {
		t.Errorf("Storage = %q, want %q", cfg.Storage, DefaultStorage)
	}
	if cfg.MaxBytes != 100_000*megabyte {
		t.Errorf("MaxBytes = %d, want %d", cfg.MaxBytes, 100_000*megabyte)
	}
	if cfg.DHTPort != 0 {
		t.Errorf("DHTPort = %d, want 0 (system-chosen)", cfg.DHTPort)
	}
	if cfg.Scraper != nil {
		t.Error("Scraper should not exist without credentials")
	}
	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want INFO/json", cfg.Logging)
	}
}

func TestResolve_DebugOverridesLogLevel(t *testing.T) {
	cfg, err := Resolve(Raw{Debug: true, LogLevel: "WARN"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG when the debug flag is set", cfg.Logging.Level)
	}

	cfg, err = Resolve(Raw{LogLevel: "WARN"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Logging.Level = %q, want WARN without the debug flag", cfg.Logging.Level)
	}
}

func TestResolve_MaxStorageDerivation(t *testing.T) {
	cfg, err := Resolve(Raw{MaxStorageMB: "50000"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.MaxBytes != 50_000_000_000 {
		t.Errorf("MaxBytes = %d, want 50_000_000_000", cfg.MaxBytes)
	}
}

func TestResolve_MaxStorageNotNumeric(t *testing.T) {
	for _, bad := range []string{"lots", "10GB", "1e3", "-5", "0", "12.5"} {
		_, err := Resolve(Raw{MaxStorageMB: bad})
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("MaxStorageMB=%q: err = %v, want ErrInvalidConfiguration", bad, err)
		}
	}
}

func TestResolve_TrustedPeers(t *testing.T) {
	cfg, err := Resolve(Raw{TrustedPeers: []string{encodedKey(1), encodedKey(2)}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(cfg.TrustedPeers) != 2 {
		t.Fatalf("got %d trusted peers, want 2", len(cfg.TrustedPeers))
	}
	if cfg.TrustedPeers[0][0] != 1 || cfg.TrustedPeers[1][0] != 2 {
		t.Error("trusted peers decoded out of order or wrong")
	}
}

func TestResolve_TrustedPeerUndecodable(t *testing.T) {
	_, err := Resolve(Raw{TrustedPeers: []string{encodedKey(1), "not-a-key"}})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestResolve_DHTPort(t *testing.T) {
	cfg, err := Resolve(Raw{DHTPort: "49737"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.DHTPort != 49737 {
		t.Errorf("DHTPort = %d, want 49737", cfg.DHTPort)
	}

	for _, bad := range []string{"zero", "-1", "0", "70000"} {
		if _, err := Resolve(Raw{DHTPort: bad}); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("DHTPort=%q: err = %v, want ErrInvalidConfiguration", bad, err)
		}
	}
}

func TestResolve_AutodiscoveryDisabled(t *testing.T) {
	raws := []Raw{
		{AutodiscoveryRPCKey: encodedKey(3)},
		{AutodiscoverySeed: encodedKey(4)},
		{AutodiscoveryService: "svc"},
	}
	for _, raw := range raws {
		_, err := Resolve(raw)
		if !errors.Is(err, ErrUnsupportedFeature) {
			t.Errorf("Resolve(%+v): err = %v, want ErrUnsupportedFeature", raw, err)
		}
	}
}

func TestResolve_Scraper(t *testing.T) {
	cfg, err := Resolve(Raw{
		ScraperPublicKey: encodedKey(5),
		ScraperSecret:    encodedKey(6),
		ScraperAlias:     "edge-peer-1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Scraper == nil {
		t.Fatal("Scraper missing")
	}
	if cfg.Scraper.Alias != "edge-peer-1" {
		t.Errorf("Alias = %q, want it unmodified", cfg.Scraper.Alias)
	}
}

func TestResolve_ScraperAliasTooLong(t *testing.T) {
	_, err := Resolve(Raw{
		ScraperPublicKey: encodedKey(5),
		ScraperSecret:    encodedKey(6),
		ScraperAlias:     strings.Repeat("a", 100),
	})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}

	// 99 characters is still fine.
	cfg, err := Resolve(Raw{
		ScraperPublicKey: encodedKey(5),
		ScraperSecret:    encodedKey(6),
		ScraperAlias:     strings.Repeat("a", 99),
	})
	if err != nil {
		t.Fatalf("Resolve failed for 99-char alias: %v", err)
	}
	if len(cfg.Scraper.Alias) != 99 {
		t.Errorf("alias length = %d, want 99", len(cfg.Scraper.Alias))
	}
}

func TestResolve_ScraperHalfCredentials(t *testing.T) {
	if _, err := Resolve(Raw{ScraperPublicKey: encodedKey(5)}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("key without secret: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := Resolve(Raw{ScraperSecret: encodedKey(6)}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("secret without key: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := Resolve(Raw{ScraperAlias: "alias"}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("alias without credentials: err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestResolve_AutoShutdown(t *testing.T) {
	cfg, err := Resolve(Raw{AutoShutdownMinutes: "90"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.AutoShutdown != 90*time.Minute {
		t.Errorf("AutoShutdown = %v, want 90m", cfg.AutoShutdown)
	}

	for _, bad := range []string{"soon", "0", "-3"} {
		if _, err := Resolve(Raw{AutoShutdownMinutes: bad}); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("AutoShutdownMinutes=%q: err = %v, want ErrInvalidConfiguration", bad, err)
		}
	}
}

func TestResolve_ReplSeed(t *testing.T) {
	cfg, err := Resolve(Raw{ReplSeed: encodedKey(7)})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.ReplSeed == nil {
		t.Fatal("ReplSeed missing")
	}

	if _, err := Resolve(Raw{ReplSeed: "short"}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("bad seed: err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestDefaultAlias(t *testing.T) {
	var pk keys.PublicKey
	pk[0] = 0x17

	a := DefaultAlias(pk)
	b := DefaultAlias(pk)
	if a != b {
		t.Fatalf("DefaultAlias not deterministic: %q vs %q", a, b)
	}
	if len(a) > maxAliasLen {
		t.Fatalf("default alias length = %d, want <= %d", len(a), maxAliasLen)
	}
	if a == "" {
		t.Fatal("default alias is empty")
	}
}
