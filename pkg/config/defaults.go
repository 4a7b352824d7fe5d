package config

// Default values applied to unset raw parameters.
//
// Default Strategy:
//   - Empty values are replaced with defaults
//   - Explicit values are preserved
const (
	// DefaultStorage is the fixed relative storage directory used when no
	// path is supplied.
	DefaultStorage = "blind-peer-data"

	// DefaultMaxStorageMB is the default storage budget in megabytes.
	DefaultMaxStorageMB = "100000"

	// DefaultLogFormat keeps output machine-readable: one structured
	// record per line on stdout.
	DefaultLogFormat = "json"
)

// applyDefaults fills unset raw parameters in place.
func applyDefaults(raw *Raw) {
	if raw.Storage == "" {
		raw.Storage = DefaultStorage
	}
	if raw.MaxStorageMB == "" {
		raw.MaxStorageMB = DefaultMaxStorageMB
	}
	// The debug flag wins over any explicit log level.
	if raw.Debug {
		raw.LogLevel = "DEBUG"
	} else if raw.LogLevel == "" {
		raw.LogLevel = "INFO"
	}
	if raw.LogFormat == "" {
		raw.LogFormat = DefaultLogFormat
	}
}
