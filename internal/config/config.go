package config

// MatchType defines how a path pattern is interpreted.
type MatchType string

const (
	// MatchTypeExact matches the path exactly.
	MatchTypeExact MatchType = "Exact"
	// MatchTypePrefix matches any path starting with the prefix.
	MatchTypePrefix MatchType = "Prefix"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig           `json:"server,omitempty" toml:"server,omitempty" yaml:"server,omitempty"`
	Static  *StaticFileServerConfig `json:"static,omitempty" toml:"static,omitempty" yaml:"static,omitempty"`
	Logging *LoggingConfig          `json:"logging,omitempty" toml:"logging,omitempty" yaml:"logging,omitempty"`

	// originalFilePath is the absolute path of the file the config was loaded from.
	// Empty for configurations built in code.
	originalFilePath string
}

// OriginalFilePath returns the path the configuration was loaded from, if any.
func (c *Config) OriginalFilePath() string {
	if c == nil {
		return ""
	}
	return c.originalFilePath
}

// ServerConfig holds listener and connection handling settings.
type ServerConfig struct {
	Address                 *string   `json:"address,omitempty" toml:"address,omitempty" yaml:"address,omitempty"`
	MaxConnections          *int      `json:"max_connections,omitempty" toml:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	Workers                 *int      `json:"workers,omitempty" toml:"workers,omitempty" yaml:"workers,omitempty"`
	RequestBufferSize       *int      `json:"request_buffer_size,omitempty" toml:"request_buffer_size,omitempty" yaml:"request_buffer_size,omitempty"`
	ReadTimeout             *Duration `json:"read_timeout,omitempty" toml:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // nil means no deadline
	GracefulShutdownTimeout *Duration `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty" yaml:"graceful_shutdown_timeout,omitempty"`
}

// Route defines a single path-matching rule.
type Route struct {
	PathPattern string    `json:"path_pattern" toml:"path_pattern" yaml:"path_pattern"`
	MatchType   MatchType `json:"match_type" toml:"match_type" yaml:"match_type"`
}

// StaticFileServerConfig configures document root resolution and SPA fallback.
type StaticFileServerConfig struct {
	DocumentRoot      string            `json:"document_root,omitempty" toml:"document_root,omitempty" yaml:"document_root,omitempty"`
	IndexFile         string            `json:"index_file,omitempty" toml:"index_file,omitempty" yaml:"index_file,omitempty"`
	ImageRoutes       []Route           `json:"image_routes,omitempty" toml:"image_routes,omitempty" yaml:"image_routes,omitempty"`
	MimeTypes         map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty" yaml:"mime_types,omitempty"`
	MimeTypesPath     *string           `json:"mime_types_path,omitempty" toml:"mime_types_path,omitempty" yaml:"mime_types_path,omitempty"`
	StrictAssetMisses *bool             `json:"strict_asset_misses,omitempty" toml:"strict_asset_misses,omitempty" yaml:"strict_asset_misses,omitempty"`

	// ResolvedMimeTypes holds the merged inline and file overrides, keyed by
	// lowercase extension without the leading dot. Filled by ApplyDefaults.
	ResolvedMimeTypes map[string]string `json:"-" toml:"-" yaml:"-"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty" yaml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty" yaml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled *bool   `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Target  *string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format  string  `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target *string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format string  `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr"
}

// StrictAssetMissesEnabled reports whether missing assets with a known
// extension are answered with 404 instead of the SPA fallback.
func (s *StaticFileServerConfig) StrictAssetMissesEnabled() bool {
	return s != nil && s.StrictAssetMisses != nil && *s.StrictAssetMisses
}
