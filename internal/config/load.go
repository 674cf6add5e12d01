package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddress           = "127.0.0.1:8080"
	defaultMaxConnections          = 1024
	defaultRequestBufferSize       = 1024
	defaultGracefulShutdownTimeout = 30 * time.Second

	defaultDocumentRoot = "./../web/dist"
	defaultIndexFile    = "index.html"
	defaultImageRoute   = "/_next/image"

	defaultLogLevel         = LogLevelInfo
	defaultAccessLogEnabled = true
	defaultAccessLogTarget  = "stdout"
	defaultAccessLogFormat  = LogFormatJSON
	defaultErrorLogTarget   = "stderr"
	defaultErrorLogFormat   = LogFormatJSON
)

// ConfigError describes a configuration problem tied to a file.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.FilePath != "" {
		b.WriteString(e.FilePath)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := ApplyDefaults(cfg); err != nil {
		// Defaults never reference files, so this cannot fail.
		panic(err)
	}
	return cfg
}

// LoadConfig reads, parses, defaults and validates the configuration file at path.
// The format is chosen by extension (.json, .toml, .yaml, .yml); any other
// extension is auto-detected by trying JSON, TOML and YAML in that order.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{FilePath: path, Message: "configuration file is empty"}
	}

	cfg, err := parseConfig(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "invalid configuration", Err: err}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	cfg.originalFilePath = absPath

	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, &ConfigError{FilePath: path, Message: "validation failed", Err: err}
	}
	return cfg, nil
}

func parseConfig(data []byte, ext string) (*Config, error) {
	switch ext {
	case ".json":
		cfg, err := parseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return cfg, nil
	case ".toml":
		cfg, err := parseTOML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return cfg, nil
	case ".yaml", ".yml":
		cfg, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return cfg, nil
	}

	cfg, jsonErr := parseJSON(data)
	if jsonErr == nil {
		return cfg, nil
	}
	cfg, tomlErr := parseTOML(data)
	if tomlErr == nil {
		return cfg, nil
	}
	cfg, yamlErr := parseYAML(data)
	if yamlErr == nil {
		return cfg, nil
	}
	return nil, fmt.Errorf("failed to auto-detect and parse config (JSON error: %v; TOML error: %v; YAML error: %v)", jsonErr, tomlErr, yamlErr)
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field and resolves MIME type overrides.
// A relative mime_types_path is resolved against the directory of the
// configuration file.
func ApplyDefaults(cfg *Config) error {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	s := cfg.Server
	if s.Address == nil {
		s.Address = strPtr(defaultServerAddress)
	}
	if s.MaxConnections == nil {
		s.MaxConnections = intPtr(defaultMaxConnections)
	}
	if s.Workers == nil {
		s.Workers = intPtr(*s.MaxConnections)
	}
	if s.RequestBufferSize == nil {
		s.RequestBufferSize = intPtr(defaultRequestBufferSize)
	}
	if s.GracefulShutdownTimeout == nil {
		s.GracefulShutdownTimeout = NewDuration(defaultGracefulShutdownTimeout)
	}

	if cfg.Static == nil {
		cfg.Static = &StaticFileServerConfig{}
	}
	st := cfg.Static
	if st.DocumentRoot == "" {
		st.DocumentRoot = defaultDocumentRoot
	}
	if st.IndexFile == "" {
		st.IndexFile = defaultIndexFile
	}
	if st.ImageRoutes == nil {
		st.ImageRoutes = []Route{{PathPattern: defaultImageRoute, MatchType: MatchTypePrefix}}
	}
	if st.StrictAssetMisses == nil {
		st.StrictAssetMisses = boolPtr(false)
	}
	resolved, err := resolveMimeTypes(st, cfg.originalFilePath)
	if err != nil {
		return err
	}
	st.ResolvedMimeTypes = resolved

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	l := cfg.Logging
	if l.LogLevel == "" {
		l.LogLevel = defaultLogLevel
	}
	if l.AccessLog == nil {
		l.AccessLog = &AccessLogConfig{}
	}
	if l.AccessLog.Enabled == nil {
		l.AccessLog.Enabled = boolPtr(defaultAccessLogEnabled)
	}
	if l.AccessLog.Target == nil {
		l.AccessLog.Target = strPtr(defaultAccessLogTarget)
	}
	if l.AccessLog.Format == "" {
		l.AccessLog.Format = defaultAccessLogFormat
	}
	if l.ErrorLog == nil {
		l.ErrorLog = &ErrorLogConfig{}
	}
	if l.ErrorLog.Target == nil {
		l.ErrorLog.Target = strPtr(defaultErrorLogTarget)
	}
	if l.ErrorLog.Format == "" {
		l.ErrorLog.Format = defaultErrorLogFormat
	}
	return nil
}

// resolveMimeTypes merges the inline map (lower precedence) with the
// mime_types_path file (higher precedence).
func resolveMimeTypes(st *StaticFileServerConfig, mainConfigFilePath string) (map[string]string, error) {
	merged := make(map[string]string)
	for ext, mimeType := range st.MimeTypes {
		merged[normalizeExtension(ext)] = mimeType
	}
	if st.MimeTypesPath == nil || *st.MimeTypesPath == "" {
		return merged, nil
	}

	mimePath := *st.MimeTypesPath
	if !filepath.IsAbs(mimePath) && mainConfigFilePath != "" {
		mimePath = filepath.Join(filepath.Dir(mainConfigFilePath), mimePath)
	}
	fromFile, err := ParseMimeTypesFile(mimePath)
	if err != nil {
		return nil, &ConfigError{FilePath: mimePath, Message: "failed to load custom MIME types", Err: err}
	}
	for ext, mimeType := range fromFile {
		merged[ext] = mimeType
	}
	return merged, nil
}

// ParseMimeTypesFile reads a JSON object mapping extensions to MIME types.
// Extensions must start with '.', values must not be empty. Keys of the
// returned map are lowercase and have no leading dot.
func ParseMimeTypesFile(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME types file %q: %w", filePath, err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from MIME types file %q: %w", filePath, err)
	}

	out := make(map[string]string, len(parsed))
	for ext, mimeType := range parsed {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in MIME types file %q: must start with a '.'", ext, filePath)
		}
		if mimeType == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q in MIME types file %q", ext, filePath)
		}
		out[normalizeExtension(ext)] = mimeType
	}
	return out, nil
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	if err := validateStatic(cfg.Static); err != nil {
		return err
	}
	return validateLogging(cfg.Logging)
}

func validateServer(s *ServerConfig) error {
	if s == nil {
		return fmt.Errorf("server section is missing")
	}
	if s.Address == nil || *s.Address == "" {
		return fmt.Errorf("server.address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(*s.Address); err != nil {
		return fmt.Errorf("server.address %q is not a valid host:port: %w", *s.Address, err)
	}
	if s.MaxConnections == nil || *s.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	if s.Workers == nil || *s.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive")
	}
	if s.RequestBufferSize == nil || *s.RequestBufferSize <= 0 {
		return fmt.Errorf("server.request_buffer_size must be positive")
	}
	return nil
}

func validateStatic(st *StaticFileServerConfig) error {
	if st == nil {
		return fmt.Errorf("static section is missing")
	}
	if st.DocumentRoot == "" {
		return fmt.Errorf("static.document_root cannot be empty")
	}
	if st.IndexFile == "" || strings.ContainsAny(st.IndexFile, `/\`) {
		return fmt.Errorf("static.index_file %q must be a plain file name", st.IndexFile)
	}
	for i, r := range st.ImageRoutes {
		if !strings.HasPrefix(r.PathPattern, "/") {
			return fmt.Errorf("static.image_routes[%d].path_pattern %q must start with '/'", i, r.PathPattern)
		}
		if r.MatchType != MatchTypeExact && r.MatchType != MatchTypePrefix {
			return fmt.Errorf("static.image_routes[%d].match_type %q must be %q or %q", i, r.MatchType, MatchTypeExact, MatchTypePrefix)
		}
	}
	for ext, mimeType := range st.MimeTypes {
		if mimeType == "" {
			return fmt.Errorf("static.mime_types: empty MIME type for extension %q", ext)
		}
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	if l == nil {
		return fmt.Errorf("logging section is missing")
	}
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level %q is invalid", l.LogLevel)
	}
	if l.AccessLog != nil {
		if err := validateTarget("logging.access_log.target", l.AccessLog.Target); err != nil {
			return err
		}
		if err := validateFormat("logging.access_log.format", l.AccessLog.Format); err != nil {
			return err
		}
	}
	if l.ErrorLog != nil {
		if err := validateTarget("logging.error_log.target", l.ErrorLog.Target); err != nil {
			return err
		}
		if err := validateFormat("logging.error_log.format", l.ErrorLog.Format); err != nil {
			return err
		}
	}
	return nil
}

func validateTarget(field string, target *string) error {
	if target == nil || *target == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	return nil
}

func validateFormat(field, format string) error {
	if format != LogFormatJSON && format != LogFormatText {
		return fmt.Errorf("%s %q must be %q or %q", field, format, LogFormatJSON, LogFormatText)
	}
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
