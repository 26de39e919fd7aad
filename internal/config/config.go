// Package config loads process-wide settings for the capture-and-clip
// engine and exposes the small set of keys that must be observed
// reactively (spec §4.5): pause state, storage cap class, default scope,
// sanitizer behavior and remote endpoint credentials.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CapClass is one of the fixed storage budgets the Buffer Manager enforces.
type CapClass string

const (
	Cap100MB CapClass = "100MB"
	Cap250MB CapClass = "250MB"
	Cap500MB CapClass = "500MB"
	Cap1GB   CapClass = "1GB"
	Cap2GB   CapClass = "2GB"
)

// Bytes returns the byte budget a cap class represents.
func (c CapClass) Bytes() int64 {
	switch c {
	case Cap100MB:
		return 100 * 1024 * 1024
	case Cap250MB:
		return 250 * 1024 * 1024
	case Cap1GB:
		return 1024 * 1024 * 1024
	case Cap2GB:
		return 2 * 1024 * 1024 * 1024
	default:
		return 500 * 1024 * 1024
	}
}

// Scope is the default breadth of a create_clip request when the caller
// does not specify one.
type Scope string

const (
	ScopeCurrentTab Scope = "current-tab"
	ScopeSelectTabs Scope = "select-tabs"
	ScopeAllTabs    Scope = "all-tabs"
)

// Static holds the process settings read once at startup: connection
// addresses, file paths and body-size ceilings. These are not reactive.
type Static struct {
	CDPAddress string
	CDPPort    int

	BindAddr          string
	BindFallbackAddrs []string
	BindAutoFallback  bool
	LogLevel          string
	LogFile           string
	LogMaxSizeMB      int // continuous capture logs far more per hour than an on-demand controller
	LogMaxBackups     int
	LogMaxAgeDays     int

	DBPath string

	// The three ceilings below are loaded from the environment but not read
	// by the capture pipeline, which applies its own fixed limits (5 MiB,
	// 1 MiB, 256 KiB).
	HTTPMaxBodyBytes int
	WSMaxFrameBytes  int
	SSEMaxEventBytes int

	BufferPassInterval int // seconds between scheduled Buffer Manager passes

	RemoteBucket   string
	InlineHARLimit int // bytes; loaded but not read: the uploader inlines strictly below the fixed clip.InlineThreshold
	ConfigYAMLPath string
}

// CDPURL returns the full CDP HTTP endpoint used by chromedp's remote
// allocator.
func (s *Static) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", s.CDPAddress, s.CDPPort)
}

// yamlOverrides is the shape of an optional config.yaml file, consulted for
// defaults before environment variables (env always wins).
type yamlOverrides struct {
	CustomHeaderPatterns []string `yaml:"custom_header_patterns"`
	StorageCapClass      string   `yaml:"storage_cap_class"`
	DefaultScope         string   `yaml:"default_scope"`
}

// LoadStatic reads the non-reactive process configuration from environment
// variables and an optional .env file, the way the teacher project's
// config.Load does.
func LoadStatic() (*Static, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Static{
		CDPAddress:         getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:            getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:           getEnvOrDefault("CLIPENGINE_BIND_ADDR", "127.0.0.1:8288"),
		BindFallbackAddrs:  getEnvListOrDefault("CLIPENGINE_BIND_FALLBACK_ADDRS", nil),
		BindAutoFallback:   getEnvBoolOrDefault("CLIPENGINE_BIND_AUTO_FALLBACK", false),
		LogLevel:           strings.ToLower(getEnvOrDefault("CLIPENGINE_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("CLIPENGINE_LOG_FILE", "logs/clipengine.log"),
		LogMaxSizeMB:       getEnvIntOrDefault("CLIPENGINE_LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:      getEnvIntOrDefault("CLIPENGINE_LOG_MAX_BACKUPS", 20),
		LogMaxAgeDays:      getEnvIntOrDefault("CLIPENGINE_LOG_MAX_AGE_DAYS", 14),
		DBPath:             getEnvOrDefault("CLIPENGINE_DB_PATH", "./data/clipengine.db"),
		HTTPMaxBodyBytes:   getEnvIntOrDefault("CLIPENGINE_HTTP_MAX_BODY_BYTES", 5*1024*1024),
		WSMaxFrameBytes:    getEnvIntOrDefault("CLIPENGINE_WS_MAX_FRAME_BYTES", 1*1024*1024),
		SSEMaxEventBytes:   getEnvIntOrDefault("CLIPENGINE_SSE_MAX_EVENT_BYTES", 256*1024),
		BufferPassInterval: getEnvIntOrDefault("CLIPENGINE_BUFFER_PASS_INTERVAL_SECONDS", 300),
		RemoteBucket:       getEnvOrDefault("CLIPENGINE_REMOTE_BUCKET", "clips"),
		InlineHARLimit:     getEnvIntOrDefault("CLIPENGINE_INLINE_HAR_LIMIT_BYTES", 1024*1024),
		ConfigYAMLPath:     getEnvOrDefault("CLIPENGINE_CONFIG_YAML", "config.yaml"),
	}
	return cfg, nil
}

// loadYAMLOverrides reads ./config.yaml if present. A missing file is not
// an error; a malformed one is.
func loadYAMLOverrides(path string) (*yamlOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &yamlOverrides{}, nil
		}
		return nil, err
	}
	var y yamlOverrides
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse config.yaml: %w", err)
	}
	return &y, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvListOrDefault parses a comma-separated env var into a trimmed,
// non-empty string slice; CLIPENGINE_BIND_FALLBACK_ADDRS uses this to list
// alternate control-plane listen addresses.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
