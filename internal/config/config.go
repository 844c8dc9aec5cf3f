/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreBackend selects where the request tables live.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreMySQL    StoreBackend = "mysql"
	StoreSQLite   StoreBackend = "sqlite"
	StoreRedis    StoreBackend = "redis"
)

// IsSQL reports whether the backend is served through gorm.
func (b StoreBackend) IsSQL() bool {
	return b == StorePostgres || b == StoreMySQL || b == StoreSQLite
}

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	LogFile       string
	LogBufferSize int // recent log lines kept for the logs endpoint
	HTTPBind      string
	HTTPPort      int
	InstanceID    string

	// External store
	StoreBackend  StoreBackend
	StoreDSN      string
	FormTables    []string // tables whose rows cannot be deleted, only cleared
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Link metadata cache (Redis)
	MetadataCache bool
	MetadataTTL   time.Duration

	// Store circuit breaker
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// Local media cache
	AssetRoot   string
	TempDir     string
	WatchAssets bool

	// Schedule
	Timezone        string
	RefreshInterval time.Duration

	// Workers
	RobotInterval   time.Duration
	PollInterval    time.Duration
	PollBatchSize   int
	GatedRetry      time.Duration
	EmptyRetry      time.Duration
	SkipDelay       time.Duration
	MonitorInterval time.Duration

	// Collaborator processes
	YTDLPBin   string
	PlayerBin  string
	PlayerArgs string

	// Speech synthesis
	OpenAIAPIKey  string
	OpenAIBaseURL string
	TTSModel      string
	TTSVoices     []string
	TTSSpeed      float64

	// Event mirroring
	NATSURL     string
	NATSSubject string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// fileConfig mirrors the keys accepted in the optional YAML file. Environment
// variables always win over file values.
type fileConfig struct {
	Environment  string   `yaml:"environment"`
	LogFile      string   `yaml:"log_file"`
	HTTPBind     string   `yaml:"http_bind"`
	HTTPPort     int      `yaml:"http_port"`
	StoreBackend string   `yaml:"store_backend"`
	StoreDSN     string   `yaml:"store_dsn"`
	FormTables   []string `yaml:"form_tables"`
	RedisAddr    string   `yaml:"redis_addr"`
	AssetRoot    string   `yaml:"asset_root"`
	Timezone     string   `yaml:"timezone"`
	YTDLPBin     string   `yaml:"ytdlp_bin"`
	PlayerBin    string   `yaml:"player_bin"`
	TTSModel     string   `yaml:"tts_model"`
	TTSVoices    []string `yaml:"tts_voices"`
	NATSURL      string   `yaml:"nats_url"`
}

// Load reads an optional .env file, an optional YAML file and environment
// variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	fc, err := readFile(getEnvAny([]string{"JUKEBOT_CONFIG_FILE"}, ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"JUKEBOT_ENV"}, orString(fc.Environment, "development")),
		LogFile:       getEnvAny([]string{"JUKEBOT_LOG_FILE"}, fc.LogFile),
		LogBufferSize: getEnvIntAny([]string{"JUKEBOT_LOG_BUFFER"}, 2000),
		HTTPBind:      getEnvAny([]string{"JUKEBOT_HTTP_BIND"}, orString(fc.HTTPBind, "0.0.0.0")),
		HTTPPort:      getEnvIntAny([]string{"JUKEBOT_HTTP_PORT"}, orInt(fc.HTTPPort, 8080)),
		InstanceID:    getEnvAny([]string{"JUKEBOT_INSTANCE_ID"}, ""),

		StoreBackend:  StoreBackend(getEnvAny([]string{"JUKEBOT_STORE_BACKEND"}, orString(fc.StoreBackend, string(StoreMemory)))),
		StoreDSN:      getEnvAny([]string{"JUKEBOT_STORE_DSN"}, fc.StoreDSN),
		FormTables:    getEnvListAny([]string{"JUKEBOT_FORM_TABLES"}, orList(fc.FormTables, []string{"Requests"})),
		RedisAddr:     getEnvAny([]string{"JUKEBOT_REDIS_ADDR"}, orString(fc.RedisAddr, "localhost:6379")),
		RedisPassword: getEnvAny([]string{"JUKEBOT_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"JUKEBOT_REDIS_DB"}, 0),
		RedisPrefix:   getEnvAny([]string{"JUKEBOT_REDIS_PREFIX"}, "jukebot"),

		MetadataCache: getEnvBoolAny([]string{"JUKEBOT_METADATA_CACHE"}, false),
		MetadataTTL:   getEnvDurationAny([]string{"JUKEBOT_METADATA_TTL"}, 24*time.Hour),

		BreakerMaxFailures: uint32(getEnvIntAny([]string{"JUKEBOT_BREAKER_MAX_FAILURES"}, 5)),
		BreakerOpenTimeout: getEnvDurationAny([]string{"JUKEBOT_BREAKER_OPEN_TIMEOUT"}, 30*time.Second),

		AssetRoot:   getEnvAny([]string{"JUKEBOT_ASSET_ROOT"}, orString(fc.AssetRoot, "./downloads")),
		TempDir:     getEnvAny([]string{"JUKEBOT_TEMP_DIR"}, os.TempDir()),
		WatchAssets: getEnvBoolAny([]string{"JUKEBOT_WATCH_ASSETS"}, true),

		Timezone:        getEnvAny([]string{"JUKEBOT_TIMEZONE"}, orString(fc.Timezone, "America/Sao_Paulo")),
		RefreshInterval: getEnvDurationAny([]string{"JUKEBOT_SCHEDULE_REFRESH"}, 5*time.Minute),

		RobotInterval:   getEnvDurationAny([]string{"JUKEBOT_ROBOT_INTERVAL"}, 60*time.Second),
		PollInterval:    getEnvDurationAny([]string{"JUKEBOT_POLL_INTERVAL"}, 30*time.Second),
		PollBatchSize:   getEnvIntAny([]string{"JUKEBOT_POLL_BATCH"}, 20),
		GatedRetry:      getEnvDurationAny([]string{"JUKEBOT_GATED_RETRY"}, 60*time.Second),
		EmptyRetry:      getEnvDurationAny([]string{"JUKEBOT_EMPTY_RETRY"}, 5*time.Second),
		SkipDelay:       getEnvDurationAny([]string{"JUKEBOT_SKIP_DELAY"}, 100*time.Millisecond),
		MonitorInterval: getEnvDurationAny([]string{"JUKEBOT_MONITOR_INTERVAL"}, 60*time.Second),

		YTDLPBin:   getEnvAny([]string{"JUKEBOT_YTDLP_BIN"}, orString(fc.YTDLPBin, "yt-dlp")),
		PlayerBin:  getEnvAny([]string{"JUKEBOT_PLAYER_BIN"}, orString(fc.PlayerBin, "gst-launch-1.0")),
		PlayerArgs: getEnvAny([]string{"JUKEBOT_PLAYER_ARGS"}, ""),

		OpenAIAPIKey:  getEnvAny([]string{"JUKEBOT_OPENAI_API_KEY", "OPENAI_API_KEY"}, ""),
		OpenAIBaseURL: getEnvAny([]string{"JUKEBOT_OPENAI_BASE_URL"}, ""),
		TTSModel:      getEnvAny([]string{"JUKEBOT_TTS_MODEL"}, orString(fc.TTSModel, "tts-1")),
		TTSVoices:     getEnvListAny([]string{"JUKEBOT_TTS_VOICES"}, orList(fc.TTSVoices, []string{"nova", "onyx"})),
		TTSSpeed:      getEnvFloatAny([]string{"JUKEBOT_TTS_SPEED"}, 1.0),

		NATSURL:     getEnvAny([]string{"JUKEBOT_NATS_URL"}, fc.NATSURL),
		NATSSubject: getEnvAny([]string{"JUKEBOT_NATS_SUBJECT"}, "jukebot.events"),

		TracingEnabled:    getEnvBoolAny([]string{"JUKEBOT_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"JUKEBOT_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"JUKEBOT_TRACING_SAMPLE_RATE"}, 1.0),
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreRedis:
	case StorePostgres, StoreMySQL, StoreSQLite:
		if cfg.StoreDSN == "" {
			return nil, fmt.Errorf("JUKEBOT_STORE_DSN must be provided for the %s backend", cfg.StoreBackend)
		}
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	if cfg.PollBatchSize <= 0 {
		return nil, fmt.Errorf("JUKEBOT_POLL_BATCH must be positive, got %d", cfg.PollBatchSize)
	}

	if cfg.AssetRoot == "" {
		return nil, errors.New("JUKEBOT_ASSET_ROOT must not be empty")
	}

	return cfg, nil
}

// Location returns the configured schedule time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orList(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("90s") or bare seconds ("90").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// getEnvListAny splits a comma separated value, dropping empty entries.
func getEnvListAny(keys []string, def []string) []string {
	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
