package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Remote share endpoints the library is built from
	Shares []ShareEndpoint `yaml:"shares" json:"shares"`

	// Scanner configuration
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`

	// Transcoding configuration
	Transcode TranscodeConfig `yaml:"transcode" json:"transcode"`

	// AI enrichment services
	AI AIConfig `yaml:"ai" json:"ai"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"MUSELINK_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"MUSELINK_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"MUSELINK_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"MUSELINK_WRITE_TIMEOUT" default:"0s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"MUSELINK_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER" default:"muselink"`
	Password     string `yaml:"password" json:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB" default:"muselink"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"MUSELINK_DATA_DIR" default:"./data"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"MUSELINK_DATABASE_PATH"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// ShareEndpoint describes one configured root location on a remote SMB server.
// Immutable for the lifetime of any session opened against it.
type ShareEndpoint struct {
	Name     string `yaml:"name" json:"name"`
	Host     string `yaml:"host" json:"host"`
	Share    string `yaml:"share" json:"share"`
	RootPath string `yaml:"root_path" json:"root_path"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Domain   string `yaml:"domain" json:"domain"`
}

// DisplayPath returns the user-facing prefix for this endpoint: the share name
// followed by the optional root sub-path.
func (e ShareEndpoint) DisplayPath() string {
	if e.RootPath == "" {
		return e.Share
	}
	return e.Share + "/" + strings.Trim(strings.ReplaceAll(e.RootPath, "\\", "/"), "/")
}

// ScannerConfig holds library scanning configuration
type ScannerConfig struct {
	BatchSize         int     `yaml:"batch_size" json:"batch_size" env:"MUSELINK_SCAN_BATCH_SIZE" default:"20"`
	FingerprintBytes  int     `yaml:"fingerprint_bytes" json:"fingerprint_bytes" env:"MUSELINK_FINGERPRINT_BYTES" default:"8192"`
	MemoryThreshold   float64 `yaml:"memory_threshold" json:"memory_threshold" env:"MUSELINK_MEMORY_THRESHOLD" default:"85.0"`
	ThrottleSleepMs   int     `yaml:"throttle_sleep_ms" json:"throttle_sleep_ms" env:"MUSELINK_THROTTLE_SLEEP_MS" default:"250"`
	ThrottleCheckSize int     `yaml:"throttle_check_size" json:"throttle_check_size" env:"MUSELINK_THROTTLE_CHECK_SIZE" default:"50"`
}

// TranscodeConfig holds ffmpeg transcoding configuration
type TranscodeConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"MUSELINK_FFMPEG_PATH" default:"ffmpeg"`
	BitrateKbps int    `yaml:"bitrate_kbps" json:"bitrate_kbps" env:"MUSELINK_TRANSCODE_BITRATE" default:"192"`
}

// AIConfig holds AI text/speech service configuration
type AIConfig struct {
	TaggerURL      string        `yaml:"tagger_url" json:"tagger_url" env:"MUSELINK_AI_TAGGER_URL"`
	TaggerModel    string        `yaml:"tagger_model" json:"tagger_model" env:"MUSELINK_AI_TAGGER_MODEL" default:"gpt-4o-mini"`
	LyricsURL      string        `yaml:"lyrics_url" json:"lyrics_url" env:"MUSELINK_AI_LYRICS_URL"`
	LyricsMount    string        `yaml:"lyrics_mount" json:"lyrics_mount" env:"MUSELINK_AI_LYRICS_MOUNT"`
	HealthTimeout  time.Duration `yaml:"health_timeout" json:"health_timeout" env:"MUSELINK_AI_HEALTH_TIMEOUT" default:"2s"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"MUSELINK_AI_REQUEST_TIMEOUT" default:"120s"`
	BatchChunkSize int           `yaml:"batch_chunk_size" json:"batch_chunk_size" env:"MUSELINK_AI_CHUNK_SIZE" default:"15"`
	LyricsDelay    time.Duration `yaml:"lyrics_delay" json:"lyrics_delay" env:"MUSELINK_LYRICS_DELAY" default:"2s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"MUSELINK_LOG_LEVEL" default:"info"`
	JSON  bool   `yaml:"json" json:"json" env:"MUSELINK_LOG_JSON" default:"false"`
}

// Manager owns the loaded configuration and notifies watchers on reload
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []Watcher
}

// Watcher is called when configuration changes
type Watcher func(oldConfig, newConfig *Config)

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global configuration manager instance
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			// Streaming responses run for the length of a track; no write deadline.
			WriteTimeout: 0,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: "./data",
		},
		Scanner: ScannerConfig{
			BatchSize:         20,
			FingerprintBytes:  8192,
			MemoryThreshold:   85.0,
			ThrottleSleepMs:   250,
			ThrottleCheckSize: 50,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:  "ffmpeg",
			BitrateKbps: 192,
		},
		AI: AIConfig{
			TaggerModel:    "gpt-4o-mini",
			HealthTimeout:  2 * time.Second,
			RequestTimeout: 120 * time.Second,
			BatchChunkSize: 15,
			LyricsDelay:    2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (m *Manager) LoadConfig(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := *m.config
	m.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	m.config = newConfig

	for _, watcher := range m.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	configCopy.Shares = append([]ShareEndpoint(nil), m.config.Shares...)
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (m *Manager) AddWatcher(watcher Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, watcher)
}

// ConfigPath returns the path the configuration was loaded from
func (m *Manager) ConfigPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Scanner.BatchSize < 1 {
		return fmt.Errorf("invalid scanner batch size: %d", config.Scanner.BatchSize)
	}

	seen := make(map[string]bool, len(config.Shares))
	for _, share := range config.Shares {
		if share.Host == "" || share.Share == "" {
			return fmt.Errorf("share endpoint %q must set host and share", share.Name)
		}
		if seen[share.Name] {
			return fmt.Errorf("duplicate share endpoint name: %q", share.Name)
		}
		seen[share.Name] = true
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "muselink.db")
	}

	for i := range config.Shares {
		if config.Shares[i].Name == "" {
			config.Shares[i].Name = config.Shares[i].Share
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher Watcher) {
	GetManager().AddWatcher(watcher)
}
