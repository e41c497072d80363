package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "RECIPESWIPE_CONFIG"
	backendURLEnv = "RECIPESWIPE_BACKEND_URL"
	catalogURLEnv = "RECIPESWIPE_CATALOG_URL"
	imagesURLEnv  = "RECIPESWIPE_IMAGES_URL"
	dbPathEnv     = "RECIPESWIPE_DB_PATH"
	logLevelEnv   = "RECIPESWIPE_LOG_LEVEL"
	addrEnv       = "RECIPESWIPE_ADDR"

	defaultEnvFile = ".env"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Backend    BackendConfig    `yaml:"backend"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Images     ImagesConfig     `yaml:"images"`
	Upload     UploadConfig     `yaml:"upload"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Candidates CandidatesConfig `yaml:"candidates"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// BackendConfig points at the OCR upload service.
type BackendConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// FlagsURL is the base under which completion flags are published.
	FlagsURL string `yaml:"flagsUrl"`
}

// CatalogConfig points at the recipe service.
type CatalogConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// ImagesConfig describes where recipe images are served from.
type ImagesConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	CacheDir string `yaml:"cacheDir"`
	Remote   bool   `yaml:"remote"`
}

// UploadConfig tunes batching and status polling of upload jobs.
type UploadConfig struct {
	BatchSize       int           `yaml:"batchSize"`
	BatchDelay      time.Duration `yaml:"batchDelay"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
	MaxPollFailures int           `yaml:"maxPollFailures"`
	KeepCompleted   int           `yaml:"keepCompleted"`
}

// QueueConfig tunes the image prefetch queue.
type QueueConfig struct {
	InitialSize     int           `yaml:"initialSize"`
	RefillThreshold int           `yaml:"refillThreshold"`
	BatchSize       int           `yaml:"batchSize"`
	MaxSize         int           `yaml:"maxSize"`
	InjectCooldown  time.Duration `yaml:"injectCooldown"`
	InjectAttempts  int           `yaml:"injectAttempts"`
	InjectBaseDelay time.Duration `yaml:"injectBaseDelay"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// CandidatesConfig lists image hosts that refuse hot-linking.
type CandidatesConfig struct {
	BlockedDomains []string `yaml:"blockedDomains"`
}

// Load reads the dotenv file and YAML configuration (if present) and applies
// environment overrides. Empty envFile means ".env"; empty path falls back
// to RECIPESWIPE_CONFIG.
func Load(envFile, path string) (Config, error) {
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(backendURLEnv); v != "" {
		c.Backend.Endpoint = v
	}

	if v := os.Getenv(catalogURLEnv); v != "" {
		c.Catalog.Endpoint = v
	}

	if v := os.Getenv(imagesURLEnv); v != "" {
		c.Images.BaseURL = v
	}

	if v := os.Getenv(dbPathEnv); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(addrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	mergeString(&base.Logging.Level, override.Logging.Level)

	mergeString(&base.Backend.Endpoint, override.Backend.Endpoint)
	mergeString(&base.Backend.FlagsURL, override.Backend.FlagsURL)
	mergeDuration(&base.Backend.Timeout, override.Backend.Timeout)

	mergeString(&base.Catalog.Endpoint, override.Catalog.Endpoint)
	mergeDuration(&base.Catalog.Timeout, override.Catalog.Timeout)
	mergeDuration(&base.Catalog.PollInterval, override.Catalog.PollInterval)

	mergeString(&base.Images.BaseURL, override.Images.BaseURL)
	mergeString(&base.Images.CacheDir, override.Images.CacheDir)
	if override.Images.Remote {
		base.Images.Remote = true
	}

	mergeInt(&base.Upload.BatchSize, override.Upload.BatchSize)
	mergeDuration(&base.Upload.BatchDelay, override.Upload.BatchDelay)
	mergeDuration(&base.Upload.PollInterval, override.Upload.PollInterval)
	mergeInt(&base.Upload.MaxPollAttempts, override.Upload.MaxPollAttempts)
	mergeInt(&base.Upload.MaxPollFailures, override.Upload.MaxPollFailures)
	mergeInt(&base.Upload.KeepCompleted, override.Upload.KeepCompleted)

	mergeInt(&base.Queue.InitialSize, override.Queue.InitialSize)
	mergeInt(&base.Queue.RefillThreshold, override.Queue.RefillThreshold)
	mergeInt(&base.Queue.BatchSize, override.Queue.BatchSize)
	mergeInt(&base.Queue.MaxSize, override.Queue.MaxSize)
	mergeDuration(&base.Queue.InjectCooldown, override.Queue.InjectCooldown)
	mergeInt(&base.Queue.InjectAttempts, override.Queue.InjectAttempts)
	mergeDuration(&base.Queue.InjectBaseDelay, override.Queue.InjectBaseDelay)

	mergeString(&base.Storage.Path, override.Storage.Path)
	mergeString(&base.Server.Addr, override.Server.Addr)

	if len(override.Candidates.BlockedDomains) > 0 {
		base.Candidates.BlockedDomains = override.Candidates.BlockedDomains
	}

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Backend: BackendConfig{
			Endpoint: "http://localhost:8080/upload",
			Timeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			Endpoint:     "http://localhost:8080",
			Timeout:      30 * time.Second,
			PollInterval: 30 * time.Second,
		},
		Images: ImagesConfig{
			BaseURL:  "http://localhost:8080",
			CacheDir: os.TempDir(),
		},
		Upload: UploadConfig{
			BatchSize:       10,
			BatchDelay:      100 * time.Millisecond,
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 150,
			MaxPollFailures: 5,
			KeepCompleted:   10,
		},
		Queue: QueueConfig{
			InitialSize:     15,
			RefillThreshold: 8,
			BatchSize:       5,
			MaxSize:         30,
			InjectCooldown:  2 * time.Second,
			InjectAttempts:  3,
			InjectBaseDelay: time.Second,
		},
		Storage: StorageConfig{Path: "recipeswipe.db"},
		Server:  ServerConfig{Addr: ":8090"},
		Candidates: CandidatesConfig{
			BlockedDomains: []string{
				"lookaside.instagram.com",
				"instagram.com",
				"pinterest.com",
				"facebook.com",
				"twitter.com",
				"x.com",
				"tiktok.com",
			},
		},
	}
}
