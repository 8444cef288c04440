// Package config loads and holds all toolkit configuration.
// Settings are read from a .env file (if present), then defaults, then
// toolkit-config.json, then environment variables. Later sources win.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the full toolkit configuration.
type Config struct {
	WebPort        int    `json:"webPort"`
	ManagementPort int    `json:"managementPort"`
	BindAddress    string `json:"bindAddress"`

	ModelEndpoint     string  `json:"modelEndpoint"`
	UseModelDetection bool    `json:"useModelDetection"`
	ModelConfidence   float64 `json:"modelConfidenceThreshold"`
	AllowRegexOnly    bool    `json:"allowRegexOnly"`

	DetectionCachePath string `json:"detectionCachePath"`
	DetectionCacheSize int    `json:"detectionCacheSize"`
	AuditDBPath        string `json:"auditDbPath"`
	PatternFile        string `json:"patternFile"`

	SummarizeEndpoint   string `json:"summarizeEndpoint"`
	SummarizeToken      string `json:"-"`
	SummarizeProjectKey string `json:"-"`

	ManagementToken string `json:"-"`

	LogLevel       string `json:"logLevel"`
	MaxUploadBytes int64  `json:"maxUploadBytes"`
}

// Load returns config with defaults overridden by toolkit-config.json and
// env vars. Secrets (tokens, keys) come from the environment only.
func Load() *Config {
	// Optional .env for local development; real env vars take precedence.
	if err := godotenv.Load(); err == nil {
		log.Printf("[CONFIG] Loaded .env")
	}
	cfg := defaults()
	loadFile(cfg, "toolkit-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		WebPort:            8080,
		ManagementPort:     8081,
		BindAddress:        "127.0.0.1",
		ModelEndpoint:      "http://localhost:8001",
		UseModelDetection:  true,
		ModelConfidence:    0.7,
		AllowRegexOnly:     false,
		DetectionCachePath: "",
		DetectionCacheSize: 10_000,
		AuditDBPath:        "audit.db",
		PatternFile:        "patterns.json",
		LogLevel:           "info",
		MaxUploadBytes:     5 << 20,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("WEB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("MODEL_ENDPOINT"); v != "" {
		cfg.ModelEndpoint = v
	}
	if v := os.Getenv("USE_MODEL_DETECTION"); v == "false" {
		cfg.UseModelDetection = false
	}
	if v := os.Getenv("MODEL_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ModelConfidence = f
		}
	}
	if v := os.Getenv("ALLOW_REGEX_ONLY"); v == "true" {
		cfg.AllowRegexOnly = true
	}
	if v := os.Getenv("DETECTION_CACHE_PATH"); v != "" {
		cfg.DetectionCachePath = v
	}
	if v := os.Getenv("DETECTION_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DetectionCacheSize = n
		}
	}
	if v := os.Getenv("AUDIT_DB_PATH"); v != "" {
		cfg.AuditDBPath = v
	}
	if v := os.Getenv("PATTERN_FILE"); v != "" {
		cfg.PatternFile = v
	}
	if v := os.Getenv("CML_MODEL_ENDPOINT"); v != "" {
		cfg.SummarizeEndpoint = v
	}
	if v := os.Getenv("CML_ACCESS_TOKEN"); v != "" {
		cfg.SummarizeToken = v
	}
	if v := os.Getenv("CML_PROJECT_KEY"); v != "" {
		cfg.SummarizeProjectKey = v
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}
