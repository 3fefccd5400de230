package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                         string   `yaml:"port"`
	LogLevel                     string   `yaml:"logLevel"`
	DatabaseURL                  string   `yaml:"databaseURL"`
	UseMemoryStore               bool     `yaml:"useMemoryStore"`
	RedisAddr                    string   `yaml:"redisAddr"`
	RedisPassword                string   `yaml:"redisPassword"`
	AdminPasswordHash            string   `yaml:"adminPasswordHash"`
	AdminTokenSecret             string   `yaml:"adminTokenSecret"`
	AdminTokenTTL                string   `yaml:"adminTokenTTL"`
	AdminLoginRateLimitPerMinute int      `yaml:"adminLoginRateLimitPerMinute"`
	GoogleBooksBaseURL           string   `yaml:"googleBooksBaseURL"`
	GoogleBooksAPIKey            string   `yaml:"googleBooksApiKey"`
	ScanConfirmReads             int      `yaml:"scanConfirmReads"`
	TrustedProxyCIDRs            []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINISHELF_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINISHELF_ADMIN_TOKEN_SECRET"); v != "" {
		cfg.AdminTokenSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINISHELF_ADMIN_TOKEN_TTL"); v != "" {
		cfg.AdminTokenTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINISHELF_ADMIN_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdminLoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GOOGLE_BOOKS_API_KEY"); v != "" {
		cfg.GoogleBooksAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINISHELF_SCAN_CONFIRM_READS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanConfirmReads = n
		}
	}
	if v := os.Getenv("MINISHELF_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if !cfg.UseMemoryStore && cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required unless useMemoryStore is set")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for admin login rate limiting")
	}
	if strings.TrimSpace(cfg.AdminPasswordHash) == "" {
		return errors.New("config: adminPasswordHash is required (set in config.yaml or MINISHELF_ADMIN_PASSWORD_HASH)")
	}
	if strings.TrimSpace(cfg.AdminTokenSecret) == "" {
		return errors.New("config: adminTokenSecret is required (set in config.yaml or MINISHELF_ADMIN_TOKEN_SECRET)")
	}
	if cfg.AdminLoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.ScanConfirmReads < 0 {
		return errors.New("config: scanConfirmReads must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseAdminTokenTTL parses the optional admin session TTL string.
func ParseAdminTokenTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid adminTokenTTL duration: %w", err)
	}
	return dur, nil
}
