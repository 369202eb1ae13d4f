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

// ConfigPath is the default config file location.
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreDriver   string `yaml:"storeDriver"`
	UsageFilePath string `yaml:"usageFilePath"`
	DatabaseURL   string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries"`

	GeminiAPIKey       string `yaml:"geminiAPIKey"`
	GenerationProvider string `yaml:"generationProvider"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	SystemPrompt       string `yaml:"systemPrompt"`

	IngestMode        string   `yaml:"ingestMode"`
	MaxDocumentChars  int      `yaml:"maxDocumentChars"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	SpoolDir          string   `yaml:"spoolDir"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	SessionSecret     string `yaml:"sessionSecret"`
	SessionTTL        string `yaml:"sessionTTL"`
	FreeLimit         int    `yaml:"freeLimit"`
	BackoffSeconds    []int  `yaml:"backoffSeconds"`
	LoginRateLimit    int    `yaml:"loginRateLimitPerMinute"`
	QuestionRateLimit int    `yaml:"questionRateLimitPerMinute"`

	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
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
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "file"
	}
	if cfg.UsageFilePath == "" {
		cfg.UsageFilePath = "data/usage.json"
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "analyst:ingest"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "ingest-workers"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = "gemini"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-2.0-flash"
	}
	if cfg.IngestMode == "" {
		cfg.IngestMode = "text"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf", ".epub", ".txt", ".md"}
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = "data/spool"
	}
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = 5
	}
	if len(cfg.BackoffSeconds) == 0 {
		cfg.BackoffSeconds = []int{10, 20, 30}
	}
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("USAGE_FILE_PATH"); v != "" {
		cfg.UsageFilePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("INGEST_MODE"); v != "" {
		cfg.IngestMode = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("SPOOL_DIR"); v != "" {
		cfg.SpoolDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FREE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FreeLimit = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimit = n
		}
	}
	if v := os.Getenv("QUESTION_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QuestionRateLimit = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return errors.New("config: sessionSecret is required (set in config.yaml or SESSION_SECRET)")
	}
	switch cfg.StoreDriver {
	case "file", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store driver")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q (file, memory or postgres)", cfg.StoreDriver)
	}
	switch cfg.GenerationProvider {
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
	case "ollama", "openai":
		if strings.TrimSpace(cfg.GenerationBaseURL) == "" {
			return fmt.Errorf("config: generationBaseURL is required for provider %q", cfg.GenerationProvider)
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	switch cfg.IngestMode {
	case "text":
	case "vision":
		if cfg.GenerationProvider != "gemini" {
			return errors.New("config: vision ingest mode requires the gemini provider")
		}
	default:
		return fmt.Errorf("config: unknown ingestMode %q (text or vision)", cfg.IngestMode)
	}
	if cfg.FreeLimit < 0 {
		return errors.New("config: freeLimit must be >= 0")
	}
	for _, s := range cfg.BackoffSeconds {
		if s <= 0 {
			return errors.New("config: backoffSeconds entries must be > 0")
		}
	}
	if cfg.LoginRateLimit < 0 || cfg.QuestionRateLimit < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.LoginRateLimit > 0 || cfg.QuestionRateLimit > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	return nil
}

// ParseSessionTTL parses the optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	return dur, nil
}

// Backoff converts the configured schedule into durations.
func (c FileConfig) Backoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.BackoffSeconds))
	for _, s := range c.BackoffSeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
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
