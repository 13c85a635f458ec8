package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Quota    QuotaConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Router   RouterConfig
	Results  ResultsConfig
	LLM      LLMConfig
	TTS      TTSConfig
	Alerts   AlertConfig
	API      APIConfig

	// Credentials is the flat name -> secret set every provider credential is
	// looked up in. Built once by Load.
	Credentials map[string]string
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"` // json or text
	// OperatorPath receives attempt histories and alerts; empty keeps them on stderr.
	OperatorPath       string `env:"OPERATOR_LOG_PATH" envDefault:"logs/operator.log"`
	OperatorMaxSizeMB  int    `env:"OPERATOR_LOG_MAX_SIZE_MB" envDefault:"50"`
	OperatorMaxBackups int    `env:"OPERATOR_LOG_MAX_BACKUPS" envDefault:"5"`
}

type QuotaConfig struct {
	Backend  string `env:"QUOTA_BACKEND" envDefault:"file"` // file, sqlite, postgres, redis
	Path     string `env:"QUOTA_PATH"`
	Timezone string `env:"QUOTA_TIMEZONE" envDefault:"Local"`
	RedisKey string `env:"QUOTA_REDIS_KEY" envDefault:"quota:exhausted"`
	// RetainDays keeps that many past days of records when pruning at startup.
	RetainDays int `env:"QUOTA_RETAIN_DAYS" envDefault:"7"`
}

type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Enabled reports whether a redis server was configured at all.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type RouterConfig struct {
	AttemptTimeout time.Duration `env:"ROUTER_ATTEMPT_TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"ROUTER_MAX_RETRIES" envDefault:"2"`
	BackoffInitial time.Duration `env:"ROUTER_BACKOFF_INITIAL" envDefault:"500ms"`
	BackoffMax     time.Duration `env:"ROUTER_BACKOFF_MAX" envDefault:"5s"`
}

type ResultsConfig struct {
	DetailPolicy string        `env:"DETAIL_POLICY" envDefault:"reformat"`
	TTL          time.Duration `env:"RESULT_TTL" envDefault:"24h"`
	CacheSize    int           `env:"RESULT_CACHE_SIZE" envDefault:"1024"`
	ChunkLimit   int           `env:"CHUNK_LIMIT" envDefault:"4096"`
}

type LLMConfig struct {
	GeminiURL    string `env:"GEMINI_BASE_URL"`
	OpenAIURL    string `env:"OPENAI_BASE_URL"`
	AnthropicURL string `env:"ANTHROPIC_BASE_URL"`
	OllamaURL    string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel  string `env:"OLLAMA_MODEL" envDefault:"llama3"`
}

type TTSConfig struct {
	OpenAIVoice string `env:"TTS_OPENAI_VOICE" envDefault:"alloy"`
	PiperBin    string `env:"PIPER_BIN" envDefault:"piper"`
	PiperModel  string `env:"PIPER_MODEL"`
}

type AlertConfig struct {
	Sink          string `env:"ALERT_SINK" envDefault:"log"` // log or queue
	WebhookURL    string `env:"ALERT_WEBHOOK_URL"`
	WebhookSecret string `env:"ALERT_WEBHOOK_SECRET"`
}

type APIConfig struct {
	Key          string   `env:"API_KEY"`
	KeyHeader    string   `env:"API_KEY_HEADER" envDefault:"X-API-Key"`
	RateLimitRPS float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateBurst    int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	CORSOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// credentialVars are read into Config.Credentials when set.
var credentialVars = []string{
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
}

// LoadDotEnv overlays .env files onto the process environment. Missing files
// are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", path, err)
		}
	}
}

// Load parses the environment. Call LoadDotEnv first to honor .env files.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds

	cfg.Quota.Backend = strings.ToLower(strings.TrimSpace(cfg.Quota.Backend))
	cfg.Alerts.Sink = strings.ToLower(strings.TrimSpace(cfg.Alerts.Sink))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Results.DetailPolicy = strings.ToLower(strings.TrimSpace(cfg.Results.DetailPolicy))
	return cfg, nil
}

// loadCredentials reads the well known *_API_KEY variables plus
// EXTRA_CREDENTIALS ("NAME=secret,OTHER=secret") for providers added to the
// catalog later.
func loadCredentials() (map[string]string, error) {
	creds := make(map[string]string)
	for _, name := range credentialVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			creds[name] = v
		}
	}

	extra := strings.TrimSpace(os.Getenv("EXTRA_CREDENTIALS"))
	if extra == "" {
		return creds, nil
	}
	for _, pair := range strings.Split(extra, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, secret, ok := strings.Cut(pair, "=")
		name, secret = strings.TrimSpace(name), strings.TrimSpace(secret)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid EXTRA_CREDENTIALS entry %q: want NAME=secret", name)
		}
		if secret != "" {
			creds[name] = secret
		}
	}
	return creds, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location resolves QUOTA_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Quota.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	var missing []string

	switch c.Quota.Backend {
	case "file", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "redis":
		if !c.Redis.Enabled() {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		errs = append(errs, fmt.Errorf("QUOTA_BACKEND must be file, sqlite, postgres or redis, got %q", c.Quota.Backend))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("QUOTA_TIMEZONE: %w", err))
	}

	switch c.Alerts.Sink {
	case "log":
	case "queue":
		if !c.Redis.Enabled() {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		errs = append(errs, fmt.Errorf("ALERT_SINK must be log or queue, got %q", c.Alerts.Sink))
	}

	switch c.Results.DetailPolicy {
	case "reformat", "reinvoke":
	default:
		errs = append(errs, fmt.Errorf("DETAIL_POLICY must be reformat or reinvoke, got %q", c.Results.DetailPolicy))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}

	if c.Router.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("ROUTER_ATTEMPT_TIMEOUT must be positive"))
	}
	if c.Router.MaxRetries < 0 {
		errs = append(errs, errors.New("ROUTER_MAX_RETRIES must not be negative"))
	}
	if c.Results.ChunkLimit < 64 {
		errs = append(errs, errors.New("CHUNK_LIMIT must be at least 64"))
	}
	if c.Results.CacheSize <= 0 {
		errs = append(errs, errors.New("RESULT_CACHE_SIZE must be positive"))
	}
	if c.API.RateLimitRPS <= 0 || c.API.RateBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required env vars: %s", strings.Join(dedupe(missing), ", ")))
	}
	return errors.Join(errs...)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
